// Package normalizer turns the document-link XML embedded in an activity
// record into Document Descriptors.
package normalizer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

// MissingURLPolicy decides what happens to a document-link without a url attribute.
type MissingURLPolicy string

const (
	// SkipMissingURL drops the element and logs it.
	SkipMissingURL MissingURLPolicy = "skip"
	// FailMissingURL rejects the whole activity record with ErrMalformedRecord.
	FailMissingURL MissingURLPolicy = "fail"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (MissingURLPolicy, error) {
	switch p := MissingURLPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SkipMissingURL, FailMissingURL:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing-url policy %q", s)
	}
}

type Normalizer struct {
	policy MissingURLPolicy
}

func New(policy MissingURLPolicy) *Normalizer {
	if policy == "" {
		policy = SkipMissingURL
	}
	return &Normalizer{policy: policy}
}

// Normalize parses every fragment of one activity record, in order.
func (n *Normalizer) Normalize(rec models.ActivityRecord) ([]models.Descriptor, error) {
	var out []models.Descriptor
	for idx, fragment := range rec.DocumentLinkXML {
		descs, err := n.NormalizeFragment(fragment, rec.IatiIdentifier)
		if err != nil {
			return nil, fmt.Errorf("activity %q fragment %d: %w", rec.IatiIdentifier, idx, err)
		}
		out = append(out, descs...)
	}
	return out, nil
}

// NormalizeAll normalizes records in source order. A record that fails is
// logged and contributes an empty list, so the run continues.
func (n *Normalizer) NormalizeAll(records []models.ActivityRecord) [][]models.Descriptor {
	out := make([][]models.Descriptor, 0, len(records))
	for _, rec := range records {
		descs, err := n.Normalize(rec)
		if err != nil {
			slog.Warn("Skipping malformed activity record", "iati_identifier", rec.IatiIdentifier, "error", err)
			descs = nil
		}
		out = append(out, descs)
	}
	return out
}

// NormalizeFragment extracts one descriptor per document-link element in the
// fragment. The fragment may be a bare document-link or contain several.
func (n *Normalizer) NormalizeFragment(fragment, source string) ([]models.Descriptor, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	doc, err := xmlquery.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}

	var out []models.Descriptor
	for _, link := range xmlquery.Find(doc, "//document-link") {
		url, ok := attr(link, "url")
		if !ok {
			if n.policy == FailMissingURL {
				return nil, fmt.Errorf("%w: document-link without url attribute", core.ErrMalformedRecord)
			}
			slog.Warn("Skipping document-link without url", "source", source)
			continue
		}

		d := models.Descriptor{
			URL:        url,
			Title:      firstText(link, "title/narrative/text()"),
			Date:       firstText(link, "document-date/@iso-date"),
			Categories: allText(link, "category/@code"),
			Languages:  allText(link, "language/@code"),
			Sources:    models.NewStringSet(),
		}
		if format, ok := attr(link, "format"); ok {
			d.Format = &format
		}
		if source != "" {
			d.Sources.Add(source)
		}
		out = append(out, d)
	}
	return out, nil
}

func attr(n *xmlquery.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func firstText(n *xmlquery.Node, expr string) *string {
	hit := xmlquery.FindOne(n, expr)
	if hit == nil {
		return nil
	}
	v := hit.InnerText()
	return &v
}

func allText(n *xmlquery.Node, expr string) models.StringSet {
	set := models.NewStringSet()
	for _, hit := range xmlquery.Find(n, expr) {
		set.Add(hit.InnerText())
	}
	return set
}
