package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// StringSet is an unordered set of codes. It marshals as a sorted JSON array.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Add(v string) { s[v] = struct{}{} }

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Union adds every member of other to s.
func (s StringSet) Union(other StringSet) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Clone returns an independent copy; a nil set clones to an empty one.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	out.Union(s)
	return out
}

// Sorted returns the members in lexical order, never nil.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// ActivityRecord is one element of the bulk metadata docs array.
type ActivityRecord struct {
	IatiIdentifier  string       `json:"iati_identifier"`
	ReportingOrgRef string       `json:"reporting_org_ref"`
	DocumentLinkXML FragmentList `json:"document_link_xml"`
}

// FragmentList holds the embedded document-link XML. The search endpoint
// returns the field either as a single string or as an array of strings.
type FragmentList []string

func (f *FragmentList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*f = FragmentList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("document_link_xml: expected string or array of strings: %w", err)
	}
	*f = many
	return nil
}

// Descriptor is the canonical per-URL document metadata.
//
// Title, Date and Format are nil when the source carried no value.
// Categories, Languages and Sources are unions over every record that
// referenced the URL.
type Descriptor struct {
	URL        string    `json:"url"`
	Title      *string   `json:"title"`
	Date       *string   `json:"date"`
	Categories StringSet `json:"categories"`
	Format     *string   `json:"format,omitempty"`
	Languages  StringSet `json:"languages,omitempty"`
	Sources    StringSet `json:"sources,omitempty"`
}

// Clone deep-copies the descriptor so merged values never alias inputs.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Title = cloneString(d.Title)
	out.Date = cloneString(d.Date)
	out.Format = cloneString(d.Format)
	out.Categories = d.Categories.Clone()
	out.Languages = d.Languages.Clone()
	out.Sources = d.Sources.Clone()
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// FetchResult is the outcome of one GET. Body is set only when Err is nil.
type FetchResult struct {
	Descriptor  Descriptor
	Body        []byte
	StatusCode  int
	ContentType string
	Err         error
}

// ExtractedRecord is the structured output of the extraction capability.
type ExtractedRecord struct {
	Metadata map[string]string `json:"metadata"`
	Text     string            `json:"text"`
}

// Status tags an Outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is the terminal, per-URL artifact of a run.
type Outcome struct {
	Descriptor

	RunID         string           `json:"run_id"`
	Fingerprint   *string          `json:"fingerprint"`
	Status        Status           `json:"status"`
	FailureReason string           `json:"failure_reason,omitempty"`
	HTTPStatus    int              `json:"http_status,omitempty"`
	Extracted     *ExtractedRecord `json:"extracted,omitempty"`
	Cached        bool             `json:"cached,omitempty"`
	DurationMS    int64            `json:"duration_ms"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// Progress is an operator-facing snapshot of a run.
type Progress struct {
	RunID     string        `json:"run_id"`
	Total     int64         `json:"total"`
	Completed int64         `json:"completed"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	InFlight  int64         `json:"in_flight"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Done      bool          `json:"done"`
}
