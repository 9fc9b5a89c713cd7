package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultSearchEndpoint is the datastore activity search.
const DefaultSearchEndpoint = "https://iatidatastore.iatistandard.org/search/activity"

// SearchURL builds the query for every activity that carries a document link.
func SearchURL(endpoint string, rows int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("search endpoint: %w", err)
	}
	q := url.Values{}
	q.Set("q", "document_link_url:[* TO *]")
	q.Set("fl", "iati_identifier,reporting_org_ref,document_link_xml")
	q.Set("wt", "json")
	q.Set("rows", strconv.Itoa(rows))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Download streams the search response into w and returns the byte count.
func Download(ctx context.Context, client *http.Client, searchURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("metadata download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("metadata download: unexpected HTTP status %d", resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("metadata download: %w", err)
	}
	slog.Info("Metadata downloaded", "bytes", n)
	return n, nil
}
