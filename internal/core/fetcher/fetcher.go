// Package fetcher retrieves document bytes over HTTP.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "iatidocs/1.0"
	DefaultMaxBytes  = 100 << 20
)

var _ core.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPClient builds the process-wide client shared by every fetch.
func NewHTTPClient(timeout time.Duration, maxConns int) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = maxConns * 2
	transport.MaxIdleConnsPerHost = maxConns
	transport.MaxConnsPerHost = maxConns
	return &http.Client{Timeout: timeout, Transport: transport}
}

// HTTPFetcher issues a single GET per call; it never retries.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func New(client *http.Client, userAgent string, maxBytes int64) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, maxBytes: maxBytes}
}

// Fetch returns the full body for a 200 response. Any other status, a
// transport error or an oversized body yields a result with Err set and no Body.
func (f *HTTPFetcher) Fetch(ctx context.Context, d models.Descriptor) *models.FetchResult {
	res := &models.FetchResult{Descriptor: d}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		res.Err = &core.FetchError{URL: d.URL, Err: fmt.Errorf("creating request: %w", err)}
		return res
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		res.Err = &core.FetchError{URL: d.URL, Err: err}
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		res.Err = &core.FetchError{URL: d.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %s", resp.Status)}
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		res.Err = &core.FetchError{URL: d.URL, Err: fmt.Errorf("reading response body: %w", err)}
		return res
	}
	if int64(len(body)) > f.maxBytes {
		res.Err = &core.FetchError{URL: d.URL, Err: fmt.Errorf("document exceeds %d bytes", f.maxBytes)}
		return res
	}

	res.Body = body
	res.ContentType = resp.Header.Get("Content-Type")
	return res
}
