package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// convertFunc matches docconv.Convert.
type convertFunc func(r io.Reader, mimeType string, readability bool) (*docconv.Response, error)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
	timeout        time.Duration
	convert        convertFunc
}

func NewDocconvExtractor(useReadability bool, timeout time.Duration) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability, timeout: timeout, convert: docconv.Convert}
}

type convertResult struct {
	res *docconv.Response
	err error
}

// Extract runs docconv on the payload. docconv is not context aware, so the
// conversion runs in its own goroutine and is abandoned when ctx or the
// configured timeout expires. Panics inside the converter become errors.
func (e *DocconvExtractor) Extract(ctx context.Context, body []byte, contentType string) (*models.ExtractedRecord, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan convertResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- convertResult{err: fmt.Errorf("converter panic: %v", r)}
			}
		}()
		res, err := e.convert(bytes.NewReader(body), contentType, e.useReadability)
		done <- convertResult{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &core.ExtractError{Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			slog.Debug("docconv: extraction failed", "content_type", contentType, "error", out.err)
			return nil, &core.ExtractError{Err: out.err}
		}
		if out.res == nil {
			return nil, &core.ExtractError{Err: fmt.Errorf("converter returned no response")}
		}
		meta := out.res.Meta
		if meta == nil {
			meta = map[string]string{}
		}
		return &models.ExtractedRecord{Metadata: meta, Text: strings.TrimSpace(out.res.Body)}, nil
	}
}

// contentTypeFor picks the best MIME hint for a fetched document: the
// response header, then the descriptor's declared format, then the URL
// extension.
func contentTypeFor(fr *models.FetchResult) string {
	if mt, _, err := mime.ParseMediaType(fr.ContentType); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if f := fr.Descriptor.Format; f != nil && *f != "" {
		return strings.ToLower(*f)
	}
	if u, err := url.Parse(fr.Descriptor.URL); err == nil {
		if mt := docconv.MimeTypeByExtension(path.Base(u.Path)); mt != "" && mt != "application/octet-stream" {
			return mt
		}
	}
	return "application/octet-stream"
}
