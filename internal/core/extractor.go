package core

import (
	"context"

	"github.com/markdave123-py/iatidocs/internal/models"
)

// DocumentExtractor defines the contract with the external content-extraction capability.
type DocumentExtractor interface {
	// Extract converts a raw payload into text plus metadata. The contentType
	// hint helps the extractor choose the right parsing strategy; it may be empty.
	Extract(ctx context.Context, body []byte, contentType string) (*models.ExtractedRecord, error)
}

// Fetcher retrieves the raw bytes behind a descriptor. Failures are carried
// in FetchResult.Err rather than returned, so every call yields a result.
type Fetcher interface {
	Fetch(ctx context.Context, d models.Descriptor) *models.FetchResult
}

// Fingerprinter digests raw document bytes.
type Fingerprinter interface {
	Sum(body []byte) string
}
