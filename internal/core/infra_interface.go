package core

import (
	"context"

	"github.com/markdave123-py/iatidocs/internal/models"
)

// OutcomeSink persists outcomes as they complete. Implementations must be
// safe for concurrent use; each outcome is written exactly once per run.
type OutcomeSink interface {
	Write(ctx context.Context, outcome *models.Outcome) error
	Close(ctx context.Context) error
}

// ExtractionCache maps a content fingerprint to a previous extraction so
// byte-identical documents are not re-extracted.
type ExtractionCache interface {
	Get(ctx context.Context, fingerprint string) (*models.ExtractedRecord, bool, error)
	Put(ctx context.Context, fingerprint string, rec *models.ExtractedRecord) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
}
