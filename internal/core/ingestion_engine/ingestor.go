package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/iatidocs/internal/models"
)

// Ingestor drives a set of canonical descriptors to outcomes.
type Ingestor interface {
	Run(ctx context.Context, descriptors []models.Descriptor) (map[string]*models.Outcome, error)
	Progress() models.Progress
	Outcomes() []*models.Outcome
}
