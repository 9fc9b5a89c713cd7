package ingestion_engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

// IngestConfig tunes the coordinator.
//
// Workers:    fixed worker-pool size; each worker owns one descriptor at a time.
// QueueSize:  capacity of the pending-descriptor queue (backpressure on the feeder).
// Bucket:     object-storage bucket for the raw-document archive; empty disables archiving.
type IngestConfig struct {
	Workers   int
	QueueSize int
	Bucket    string
}

// State is the per-descriptor lifecycle position, used in logs.
type State string

const (
	StatePending       State = "pending"
	StateFetching      State = "fetching"
	StateFetchFailed   State = "fetch_failed"
	StateFetched       State = "fetched"
	StateExtracting    State = "extracting"
	StateExtractFailed State = "extract_failed"
	StateExtracted     State = "extracted"
	StateDone          State = "done"
)

// DocumentIngestor is the pipeline coordinator:
//
// fetcher:       retrieves raw bytes; one shared HTTP client behind it.
// fingerprinter: digests fetched bytes.
// extractor:     external extraction capability (docconv).
// cache:         optional fingerprint -> extraction cache.
// obj:           optional object storage for the raw-document archive.
// sink:          optional outcome persistence.
// outcomes:      the run's result set, written exactly once per URL.
type DocumentIngestor struct {
	fetcher       core.Fetcher
	fingerprinter core.Fingerprinter
	extractor     core.DocumentExtractor
	cache         core.ExtractionCache
	obj           core.ObjectClient
	sink          core.OutcomeSink
	cfg           *IngestConfig

	runID   string
	started atomic.Bool

	startedAt  atomic.Int64
	finishedAt atomic.Int64
	total      atomic.Int64
	completed  atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	cancelled  atomic.Int64
	inFlight   atomic.Int64

	mu       sync.Mutex
	outcomes map[string]*models.Outcome
}

func (i *DocumentIngestor) elapsed() time.Duration {
	start := i.startedAt.Load()
	if start == 0 {
		return 0
	}
	end := i.finishedAt.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return time.Duration(end - start)
}
