package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/iatidocs/internal/core"
	objectclient "github.com/markdave123-py/iatidocs/internal/core/object-client"
	"github.com/markdave123-py/iatidocs/internal/metrics"
	"github.com/markdave123-py/iatidocs/internal/models"
)

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor wires the coordinator. cache, obj and sink may be nil.
func NewDocumentIngestor(
	fetcher core.Fetcher,
	fingerprinter core.Fingerprinter,
	extractor core.DocumentExtractor,
	cache core.ExtractionCache,
	obj core.ObjectClient,
	sink core.OutcomeSink,
	cfg *IngestConfig,
) *DocumentIngestor {
	if cfg == nil {
		cfg = &IngestConfig{Workers: 8}
	}
	return &DocumentIngestor{
		fetcher:       fetcher,
		fingerprinter: fingerprinter,
		extractor:     extractor,
		cache:         cache,
		obj:           obj,
		sink:          sink,
		cfg:           cfg,
		runID:         uuid.NewString(),
		outcomes:      make(map[string]*models.Outcome),
	}
}

func (i *DocumentIngestor) RunID() string { return i.runID }

// Run processes every descriptor on a fixed pool of workers and returns one
// outcome per URL. When ctx is cancelled the feeder stops queueing, queued
// and in-flight descriptors finish as failures tagged cancelled, and Run
// returns the complete set together with an error wrapping core.ErrCancelled.
func (i *DocumentIngestor) Run(ctx context.Context, descriptors []models.Descriptor) (map[string]*models.Outcome, error) {
	if !i.started.CompareAndSwap(false, true) {
		return nil, errors.New("ingestor: Run may only be called once")
	}
	workers := i.cfg.Workers
	if workers < 1 {
		return nil, fmt.Errorf("ingestor: worker pool size must be at least 1, got %d", workers)
	}
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if _, dup := seen[d.URL]; dup {
			return nil, fmt.Errorf("ingestor: duplicate descriptor for url %q", d.URL)
		}
		seen[d.URL] = struct{}{}
	}

	i.total.Store(int64(len(descriptors)))
	i.startedAt.Store(time.Now().UnixNano())

	slog.Info("Ingestion run started", "run_id", i.runID, "descriptors", len(descriptors), "workers", workers)

	queueSize := i.cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	jobs := make(chan models.Descriptor, queueSize)

	var g errgroup.Group

	// Feeder: the only producer. On cancellation the descriptors it never
	// queued are recorded as cancelled so none are dropped.
	g.Go(func() error {
		defer close(jobs)
		for idx, d := range descriptors {
			select {
			case jobs <- d:
			case <-ctx.Done():
				for _, rest := range descriptors[idx:] {
					if err := i.record(ctx, i.cancelledOutcome(rest, time.Now())); err != nil {
						return err
					}
				}
				return nil
			}
		}
		return nil
	})

	for w := 1; w <= workers; w++ {
		g.Go(func() error {
			for d := range jobs {
				if err := i.record(ctx, i.processOne(ctx, w, d)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	i.finishedAt.Store(time.Now().UnixNano())

	i.mu.Lock()
	outcomes := make(map[string]*models.Outcome, len(i.outcomes))
	for url, o := range i.outcomes {
		outcomes[url] = o
	}
	i.mu.Unlock()

	p := i.Progress()
	slog.Info("Ingestion run finished",
		"run_id", i.runID,
		"total", p.Total,
		"succeeded", p.Succeeded,
		"failed", p.Failed,
		"elapsed_ms", p.Elapsed.Milliseconds(),
	)

	if err != nil {
		return outcomes, err
	}
	if n := i.cancelled.Load(); n > 0 {
		return outcomes, fmt.Errorf("ingestor: %d of %d descriptors interrupted: %w", n, len(descriptors), core.ErrCancelled)
	}
	return outcomes, nil
}

// processOne runs Fetch -> Fingerprint -> Extract for one descriptor and
// always returns a complete outcome.
func (i *DocumentIngestor) processOne(ctx context.Context, worker int, d models.Descriptor) *models.Outcome {
	start := time.Now()
	if ctx.Err() != nil {
		return i.cancelledOutcome(d, start)
	}

	i.inFlight.Add(1)
	metrics.InFlightDocuments.Inc()
	defer func() {
		i.inFlight.Add(-1)
		metrics.InFlightDocuments.Dec()
	}()

	out := i.newOutcome(d)
	log := slog.With("run_id", i.runID, "worker", worker, "url", d.URL)

	log.Debug("Descriptor state", "state", StateFetching)
	fetchStart := time.Now()
	fr := i.fetcher.Fetch(ctx, d)
	if fr.Err != nil {
		metrics.FetchDuration.WithLabelValues("failure").Observe(time.Since(fetchStart).Seconds())
		log.Warn("Fetch failed", "state", StateFetchFailed, "http_status", fr.StatusCode, "error", fr.Err)
		out.HTTPStatus = fr.StatusCode
		return i.fail(out, fr.Err, start)
	}
	metrics.FetchDuration.WithLabelValues("success").Observe(time.Since(fetchStart).Seconds())
	out.HTTPStatus = fr.StatusCode
	log.Debug("Descriptor state", "state", StateFetched, "bytes", len(fr.Body))

	fp := i.fingerprinter.Sum(fr.Body)
	out.Fingerprint = &fp

	i.archive(ctx, fp, fr)

	if rec, ok := i.lookup(ctx, fp); ok {
		log.Debug("Extraction served from cache", "fingerprint", fp)
		out.Cached = true
		return i.succeed(out, rec, start)
	}

	log.Debug("Descriptor state", "state", StateExtracting)
	extractStart := time.Now()
	rec, err := i.extractor.Extract(ctx, fr.Body, contentTypeFor(fr))
	if err == nil && rec == nil {
		err = errors.New("extractor returned no record")
	}
	if err != nil {
		var xerr *core.ExtractError
		if !errors.As(err, &xerr) {
			err = &core.ExtractError{Err: err}
		}
		metrics.ExtractDuration.WithLabelValues("failure").Observe(time.Since(extractStart).Seconds())
		log.Warn("Extraction failed", "state", StateExtractFailed, "error", err)
		return i.fail(out, err, start)
	}
	metrics.ExtractDuration.WithLabelValues("success").Observe(time.Since(extractStart).Seconds())
	log.Debug("Descriptor state", "state", StateExtracted)

	if i.cache != nil {
		if err := i.cache.Put(ctx, fp, rec); err != nil {
			log.Warn("Failed to cache extraction", "fingerprint", fp, "error", err)
		}
	}
	return i.succeed(out, rec, start)
}

func (i *DocumentIngestor) lookup(ctx context.Context, fp string) (*models.ExtractedRecord, bool) {
	if i.cache == nil {
		return nil, false
	}
	rec, ok, err := i.cache.Get(ctx, fp)
	if err != nil {
		slog.Warn("Extraction cache lookup failed", "fingerprint", fp, "error", err)
		return nil, false
	}
	if ok {
		metrics.CacheHitsTotal.Inc()
	}
	return rec, ok
}

// archive stores the raw bytes under their fingerprint. Failures are logged only.
func (i *DocumentIngestor) archive(ctx context.Context, fp string, fr *models.FetchResult) {
	if i.obj == nil || i.cfg.Bucket == "" {
		return
	}
	key := objectclient.DocumentKey(fp)
	exists, err := i.obj.Exists(ctx, i.cfg.Bucket, key)
	if err != nil {
		slog.Warn("Archive lookup failed", "key", key, "error", err)
	}
	if exists {
		return
	}
	if _, err := i.obj.UploadFile(ctx, i.cfg.Bucket, key, fr.Body, contentTypeFor(fr)); err != nil {
		slog.Warn("Archive upload failed", "key", key, "url", fr.Descriptor.URL, "error", err)
	}
}

func (i *DocumentIngestor) newOutcome(d models.Descriptor) *models.Outcome {
	return &models.Outcome{Descriptor: d, RunID: i.runID}
}

func (i *DocumentIngestor) succeed(out *models.Outcome, rec *models.ExtractedRecord, start time.Time) *models.Outcome {
	out.Status = models.StatusSuccess
	out.Extracted = rec
	out.FailureReason = ""
	return stamp(out, start)
}

func (i *DocumentIngestor) fail(out *models.Outcome, err error, start time.Time) *models.Outcome {
	out.Status = models.StatusFailure
	out.FailureReason = core.FailureReason(err)
	out.Extracted = nil
	return stamp(out, start)
}

func (i *DocumentIngestor) cancelledOutcome(d models.Descriptor, start time.Time) *models.Outcome {
	return i.fail(i.newOutcome(d), core.ErrCancelled, start)
}

func stamp(out *models.Outcome, start time.Time) *models.Outcome {
	now := time.Now()
	out.DurationMS = now.Sub(start).Milliseconds()
	out.CompletedAt = now.UTC()
	return out
}

// record inserts the outcome into the result set, updates progress and
// forwards it to the sink. A second write for the same URL is a coordinator
// bug and aborts the run.
func (i *DocumentIngestor) record(ctx context.Context, out *models.Outcome) error {
	i.mu.Lock()
	if _, dup := i.outcomes[out.URL]; dup {
		i.mu.Unlock()
		return fmt.Errorf("ingestor: outcome for %q recorded twice", out.URL)
	}
	i.outcomes[out.URL] = out
	i.mu.Unlock()

	completed := i.completed.Add(1)
	if out.Status == models.StatusSuccess {
		i.succeeded.Add(1)
	} else {
		i.failed.Add(1)
		if reasonLabel(out) == "cancelled" {
			i.cancelled.Add(1)
		}
	}
	metrics.DocumentsTotal.WithLabelValues(string(out.Status), reasonLabel(out)).Inc()

	slog.Info("Document processed",
		"run_id", i.runID,
		"url", out.URL,
		"status", out.Status,
		"state", StateDone,
		"completed", completed,
		"total", i.total.Load(),
		"duration_ms", out.DurationMS,
	)

	if i.sink != nil {
		if err := i.sink.Write(context.WithoutCancel(ctx), out); err != nil {
			slog.Error("Failed to persist outcome", "url", out.URL, "error", err)
		}
	}
	return nil
}

// Progress reports completed versus total descriptors for the current run.
func (i *DocumentIngestor) Progress() models.Progress {
	return models.Progress{
		RunID:     i.runID,
		Total:     i.total.Load(),
		Completed: i.completed.Load(),
		Succeeded: i.succeeded.Load(),
		Failed:    i.failed.Load(),
		InFlight:  i.inFlight.Load(),
		Elapsed:   i.elapsed(),
		Done:      i.finishedAt.Load() != 0,
	}
}

// Outcomes returns the outcomes recorded so far, ordered by URL.
func (i *DocumentIngestor) Outcomes() []*models.Outcome {
	i.mu.Lock()
	out := make([]*models.Outcome, 0, len(i.outcomes))
	for _, o := range i.outcomes {
		out = append(out, o)
	}
	i.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].URL < out[b].URL })
	return out
}

// reasonLabel buckets an outcome for the documents_total metric.
func reasonLabel(out *models.Outcome) string {
	switch {
	case out.Status == models.StatusSuccess && out.Cached:
		return "cached"
	case out.Status == models.StatusSuccess:
		return "extracted"
	case strings.HasPrefix(out.FailureReason, core.ErrCancelled.Error()):
		return "cancelled"
	case strings.HasPrefix(out.FailureReason, "fetch "):
		return "fetch"
	case strings.HasPrefix(out.FailureReason, "extract: "):
		return "extract"
	default:
		return "other"
	}
}
