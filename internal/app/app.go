package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/iatidocs/internal/config"
	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/core/cache"
	db "github.com/markdave123-py/iatidocs/internal/core/database"
	"github.com/markdave123-py/iatidocs/internal/core/fetcher"
	"github.com/markdave123-py/iatidocs/internal/core/fingerprint"
	"github.com/markdave123-py/iatidocs/internal/core/ingestion_engine"
	"github.com/markdave123-py/iatidocs/internal/core/merger"
	"github.com/markdave123-py/iatidocs/internal/core/normalizer"
	objectclient "github.com/markdave123-py/iatidocs/internal/core/object-client"
	"github.com/markdave123-py/iatidocs/internal/core/sink"
	"github.com/markdave123-py/iatidocs/internal/models"
)

type App struct {
	Cfg        *config.Config
	Normalizer *normalizer.Normalizer
	Ingestor   *ingestion_engine.DocumentIngestor

	sink    core.OutcomeSink
	closers []func() error
}

// NewApp connects every configured backend and builds the coordinator.
// Optional backends (Postgres, Mongo, Redis, S3) are enabled by their config keys.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	policy, err := normalizer.ParsePolicy(cfg.MissingURLPolicy)
	if err != nil {
		return nil, err
	}
	fp, err := fingerprint.New(cfg.FingerprintAlgo)
	if err != nil {
		return nil, err
	}

	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	a := &App{Cfg: cfg, Normalizer: normalizer.New(policy)}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	sinks, err := a.openSinks(appCtx)
	if err != nil {
		return nil, err
	}
	a.sink = sinks

	extractionCache, err := a.openCache(appCtx)
	if err != nil {
		return nil, err
	}

	var objClient core.ObjectClient
	if cfg.BucketName != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		objClient = s3Client
		slog.Info("Object client initialized and ready.")
	}

	httpClient := fetcher.NewHTTPClient(cfg.FetchTimeout, cfg.Workers)
	documentFetcher := fetcher.New(httpClient, cfg.UserAgent, cfg.MaxDocumentBytes)
	documentExtractor := ingestion_engine.NewDocconvExtractor(cfg.UseReadability, cfg.ExtractTimeout)

	ingCfg := &ingestion_engine.IngestConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Bucket:    cfg.BucketName,
	}
	a.Ingestor = ingestion_engine.NewDocumentIngestor(documentFetcher, fp, documentExtractor, extractionCache, objClient, a.sink, ingCfg)

	ok = true
	return a, nil
}

func (a *App) openSinks(ctx context.Context) (core.OutcomeSink, error) {
	cfg := a.Cfg
	var sinks sink.Multi

	if cfg.OutputPath != "" {
		fs, err := sink.NewFileSink(cfg.OutputPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink.Named{Name: "file", Sink: fs})
		slog.Info("Writing outcomes to file", "path", cfg.OutputPath)
	}

	if cfg.DatabaseURL != "" {
		store, err := db.NewOutcomeStore(ctx, cfg)
		if err != nil {
			return nil, errors.Join(err, sinks.Close(ctx))
		}
		sinks = append(sinks, sink.Named{Name: "postgres", Sink: store})
		slog.Info("Database initialized and ready.")
	}

	if cfg.MongoURI != "" {
		ms, err := sink.NewMongoSink(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, errors.Join(err, sinks.Close(ctx))
		}
		sinks = append(sinks, sink.Named{Name: "mongo", Sink: ms})
		slog.Info("Mongo sink initialized and ready.", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

func (a *App) openCache(ctx context.Context) (core.ExtractionCache, error) {
	cfg := a.Cfg
	switch {
	case cfg.RedisAddr != "":
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		slog.Info("Redis extraction cache ready", "addr", cfg.RedisAddr)
		return rc, nil
	case cfg.CacheSize > 0:
		lc, err := cache.NewLRU(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return lc, nil
	default:
		return nil, nil
	}
}

// Descriptors normalizes every record and merges the results into one
// descriptor per URL, in first-seen order.
func Descriptors(n *normalizer.Normalizer, records []models.ActivityRecord) []models.Descriptor {
	merged := merger.Merge(n.NormalizeAll(records))
	slog.Info("Descriptors merged", "records", len(records), "unique_urls", merged.Len())
	return merged.Ordered()
}

// Ingest runs the full pipeline over the records.
func (a *App) Ingest(ctx context.Context, records []models.ActivityRecord) (map[string]*models.Outcome, error) {
	return a.Ingestor.Run(ctx, Descriptors(a.Normalizer, records))
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close(ctx))
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
