package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/metrics"
	"github.com/markdave123-py/iatidocs/internal/models"
)

// Named tags a sink for logs and the sink_errors_total metric.
type Named struct {
	Name string
	Sink core.OutcomeSink
}

// Multi fans each outcome out to every sink. A failing sink does not stop
// the others; all errors are joined.
type Multi []Named

var _ core.OutcomeSink = Multi(nil)

func (m Multi) Write(ctx context.Context, o *models.Outcome) error {
	var errs []error
	for _, n := range m {
		if err := n.Sink.Write(ctx, o); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(n.Name).Inc()
			slog.Warn("Sink write failed", "sink", n.Name, "url", o.URL, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if err := n.Sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
