package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/iatidocs/internal/config"
	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/core/fetcher"
	"github.com/markdave123-py/iatidocs/internal/core/metadata"
	"github.com/markdave123-py/iatidocs/internal/core/normalizer"
	"github.com/markdave123-py/iatidocs/internal/logger"
	"github.com/markdave123-py/iatidocs/internal/models"
)

type cli struct {
	cfg *config.Config

	input   string
	sample  int
	seed    int64
	workers int
	output  string
}

// NewRootCommand builds the iatidocs command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "iatidocs",
		Short: "iatidocs: fetch, fingerprint and extract IATI activity documents",
		Long: `iatidocs turns bulk IATI activity metadata into one extracted-text outcome
per unique document URL.

Usage:
  iatidocs download --rows 500000 --output data/output.json
  iatidocs normalize --input data/output.json
  iatidocs run --input data/output.json --workers 16
  iatidocs serve --input data/output.json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.cfg = config.LoadConfig()
			level, err := logger.ParseLevel(c.cfg.LogLevel)
			if err != nil {
				return err
			}
			logger.Init(cmd.ErrOrStderr(), level, c.cfg.LogFormat)
			return nil
		},
	}

	root.AddCommand(c.runCommand(), c.serveCommand(), c.normalizeCommand(), c.downloadCommand())
	return root
}

func (c *cli) inputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.input, "input", "i", "", "Bulk metadata JSON (search envelope or docs array)")
	cmd.Flags().IntVar(&c.sample, "sample", 0, "Process a random sample of N activity records (0 = all)")
	cmd.Flags().Int64Var(&c.seed, "seed", 1, "Seed for --sample")
	_ = cmd.MarkFlagRequired("input")
}

func (c *cli) pipelineFlags(cmd *cobra.Command) {
	c.inputFlags(cmd)
	cmd.Flags().IntVarP(&c.workers, "workers", "w", 0, "Worker pool size (overrides WORKERS)")
	cmd.Flags().StringVarP(&c.output, "output", "o", "", "NDJSON outcome file, .gz to compress (overrides OUTPUT_PATH)")
}

// applyFlags lets explicit flags override the environment.
func (c *cli) applyFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("workers") {
		c.cfg.Workers = c.workers
	}
	if cmd.Flags().Changed("output") {
		c.cfg.OutputPath = c.output
	}
}

func (c *cli) loadRecords() ([]models.ActivityRecord, error) {
	records, err := metadata.Load(c.input)
	if err != nil {
		return nil, err
	}
	if c.sample > 0 {
		records = metadata.Sample(records, c.sample, c.seed)
		slog.Info("Sampled activity records", "sample", len(records), "seed", c.seed)
	}
	return records, nil
}

func (c *cli) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Normalize, merge, fetch, fingerprint and extract every document",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.applyFlags(cmd)
			records, err := c.loadRecords()
			if err != nil {
				return err
			}

			a, err := NewApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			outcomes, err := a.Ingest(cmd.Context(), records)
			printSummary(cmd.OutOrStdout(), a.Ingestor.Progress(), len(outcomes))
			return err
		},
	}
	c.pipelineFlags(cmd)
	return cmd
}

func (c *cli) serveCommand() *cobra.Command {
	var linger time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline while exposing /api/progress, /healthz and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.applyFlags(cmd)
			records, err := c.loadRecords()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := NewApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			srv := NewServer(c.cfg.Port, a.Ingestor)
			srvErr := make(chan error, 1)
			go func() { srvErr <- srv.Start() }()

			outcomes, runErr := a.Ingest(ctx, records)
			printSummary(cmd.OutOrStdout(), a.Ingestor.Progress(), len(outcomes))

			if runErr == nil && linger > 0 {
				slog.Info("Run finished; server stays up", "linger", linger)
				select {
				case <-time.After(linger):
				case <-ctx.Done():
				case err := <-srvErr:
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.Join(runErr, srv.Shutdown(shutdownCtx), <-srvErr)
		},
	}
	c.pipelineFlags(cmd)
	cmd.Flags().DurationVar(&linger, "linger", 0, "Keep serving this long after the run completes")
	return cmd
}

func (c *cli) normalizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Print merged document descriptors as NDJSON without fetching",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			policy, err := normalizer.ParsePolicy(c.cfg.MissingURLPolicy)
			if err != nil {
				return err
			}
			records, err := c.loadRecords()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, d := range Descriptors(normalizer.New(policy), records) {
				if err := enc.Encode(d); err != nil {
					return err
				}
			}
			return nil
		},
	}
	c.inputFlags(cmd)
	return cmd
}

func (c *cli) downloadCommand() *cobra.Command {
	var (
		rows     int
		endpoint string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download bulk activity metadata from the IATI datastore",
		RunE: func(cmd *cobra.Command, args []string) error {
			searchURL, err := metadata.SearchURL(endpoint, rows)
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}

			client := fetcher.NewHTTPClient(30*time.Minute, 1)
			slog.Info("Downloading metadata", "url", searchURL, "output", output)
			_, err = metadata.Download(cmd.Context(), client, searchURL, f)
			return errors.Join(err, f.Close())
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 500000, "Maximum number of activity records")
	cmd.Flags().StringVar(&endpoint, "endpoint", metadata.DefaultSearchEndpoint, "Datastore activity search endpoint")
	cmd.Flags().StringVarP(&output, "output", "o", "data/output.json", "Destination file")
	return cmd
}

func printSummary(w io.Writer, p models.Progress, outcomes int) {
	fmt.Fprintf(w, "run %s: %d of %d descriptors processed, %d succeeded, %d failed (%s)\n",
		p.RunID, outcomes, p.Total, p.Succeeded, p.Failed, p.Elapsed.Round(time.Millisecond))
}

func closeApp(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		slog.Error("Failed to close outputs", "error", err)
	}
}

// IsCancelled reports whether err came from an interrupted run.
func IsCancelled(err error) bool {
	return errors.Is(err, core.ErrCancelled)
}
