package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-fare-expander/cache"
	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/aluiziolira/go-fare-expander/notify"
	"github.com/aluiziolira/go-fare-expander/pipeline"
	"github.com/aluiziolira/go-fare-expander/scraper"
	"github.com/aluiziolira/go-fare-expander/store"
)

const claimPrefix = "fare:"

type appOptions struct {
	input   string
	requeue string
	notify  bool
}

// app holds everything that outlives a single run.
type app struct {
	cfg      *config.Config
	opts     appOptions
	pool     *scraper.Pool
	writer   pipeline.OutputWriter
	claims   cache.Provider
	renderer *notify.Renderer
	sender   notify.Sender

	mu      sync.Mutex
	pending []models.DealCandidate
}

func newApp(ctx context.Context, cfg *config.Config, metrics *scraper.Metrics, opts appOptions) (*app, error) {
	if opts.requeue == "" {
		opts.requeue = strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".requeue.jsonl"
	}

	writer, err := createWriter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating writer: %w", err)
	}

	var claims cache.Provider = cache.NoopProvider{}
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		claims = cache.NewRedisProvider(client, claimPrefix)
		slog.Info("cross-run claims enabled", slog.Duration("ttl", cfg.ClaimTTL))
	}

	a := &app{
		cfg:    cfg,
		opts:   opts,
		pool:   scraper.NewPool(cfg, scraper.NewCollyTransportFactory(cfg), nil, metrics),
		writer: writer,
		claims: claims,
	}
	if opts.notify {
		if !cfg.SMTP.Enabled() {
			slog.Warn("notify requested but SMTP is not configured; digest will be skipped")
		}
		a.renderer = notify.NewRenderer()
		a.sender = notify.NewEmailSender(cfg.SMTP)
	}
	return a, nil
}

func createWriter(ctx context.Context, cfg *config.Config) (pipeline.OutputWriter, error) {
	var file pipeline.OutputWriter
	var err error
	switch cfg.OutputFormat {
	case "json":
		file, err = pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		file, err = pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".json"
		file, err = pipeline.NewDualWriter(cfg.OutputFile, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return file, nil
	}

	pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	db := store.NewPostgresStore(pool, cfg.Timeout)
	if err := db.EnsureSchema(ctx); err != nil {
		_ = file.Close()
		_ = db.Close()
		return nil, err
	}
	slog.Info("postgres output enabled")
	return pipeline.NewMultiWriter(file, db), nil
}

// runOnce expands the input plus whatever the previous run handed back.
func (a *app) runOnce(ctx context.Context) error {
	if !a.mu.TryLock() {
		slog.Warn("previous run still in progress, skipping")
		return nil
	}
	defer a.mu.Unlock()

	candidates, err := a.loadCandidates()
	if err != nil {
		return err
	}
	candidates = append(a.pending, candidates...)
	a.pending = nil

	coordinator, err := pipeline.NewCoordinator(a.cfg, a.pool, a.writer, pipeline.WithClaims(a.claims))
	if err != nil {
		return err
	}

	slog.Info("starting run",
		slog.Int("candidates", len(candidates)),
		slog.Int("workers", a.cfg.Concurrency),
		slog.Int("batch_size", a.cfg.BatchSize),
	)
	report, runErr := coordinator.Run(ctx, candidates)
	if report != nil {
		a.pending = report.Requeue
		if err := a.writeRequeue(report.Requeue); err != nil {
			slog.Error("writing requeue file", slog.Any("error", err))
		}
		printSummary(os.Stdout, report, a.pool.Stats(), a.cfg.OutputFile, a.opts.requeue)
		if runErr == nil {
			a.sendDigest(report)
		}
	}
	if runErr != nil {
		return runErr
	}
	return a.writer.Validate()
}

func (a *app) loadCandidates() ([]models.DealCandidate, error) {
	var r io.Reader = os.Stdin
	if a.opts.input != "-" {
		f, err := os.Open(a.opts.input)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return pipeline.ReadCandidates(r)
}

func (a *app) writeRequeue(candidates []models.DealCandidate) error {
	if len(candidates) == 0 {
		if err := os.Remove(a.opts.requeue); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.opts.requeue), 0o755); err != nil {
		return err
	}
	f, err := os.Create(a.opts.requeue)
	if err != nil {
		return err
	}
	if err := pipeline.WriteCandidates(f, candidates); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (a *app) sendDigest(report *models.RunReport) {
	if a.sender == nil {
		return
	}
	digest := notify.BuildDigest(report.Accepted, a.cfg.Scoring.MinDealsForBundle, time.Now())
	if digest.Empty() {
		slog.Info("no featured deals or bundles, digest skipped")
		return
	}
	msg, err := a.renderer.Render(digest)
	if err != nil {
		slog.Error("rendering digest", slog.Any("error", err))
		return
	}
	if err := a.sender.Send(msg); err != nil {
		slog.Error("sending digest", slog.Any("error", err))
	}
}

// Close flushes outputs and releases external connections.
func (a *app) Close() error {
	return errors.Join(a.writer.Close(), a.claims.Close())
}

// printSummary reports one run. Batched counts every candidate handed to the pool; Expanded
// counts only those whose expansion came back before the run ended.
func printSummary(w io.Writer, report *models.RunReport, stats scraper.Stats, outputFile, requeueFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Run complete")

	total := report.Totals()
	for _, b := range report.Batches {
		fmt.Fprintf(w, "  Batch %-3d      %d candidates: %d completed, %d partial, %d failed, %d valid, %d featured (%v)\n",
			b.Index+1, b.Candidates, b.Completed, b.PartiallyFailed, b.Failed, b.Valid, b.Featured, b.Duration.Round(time.Second))
	}
	fmt.Fprintf(w, "  Batched:       %d\n", total.Candidates)
	fmt.Fprintf(w, "  Expanded:      %d\n", len(report.Deals))
	fmt.Fprintf(w, "  Valid deals:   %d\n", total.Valid)
	fmt.Fprintf(w, "  Featured:      %d\n", total.Featured)
	fmt.Fprintf(w, "  Failed rate:   %.2f%%\n", total.FailedRate()*100)
	fmt.Fprintf(w, "  Rejected:      %d\n", len(report.Rejected))
	fmt.Fprintf(w, "  Skipped:       %d\n", report.Skipped)
	fmt.Fprintf(w, "  Requeued:      %d\n", len(report.Requeue))
	fmt.Fprintf(w, "  Cooldowns:     %d\n", stats.Cooldowns)
	fmt.Fprintf(w, "  Duration:      %v\n", report.EndTime.Sub(report.StartTime).Round(time.Second))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	if len(report.Requeue) > 0 {
		fmt.Fprintf(w, "  Requeue file:  %s\n", requeueFile)
	}
	fmt.Fprintln(w, separator)
}
