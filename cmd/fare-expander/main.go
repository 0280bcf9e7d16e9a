package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $FARE_CONFIG)")
	inputPath := flag.String("input", "", "JSONL candidate file, or - for stdin")
	requeuePath := flag.String("requeue", "", "Where to write candidates to retry (default: next to the output file)")
	schedule := flag.String("schedule", "", "Cron spec for repeated runs (e.g. \"@every 6h\")")
	notifyFlag := flag.Bool("notify", false, "Email the featured-deal digest after each run")
	concurrency := flag.Int("concurrency", 0, "Number of concurrent expansions")
	outputFile := flag.String("output", "", "Output file path")
	outputFormat := flag.String("format", "", "Output format: csv, json, or dual")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, map[string]func(){
		"schedule":     func() { cfg.Schedule = *schedule },
		"concurrency":  func() { cfg.Concurrency = *concurrency },
		"output":       func() { cfg.OutputFile = *outputFile },
		"format":       func() { cfg.OutputFormat = strings.ToLower(*outputFormat) },
		"metrics-addr": func() { cfg.MetricsAddr = *metricsAddr },
		"v":            func() { cfg.Verbose = *verbose },
	})

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *inputPath == "" {
		slog.Error("no candidates: pass -input <file> or -input -")
		os.Exit(1)
	}
	if *inputPath == "-" && cfg.Schedule != "" {
		slog.Error("scheduled runs need an input file, not stdin")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metrics := scraper.NewMetrics()
	a, err := newApp(ctx, cfg, metrics, appOptions{
		input:   *inputPath,
		requeue: *requeuePath,
		notify:  *notifyFlag,
	})
	if err != nil {
		slog.Error("initialising", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	exitCode := 0
	if cfg.Schedule == "" {
		if err := a.runOnce(ctx); err != nil {
			slog.Error("run failed", slog.Any("error", err))
			exitCode = 1
		}
	} else if err := runScheduled(ctx, cfg.Schedule, a); err != nil {
		slog.Error("scheduler failed", slog.Any("error", err))
		exitCode = 1
	}

	if err := a.Close(); err != nil {
		slog.Error("shutdown failed", slog.Any("error", err))
		exitCode = 1
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	stop()
	os.Exit(exitCode)
}

// applyFlags runs the setter of every flag given on the command line, so flags override the
// file and environment only when present.
func applyFlags(cfg *config.Config, setters map[string]func()) {
	flag.Visit(func(f *flag.Flag) {
		if set, ok := setters[f.Name]; ok {
			set()
		}
	})
}

// runScheduled runs once immediately, then on every tick of spec until ctx is done.
func runScheduled(ctx context.Context, spec string, a *app) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() {
		if err := a.runOnce(ctx); err != nil {
			slog.Error("scheduled run failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	c.Start()
	slog.Info("scheduler started", slog.String("spec", spec))
	if err := a.runOnce(ctx); err != nil {
		slog.Error("initial run failed", slog.Any("error", err))
	}

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("scheduler stopped")
	return nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
