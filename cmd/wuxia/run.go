package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-wuxia/config"
	"github.com/aluiziolira/go-scrape-wuxia/metrics"
	"github.com/aluiziolira/go-scrape-wuxia/models"
	"github.com/aluiziolira/go-scrape-wuxia/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process exported items through the pipelines",
	Example: `  wuxia run --input items.jsonl --sinks sql,jsonl
  crawler export | wuxia run --sinks mongo --mongo-uri mongodb://db:27017`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	flags := runCmd.Flags()
	flags.String("input", "-", "JSON lines file to read items from, - for stdin")
	flags.StringSlice("sinks", []string{config.SinkSQL}, "sinks to write to (sql, mongo, amqp, jsonl)")
	flags.String("persist-policy", "forward", "what to do with an item a sink failed to store: forward or drop")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.String("sql-dsn", "", "relational store DSN")
	flags.String("mongo-uri", "", "document store URI")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx := cmd.Context()
	m := metrics.NewMetrics()

	built, err := buildPipeline(ctx, cfg, m, logger)
	if err != nil {
		logger.Error("building pipeline", slog.Any("error", err))
		return err
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, m, logger)
	defer stopMetricsServer(metricsServer, logger)

	if err := built.pipeline.Open(ctx); err != nil {
		logger.Error("opening pipeline", slog.Any("error", err))
		return err
	}
	if cfg.Verbose {
		built.pipeline.StartStatsReporting(10 * time.Second)
	}

	in, err := openInput(cfg.Input)
	if err != nil {
		_ = built.pipeline.Close(context.WithoutCancel(ctx))
		return err
	}
	defer in.Close()

	logger.Info("processing items",
		slog.String("run_id", built.pipeline.Run().ID),
		slog.String("input", cfg.Input),
		slog.Any("sinks", cfg.Sinks),
		slog.String("persist_policy", cfg.PersistPolicy),
	)

	startTime := time.Now()
	read, readErr := pipeline.ReadItems(ctx, in, func(item *models.Item) error {
		return tolerateItemErrors(built.pipeline.Process(ctx, item))
	})

	// Sinks finalise on close; a cancelled run still gets its indexes and flushes.
	closeErr := built.pipeline.Close(context.WithoutCancel(ctx))
	if closeErr != nil {
		logger.Error("pipeline shutdown failed", slog.Any("error", closeErr))
	}
	if readErr != nil {
		logger.Error("processing failed", slog.Int("read", read), slog.Any("error", readErr))
		return readErr
	}
	if closeErr != nil {
		return closeErr
	}

	stats := built.pipeline.Stats()
	if built.jsonl != nil && stats.Processed > 0 {
		if err := built.jsonl.Validate(); err != nil {
			logger.Error("output validation failed", slog.Any("error", err))
			return err
		}
	}

	printSummary(cmd.OutOrStdout(), stats, read, time.Since(startTime), cfg)
	return nil
}

// tolerateItemErrors keeps the run going past per-item outcomes that the
// pipeline has already logged and counted.
func tolerateItemErrors(err error) error {
	if err == nil || errors.Is(err, pipeline.ErrDropped) {
		return nil
	}
	var persist *pipeline.PersistError
	if errors.As(err, &persist) {
		return nil
	}
	return err
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func startMetricsServer(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server, logger *slog.Logger) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, stats pipeline.Stats, read int, duration time.Duration, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Run complete")

	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(stats.Processed) / duration.Seconds()
	}

	fmt.Fprintf(w, "  Items read:    %d\n", read)
	fmt.Fprintf(w, "  Processed:     %d\n", stats.Processed)
	fmt.Fprintf(w, "  Dropped:       %d\n", stats.TotalDropped())
	if len(stats.Dropped) > 0 {
		fmt.Fprintf(w, "  Drop reasons:  %v\n", stats.Dropped)
	}
	if len(stats.PersistFailures) > 0 {
		fmt.Fprintf(w, "  Sink failures: %v\n", stats.PersistFailures)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Fprintf(w, "  Sinks:         %v\n", cfg.Sinks)
	fmt.Fprintln(w, separator)
}
