package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-wuxia/config"
	"github.com/aluiziolira/go-scrape-wuxia/metrics"
	"github.com/aluiziolira/go-scrape-wuxia/pipeline"
	"github.com/aluiziolira/go-scrape-wuxia/sink/amqpsink"
	"github.com/aluiziolira/go-scrape-wuxia/sink/mongosink"
	"github.com/aluiziolira/go-scrape-wuxia/sink/sqlsink"
)

type builtPipeline struct {
	pipeline *pipeline.Pipeline
	// jsonl is kept for the post-run output check; nil when not configured.
	jsonl *pipeline.JSONLSink
}

// buildPipeline assembles the guards and normaliser followed by one persist
// stage per configured sink, in configuration order.
func buildPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*builtPipeline, error) {
	normalizer, err := pipeline.NewNameNormalizer(cfg.NameCacheSize, m)
	if err != nil {
		return nil, err
	}
	stages := []pipeline.Stage{
		pipeline.NewIdentifierGuard(),
		pipeline.NewDuplicateGuard(),
		normalizer,
	}

	built := &builtPipeline{}
	var sinks []pipeline.Sink
	for _, name := range cfg.Sinks {
		sink, err := newSink(ctx, name, cfg, logger)
		if err != nil {
			return nil, errors.Join(err, closeSinks(ctx, sinks))
		}
		if jsonl, ok := sink.(*pipeline.JSONLSink); ok {
			built.jsonl = jsonl
		}
		sinks = append(sinks, sink)
		stages = append(stages, pipeline.Persist(sink, m))
	}

	built.pipeline = pipeline.NewPipeline(stages,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithPersistPolicy(pipeline.PersistPolicy(cfg.PersistPolicy)),
	)
	return built, nil
}

func newSink(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger) (pipeline.Sink, error) {
	switch name {
	case config.SinkSQL:
		return sqlsink.New(ctx, sqlsink.Config{Driver: cfg.SQL.Driver, DSN: cfg.SQL.DSN})
	case config.SinkMongo:
		return mongosink.FromConfig(cfg)
	case config.SinkAMQP:
		return amqpsink.New(amqpsink.Config{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange}, logger)
	case config.SinkJSONL:
		return pipeline.NewJSONLSink(cfg.JSONL.Path)
	default:
		return nil, fmt.Errorf("unknown sink %q", name)
	}
}

// closeSinks releases sinks built before a later one failed. Sinks that
// connect in Open hold nothing yet, so only SinkCloser values are touched.
func closeSinks(ctx context.Context, sinks []pipeline.Sink) error {
	var errs []error
	for _, sink := range sinks {
		closer, ok := sink.(pipeline.SinkCloser)
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
