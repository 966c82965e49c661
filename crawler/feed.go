// Package crawler connects a colly collector to an item pipeline: the
// pipeline is opened when the crawl starts, receives every item the
// caller's callbacks extract, and is closed once the collector drains.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-wuxia/metrics"
	"github.com/aluiziolira/go-scrape-wuxia/models"
	"github.com/aluiziolira/go-scrape-wuxia/pipeline"
)

// Result summarises one crawl run.
type Result struct {
	RunID        string
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	EmitCount    int
	FailedURLs   []string
	ErrorsByType map[string]int
	Pipeline     pipeline.Stats
}

// Feed hands items extracted by collector callbacks to a pipeline.
type Feed struct {
	collector *colly.Collector
	pipeline  *pipeline.Pipeline
	metrics   *metrics.Metrics
	logger    *slog.Logger

	requestCount int64
	errorCount   int64
	emitCount    int64

	mu           sync.Mutex
	ctx          context.Context
	failedURLs   []string
	errorsByType map[string]int
}

// NewFeed registers request bookkeeping hooks on collector. Extraction
// callbacks are registered by the caller and should call Emit.
func NewFeed(collector *colly.Collector, p *pipeline.Pipeline, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feed{
		collector:    collector,
		pipeline:     p,
		metrics:      m,
		logger:       logger,
		ctx:          context.Background(),
		errorsByType: make(map[string]int),
	}

	collector.OnRequest(func(r *colly.Request) {
		if f.runContext().Err() != nil {
			r.Abort()
			return
		}
		atomic.AddInt64(&f.requestCount, 1)
	})

	collector.OnError(func(r *colly.Response, err error) {
		atomic.AddInt64(&f.errorCount, 1)
		statusCode := 0
		url := ""
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				url = r.Request.URL.String()
			}
		}
		category := errorType(err, statusCode)

		f.mu.Lock()
		f.errorsByType[category]++
		f.failedURLs = append(f.failedURLs, url)
		f.mu.Unlock()

		f.metrics.IncEngineError(category)
		f.logger.Error("request error",
			slog.String("url", url),
			slog.String("category", category),
			slog.Any("error", err),
		)
	})

	return f
}

// Emit processes one item. Drops and sink failures were already logged
// and counted by the pipeline and are not reported; any other error is.
func (f *Feed) Emit(ctx context.Context, item *models.Item) error {
	atomic.AddInt64(&f.emitCount, 1)

	err := f.pipeline.Process(ctx, item)
	if err == nil || errors.Is(err, pipeline.ErrDropped) {
		return nil
	}
	var persist *pipeline.PersistError
	if errors.As(err, &persist) {
		return nil
	}
	return err
}

// Run opens the pipeline, visits urls, waits for the collector to finish
// and closes the pipeline.
func (f *Feed) Run(ctx context.Context, urls ...string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()

	start := time.Now()
	if err := f.pipeline.Open(ctx); err != nil {
		return nil, fmt.Errorf("open pipeline: %w", err)
	}
	runID := ""
	if run := f.pipeline.Run(); run != nil {
		runID = run.ID
	}

	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		if err := f.collector.Visit(url); err != nil {
			f.logger.Error("visit failed", slog.String("url", url), slog.Any("error", err))
		}
	}
	f.collector.Wait()

	closeErr := f.pipeline.Close(context.WithoutCancel(ctx))

	f.mu.Lock()
	failed := make([]string, len(f.failedURLs))
	copy(failed, f.failedURLs)
	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	f.mu.Unlock()

	result := &Result{
		RunID:        runID,
		StartTime:    start,
		EndTime:      time.Now(),
		RequestCount: int(atomic.LoadInt64(&f.requestCount)),
		ErrorCount:   int(atomic.LoadInt64(&f.errorCount)),
		EmitCount:    int(atomic.LoadInt64(&f.emitCount)),
		FailedURLs:   failed,
		ErrorsByType: byType,
		Pipeline:     f.pipeline.Stats(),
	}
	if closeErr != nil {
		return result, fmt.Errorf("close pipeline: %w", closeErr)
	}
	return result, nil
}

func (f *Feed) runContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx
}
