package pipeline

import (
	"context"
	"time"

	"github.com/aluiziolira/go-scrape-wuxia/metrics"
	"github.com/aluiziolira/go-scrape-wuxia/models"
)

// Sink stores accepted items. Insert reports failures to the caller instead
// of handling them.
type Sink interface {
	Name() string
	Insert(ctx context.Context, item *models.Item) error
}

// SinkOpener is implemented by sinks that connect when a run starts.
type SinkOpener interface {
	Open(ctx context.Context, run *Run) error
}

// SinkCloser is implemented by sinks holding a connection or file.
type SinkCloser interface {
	Close(ctx context.Context) error
}

// Persist adapts a sink into a pipeline stage. Insert failures come back
// from the stage as *PersistError together with the unchanged item.
func Persist(sink Sink, m *metrics.Metrics) Stage {
	return &persistStage{sink: sink, metrics: m}
}

type persistStage struct {
	sink    Sink
	metrics *metrics.Metrics
}

func (s *persistStage) Name() string { return s.sink.Name() }

func (s *persistStage) ProcessItem(ctx context.Context, _ *Run, item *models.Item) (*models.Item, error) {
	start := time.Now()
	err := s.sink.Insert(ctx, item)
	s.metrics.ObserveInsert(s.sink.Name(), kindLabel(item), time.Since(start), err)
	if err != nil {
		return item, &PersistError{
			Sink: s.sink.Name(),
			Kind: item.Kind,
			ID:   item.ID(),
			Err:  err,
		}
	}
	return item, nil
}

func (s *persistStage) Open(ctx context.Context, run *Run) error {
	opener, ok := s.sink.(SinkOpener)
	if !ok {
		return nil
	}
	return opener.Open(ctx, run)
}

func (s *persistStage) Close(ctx context.Context, run *Run) error {
	closer, ok := s.sink.(SinkCloser)
	if !ok {
		return nil
	}
	return closer.Close(ctx)
}
