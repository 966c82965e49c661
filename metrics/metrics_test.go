package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncReceived("book")
	m.IncDropped("book", "duplicate_id")
	m.ObserveInsert("sql", "book", time.Millisecond, nil)
	m.IncEngineError("timeout")
	m.IncNameCache(true)
}

func TestObserveInsert(t *testing.T) {
	m := NewMetrics()

	m.ObserveInsert("sql", "book", time.Millisecond, nil)
	m.ObserveInsert("sql", "book", time.Millisecond, nil)
	m.ObserveInsert("sql", "chapter", time.Millisecond, errors.New("constraint failed"))

	if got := testutil.ToFloat64(m.ItemsStoredTotal.WithLabelValues("sql", "book")); got != 2 {
		t.Fatalf("stored books = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ItemsStoredTotal.WithLabelValues("sql", "chapter")); got != 0 {
		t.Fatalf("stored chapters = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SinkErrorsTotal.WithLabelValues("sql")); got != 1 {
		t.Fatalf("sink errors = %v, want 1", got)
	}
}

func TestDroppedByReason(t *testing.T) {
	m := NewMetrics()
	m.IncDropped("chapter", "duplicate_id")
	m.IncDropped("chapter", "duplicate_id")
	m.IncDropped("book", "missing_id")

	if got := testutil.ToFloat64(m.ItemsDroppedTotal.WithLabelValues("chapter", "duplicate_id")); got != 2 {
		t.Fatalf("duplicate drops = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.ItemsDroppedTotal); got != 2 {
		t.Fatalf("dropped series = %d, want 2", got)
	}
}
