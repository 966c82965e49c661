package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-wuxia/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineNotOpen is returned when Process is called before Open.
	ErrPipelineNotOpen = errors.New("pipeline: not open")
	// ErrDropped matches every DropError via errors.Is.
	ErrDropped = errors.New("pipeline: item dropped")
)

// DropReason names why a stage discarded an item.
type DropReason string

const (
	ReasonMissingID           DropReason = "missing_id"
	ReasonDuplicateID         DropReason = "duplicate_id"
	ReasonUnrecognizedContent DropReason = "unrecognized_content"
	ReasonPersistenceFailure  DropReason = "persistence_failure"
)

// DropError signals that an item was intentionally discarded. It is not a
// failure of the run.
type DropError struct {
	Reason DropReason
	Kind   models.Kind
	ID     int64
	Err    error
}

func (e *DropError) Error() string {
	msg := fmt.Sprintf("drop %s %d: %s", e.Kind, e.ID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DropError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDropped) true for any DropError.
func (e *DropError) Is(target error) bool {
	return target == ErrDropped
}

func newDrop(reason DropReason, it *models.Item, err error) *DropError {
	d := &DropError{Reason: reason, Err: err}
	if it != nil {
		d.Kind = it.Kind
		d.ID = it.ID()
	}
	return d
}

// PersistError reports a sink that failed to store an item.
type PersistError struct {
	Sink string
	Kind models.Kind
	ID   int64
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s %d to %s: %v", e.Kind, e.ID, e.Sink, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
