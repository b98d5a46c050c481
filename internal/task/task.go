package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which pipeline stage a task runs. The set is closed:
// dispatch switches over these constants and an unknown kind is a
// programming error, not runtime input.
type Kind string

// Possible task kinds.
const (
	KindQuickPredictionBatch  Kind = "quick_prediction_batch"
	KindDeepAnalysisBatch     Kind = "deep_analysis_batch"
	KindScheduleCollection    Kind = "schedule_collection"
	KindResultCollection      Kind = "result_collection"
	KindDeepAnalysisSelection Kind = "deep_analysis_selection"
	KindAccuracyUpdate        Kind = "accuracy_update"
)

// Valid reports whether k is one of the defined task kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindQuickPredictionBatch, KindDeepAnalysisBatch, KindScheduleCollection,
		KindResultCollection, KindDeepAnalysisSelection, KindAccuracyUpdate:
		return true
	default:
		return false
	}
}

// Batch reports whether tasks of this kind process per-item batches and
// therefore carry progress and ETA information.
func (k Kind) Batch() bool {
	return k == KindQuickPredictionBatch || k == KindDeepAnalysisBatch
}

// Status represents the current state of a task.
type Status string

// Possible task status values. Completed, failed and interrupted are
// terminal: no transition leaves them.
const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Common task errors.
var (
	// ErrTaskNotFound is returned when the requested task ID is unknown or
	// has been evicted.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidKind is returned when a task is created with a kind outside
	// the closed set.
	ErrInvalidKind = errors.New("invalid task kind")

	// ErrQueueFull is returned when admission for the task's kind is at
	// capacity.
	ErrQueueFull = errors.New("task queue at capacity")
)

// ItemResult is the recorded outcome of one item in a batch task.
type ItemResult struct {
	Code    string `json:"code"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// Snapshot is a point-in-time copy of a task's externally visible state.
// All fields are plain values so callers can hold a Snapshot without
// racing the running task.
type Snapshot struct {
	ID             uuid.UUID     `json:"id"`
	Kind           Kind          `json:"kind"`
	Status         Status        `json:"status"`
	TotalItems     int           `json:"total_items"`
	CompletedItems int           `json:"completed_items"`
	Message        string        `json:"message"`
	Error          string        `json:"error"`
	Results        []ItemResult  `json:"results"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	ETA            time.Duration `json:"eta"`
}
