package task

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default per-item durations used for ETA estimates before any batch of
// the kind has completed. Quick predictions are a single model call per
// match; deep analyses fan out to three sources first.
const (
	defaultQuickItemDuration = 12 * time.Second
	defaultDeepItemDuration  = 110 * time.Second
)

// etaWindowSize is how many completed batches feed the per-item duration
// estimate.
const etaWindowSize = 10

// durationWindow keeps a rolling window of the last etaWindowSize observed
// per-item durations.
type durationWindow struct {
	fallback time.Duration
	samples  []time.Duration
}

func newDurationWindow(fallback time.Duration) *durationWindow {
	return &durationWindow{fallback: fallback}
}

// record appends a sample, evicting the oldest once the window is full.
func (w *durationWindow) record(d time.Duration) {
	if d <= 0 {
		return
	}
	w.samples = append(w.samples, d)
	if len(w.samples) > etaWindowSize {
		w.samples = w.samples[1:]
	}
}

// perItem returns the window average, or the fallback when no batch has
// completed yet.
func (w *durationWindow) perItem() time.Duration {
	if len(w.samples) == 0 {
		return w.fallback
	}
	var total time.Duration
	for _, d := range w.samples {
		total += d
	}
	return total / time.Duration(len(w.samples))
}

// taskRecord is the manager's mutable state for one task. All access is
// guarded by the manager's mutex.
type taskRecord struct {
	id             uuid.UUID
	kind           Kind
	status         Status
	totalItems     int
	completedItems int
	message        string
	errMsg         string
	results        []ItemResult
	startedAt      time.Time
	finishedAt     time.Time
}

// Manager tracks every spawned task, serves status snapshots with ETA
// estimates, and evicts finished tasks after a TTL. It is safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*taskRecord
	windows map[Kind]*durationWindow

	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a task Manager. Finished tasks stay queryable for ttl
// before eviction. If logger is nil, a default logger will be used.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		tasks: make(map[uuid.UUID]*taskRecord),
		windows: map[Kind]*durationWindow{
			KindQuickPredictionBatch: newDurationWindow(defaultQuickItemDuration),
			KindDeepAnalysisBatch:    newDurationWindow(defaultDeepItemDuration),
		},
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "task_manager")),
	}
}

// Create registers a new running task and returns its ID. totalItems may
// be zero for non-batch kinds.
func (m *Manager) Create(kind Kind, totalItems int) (uuid.UUID, error) {
	if !kind.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if totalItems < 0 {
		totalItems = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpiredLocked()

	rec := &taskRecord{
		id:         uuid.New(),
		kind:       kind,
		status:     StatusRunning,
		totalItems: totalItems,
		startedAt:  m.now().UTC(),
	}
	m.tasks[rec.id] = rec

	m.logger.Info("task created",
		"task_id", rec.id,
		"kind", kind,
		"total_items", totalItems)

	return rec.id, nil
}

// UpdateProgress records batch progress for a running task. Updates
// against terminal tasks are ignored.
func (m *Manager) UpdateProgress(id uuid.UUID, completedItems int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if rec.status.Terminal() {
		return nil
	}

	if completedItems > rec.completedItems {
		rec.completedItems = completedItems
	}
	if message != "" {
		rec.message = message
	}
	return nil
}

// RecordItemResult appends one item's outcome to a running task. Results
// against terminal tasks are ignored, matching UpdateProgress.
func (m *Manager) RecordItemResult(id uuid.UUID, result ItemResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if rec.status.Terminal() {
		return nil
	}

	rec.results = append(rec.results, result)
	return nil
}

// Complete marks a running task as completed and feeds its per-item
// duration into the ETA window for the kind.
func (m *Manager) Complete(id uuid.UUID, message string) error {
	return m.finish(id, StatusCompleted, message, "")
}

// Fail marks a running task as failed with the given error message.
func (m *Manager) Fail(id uuid.UUID, errMsg string) error {
	return m.finish(id, StatusFailed, "", errMsg)
}

func (m *Manager) finish(id uuid.UUID, status Status, message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if rec.status.Terminal() {
		return nil
	}

	rec.status = status
	rec.finishedAt = m.now().UTC()
	if message != "" {
		rec.message = message
	}
	rec.errMsg = errMsg

	if status == StatusCompleted && rec.kind.Batch() && rec.completedItems > 0 {
		elapsed := rec.finishedAt.Sub(rec.startedAt)
		if window, ok := m.windows[rec.kind]; ok {
			window.record(elapsed / time.Duration(rec.completedItems))
		}
	}

	m.logger.Info("task finished",
		"task_id", id,
		"kind", rec.kind,
		"status", status,
		"completed_items", rec.completedItems,
		"error", errMsg)

	return nil
}

// Interrupt requests cancellation of a running task. It returns true only
// when the task transitioned from running to interrupted; interrupting a
// finished or unknown task returns false.
func (m *Manager) Interrupt(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok || rec.status.Terminal() {
		return false
	}

	rec.status = StatusInterrupted
	rec.finishedAt = m.now().UTC()

	m.logger.Info("task interrupted", "task_id", id, "kind", rec.kind)
	return true
}

// Interrupted reports whether the task has been interrupted. Unknown tasks
// report true so orphaned workers stop.
func (m *Manager) Interrupted(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return true
	}
	return rec.status == StatusInterrupted
}

// Status returns a snapshot of the task. Returns ErrTaskNotFound for
// unknown or evicted IDs.
func (m *Manager) Status(id uuid.UUID) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpiredLocked()

	rec, ok := m.tasks[id]
	if !ok {
		return Snapshot{}, ErrTaskNotFound
	}
	return m.snapshotLocked(rec), nil
}

// List returns snapshots of every tracked task, newest first by start
// time.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpiredLocked()

	snapshots := make([]Snapshot, 0, len(m.tasks))
	for _, rec := range m.tasks {
		snapshots = append(snapshots, m.snapshotLocked(rec))
	}
	return snapshots
}

func (m *Manager) snapshotLocked(rec *taskRecord) Snapshot {
	return Snapshot{
		ID:             rec.id,
		Kind:           rec.kind,
		Status:         rec.status,
		TotalItems:     rec.totalItems,
		CompletedItems: rec.completedItems,
		Message:        rec.message,
		Error:          rec.errMsg,
		Results:        append([]ItemResult(nil), rec.results...),
		StartedAt:      rec.startedAt,
		FinishedAt:     rec.finishedAt,
		ETA:            m.etaLocked(rec),
	}
}

// etaLocked estimates time remaining for a running batch task. Before the
// first item completes the estimate comes from the rolling per-item
// window; afterwards it is recalibrated from the task's own pace.
func (m *Manager) etaLocked(rec *taskRecord) time.Duration {
	if rec.status.Terminal() || !rec.kind.Batch() || rec.totalItems == 0 {
		return 0
	}

	remaining := rec.totalItems - rec.completedItems
	if remaining <= 0 {
		return 0
	}

	elapsed := m.now().UTC().Sub(rec.startedAt)

	if rec.completedItems == 0 {
		window, ok := m.windows[rec.kind]
		if !ok {
			return 0
		}
		eta := window.perItem()*time.Duration(rec.totalItems) - elapsed
		if eta < 0 {
			return 0
		}
		return eta
	}

	perItem := elapsed / time.Duration(rec.completedItems)
	return perItem * time.Duration(remaining)
}

// evictExpiredLocked drops terminal tasks whose TTL has elapsed.
func (m *Manager) evictExpiredLocked() {
	cutoff := m.now().UTC().Add(-m.ttl)
	for id, rec := range m.tasks {
		if rec.status.Terminal() && !rec.finishedAt.IsZero() && rec.finishedAt.Before(cutoff) {
			delete(m.tasks, id)
		}
	}
}
