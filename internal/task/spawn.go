package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/phrazzld/pitchside/internal/platform/logger"
)

// Progress is the handle a task function uses to report progress and to
// observe interruption. Interruption is cooperative: the function is
// expected to poll Interrupted between items and stop cleanly.
type Progress struct {
	manager *Manager
	id      uuid.UUID
}

// TaskID returns the ID of the task this handle belongs to.
func (p *Progress) TaskID() uuid.UUID {
	return p.id
}

// Update records how many items have completed, with an optional
// human-readable message.
func (p *Progress) Update(completedItems int, message string) {
	_ = p.manager.UpdateProgress(p.id, completedItems, message)
}

// Record appends one item's outcome to the task's result list.
func (p *Progress) Record(result ItemResult) {
	_ = p.manager.RecordItemResult(p.id, result)
}

// Interrupted reports whether an interrupt has been requested. A task
// function that observes true should return promptly; its partial work
// stays persisted.
func (p *Progress) Interrupted() bool {
	return p.manager.Interrupted(p.id)
}

// Fn is the body of a spawned task.
type Fn func(ctx context.Context, progress *Progress) error

// Spawn registers a task with the manager and runs fn in a new goroutine.
// The task's terminal status follows from fn: nil marks it completed, an
// error marks it failed, and a return after an interrupt leaves the
// interrupted status in place. A panicking fn is recovered and recorded as
// a failure.
func Spawn(ctx context.Context, manager *Manager, kind Kind, totalItems int, fn Fn) (uuid.UUID, error) {
	id, err := manager.Create(kind, totalItems)
	if err != nil {
		return uuid.Nil, err
	}

	go run(ctx, manager, id, kind, fn)
	return id, nil
}

func run(ctx context.Context, manager *Manager, id uuid.UUID, kind Kind, fn Fn) {
	log := logger.FromContextOrDefault(ctx, manager.logger)

	defer func() {
		if p := recover(); p != nil {
			log.Error("task panicked",
				"task_id", id,
				"kind", kind,
				"panic", p)
			_ = manager.Fail(id, fmt.Sprintf("panic: %v", p))
		}
	}()

	progress := &Progress{manager: manager, id: id}

	err := fn(ctx, progress)

	// An interrupt observed by fn already moved the task to its terminal
	// state; finish is a no-op in that case.
	if err != nil {
		_ = manager.Fail(id, err.Error())
		return
	}
	_ = manager.Complete(id, "")
}
