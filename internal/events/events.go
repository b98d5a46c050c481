package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GroupCompletedEvent signals that every active match in a betting group
// now has a recorded final score. The match store emits it exactly once
// per group, on the false-to-true completion transition, which is what
// keeps downstream accuracy recomputes idempotent.
type GroupCompletedEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// GroupKey identifies the completed betting group
	GroupKey string `json:"group_key"`

	// CompletedAt is the timestamp when the transition was detected
	CompletedAt time.Time `json:"completed_at"`
}

// NewGroupCompletedEvent creates a GroupCompletedEvent for the given group.
func NewGroupCompletedEvent(groupKey string) *GroupCompletedEvent {
	return &GroupCompletedEvent{
		ID:          uuid.New(),
		GroupKey:    groupKey,
		CompletedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that react to group
// completion, such as the accuracy tracker.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *GroupCompletedEvent) error
}

// EventEmitter defines an interface for components that emit group
// completion events without direct knowledge of the handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *GroupCompletedEvent) error
}
