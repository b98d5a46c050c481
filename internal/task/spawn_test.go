package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForTerminal polls the manager until the task leaves the running
// state or the deadline passes.
func waitForTerminal(t *testing.T, m *Manager, id uuid.UUID) Snapshot {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.Status(id)
		require.NoError(t, err)
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return Snapshot{}
}

func TestSpawnCompletion(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Hour, nil)

	id, err := Spawn(context.Background(), m, KindQuickPredictionBatch, 2,
		func(ctx context.Context, progress *Progress) error {
			progress.Update(1, "halfway")
			progress.Update(2, "done")
			return nil
		})
	require.NoError(t, err)

	snap := waitForTerminal(t, m, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.CompletedItems)
}

func TestSpawnFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Hour, nil)

	id, err := Spawn(context.Background(), m, KindResultCollection, 0,
		func(ctx context.Context, progress *Progress) error {
			return errors.New("source unreachable")
		})
	require.NoError(t, err)

	snap := waitForTerminal(t, m, id)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "source unreachable", snap.Error)
}

func TestSpawnRecoversPanic(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Hour, nil)

	id, err := Spawn(context.Background(), m, KindAccuracyUpdate, 0,
		func(ctx context.Context, progress *Progress) error {
			panic("boom")
		})
	require.NoError(t, err)

	snap := waitForTerminal(t, m, id)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "boom")
}

func TestSpawnCooperativeInterrupt(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Hour, nil)

	started := make(chan uuid.UUID, 1)

	id, err := Spawn(context.Background(), m, KindDeepAnalysisBatch, 100,
		func(ctx context.Context, progress *Progress) error {
			started <- progress.TaskID()
			for i := 1; i <= 100; i++ {
				if progress.Interrupted() {
					return nil
				}
				progress.Update(i, "")
				time.Sleep(time.Millisecond)
			}
			return nil
		})
	require.NoError(t, err)

	<-started
	require.True(t, m.Interrupt(id))

	snap := waitForTerminal(t, m, id)
	assert.Equal(t, StatusInterrupted, snap.Status,
		"the worker returning nil after an interrupt must not mark the task completed")
	assert.Less(t, snap.CompletedItems, 100, "interrupt should stop the batch early")
}

func TestSpawnRejectsInvalidKind(t *testing.T) {
	t.Parallel()

	m := NewManager(time.Hour, nil)

	_, err := Spawn(context.Background(), m, Kind("nope"), 0,
		func(ctx context.Context, progress *Progress) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidKind)
}
