package task

import (
	"fmt"
	"sync"
)

// AdmissionQueue bounds how many batch tasks of each tier run at once.
// Check and increment happen under one mutex, so concurrent admits can
// never exceed capacity.
type AdmissionQueue struct {
	mu       sync.Mutex
	running  map[Kind]int
	capacity map[Kind]int
}

// NewAdmissionQueue creates an AdmissionQueue with the given per-tier
// capacities. Non-positive capacities fall back to 1.
func NewAdmissionQueue(quickCapacity, deepCapacity int) *AdmissionQueue {
	if quickCapacity < 1 {
		quickCapacity = 1
	}
	if deepCapacity < 1 {
		deepCapacity = 1
	}

	return &AdmissionQueue{
		running: make(map[Kind]int),
		capacity: map[Kind]int{
			KindQuickPredictionBatch: quickCapacity,
			KindDeepAnalysisBatch:    deepCapacity,
		},
	}
}

// TryAdmit attempts to reserve a slot for a batch task of the given kind.
// Returns ErrQueueFull without blocking when the tier is at capacity.
// Kinds without a configured capacity are always admitted.
func (q *AdmissionQueue) TryAdmit(kind Kind) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	limit, bounded := q.capacity[kind]
	if !bounded {
		return nil
	}

	if q.running[kind] >= limit {
		return fmt.Errorf("%w: %d %s tasks already running", ErrQueueFull, limit, kind)
	}

	q.running[kind]++
	return nil
}

// Release frees a slot previously reserved by TryAdmit. Releasing below
// zero is clamped; a double release must not open extra capacity.
func (q *AdmissionQueue) Release(kind Kind) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running[kind] > 0 {
		q.running[kind]--
	}
}

// Running returns the number of admitted tasks for the kind.
func (q *AdmissionQueue) Running(kind Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running[kind]
}
