// Package events provides the event types and emitter used to decouple
// result ingestion from accuracy recomputation. The prediction service
// emits a GroupCompletedEvent when a betting group's last result arrives;
// the accuracy tracker subscribes without either side importing the other.
package events
