// Package task provides the in-process background task machinery for the
// engine: a manager that tracks running tasks and serves status snapshots
// with ETA estimates, a spawn helper that runs task bodies in goroutines
// with cooperative interruption, and an admission queue that bounds how
// many batch tasks of each tier run concurrently.
package task
