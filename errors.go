package mdk

import (
	"fmt"
)

// Error is a constant error type so that sentinels can be declared as
// constants and compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

// ErrQueueSaturation is returned by Submit when no worker accepted the item
// within the timeout. The producer decides whether to retry or drop.
const ErrQueueSaturation = Error("queue saturated: no worker accepted the item in time")

// ErrNoWorkers is returned by Submit when the pool has no live workers.
const ErrNoWorkers = Error("no workers available")

// ErrDrainTimeout is returned by Drain when workers did not finish in time.
// The remaining workers have been cancelled.
const ErrDrainTimeout = Error("drain timed out, remaining workers cancelled")

// ErrQueueStopped is returned when submitting to a drained or interrupted
// queue.
const ErrQueueStopped = Error("queue is stopped")

// ErrQueueStarted is returned by Start on an already started queue.
const ErrQueueStarted = Error("queue already started")

// ErrFrozen is returned when mutating a frozen Entity.
const ErrFrozen = Error("entity is frozen")

// ErrPathNotFound is returned when a predicate path does not exist in an
// Entity.
const ErrPathNotFound = Error("path not found")

// DecodeError describes malformed input. Offset is the byte offset in the
// input stream at which the problem was detected.
type DecodeError struct {
	Offset int64
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Reason)
}

// HandlerFailure reports an element handler error. The record is abandoned;
// the worker that ran it continues with the next one.
type HandlerFailure struct {
	RecordID string
	Key      string
	Err      error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("handler failed on record %q at %s: %v", e.RecordID, e.Key, e.Err)
}

// Cause returns the handler's error, for errors.Cause.
func (e *HandlerFailure) Cause() error { return e.Err }

// WorkerCrash reports a worker that panicked while executing an item. The
// worker is removed from the pool.
type WorkerCrash struct {
	Worker int
	Value  interface{}
}

func (e *WorkerCrash) Error() string {
	return fmt.Sprintf("worker %d crashed: %v", e.Worker, e.Value)
}
