package jobs

import (
	"context"
	"time"
)

// Backend is the durable store behind the engine. Delivery is at least once: a
// job whose lease is not extended goes back to the wait list.
type Backend interface {
	Push(ctx context.Context, job *Job) error
	// Pop blocks up to timeout for the next job, moves it to the active set
	// with the given lease and increments its attempts. Returns nil when
	// nothing arrived in time.
	Pop(ctx context.Context, timeout, lease time.Duration) (*Job, error)
	Extend(ctx context.Context, id string, lease time.Duration) error
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job) error
	// Retry requeues an active job after delay.
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	// Remove cancels a job that has not started yet.
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Job, error)
	// Maintain promotes due retries and requeues jobs whose lease expired,
	// returning the number of stalled jobs.
	Maintain(ctx context.Context) (int, error)
	Close() error
}
