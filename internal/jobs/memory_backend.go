package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps jobs in process. It backs tests and single-process
// development; nothing survives a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	wait    []string
	active  map[string]time.Time
	delayed map[string]time.Time
	notify  chan struct{}
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		jobs:    make(map[string]*Job),
		active:  make(map[string]time.Time),
		delayed: make(map[string]time.Time),
		notify:  make(chan struct{}, 1),
		now:     time.Now,
	}
}

func (b *MemoryBackend) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *MemoryBackend) Push(ctx context.Context, job *Job) error {
	b.mu.Lock()
	b.jobs[job.ID] = job.clone()
	b.wait = append(b.wait, job.ID)
	b.mu.Unlock()
	b.signal()
	return nil
}

func (b *MemoryBackend) Pop(ctx context.Context, timeout, lease time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if job := b.tryPop(lease); job != nil {
			return job, nil
		}
		select {
		case <-b.notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *MemoryBackend) tryPop(lease time.Duration) *Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promoteLocked()
	if len(b.wait) == 0 {
		return nil
	}
	id := b.wait[0]
	b.wait = b.wait[1:]

	job := b.jobs[id]
	now := b.now().UTC()
	job.Status = StatusRunning
	job.Attempts++
	job.StartedAt = now
	job.RunAt = time.Time{}
	b.active[id] = now.Add(lease)

	// Wake another waiter if more work is pending.
	if len(b.wait) > 0 {
		b.signal()
	}
	return job.clone()
}

func (b *MemoryBackend) promoteLocked() {
	now := b.now()
	for id, runAt := range b.delayed {
		if !runAt.After(now) {
			delete(b.delayed, id)
			b.wait = append(b.wait, id)
		}
	}
}

func (b *MemoryBackend) Extend(ctx context.Context, id string, lease time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.active[id]; !ok {
		return ErrLeaseLost
	}
	b.active[id] = b.now().Add(lease)
	return nil
}

func (b *MemoryBackend) Complete(ctx context.Context, job *Job) error {
	return b.finish(job)
}

func (b *MemoryBackend) Fail(ctx context.Context, job *Job) error {
	return b.finish(job)
}

func (b *MemoryBackend) finish(job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	delete(b.active, job.ID)
	b.jobs[job.ID] = job.clone()
	return nil
}

func (b *MemoryBackend) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	b.mu.Lock()
	if _, ok := b.jobs[job.ID]; !ok {
		b.mu.Unlock()
		return ErrJobNotFound
	}
	delete(b.active, job.ID)
	stored := job.clone()
	stored.Status = StatusQueued
	stored.RunAt = b.now().Add(delay).UTC()
	b.jobs[job.ID] = stored
	if delay <= 0 {
		b.wait = append(b.wait, job.ID)
	} else {
		b.delayed[job.ID] = stored.RunAt
	}
	b.mu.Unlock()
	b.signal()
	return nil
}

func (b *MemoryBackend) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusQueued {
		return ErrJobNotCancellable
	}
	for i, waiting := range b.wait {
		if waiting == id {
			b.wait = append(b.wait[:i], b.wait[i+1:]...)
			break
		}
	}
	delete(b.delayed, id)
	job.Status = StatusCancelled
	job.FinishedAt = b.now().UTC()
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.clone(), nil
}

func (b *MemoryBackend) Maintain(ctx context.Context) (int, error) {
	b.mu.Lock()
	now := b.now()
	stalled := 0
	for id, deadline := range b.active {
		if deadline.Before(now) {
			delete(b.active, id)
			b.jobs[id].Status = StatusQueued
			b.wait = append([]string{id}, b.wait...)
			stalled++
		}
	}
	b.promoteLocked()
	pending := len(b.wait) > 0
	b.mu.Unlock()

	if pending {
		b.signal()
	}
	return stalled, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
