package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler is a job variant. Execute may run more than once for the same job
// and must tolerate re-entry. Exactly one of OnSuccess or OnFailed follows a
// completed Execute.
type Handler interface {
	Execute(ctx context.Context, job *Job) (any, error)
	OnSuccess(ctx context.Context, job *Job, result any) error
	OnFailed(ctx context.Context, job *Job, err error) error
}

// Registry maps job types to their handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Type]Handler)}
}

func (r *Registry) Register(jobType Type, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler for job type %s already registered", jobType)
	}
	r.handlers[jobType] = handler
	return nil
}

func (r *Registry) Lookup(jobType Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
