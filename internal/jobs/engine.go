package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxRetryBackoff = 10 * time.Minute

type EngineConfig struct {
	Concurrency  int
	MaxAttempts  int
	StallTimeout time.Duration
	RetryBackoff time.Duration
	PollTimeout  time.Duration
}

// Enqueuer is the entry point collaborators use to request work.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType Type, payload Payload) (*Job, error)
}

// Engine pops jobs from the backend and runs them through their registered handler.
type Engine struct {
	backend  Backend
	registry *Registry
	logger   *slog.Logger
	metrics  metrics.Collector
	config   EngineConfig

	stopPolling context.CancelFunc
	abortJobs   context.CancelFunc
	group       *errgroup.Group
}

func NewEngine(backend Backend, registry *Registry, config EngineConfig, logger *slog.Logger, collector metrics.Collector) *Engine {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = 30 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 2 * time.Second
	}
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Engine{
		backend:  backend,
		registry: registry,
		logger:   logger,
		metrics:  collector,
		config:   config,
	}
}

func (e *Engine) Enqueue(ctx context.Context, jobType Type, payload Payload) (*Job, error) {
	if _, ok := e.registry.Lookup(jobType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    payload,
		Status:     StatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := e.backend.Push(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}

	e.logger.Info("Job enqueued",
		"job_id", job.ID,
		"job_type", jobType,
		"app_id", payload.AppID)
	return job, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*Job, error) {
	return e.backend.Get(ctx, id)
}

// Cancel prevents a queued job from running. Started jobs cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	if err := e.backend.Remove(ctx, id); err != nil {
		return err
	}
	e.logger.Info("Job cancelled", "job_id", id)
	return nil
}

// Start launches the workers and the maintenance loop.
func (e *Engine) Start() {
	pollCtx, stopPolling := context.WithCancel(context.Background())
	jobCtx, abortJobs := context.WithCancel(context.Background())
	e.stopPolling = stopPolling
	e.abortJobs = abortJobs
	e.group = &errgroup.Group{}

	for i := 0; i < e.config.Concurrency; i++ {
		worker := i
		e.group.Go(func() error {
			e.work(pollCtx, jobCtx, worker)
			return nil
		})
	}
	e.group.Go(func() error {
		e.maintain(pollCtx)
		return nil
	})

	e.logger.Info("Job engine started",
		"concurrency", e.config.Concurrency,
		"handlers", e.registry.Types())
}

// Stop stops polling and waits for running jobs. When ctx expires first the
// jobs are aborted and requeued without running their hooks.
func (e *Engine) Stop(ctx context.Context) error {
	if e.group == nil {
		return nil
	}
	e.stopPolling()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.abortJobs()
		e.logger.Info("Job engine stopped")
		return nil
	case <-ctx.Done():
		e.abortJobs()
		<-done
		return fmt.Errorf("job engine stopped before running jobs finished: %w", ctx.Err())
	}
}

func (e *Engine) work(pollCtx, jobCtx context.Context, worker int) {
	for pollCtx.Err() == nil {
		job, err := e.backend.Pop(pollCtx, e.config.PollTimeout, e.config.StallTimeout)
		if err != nil {
			if pollCtx.Err() != nil {
				return
			}
			e.logger.Error("Failed to pop job", "worker", worker, "error", err)
			sleep(pollCtx, time.Second)
			continue
		}
		if job == nil {
			continue
		}
		e.Process(jobCtx, job)
	}
}

func (e *Engine) maintain(ctx context.Context) {
	interval := e.config.StallTimeout / 3
	if interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stalled, err := e.backend.Maintain(ctx)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Error("Job maintenance failed", "error", err)
				}
				continue
			}
			if stalled > 0 {
				e.metrics.RecordJobStalled(ctx, stalled)
				e.logger.Warn("Requeued stalled jobs", "count", stalled)
			}
		}
	}
}

// Process runs one popped job to completion and records the outcome.
func (e *Engine) Process(ctx context.Context, job *Job) {
	log := e.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts)
	start := time.Now()

	handler, ok := e.registry.Lookup(job.Type)
	if !ok {
		log.Error("No handler registered for job type")
		e.finish(ctx, job, StatusFailed, fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type), log)
		e.metrics.RecordJob(ctx, string(job.Type), metrics.OutcomeFailed, time.Since(start))
		return
	}

	if job.Attempts > e.config.MaxAttempts {
		err := fmt.Errorf("%w (%d)", ErrTooManyAttempts, e.config.MaxAttempts)
		log.Error("Job redelivered too many times", "error", err)
		e.runHook(ctx, job, "on_failed", log, func() error { return handler.OnFailed(ctx, job, err) })
		e.finish(ctx, job, StatusFailed, err, log)
		e.metrics.RecordJob(ctx, string(job.Type), metrics.OutcomeFailed, time.Since(start))
		return
	}

	log.Info("Job started")
	result, err := e.execute(ctx, handler, job, log)

	if ctx.Err() != nil {
		e.requeueAborted(ctx, job, err, log)
		e.metrics.RecordJob(ctx, string(job.Type), metrics.OutcomeRetried, time.Since(start))
		return
	}

	if err != nil && isRetryable(err) && job.Attempts < e.config.MaxAttempts {
		delay := e.backoff(job.Attempts)
		job.LastError = err.Error()
		log.Warn("Transient failure, retrying job", "error", err, "delay", delay)
		if retryErr := e.backend.Retry(ctx, job, delay); retryErr != nil {
			log.Error("Failed to schedule job retry", "error", retryErr)
		}
		e.metrics.RecordJob(ctx, string(job.Type), metrics.OutcomeRetried, time.Since(start))
		return
	}

	if err != nil {
		log.Error("Job failed", "error", err)
		e.runHook(ctx, job, "on_failed", log, func() error { return handler.OnFailed(ctx, job, err) })
		e.finish(ctx, job, StatusFailed, err, log)
		e.metrics.RecordJob(ctx, string(job.Type), metrics.OutcomeFailed, time.Since(start))
		return
	}

	e.runHook(ctx, job, "on_success", log, func() error { return handler.OnSuccess(ctx, job, result) })
	e.finish(ctx, job, StatusSucceeded, nil, log)
	e.metrics.RecordJob(ctx, string(job.Type), metrics.OutcomeSucceeded, time.Since(start))
	log.Info("Job succeeded", "duration", time.Since(start))
}

// requeueAborted puts a job interrupted by shutdown back on the queue. The
// interrupted run does not count as an attempt.
func (e *Engine) requeueAborted(ctx context.Context, job *Job, cause error, log *slog.Logger) {
	if job.Attempts > 0 {
		job.Attempts--
	}
	if cause != nil {
		job.LastError = cause.Error()
	}
	log.Warn("Job aborted by shutdown, requeueing", "error", cause)
	if err := e.backend.Retry(context.WithoutCancel(ctx), job, 0); err != nil {
		log.Error("Failed to requeue aborted job, it will be redelivered when its lease expires", "error", err)
	}
}

func (e *Engine) execute(ctx context.Context, handler Handler, job *Job, log *slog.Logger) (result any, err error) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeat(hbCtx, job.ID, log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler.Execute(ctx, job)
}

func (e *Engine) heartbeat(ctx context.Context, id string, log *slog.Logger) {
	ticker := time.NewTicker(e.config.StallTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.backend.Extend(ctx, id, e.config.StallTimeout); err != nil {
				if errors.Is(err, ErrLeaseLost) {
					log.Warn("Job lease lost, it may be redelivered")
					return
				}
				if ctx.Err() == nil {
					log.Warn("Failed to extend job lease", "error", err)
				}
			}
		}
	}
}

// runHook runs an OnSuccess/OnFailed hook. Hook errors and panics are only
// reported; they never trigger the other hook or a retry.
func (e *Engine) runHook(ctx context.Context, job *Job, name string, log *slog.Logger, hook func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("hook panicked: %v", r)
			}
		}()
		return hook()
	}()
	if err != nil {
		e.metrics.RecordHookFailure(ctx, string(job.Type), name)
		log.Error("Job hook failed", "hook", name, "error", err)
	}
}

func (e *Engine) finish(ctx context.Context, job *Job, status Status, cause error, log *slog.Logger) {
	job.Status = status
	job.FinishedAt = time.Now().UTC()
	if cause != nil {
		job.LastError = cause.Error()
	}

	// The outcome is recorded even if the job context was aborted during shutdown.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if status == StatusSucceeded {
		err = e.backend.Complete(storeCtx, job)
	} else {
		err = e.backend.Fail(storeCtx, job)
	}
	if err != nil {
		log.Error("Failed to record job outcome", "status", status, "error", err)
	}
}

func (e *Engine) backoff(attempt int) time.Duration {
	delay := e.config.RetryBackoff
	for i := 1; i < attempt && delay < maxRetryBackoff; i++ {
		delay *= 2
	}
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	return delay
}

// isRetryable reports errors that declare themselves temporary, such as a
// failure to reach the Dokku host.
func isRetryable(err error) bool {
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
