package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type temporaryError struct{ msg string }

func (e *temporaryError) Error() string   { return e.msg }
func (e *temporaryError) Temporary() bool { return true }

type recordingHandler struct {
	mu        sync.Mutex
	execute   func(job *Job) (any, error)
	blocking  bool
	hookErr   error
	executed  int
	successes []any
	failures  []error
}

func (h *recordingHandler) Execute(ctx context.Context, job *Job) (any, error) {
	h.mu.Lock()
	h.executed++
	fn := h.execute
	blocking := h.blocking
	h.mu.Unlock()
	if blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fn == nil {
		return "ok", nil
	}
	return fn(job)
}

func (h *recordingHandler) OnSuccess(ctx context.Context, job *Job, result any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes = append(h.successes, result)
	return h.hookErr
}

func (h *recordingHandler) OnFailed(ctx context.Context, job *Job, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, err)
	return h.hookErr
}

func (h *recordingHandler) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executed, len(h.successes), len(h.failures)
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		backend  *MemoryBackend
		registry *Registry
		handler  *recordingHandler
		engine   *Engine
		config   EngineConfig
	)

	newEngine := func() {
		engine = NewEngine(backend, registry, config, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	}

	popAndProcess := func() *Job {
		job, err := backend.Pop(ctx, 100*time.Millisecond, config.StallTimeout)
		Expect(err).NotTo(HaveOccurred())
		Expect(job).NotTo(BeNil())
		engine.Process(ctx, job)
		stored, err := engine.Get(ctx, job.ID)
		Expect(err).NotTo(HaveOccurred())
		return stored
	}

	BeforeEach(func() {
		ctx = context.Background()
		backend = NewMemoryBackend()
		registry = NewRegistry()
		handler = &recordingHandler{}
		Expect(registry.Register(TypeDeployApp, handler)).To(Succeed())
		config = EngineConfig{
			Concurrency:  1,
			MaxAttempts:  3,
			StallTimeout: time.Minute,
			PollTimeout:  50 * time.Millisecond,
		}
		newEngine()
	})

	Describe("Enqueue", func() {
		It("assigns an id and stores the job as queued", func() {
			job, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1", UserName: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(job.ID).NotTo(BeEmpty())

			stored, err := engine.Get(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(StatusQueued))
			Expect(stored.Payload.AppID).To(Equal("app-1"))
			Expect(stored.Payload.ShouldDeleteOnFailed()).To(BeTrue())
		})

		It("rejects job types without a handler", func() {
			_, err := engine.Enqueue(ctx, TypeRebuildApp, Payload{AppName: "blog"})
			Expect(err).To(MatchError(ErrUnknownJobType))
		})
	})

	Describe("Process", func() {
		It("runs OnSuccess exactly once with the execute result", func() {
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusSucceeded))
			Expect(stored.FinishedAt).NotTo(BeZero())
			Expect(handler.successes).To(Equal([]any{"ok"}))
			Expect(handler.failures).To(BeEmpty())
		})

		It("runs OnFailed exactly once when execute fails", func() {
			boom := errors.New("git:sync exited with code 1")
			handler.execute = func(*Job) (any, error) { return nil, boom }
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusFailed))
			Expect(stored.LastError).To(ContainSubstring("git:sync"))
			Expect(handler.failures).To(ConsistOf(MatchError(boom)))
			Expect(handler.successes).To(BeEmpty())
		})

		It("turns a panic into a failure", func() {
			handler.execute = func(*Job) (any, error) { panic("nil map") }
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusFailed))
			Expect(handler.failures).To(ConsistOf(MatchError(ContainSubstring("panicked"))))
		})

		It("does not convert a hook error into the other hook", func() {
			handler.hookErr = errors.New("database unavailable")
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusSucceeded))
			_, successes, failures := handler.counts()
			Expect(successes).To(Equal(1))
			Expect(failures).To(Equal(0))
		})

		It("retries transient failures without running a hook", func() {
			calls := 0
			handler.execute = func(*Job) (any, error) {
				calls++
				if calls == 1 {
					return nil, &temporaryError{msg: "connection refused"}
				}
				return "ok", nil
			}
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusQueued))
			Expect(stored.LastError).To(Equal("connection refused"))
			_, successes, failures := handler.counts()
			Expect(successes + failures).To(Equal(0))

			stored = popAndProcess()
			Expect(stored.Status).To(Equal(StatusSucceeded))
			Expect(stored.Attempts).To(Equal(2))
			Expect(handler.successes).To(HaveLen(1))
		})

		It("fails transient errors once attempts are exhausted", func() {
			config.MaxAttempts = 1
			newEngine()
			handler.execute = func(*Job) (any, error) { return nil, &temporaryError{msg: "connection refused"} }
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusFailed))
			Expect(handler.failures).To(HaveLen(1))
		})

		It("fails stalled jobs redelivered past the attempt limit without executing", func() {
			config.MaxAttempts = 1
			newEngine()
			_, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			// First delivery stalls: the lease expires without completion.
			job, err := backend.Pop(ctx, 100*time.Millisecond, time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Attempts).To(Equal(1))
			time.Sleep(5 * time.Millisecond)

			stalled, err := backend.Maintain(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stalled).To(Equal(1))

			stored := popAndProcess()
			Expect(stored.Status).To(Equal(StatusFailed))
			Expect(stored.Attempts).To(Equal(2))
			Expect(stored.LastError).To(ContainSubstring(ErrTooManyAttempts.Error()))

			executed, successes, failures := handler.counts()
			Expect(executed).To(Equal(0))
			Expect(successes).To(Equal(0))
			Expect(failures).To(Equal(1))
			Expect(handler.failures[0]).To(MatchError(ErrTooManyAttempts))
		})
	})

	Describe("Cancel", func() {
		It("removes queued jobs", func() {
			job, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Cancel(ctx, job.ID)).To(Succeed())
			stored, err := engine.Get(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(StatusCancelled))

			next, err := backend.Pop(ctx, 20*time.Millisecond, time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(BeNil())
		})

		It("refuses jobs that already started", func() {
			job, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app-1"})
			Expect(err).NotTo(HaveOccurred())
			_, err = backend.Pop(ctx, 20*time.Millisecond, time.Minute)
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Cancel(ctx, job.ID)).To(MatchError(ErrJobNotCancellable))
		})

		It("reports unknown jobs", func() {
			Expect(engine.Cancel(ctx, "missing")).To(MatchError(ErrJobNotFound))
		})
	})

	Describe("Start and Stop", func() {
		It("processes jobs with concurrent workers", func() {
			config.Concurrency = 3
			newEngine()
			engine.Start()
			DeferCleanup(func() {
				Expect(engine.Stop(context.Background())).To(Succeed())
			})

			var ids []string
			for range 5 {
				job, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app"})
				Expect(err).NotTo(HaveOccurred())
				ids = append(ids, job.ID)
			}

			for _, id := range ids {
				Eventually(func() Status {
					job, err := engine.Get(ctx, id)
					Expect(err).NotTo(HaveOccurred())
					return job.Status
				}).Should(Equal(StatusSucceeded))
			}
			_, successes, _ := handler.counts()
			Expect(successes).To(Equal(5))
		})

		It("waits for running jobs before returning", func() {
			release := make(chan struct{})
			handler.execute = func(*Job) (any, error) {
				<-release
				return "ok", nil
			}
			engine.Start()
			job, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app"})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() Status {
				stored, _ := engine.Get(ctx, job.ID)
				return stored.Status
			}).Should(Equal(StatusRunning))

			stopped := make(chan error, 1)
			go func() { stopped <- engine.Stop(context.Background()) }()
			Consistently(stopped, 100*time.Millisecond).ShouldNot(Receive())

			close(release)
			Eventually(stopped).Should(Receive(BeNil()))

			stored, err := engine.Get(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(StatusSucceeded))
		})
	})

	Describe("Stop with an expiring context", func() {
		It("requeues aborted jobs without running their hooks", func() {
			handler.blocking = true
			engine.Start()
			job, err := engine.Enqueue(ctx, TypeDeployApp, Payload{AppID: "app"})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() Status {
				stored, _ := engine.Get(ctx, job.ID)
				return stored.Status
			}).Should(Equal(StatusRunning))

			stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			Expect(engine.Stop(stopCtx)).To(MatchError(context.DeadlineExceeded))

			stored, err := engine.Get(ctx, job.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(StatusQueued))
			Expect(stored.Attempts).To(Equal(0))
			Expect(stored.LastError).To(ContainSubstring("context canceled"))

			executed, successes, failures := handler.counts()
			Expect(executed).To(Equal(1))
			Expect(successes).To(BeZero())
			Expect(failures).To(BeZero())

			redelivered, err := backend.Pop(ctx, 100*time.Millisecond, time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(redelivered).NotTo(BeNil())
			Expect(redelivered.ID).To(Equal(job.ID))
			Expect(redelivered.Attempts).To(Equal(1))
		})
	})

	Describe("backoff", func() {
		It("doubles per attempt up to the cap", func() {
			config.RetryBackoff = time.Second
			newEngine()
			Expect(engine.backoff(1)).To(Equal(time.Second))
			Expect(engine.backoff(3)).To(Equal(4 * time.Second))
			Expect(engine.backoff(30)).To(Equal(maxRetryBackoff))
		})
	})
})

var _ = Describe("Registry", func() {
	It("rejects duplicate registrations", func() {
		r := NewRegistry()
		Expect(r.Register(TypeDeployApp, &recordingHandler{})).To(Succeed())
		Expect(r.Register(TypeDeployApp, &recordingHandler{})).To(HaveOccurred())
		Expect(r.Types()).To(Equal([]Type{TypeDeployApp}))
	})
})

var _ = Describe("Payload", func() {
	It("defaults DeleteOnFailed to true and honours an explicit false", func() {
		keep := false
		Expect(Payload{}.ShouldDeleteOnFailed()).To(BeTrue())
		Expect(Payload{DeleteOnFailed: &keep}.ShouldDeleteOnFailed()).To(BeFalse())
	})

	It("redacts the credential", func() {
		Expect(Payload{Token: "ghs_x"}.Redacted().Token).To(Equal("[redacted]"))
	})
})
