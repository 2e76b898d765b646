//go:build !integration

package domain_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	app_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/infrastructure"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	database_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/infrastructure"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/deployment/domain"
	git_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/git/infrastructure"
	proxy "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
	proxy_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/infrastructure"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
	"github.com/alex-galey/dokku-deployer/internal/storage/memory"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/gomega"
)

type published struct {
	Topic   events.Topic
	Payload events.LogPayload
}

// capturingPublisher records every event instead of dispatching it.
type capturingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *capturingPublisher) Publish(topic events.Topic, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	log, _ := payload.(events.LogPayload)
	p.events = append(p.events, published{Topic: topic, Payload: log})
}

func (p *capturingPublisher) ofType(logType string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []published
	for _, ev := range p.events {
		if ev.Payload.Type == logType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func (p *capturingPublisher) terminal(topic events.Topic) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []published
	for _, ev := range p.events {
		if ev.Topic == topic && app.LogType(ev.Payload.Type).IsTerminal() {
			matched = append(matched, ev)
		}
	}
	return matched
}

// statusRecorder keeps the sequence of statuses written to an application.
type statusRecorder struct {
	*memory.Store
	mu       sync.Mutex
	statuses []app.Status
}

func (r *statusRecorder) UpdateStatus(ctx context.Context, id string, status app.Status) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return r.Store.UpdateStatus(ctx, id, status)
}

func (r *statusRecorder) history() []app.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]app.Status(nil), r.statuses...)
}

// harness wires every job variant to in-memory storage, a fake Dokku host and
// a job engine that is driven by hand.
type harness struct {
	ctx       context.Context
	store     *memory.Store
	apps      *statusRecorder
	session   *dokkutesting.FakeSession
	publisher *capturingPublisher
	backend   *jobs.MemoryBackend
	engine    *jobs.Engine
	linker    *domain.Linker
}

func newHarness() *harness {
	return newHarnessWithAttempts(1)
}

func newHarnessWithAttempts(maxAttempts int) *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore(100)
	h := &harness{
		ctx:       context.Background(),
		store:     store,
		apps:      &statusRecorder{Store: store},
		session:   dokkutesting.NewFakeSession(),
		publisher: &capturingPublisher{},
		backend:   jobs.NewMemoryBackend(),
	}

	registry := jobs.NewRegistry()
	h.engine = jobs.NewEngine(h.backend, registry, jobs.EngineConfig{
		MaxAttempts:  maxAttempts,
		StallTimeout: time.Minute,
	}, logger, nil)

	activityLog := activity.NewLog(store, logger)
	appManager := app_infrastructure.NewDokkuApplicationManager(h.session, logger)
	reconciler := proxy.NewReconciler(proxy_infrastructure.NewDokkuPortManager(h.session, logger), appManager, logger)
	h.linker = domain.NewLinker(store, h.engine, h.publisher, logger)

	Expect(registry.Register(jobs.TypeDeployApp, domain.NewGitDeployJob(
		h.apps, appManager, git_infrastructure.NewDokkuSourceManager(h.session, logger),
		reconciler, h.linker, activityLog, h.publisher, logger))).To(Succeed())
	Expect(registry.Register(jobs.TypeDeployImage, domain.NewImageDeployJob(
		h.apps, appManager, reconciler, h.linker, activityLog, h.publisher, logger))).To(Succeed())
	Expect(registry.Register(jobs.TypeRebuildApp, domain.NewRebuildJob(
		appManager, activityLog, h.publisher, logger))).To(Succeed())
	Expect(registry.Register(jobs.TypeLinkDatabase, domain.NewLinkDatabaseJob(
		h.apps, store, database_infrastructure.NewDokkuDatabaseManager(h.session, logger),
		activityLog, h.publisher, logger))).To(Succeed())

	return h
}

func (h *harness) saveApp(id, name string, source *app.GitSource) *app.Application {
	application, err := app.NewApplication(id, name, source)
	Expect(err).NotTo(HaveOccurred())
	Expect(h.store.Save(h.ctx, application)).To(Succeed())
	return application
}

func (h *harness) saveDatabase(id, name string, dbType database.Type, appIDs ...string) {
	Expect(h.store.SaveDatabase(h.ctx, &database.Database{ID: id, Name: name, Type: dbType})).To(Succeed())
	for _, appID := range appIDs {
		_, err := h.store.AddMember(h.ctx, id, appID)
		Expect(err).NotTo(HaveOccurred())
	}
}

// run queues a job and processes exactly one delivery of it.
func (h *harness) run(jobType jobs.Type, payload jobs.Payload) *jobs.Job {
	queued, err := h.engine.Enqueue(h.ctx, jobType, payload)
	Expect(err).NotTo(HaveOccurred())

	popped, err := h.backend.Pop(h.ctx, time.Second, time.Minute)
	Expect(err).NotTo(HaveOccurred())
	Expect(popped).NotTo(BeNil())
	Expect(popped.ID).To(Equal(queued.ID))

	h.engine.Process(h.ctx, popped)

	finished, err := h.engine.Get(h.ctx, queued.ID)
	Expect(err).NotTo(HaveOccurred())
	return finished
}

// nextQueued pops the next waiting job without running it.
func (h *harness) nextQueued() *jobs.Job {
	job, err := h.backend.Pop(h.ctx, 10*time.Millisecond, time.Minute)
	Expect(err).NotTo(HaveOccurred())
	return job
}

func (h *harness) logs(appID string) []app.LogEntry {
	entries, err := h.store.ListLogs(h.ctx, appID, 0)
	Expect(err).NotTo(HaveOccurred())
	return entries
}

func (h *harness) activity(referenceID string) []activity.Record {
	records, err := h.store.ListActivity(h.ctx, referenceID, 0)
	Expect(err).NotTo(HaveOccurred())
	return records
}

func terminalEntries(entries []app.LogEntry) []app.LogEntry {
	var matched []app.LogEntry
	for _, e := range entries {
		if e.Type.IsTerminal() {
			matched = append(matched, e)
		}
	}
	return matched
}

func boolPtr(v bool) *bool { return &v }
