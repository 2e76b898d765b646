//go:build !integration

package domain_test

import (
	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/deployment/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Database linking", func() {
	const appID = "app-1"

	var h *harness

	BeforeEach(func() {
		h = newHarness()
		h.saveApp(appID, "blog", nil)
	})

	Describe("Linker", func() {
		It("queues a link job for an unlinked database", func() {
			h.saveDatabase("db-1", "blog-db", database.TypeMySQL)

			outcome, err := h.linker.Request(h.ctx, "db-1", appID, "blog", "ops")

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.LinkOutcomeQueued))
			queued := h.nextQueued()
			Expect(queued).NotTo(BeNil())
			Expect(queued.Payload).To(Equal(jobs.Payload{AppID: appID, AppName: "blog", DatabaseID: "db-1", UserName: "ops"}))
		})

		It("reports an existing link without queuing anything", func() {
			h.saveDatabase("db-1", "blog-db", database.TypeMySQL, appID)

			outcome, err := h.linker.Request(h.ctx, "db-1", appID, "blog", "ops")

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.LinkOutcomeAlreadyLinked))
			Expect(h.nextQueued()).To(BeNil())
			Expect(h.publisher.ofType(events.TypeAlreadyLinked)).To(HaveLen(1))
		})

		It("fails on an unknown database and leaves the application untouched", func() {
			_, err := h.linker.Request(h.ctx, "missing", appID, "blog", "ops")

			Expect(err).To(MatchError(database.ErrDatabaseNotFound))
			stored, err := h.store.Get(h.ctx, appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(app.StatusIdle))
			Expect(h.apps.history()).To(BeEmpty())
		})
	})

	Describe("LinkDatabaseJob", func() {
		It("links the service on Dokku and records the membership", func() {
			h.saveDatabase("db-1", "blog-db", database.TypePostgreSQL)
			h.session.On("postgres:link", dokkutesting.Response{Stdout: []string{"-----> Setting config vars", "DATABASE_URL: postgres://..."}})

			job := h.run(jobs.TypeLinkDatabase, jobs.Payload{AppID: appID, DatabaseID: "db-1", UserName: "ops"})

			Expect(job.Status).To(Equal(jobs.StatusSucceeded))
			Expect(h.session.Commands()).To(Equal([]string{"postgres:link blog-db blog"}))

			membership, err := h.store.FetchWithMembership(h.ctx, "db-1", appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(membership.Linked).To(BeTrue())

			terminal := h.publisher.terminal(events.TopicDatabaseLinked)
			Expect(terminal).To(HaveLen(1))
			Expect(terminal[0].Payload.Type).To(Equal(events.TypeEndSuccess))
			Expect(terminal[0].Payload.ReferenceID).To(Equal("db-1"))

			records := h.activity("db-1")
			Expect(records).To(HaveLen(1))
			Expect(records[0].Name).To(Equal(`Database "blog-db" linked with "blog"`))
			Expect(records[0].RefersToModel).To(Equal(activity.ModelDatabase))
		})

		It("does nothing on Dokku when a redelivered job finds the link in place", func() {
			h.saveDatabase("db-1", "blog-db", database.TypePostgreSQL, appID)

			job := h.run(jobs.TypeLinkDatabase, jobs.Payload{AppID: appID, DatabaseID: "db-1"})

			Expect(job.Status).To(Equal(jobs.StatusSucceeded))
			Expect(h.session.Calls()).To(BeEmpty())
			Expect(h.activity("db-1")).To(BeEmpty())

			membership, err := h.store.FetchWithMembership(h.ctx, "db-1", appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(membership.Database.AppIDs).To(HaveLen(1))
		})

		It("publishes a failure and keeps the membership unchanged when Dokku refuses", func() {
			h.saveDatabase("db-1", "cache", database.TypeRedis)
			h.session.On("redis:link", dokkutesting.Response{Err: dokkutesting.Failure("redis:link", 1, "service cache does not exist")})

			job := h.run(jobs.TypeLinkDatabase, jobs.Payload{AppID: appID, DatabaseID: "db-1"})

			Expect(job.Status).To(Equal(jobs.StatusFailed))
			terminal := h.publisher.terminal(events.TopicDatabaseLinked)
			Expect(terminal).To(HaveLen(1))
			Expect(terminal[0].Payload.Type).To(Equal(events.TypeEndFailure))

			membership, err := h.store.FetchWithMembership(h.ctx, "db-1", appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(membership.Linked).To(BeFalse())
		})
	})
})
