//go:build !integration

package domain_test

import (
	"fmt"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GitDeployJob", func() {
	const appID = "app-1"

	var (
		h           *harness
		buildOutput []string
		payload     jobs.Payload
	)

	BeforeEach(func() {
		h = newHarness()
		h.saveApp(appID, "blog", &app.GitSource{RepoOwner: "acme", RepoName: "blog", Branch: "main"})

		buildOutput = nil
		for i := 1; i <= 10; i++ {
			buildOutput = append(buildOutput, fmt.Sprintf("-----> build step %d", i))
		}
		h.session.On("git:sync", dokkutesting.Response{Stdout: buildOutput})

		payload = jobs.Payload{AppID: appID, AppName: "blog", UserName: "octocat", Token: "ghp_secret"}
	})

	Context("when the deployment succeeds", func() {
		It("moves the application from building to running with the streamed output buffered in order", func() {
			job := h.run(jobs.TypeDeployApp, payload)

			Expect(job.Status).To(Equal(jobs.StatusSucceeded))
			Expect(h.apps.history()).To(Equal([]app.Status{app.StatusBuilding, app.StatusRunning}))

			entries := h.logs(appID)
			Expect(entries).To(HaveLen(11))
			for i, line := range buildOutput {
				Expect(entries[i].Message).To(Equal(line))
				Expect(entries[i].Type).To(Equal(app.LogStdout))
			}
			Expect(entries[10].Type).To(Equal(app.LogEndSuccess))
			Expect(entries[10].Message).To(Equal("App created successfully!"))
		})

		It("drives Dokku through auth, unlock and sync of the configured branch", func() {
			h.run(jobs.TypeDeployApp, payload)

			Expect(h.session.Commands()).To(Equal([]string{
				"apps:exists blog",
				"git:auth github.com octocat ghp_secret",
				"git:unlock blog --force",
				"git:sync --build blog https://github.com/acme/blog.git main",
				"ports:report blog --ports-map",
			}))
		})

		It("does not touch the proxy when the application exposes no ports", func() {
			h.run(jobs.TypeDeployApp, payload)

			Expect(h.session.CallsTo("ports:add")).To(BeEmpty())
			Expect(h.session.CallsTo("letsencrypt:enable")).To(BeEmpty())
		})

		It("maps port 80 and enables TLS when the web port is missing", func() {
			h.session.On("ports:report", dokkutesting.Response{Stdout: []string{"http:5000:5000"}})

			h.run(jobs.TypeDeployApp, payload)

			Expect(h.session.Commands()).To(ContainElements(
				"ports:add blog http:80:5000",
				"letsencrypt:enable blog",
			))
		})

		It("records who launched the project and from where", func() {
			h.run(jobs.TypeDeployApp, payload)

			records := h.activity(appID)
			Expect(records).To(HaveLen(1))
			Expect(records[0].Name).To(ContainSubstring("blog"))
			Expect(records[0].Description).To(Equal("From https://github.com/acme/blog/tree/main"))
			Expect(records[0].RefersToModel).To(Equal(activity.ModelApp))
			Expect(records[0].Modifier).To(Equal("octocat"))
		})

		It("publishes exactly one terminal event on the app topic", func() {
			h.run(jobs.TypeDeployApp, payload)

			terminal := h.publisher.terminal(events.TopicAppCreated)
			Expect(terminal).To(HaveLen(1))
			Expect(terminal[0].Payload.Type).To(Equal(events.TypeEndSuccess))
			Expect(terminal[0].Payload.ReferenceID).To(Equal(appID))
		})

		It("clears the previous run's log buffer before executing", func() {
			Expect(h.store.AddLog(h.ctx, appID, app.NewLogEntry("stale line", app.LogStdout))).To(Succeed())

			h.run(jobs.TypeDeployApp, payload)

			for _, entry := range h.logs(appID) {
				Expect(entry.Message).NotTo(Equal("stale line"))
			}
		})
	})

	Context("when the sync fails", func() {
		BeforeEach(func() {
			h.session.On("git:sync", dokkutesting.Response{
				Stdout: buildOutput[:3],
				Err:    dokkutesting.Failure("git:sync", 1, "remote: fatal: couldn't find remote ref"),
			})
		})

		It("deletes the application and destroys it on Dokku by default", func() {
			job := h.run(jobs.TypeDeployApp, payload)

			Expect(job.Status).To(Equal(jobs.StatusFailed))
			_, err := h.store.Get(h.ctx, appID)
			Expect(err).To(MatchError(app.ErrApplicationNotFound))

			destroys := h.session.CallsTo("apps:destroy")
			Expect(destroys).To(HaveLen(1))
			Expect(destroys[0].Args).To(Equal([]string{"blog", "--force"}))

			failures := h.publisher.ofType(events.TypeEndFailure)
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Topic).To(Equal(events.TopicAppCreated))
			Expect(h.publisher.ofType(events.TypeEndSuccess)).To(BeEmpty())
		})

		It("keeps the application idle and records the error when deletion is disabled", func() {
			payload.DeleteOnFailed = boolPtr(false)

			job := h.run(jobs.TypeDeployApp, payload)

			Expect(job.Status).To(Equal(jobs.StatusFailed))
			stored, err := h.store.Get(h.ctx, appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(app.StatusIdle))
			Expect(h.session.CallsTo("apps:destroy")).To(BeEmpty())

			records := h.activity(appID)
			Expect(records).To(HaveLen(1))
			Expect(records[0].ReferenceID).To(Equal(appID))
			Expect(records[0].Description).To(ContainSubstring("couldn't find remote ref"))

			entries := h.logs(appID)
			Expect(terminalEntries(entries)).To(HaveLen(1))
			Expect(entries[len(entries)-1].Type).To(Equal(app.LogEndFailure))
		})

		It("still requests the database link when the application is kept", func() {
			h.saveDatabase("db-1", "blog-db", database.TypePostgreSQL)
			payload.DeleteOnFailed = boolPtr(false)
			payload.DatabaseID = "db-1"

			h.run(jobs.TypeDeployApp, payload)

			link := h.nextQueued()
			Expect(link).NotTo(BeNil())
			Expect(link.Type).To(Equal(jobs.TypeLinkDatabase))
			Expect(link.Payload.DatabaseID).To(Equal("db-1"))
		})

		It("skips the database link when the application was deleted", func() {
			h.saveDatabase("db-1", "blog-db", database.TypePostgreSQL)
			payload.DatabaseID = "db-1"

			job := h.run(jobs.TypeDeployApp, payload)

			Expect(job.Status).To(Equal(jobs.StatusFailed))
			Expect(h.session.CallsTo("apps:destroy")).To(HaveLen(1))
			Expect(h.nextQueued()).To(BeNil())
		})
	})

	Context("when the application has no repository", func() {
		It("fails without calling Dokku's git commands", func() {
			h.saveApp("app-2", "static", nil)

			job := h.run(jobs.TypeDeployApp, jobs.Payload{AppID: "app-2", DeleteOnFailed: boolPtr(false)})

			Expect(job.Status).To(Equal(jobs.StatusFailed))
			Expect(job.LastError).To(ContainSubstring(app.ErrMissingSource.Error()))
			Expect(h.session.CallsTo("git:sync")).To(BeEmpty())
		})
	})

	Context("when a database link is requested", func() {
		It("queues the link after a successful deployment", func() {
			h.saveDatabase("db-1", "blog-db", database.TypePostgreSQL)
			payload.DatabaseID = "db-1"

			h.run(jobs.TypeDeployApp, payload)

			link := h.nextQueued()
			Expect(link).NotTo(BeNil())
			Expect(link.Type).To(Equal(jobs.TypeLinkDatabase))
			Expect(link.Payload.AppID).To(Equal(appID))
			Expect(link.Payload.AppName).To(Equal("blog"))
		})

		It("signals an existing link instead of failing", func() {
			h.saveDatabase("db-1", "blog-db", database.TypePostgreSQL, appID)
			payload.DatabaseID = "db-1"

			job := h.run(jobs.TypeDeployApp, payload)

			Expect(job.Status).To(Equal(jobs.StatusSucceeded))
			Expect(h.nextQueued()).To(BeNil())

			membership, err := h.store.FetchWithMembership(h.ctx, "db-1", appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(membership.Database.AppIDs).To(Equal([]string{appID}))

			signals := h.publisher.ofType(events.TypeAlreadyLinked)
			Expect(signals).To(HaveLen(1))
			Expect(signals[0].Topic).To(Equal(events.TopicDatabaseLinked))
			Expect(signals[0].Payload.ReferenceID).To(Equal("db-1"))
		})
	})
})
