//go:build !integration

package domain_test

import (
	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/deployment/domain"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ImageDeployJob", func() {
	const appID = "app-img"

	var h *harness

	BeforeEach(func() {
		h = newHarness()
		h.saveApp(appID, "docs", nil)
	})

	It("creates the application from the image and records the image in the activity", func() {
		h.session.On("git:from-image", dokkutesting.Response{Stdout: []string{"-----> Deploying docs via image nginx:1.27"}})

		job := h.run(jobs.TypeDeployImage, jobs.Payload{AppID: appID, Image: "nginx:1.27", UserName: "ops"})

		Expect(job.Status).To(Equal(jobs.StatusSucceeded))
		calls := h.session.CallsTo("git:from-image")
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Args).To(Equal([]string{"docs", "nginx:1.27"}))

		stored, err := h.store.Get(h.ctx, appID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(app.StatusRunning))

		records := h.activity(appID)
		Expect(records).To(HaveLen(1))
		Expect(records[0].Description).To(Equal("From image nginx:1.27"))

		entries := h.logs(appID)
		Expect(entries).To(HaveLen(2))
		Expect(entries[1].Type).To(Equal(app.LogEndSuccess))
	})

	It("rejects a malformed image reference before reaching Dokku", func() {
		Expect(h.store.AddLog(h.ctx, appID, app.NewLogEntry("stale line from previous run", app.LogStdout))).To(Succeed())

		job := h.run(jobs.TypeDeployImage, jobs.Payload{AppID: appID, Image: "Not An Image", DeleteOnFailed: boolPtr(false)})

		Expect(job.Status).To(Equal(jobs.StatusFailed))
		Expect(job.LastError).To(ContainSubstring(domain.ErrInvalidPayload.Error()))
		Expect(h.session.CallsTo("git:from-image")).To(BeEmpty())
		Expect(h.publisher.terminal(events.TopicAppCreated)).To(HaveLen(1))

		entries := h.logs(appID)
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Type).To(Equal(app.LogEndFailure))

		stored, err := h.store.Get(h.ctx, appID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(app.StatusIdle))
	})

	It("rolls back when Dokku cannot pull the image", func() {
		h.session.On("git:from-image", dokkutesting.Response{
			Err: dokkutesting.Failure("git:from-image", 1, "manifest unknown"),
		})

		job := h.run(jobs.TypeDeployImage, jobs.Payload{AppID: appID, Image: "ghcr.io/acme/docs:missing"})

		Expect(job.Status).To(Equal(jobs.StatusFailed))
		_, err := h.store.Get(h.ctx, appID)
		Expect(err).To(MatchError(app.ErrApplicationNotFound))
		Expect(h.session.CallsTo("apps:destroy")).To(HaveLen(1))
	})
})
