//go:build !integration

package domain_test

import (
	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RebuildJob", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	It("streams the rebuild on its own topic and records it", func() {
		h.session.On("ps:rebuild", dokkutesting.Response{Stdout: []string{"-----> Rebuilding blog"}})

		job := h.run(jobs.TypeRebuildApp, jobs.Payload{AppID: "app-1", AppName: "blog", UserName: "ops"})

		Expect(job.Status).To(Equal(jobs.StatusSucceeded))
		Expect(h.session.Commands()).To(Equal([]string{"ps:rebuild blog"}))

		stdout := h.publisher.ofType(events.TypeStdout)
		Expect(stdout).To(HaveLen(1))
		Expect(stdout[0].Topic).To(Equal(events.TopicAppRebuilt))
		Expect(stdout[0].Payload.ReferenceID).To(Equal("app-1"))

		terminal := h.publisher.terminal(events.TopicAppRebuilt)
		Expect(terminal).To(HaveLen(1))
		Expect(terminal[0].Payload.Message).To(Equal("App rebuilt successfully!"))

		records := h.activity("app-1")
		Expect(records).To(HaveLen(1))
		Expect(records[0].Name).To(Equal(`Rebuild of "blog"`))
	})

	It("leaves the persisted log buffer alone", func() {
		h.run(jobs.TypeRebuildApp, jobs.Payload{AppID: "app-1", AppName: "blog"})

		Expect(h.logs("app-1")).To(BeEmpty())
	})

	It("publishes a single failure event when the rebuild fails", func() {
		h.session.On("ps:rebuild", dokkutesting.Response{Err: dokkutesting.Failure("ps:rebuild", 1, "build failed")})

		job := h.run(jobs.TypeRebuildApp, jobs.Payload{AppName: "blog"})

		Expect(job.Status).To(Equal(jobs.StatusFailed))
		terminal := h.publisher.terminal(events.TopicAppRebuilt)
		Expect(terminal).To(HaveLen(1))
		Expect(terminal[0].Payload.Type).To(Equal(events.TypeEndFailure))
		Expect(terminal[0].Payload.ReferenceID).To(Equal("blog"))
		Expect(h.activity("blog")).To(BeEmpty())
	})

	It("retries when the Dokku host is unreachable", func() {
		h = newHarnessWithAttempts(2)
		h.session.On("ps:rebuild", dokkutesting.Response{Err: dokkutesting.Unreachable("ps:rebuild")})

		job := h.run(jobs.TypeRebuildApp, jobs.Payload{AppName: "blog"})

		Expect(job.Status).To(Equal(jobs.StatusQueued))
		Expect(h.publisher.terminal(events.TopicAppRebuilt)).To(BeEmpty())
	})
})
