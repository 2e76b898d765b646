package infrastructure_test

import (
	"context"
	"io"
	"log/slog"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/app/infrastructure"
	dokkutesting "github.com/alex-galey/dokku-deployer/testing/dokku"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DokkuApplicationManager", func() {
	var (
		ctx     context.Context
		session *dokkutesting.FakeSession
		manager *infrastructure.DokkuApplicationManager
	)

	BeforeEach(func() {
		ctx = context.Background()
		session = dokkutesting.NewFakeSession()
		manager = infrastructure.NewDokkuApplicationManager(session, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("streams git:from-image output", func() {
		session.On("git:from-image", dokkutesting.Response{Stdout: []string{"-----> Pulling image"}})
		var lines []string
		out := dokkuApi.OutputFuncs{Stdout: func(b []byte) { lines = append(lines, string(b)) }}

		Expect(manager.CreateFromImage(ctx, "blog", "nginx:1.27", out)).To(Succeed())
		Expect(session.Commands()).To(Equal([]string{"git:from-image blog nginx:1.27"}))
		Expect(lines).To(Equal([]string{"-----> Pulling image\n"}))
	})

	It("leaves an existing app alone", func() {
		Expect(manager.EnsureExists(ctx, "blog", nil)).To(Succeed())
		Expect(session.Commands()).To(Equal([]string{"apps:exists blog"}))
	})

	It("creates a missing app", func() {
		session.On("apps:exists", dokkutesting.Response{Err: dokkutesting.NotFound("apps:exists", "App blog does not exist")})
		Expect(manager.EnsureExists(ctx, "blog", nil)).To(Succeed())
		Expect(session.Commands()).To(Equal([]string{"apps:exists blog", "apps:create blog"}))
	})

	It("does not create the app when the host cannot be checked", func() {
		session.On("apps:exists", dokkutesting.Response{Err: dokkutesting.Unreachable("apps:exists")})
		err := manager.EnsureExists(ctx, "blog", nil)
		Expect(err).To(MatchError(ContainSubstring("failed to check application blog")))
		Expect(session.CallsTo("apps:create")).To(BeEmpty())
	})

	It("destroys with --force", func() {
		Expect(manager.Destroy(ctx, "blog")).To(Succeed())
		Expect(session.Commands()).To(Equal([]string{"apps:destroy blog --force"}))
	})

	It("treats a missing app as destroyed", func() {
		session.On("apps:destroy", dokkutesting.Response{
			Err: &dokkuApi.NotFoundError{Command: "apps:destroy", Err: dokkutesting.Failure("apps:destroy", 1, "App blog does not exist")},
		})
		Expect(manager.Destroy(ctx, "blog")).To(Succeed())
	})

	It("wraps rebuild failures", func() {
		session.On("ps:rebuild", dokkutesting.Response{Err: dokkutesting.Failure("ps:rebuild", 1, "build failed")})
		err := manager.Rebuild(ctx, "blog", nil)
		Expect(err).To(MatchError(ContainSubstring("failed to rebuild blog")))
		_, ok := dokkuApi.AsCommandFailure(err)
		Expect(ok).To(BeTrue())
	})

	It("enables TLS through letsencrypt", func() {
		Expect(manager.EnableSSL(ctx, "blog", nil)).To(Succeed())
		Expect(session.Commands()).To(Equal([]string{"letsencrypt:enable blog"}))
	})
})
