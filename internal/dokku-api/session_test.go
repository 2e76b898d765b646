package dokkuApi_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeDokku stands in for the dokku CLI; the first argument selects a behavior.
const fakeDokku = `#!/bin/sh
case "$1" in
  stream)
    i=1
    while [ $i -le 10 ]; do echo "line $i"; i=$((i+1)); done
    echo "warning: cache miss" 1>&2
    ;;
  report) echo "http:80:5000 https:443:5000" ;;
  missing) echo " !     App $2 does not exist" 1>&2; exit 1 ;;
  fail) echo "step one" 1>&2; echo "remote: build failed" 1>&2; exit 2 ;;
  unreachable) exit 255 ;;
  hang) sleep 30 ;;
esac
`

type recordingHandler struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

func (h *recordingHandler) OnStdout(chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stdout = append(h.stdout, string(chunk))
}

func (h *recordingHandler) OnStderr(chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stderr = append(h.stderr, string(chunk))
}

var _ = Describe("Session", func() {
	var (
		session dokkuApi.Session
		config  dokkuApi.SessionConfig
		ctx     context.Context
	)

	BeforeEach(func() {
		script := filepath.Join(GinkgoT().TempDir(), "dokku")
		Expect(os.WriteFile(script, []byte(fakeDokku), 0755)).To(Succeed())

		ctx = context.Background()
		config = dokkuApi.SessionConfig{
			CommandTimeout:    5 * time.Second,
			StreamTimeout:     5 * time.Second,
			Factory:           dokkuApi.LocalCommandFactory(script),
			TransientExitCode: 255,
		}
		session = dokkuApi.NewSession(config, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	})

	Describe("Run", func() {
		It("streams stdout and stderr to the handler", func() {
			handler := &recordingHandler{}
			result, err := session.Run(ctx, "stream", nil, handler)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.ExitCode).To(Equal(0))

			stdout := strings.Join(handler.stdout, "")
			Expect(strings.Split(strings.TrimSpace(stdout), "\n")).To(HaveLen(10))
			Expect(stdout).To(HavePrefix("line 1\n"))
			Expect(strings.Join(handler.stderr, "")).To(ContainSubstring("cache miss"))
		})

		It("returns a CommandFailure with the stderr tail on non-zero exit", func() {
			_, err := session.Run(ctx, "fail", nil, dokkuApi.Discard)

			failure, ok := dokkuApi.AsCommandFailure(err)
			Expect(ok).To(BeTrue())
			Expect(failure.ExitCode).To(Equal(2))
			Expect(failure.Stderr).To(Equal("step one\nremote: build failed"))
			Expect(dokkuApi.IsTransientError(err)).To(BeFalse())
		})

		It("classifies missing apps as not found", func() {
			_, err := session.Run(ctx, "missing", []string{"blog"}, nil)
			Expect(dokkuApi.IsNotFoundError(err)).To(BeTrue())
		})

		It("classifies the transport failure exit code as transient", func() {
			_, err := session.Run(ctx, "unreachable", nil, nil)
			Expect(dokkuApi.IsTransientError(err)).To(BeTrue())
		})

		It("reports a missing binary as transient", func() {
			config.Factory = dokkuApi.LocalCommandFactory("/nonexistent/dokku")
			session = dokkuApi.NewSession(config, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

			_, err := session.Run(ctx, "stream", nil, nil)
			Expect(dokkuApi.IsTransientError(err)).To(BeTrue())
		})

		It("stops the command when the context is cancelled", func() {
			runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := session.Run(runCtx, "hang", nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			Expect(time.Since(start)).To(BeNumerically("<", 10*time.Second))
		})
	})

	Describe("Output", func() {
		It("returns the collected stdout", func() {
			out, err := session.Output(ctx, "report", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(string(out))).To(Equal("http:80:5000 https:443:5000"))
		})
	})

	Describe("ValidateCommand", func() {
		It("blocks blacklisted commands by substring", func() {
			config.Blacklist = []string{"destroy"}
			session = dokkuApi.NewSession(config, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

			err := session.ValidateCommand("apps:destroy", []string{"blog"})
			Expect(err).To(MatchError(ContainSubstring("blacklisted")))

			_, err = session.Run(ctx, "apps:destroy", []string{"blog"}, nil)
			Expect(err).To(MatchError(ContainSubstring("invalid command")))
		})

		DescribeTable("rejects shell metacharacters",
			func(command string, args []string) {
				Expect(session.ValidateCommand(command, args)).To(MatchError(ContainSubstring("dangerous characters")))
			},
			Entry("semicolon in command", "apps:list;rm", []string{}),
			Entry("backtick in command", "apps:list`whoami`", []string{}),
			Entry("dollar in argument", "apps:report", []string{"$(whoami)"}),
			Entry("pipe in argument", "logs", []string{"blog|cat"}),
			Entry("newline in argument", "git:auth", []string{"github.com", "bob", "tok\nen"}),
		)

		It("allows ordinary deployment commands", func() {
			Expect(session.ValidateCommand("git:sync", []string{"--build", "blog", "https://github.com/acme/blog.git", "main"})).To(Succeed())
		})
	})
})

var _ = Describe("RedactArgs", func() {
	It("hides the git:auth credential", func() {
		args := []string{"github.com", "alice", "ghs_secret"}
		Expect(dokkuApi.RedactArgs("git:auth", args)).To(Equal([]string{"github.com", "alice", "[redacted]"}))
		Expect(args[2]).To(Equal("ghs_secret"))
	})

	It("hides config values but keeps keys", func() {
		line := dokkuApi.RedactCommand("config:set", []string{"--no-restart", "blog", "DATABASE_URL=postgres://x"})
		Expect(line).To(Equal("config:set --no-restart blog DATABASE_URL=[redacted]"))
	})

	It("leaves other commands untouched", func() {
		Expect(dokkuApi.RedactCommand("ps:rebuild", []string{"blog"})).To(Equal("ps:rebuild blog"))
	})
})
