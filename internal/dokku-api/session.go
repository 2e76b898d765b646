package dokkuApi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/alex-galey/dokku-deployer/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// OutputHandler receives command output as it is produced. Calls are
// serialized, stdout and stderr chunks interleave in arrival order.
type OutputHandler interface {
	OnStdout(chunk []byte)
	OnStderr(chunk []byte)
}

// OutputFuncs adapts a pair of functions to an OutputHandler. Nil funcs drop output.
type OutputFuncs struct {
	Stdout func([]byte)
	Stderr func([]byte)
}

func (f OutputFuncs) OnStdout(chunk []byte) {
	if f.Stdout != nil {
		f.Stdout(chunk)
	}
}

func (f OutputFuncs) OnStderr(chunk []byte) {
	if f.Stderr != nil {
		f.Stderr(chunk)
	}
}

// Discard drops all output.
var Discard OutputHandler = OutputFuncs{}

type ExecResult struct {
	Command  string
	ExitCode int
	Duration time.Duration
}

// Session runs Dokku commands against the managed host.
type Session interface {
	// Run streams output to out and blocks until the command exits.
	Run(ctx context.Context, command string, args []string, out OutputHandler) (*ExecResult, error)
	// Output runs a short query and returns its stdout.
	Output(ctx context.Context, command string, args []string) ([]byte, error)
	ValidateCommand(command string, args []string) error
}

// CommandFactory builds the process for a fully rendered Dokku command line.
type CommandFactory func(ctx context.Context, dokkuCommand string) (*exec.Cmd, error)

type SessionConfig struct {
	// CommandTimeout bounds Output calls.
	CommandTimeout time.Duration
	// StreamTimeout bounds Run calls, which include builds.
	StreamTimeout time.Duration
	Blacklist     []string
	Factory       CommandFactory
	// TransientExitCode is the exit status that means the transport failed
	// (255 for ssh). Zero disables the check.
	TransientExitCode int
	StderrTailLines   int
}

type session struct {
	config  SessionConfig
	logger  *slog.Logger
	metrics metrics.Collector
}

const chunkSize = 32 * 1024

func NewSession(config SessionConfig, logger *slog.Logger, collector metrics.Collector) Session {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 30 * time.Second
	}
	if config.StreamTimeout <= 0 {
		config.StreamTimeout = 30 * time.Minute
	}
	if config.StderrTailLines <= 0 {
		config.StderrTailLines = 20
	}
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &session{config: config, logger: logger, metrics: collector}
}

// ValidateCommand performs basic validation on Dokku commands and checks the blacklist.
func (s *session) ValidateCommand(commandName string, args []string) error {
	if commandName == "" {
		return fmt.Errorf("command name cannot be empty")
	}

	// Substring matching for blacklist
	for _, pattern := range s.config.Blacklist {
		if pattern != "" && strings.Contains(commandName, pattern) {
			return fmt.Errorf("command is blacklisted (matches pattern '%s'): %s", pattern, commandName)
		}
	}

	if strings.ContainsAny(commandName, dangerousChars+" ") {
		return fmt.Errorf("command name contains dangerous characters: %s", commandName)
	}

	for i, arg := range args {
		if strings.ContainsAny(arg, dangerousChars) {
			return fmt.Errorf("argument %d contains dangerous characters", i)
		}
	}

	return nil
}

const dangerousChars = ";&|`$\n\r<>"

func (s *session) Run(ctx context.Context, command string, args []string, out OutputHandler) (*ExecResult, error) {
	return s.run(ctx, s.config.StreamTimeout, command, args, out)
}

func (s *session) Output(ctx context.Context, command string, args []string) ([]byte, error) {
	var stdout bytes.Buffer
	_, err := s.run(ctx, s.config.CommandTimeout, command, args, OutputFuncs{
		Stdout: func(chunk []byte) { stdout.Write(chunk) },
	})
	if err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (s *session) run(ctx context.Context, timeout time.Duration, command string, args []string, out OutputHandler) (*ExecResult, error) {
	if err := s.ValidateCommand(command, args); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	if out == nil {
		out = Discard
	}

	logged := RedactCommand(command, args)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := s.config.Factory(runCtx, joinCommand(command, args))
	if err != nil {
		return nil, &TransientRemoteError{Command: command, Err: err}
	}
	cmd.Stdin = nil
	// Own process group so cancellation also reaches children of the transport.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}

	s.logger.Debug("Executing Dokku command",
		"command", logged,
		"timeout", timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.metrics.RecordDokkuCommand(ctx, command, time.Since(start), false)
		return nil, &TransientRemoteError{Command: command, Err: err}
	}

	tail := newTailWriter(s.config.StderrTailLines)
	var mu sync.Mutex
	var g errgroup.Group
	g.Go(func() error {
		return pump(stdout, func(chunk []byte) {
			mu.Lock()
			defer mu.Unlock()
			out.OnStdout(chunk)
		})
	})
	g.Go(func() error {
		return pump(stderr, func(chunk []byte) {
			tail.Write(chunk)
			mu.Lock()
			defer mu.Unlock()
			out.OnStderr(chunk)
		})
	})

	readErr := g.Wait()
	waitErr := cmd.Wait()
	result := &ExecResult{Command: command, Duration: time.Since(start)}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	s.metrics.RecordDokkuCommand(ctx, command, result.Duration, waitErr == nil && readErr == nil)

	if err := s.classify(ctx, runCtx, timeout, command, result, tail, waitErr); err != nil {
		s.logger.Error("Dokku command failed",
			"command", logged,
			"exit_code", result.ExitCode,
			"duration", result.Duration,
			"error", err)
		return result, err
	}
	if readErr != nil {
		return result, fmt.Errorf("failed to read output of %s: %w", command, readErr)
	}

	s.logger.Debug("Dokku command executed successfully",
		"command", logged,
		"duration", result.Duration)

	return result, nil
}

func (s *session) classify(ctx, runCtx context.Context, timeout time.Duration, command string, result *ExecResult, tail *tailWriter, waitErr error) error {
	if waitErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s cancelled: %w", command, ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s: %w", command, timeout, context.DeadlineExceeded)
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return &TransientRemoteError{Command: command, Err: waitErr}
	}

	if s.config.TransientExitCode != 0 && result.ExitCode == s.config.TransientExitCode {
		return &TransientRemoteError{Command: command, Err: waitErr}
	}

	failure := &CommandFailure{Command: command, ExitCode: result.ExitCode, Stderr: tail.String()}
	if isNotFoundOutput(failure.Stderr) {
		return &NotFoundError{Command: command, Err: failure}
	}
	return failure
}

// pump forwards every chunk read from r to fn until EOF.
func pump(r io.Reader, fn func([]byte)) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			fn(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, exec.ErrWaitDelay) {
				return nil
			}
			return err
		}
	}
}

// tailWriter keeps the last lines written to it.
type tailWriter struct {
	mu      sync.Mutex
	lines   *logger.RingBuffer
	partial []byte
}

func newTailWriter(lines int) *tailWriter {
	return &tailWriter{lines: logger.NewRingBuffer(lines)}
}

func (t *tailWriter) Write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = append(t.partial, p...)
	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			return
		}
		if line := strings.TrimRight(string(t.partial[:idx]), "\r"); line != "" {
			t.lines.Append(line)
		}
		t.partial = t.partial[idx+1:]
	}
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines.GetLast(0)
	if rest := strings.TrimSpace(string(t.partial)); rest != "" {
		lines = append(lines, rest)
	}
	return strings.Join(lines, "\n")
}
