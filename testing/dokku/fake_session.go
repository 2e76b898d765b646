package dokkutesting

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
)

// Call is one command received by a FakeSession.
type Call struct {
	Command string
	Args    []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// Response scripts what a command prints and returns. Each line is delivered
// as its own chunk with a trailing newline.
type Response struct {
	Stdout []string
	Stderr []string
	Err    error
}

// FakeSession stands in for the remote Dokku host. Unscripted commands succeed
// silently.
type FakeSession struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]func(args []string) Response
}

var _ dokkuApi.Session = (*FakeSession)(nil)

func NewFakeSession() *FakeSession {
	return &FakeSession{responses: make(map[string]func(args []string) Response)}
}

// On scripts a fixed response for every call to command.
func (f *FakeSession) On(command string, resp Response) *FakeSession {
	return f.OnCall(command, func([]string) Response { return resp })
}

// OnCall scripts a response computed from the arguments.
func (f *FakeSession) OnCall(command string, fn func(args []string) Response) *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = fn
	return f
}

func (f *FakeSession) record(command string, args []string) Response {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Command: command, Args: slices.Clone(args)})
	fn := f.responses[command]
	f.mu.Unlock()

	if fn == nil {
		return Response{}
	}
	return fn(args)
}

func (f *FakeSession) Run(ctx context.Context, command string, args []string, out dokkuApi.OutputHandler) (*dokkuApi.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	resp := f.record(command, args)
	if out == nil {
		out = dokkuApi.Discard
	}
	for _, line := range resp.Stdout {
		out.OnStdout([]byte(line + "\n"))
	}
	for _, line := range resp.Stderr {
		out.OnStderr([]byte(line + "\n"))
	}

	result := &dokkuApi.ExecResult{Command: command, Duration: time.Since(start)}
	if failure, ok := dokkuApi.AsCommandFailure(resp.Err); ok {
		result.ExitCode = failure.ExitCode
	}
	return result, resp.Err
}

func (f *FakeSession) Output(ctx context.Context, command string, args []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := f.record(command, args)
	if resp.Err != nil {
		return nil, resp.Err
	}
	if len(resp.Stdout) == 0 {
		return nil, nil
	}
	return []byte(strings.Join(resp.Stdout, "\n") + "\n"), nil
}

func (f *FakeSession) ValidateCommand(command string, args []string) error {
	return nil
}

// Calls returns every call received so far, in order.
func (f *FakeSession) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Commands returns the rendered command lines received so far.
func (f *FakeSession) Commands() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// CallsTo returns the calls made to one command.
func (f *FakeSession) CallsTo(command string) []Call {
	var matched []Call
	for _, c := range f.Calls() {
		if c.Command == command {
			matched = append(matched, c)
		}
	}
	return matched
}

// Failure builds the error a non-zero exit produces.
func Failure(command string, exitCode int, stderr string) error {
	return &dokkuApi.CommandFailure{Command: command, ExitCode: exitCode, Stderr: stderr}
}

// Unreachable builds the error a dropped SSH connection produces.
func Unreachable(command string) error {
	return &dokkuApi.TransientRemoteError{Command: command, Err: errors.New("ssh: connect to host: connection refused")}
}

// NotFound builds the error the session returns when Dokku reports a missing resource.
func NotFound(command, stderr string) error {
	return &dokkuApi.NotFoundError{Command: command, Err: Failure(command, 1, stderr)}
}
