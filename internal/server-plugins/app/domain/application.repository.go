package app

import (
	"context"
	"time"
)

// Repository persists applications and their deployment log buffer.
// Status and logs are last-writer-wins; callers avoid overlapping jobs per app.
type Repository interface {
	Save(ctx context.Context, app *Application) error
	Get(ctx context.Context, id string) (*Application, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	AddLog(ctx context.Context, id string, entry LogEntry) error
	ClearLogs(ctx context.Context, id string) error
	// ListLogs returns the newest entries in append order; limit <= 0 returns all.
	ListLogs(ctx context.Context, id string, limit int) ([]LogEntry, error)
	Delete(ctx context.Context, id string) error
}

// OutputSink receives streamed command output.
type OutputSink interface {
	OnStdout(chunk []byte)
	OnStderr(chunk []byte)
}

// Manager drives app-level Dokku commands on the remote host.
type Manager interface {
	// EnsureExists creates the app on the host when it is missing.
	EnsureExists(ctx context.Context, appName string, out OutputSink) error
	CreateFromImage(ctx context.Context, appName, image string, out OutputSink) error
	Destroy(ctx context.Context, appName string) error
	EnableSSL(ctx context.Context, appName string, out OutputSink) error
	Rebuild(ctx context.Context, appName string, out OutputSink) error
}

// NewLogEntry stamps an entry with the current time.
func NewLogEntry(message string, logType LogType) LogEntry {
	return LogEntry{Message: message, Type: logType, CreatedAt: time.Now().UTC()}
}
