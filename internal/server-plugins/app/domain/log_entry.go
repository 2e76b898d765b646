package app

import "time"

// LogType classifies a line in an application's deployment log buffer.
type LogType string

const (
	LogStdout     LogType = "stdout"
	LogStderr     LogType = "stderr"
	LogEndSuccess LogType = "end:success"
	LogEndFailure LogType = "end:failure"
)

// IsTerminal reports whether the entry closes a job run.
func (t LogType) IsTerminal() bool {
	return t == LogEndSuccess || t == LogEndFailure
}

type LogEntry struct {
	Message   string    `json:"message"`
	Type      LogType   `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
