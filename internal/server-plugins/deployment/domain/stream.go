package domain

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alex-galey/dokku-deployer/internal/events"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
)

// StreamSink forwards command output to a live topic and, when an application
// repository is set, to that application's log buffer.
type StreamSink struct {
	ctx         context.Context
	topic       events.Topic
	referenceID string
	jobID       string
	publisher   events.Publisher
	apps        app.Repository
	appID       string
	logger      *slog.Logger
}

var _ app.OutputSink = (*StreamSink)(nil)

type StreamConfig struct {
	Topic       events.Topic
	ReferenceID string
	JobID       string
	Publisher   events.Publisher
	Logger      *slog.Logger
	// Apps and AppID enable the persistent log buffer.
	Apps  app.Repository
	AppID string
}

func NewStreamSink(ctx context.Context, cfg StreamConfig) *StreamSink {
	return &StreamSink{
		ctx:         ctx,
		topic:       cfg.Topic,
		referenceID: cfg.ReferenceID,
		jobID:       cfg.JobID,
		publisher:   cfg.Publisher,
		apps:        cfg.Apps,
		appID:       cfg.AppID,
		logger:      cfg.Logger,
	}
}

func (s *StreamSink) OnStdout(chunk []byte) {
	s.emit(string(chunk), events.TypeStdout)
}

func (s *StreamSink) OnStderr(chunk []byte) {
	s.emit(string(chunk), events.TypeStderr)
}

// Info emits an informational line on stdout.
func (s *StreamSink) Info(message string) {
	s.emit(message, events.TypeStdout)
}

// Succeed emits the terminal success entry.
func (s *StreamSink) Succeed(message string) {
	s.emit(message, events.TypeEndSuccess)
}

// Fail emits the terminal failure entry.
func (s *StreamSink) Fail(message string) {
	s.emit(message, events.TypeEndFailure)
}

func (s *StreamSink) emit(message, logType string) {
	message = strings.TrimRight(message, "\r\n")
	if message == "" {
		return
	}

	s.publisher.Publish(s.topic, events.LogPayload{
		ReferenceID: s.referenceID,
		JobID:       s.jobID,
		Message:     message,
		Type:        logType,
	})

	if s.apps == nil {
		return
	}
	if err := s.apps.AddLog(s.ctx, s.appID, app.NewLogEntry(message, app.LogType(logType))); err != nil {
		s.logger.Warn("Failed to append to the log buffer",
			"app_id", s.appID,
			"type", logType,
			"error", err)
	}
}
