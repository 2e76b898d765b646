package jobs

import (
	"errors"
	"time"
)

// Type names a job variant.
type Type string

const (
	TypeDeployApp    Type = "deploy_app"
	TypeDeployImage  Type = "deploy_image"
	TypeRebuildApp   Type = "rebuild_app"
	TypeLinkDatabase Type = "link_database"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotCancellable = errors.New("job has already started")
	ErrUnknownJobType    = errors.New("unknown job type")
	ErrTooManyAttempts   = errors.New("job exceeded its maximum attempts")
	ErrLeaseLost         = errors.New("job lease expired")
)

// Payload is the input shared by all deployment variants; each reads the
// fields it needs.
type Payload struct {
	AppID      string `json:"app_id,omitempty"`
	AppName    string `json:"app_name,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	Token      string `json:"token,omitempty"`
	Image      string `json:"image,omitempty"`
	DatabaseID string `json:"database_id,omitempty"`
	// DeleteOnFailed defaults to true when unset.
	DeleteOnFailed *bool `json:"delete_on_failed,omitempty"`
}

func (p Payload) ShouldDeleteOnFailed() bool {
	return p.DeleteOnFailed == nil || *p.DeleteOnFailed
}

// Redacted returns a copy safe to show to operators.
func (p Payload) Redacted() Payload {
	if p.Token != "" {
		p.Token = "[redacted]"
	}
	return p
}

type Job struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Payload    Payload   `json:"payload"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	// RunAt delays a retried job until the given time.
	RunAt time.Time `json:"run_at,omitzero"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.Payload.DeleteOnFailed != nil {
		v := *j.Payload.DeleteOnFailed
		c.Payload.DeleteOnFailed = &v
	}
	return &c
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
