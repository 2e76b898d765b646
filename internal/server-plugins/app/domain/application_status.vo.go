package app

import "fmt"

// Status is the deployment lifecycle state of an application.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusBuilding Status = "building"
	StatusRunning  Status = "running"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusBuilding, StatusRunning:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidStatus, value)
	}
	return s, nil
}
