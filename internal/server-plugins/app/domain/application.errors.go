package app

import "errors"

var (
	ErrApplicationNotFound    = errors.New("application not found")
	ErrInvalidApplicationName = errors.New("invalid application name")
	ErrInvalidStatus          = errors.New("invalid application status")
	ErrMissingSource          = errors.New("application has no git source")
)
