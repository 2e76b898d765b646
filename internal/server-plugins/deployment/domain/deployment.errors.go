package domain

import "errors"

var (
	ErrInvalidPayload    = errors.New("invalid job payload")
	ErrUnexpectedResult  = errors.New("unexpected job result")
	ErrApplicationAbsent = errors.New("application record no longer exists")
)
