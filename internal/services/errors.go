package services

import "errors"

// Error taxonomy surfaced to handlers. Ownership failures are reported as
// ErrNotFound, identical to absence, so nothing leaks about other users' data.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidTimeRange = errors.New("end time must not be before start time")
)
