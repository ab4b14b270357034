package service

import (
	"errors"

	"golang.org/x/xerrors"
)

var (
	cleanupInProgressError error = xerrors.New("cleanup is already in progress")
	serviceTerminatedError error = xerrors.New("service is terminated")
)

// NewCleanupInProgressError creates an error for cleanup in progress
func NewCleanupInProgressError() error {
	return cleanupInProgressError
}

// IsCleanupInProgressError evaluates if the given error is cleanup in progress error
func IsCleanupInProgressError(err error) bool {
	return errors.Is(err, cleanupInProgressError)
}

// NewServiceTerminatedError creates an error for terminated service
func NewServiceTerminatedError() error {
	return serviceTerminatedError
}

// IsServiceTerminatedError evaluates if the given error is service terminated error
func IsServiceTerminatedError(err error) bool {
	return errors.Is(err, serviceTerminatedError)
}
