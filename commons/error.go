package commons

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// InvalidArgumentError contains invalid argument error information
type InvalidArgumentError struct {
	Message string
}

// NewInvalidArgumentError creates InvalidArgumentError struct
func NewInvalidArgumentError(message string) error {
	return &InvalidArgumentError{
		Message: message,
	}
}

// NewInvalidArgumentErrorf creates InvalidArgumentError struct with a formatted message
func NewInvalidArgumentErrorf(format string, v ...interface{}) error {
	return &InvalidArgumentError{
		Message: fmt.Sprintf(format, v...),
	}
}

// Error returns error message
func (err *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument - %s", err.Message)
}

// Is tests type of error
func (err *InvalidArgumentError) Is(other error) bool {
	_, ok := other.(*InvalidArgumentError)
	return ok
}

// ToString stringifies the object
func (err *InvalidArgumentError) ToString() string {
	return "<InvalidArgumentError>"
}

// IsInvalidArgumentError evaluates if the given error is invalid argument error
func IsInvalidArgumentError(err error) bool {
	return errors.Is(err, &InvalidArgumentError{})
}

// NotFoundError contains not found error information
type NotFoundError struct {
	Path string
}

// NewNotFoundError creates NotFoundError struct
func NewNotFoundError(path string) error {
	return &NotFoundError{
		Path: path,
	}
}

// Error returns error message
func (err *NotFoundError) Error() string {
	return fmt.Sprintf("cache file '%s' not found", err.Path)
}

// Is tests type of error
func (err *NotFoundError) Is(other error) bool {
	_, ok := other.(*NotFoundError)
	return ok
}

// ToString stringifies the object
func (err *NotFoundError) ToString() string {
	return "<NotFoundError>"
}

// IsNotFoundError evaluates if the given error is not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, &NotFoundError{})
}

// SizeMismatchError contains size mismatch error information
type SizeMismatchError struct {
	Kind     string
	Declared int64
	Written  int64
}

// NewSizeMismatchError creates SizeMismatchError struct
func NewSizeMismatchError(kind string, declared int64, written int64) error {
	return &SizeMismatchError{
		Kind:     kind,
		Declared: declared,
		Written:  written,
	}
}

// Error returns error message
func (err *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s stream - declared %d bytes, written %d bytes", err.Kind, err.Declared, err.Written)
}

// Is tests type of error
func (err *SizeMismatchError) Is(other error) bool {
	_, ok := other.(*SizeMismatchError)
	return ok
}

// ToString stringifies the object
func (err *SizeMismatchError) ToString() string {
	return "<SizeMismatchError>"
}

// IsSizeMismatchError evaluates if the given error is size mismatch error
func IsSizeMismatchError(err error) bool {
	return errors.Is(err, &SizeMismatchError{})
}

// IOFaultError contains underlying filesystem failure information
type IOFaultError struct {
	Op   string
	Path string
	Err  error
}

// NewIOFaultError creates IOFaultError struct
func NewIOFaultError(op string, path string, err error) error {
	return &IOFaultError{
		Op:   op,
		Path: path,
		Err:  xerrors.Errorf("%s %s: %w", op, path, err),
	}
}

// Error returns error message
func (err *IOFaultError) Error() string {
	return fmt.Sprintf("io fault - %s", err.Err.Error())
}

// Unwrap returns the underlying error
func (err *IOFaultError) Unwrap() error {
	return err.Err
}

// Is tests type of error
func (err *IOFaultError) Is(other error) bool {
	_, ok := other.(*IOFaultError)
	return ok
}

// ToString stringifies the object
func (err *IOFaultError) ToString() string {
	return "<IOFaultError>"
}

// IsIOFaultError evaluates if the given error is io fault error
func IsIOFaultError(err error) bool {
	return errors.Is(err, &IOFaultError{})
}
