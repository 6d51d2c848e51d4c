// Package errors defines the sentinel error taxonomy and CLI exit-code
// mapping used across the index (§7).
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrShardFormatInvalid   = errors.New("shard format invalid")
	ErrShardUnavailable     = errors.New("shard unavailable")
	ErrKeyDirectoryOverflow = errors.New("key directory bucket out of range")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("operation timed out")
)

// AppError wraps a sentinel with a human-readable message and the process
// exit code a CLI caller should surface for it.
type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, ExitCode: exitCode}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), ExitCode: exitCode}
}

// ExitCode maps an error to the process exit code the CLI console should
// use, defaulting to 1 for anything not explicitly classified.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return 2
	case errors.Is(err, ErrShardFormatInvalid), errors.Is(err, ErrKeyDirectoryOverflow):
		return 3
	case errors.Is(err, ErrShardUnavailable), errors.Is(err, ErrTimeout):
		return 4
	default:
		return 1
	}
}
