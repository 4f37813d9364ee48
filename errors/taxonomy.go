package errors

import (
	"context"
	stderrors "errors"
)

// Pipeline failure classes. Producers mark their errors with one of these;
// the job orchestrator classifies by errors.Is and never by message text.
var (
	// ErrInvalidInput marks a roster or shift configuration that cannot be modelled.
	ErrInvalidInput = New("invalid input")

	// ErrSourceUnavailable marks a transient failure talking to the data source.
	ErrSourceUnavailable = New("source unavailable")

	// ErrSourceFormat marks data source content with an unexpected shape.
	ErrSourceFormat = New("source format")
)

// NewInvalidInput returns an error marked with ErrInvalidInput.
func NewInvalidInput(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidInput)
}

// NewSourceFormat returns an error marked with ErrSourceFormat.
func NewSourceFormat(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrSourceFormat)
}

// NewSourceUnavailable returns an error marked with ErrSourceUnavailable.
func NewSourceUnavailable(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrSourceUnavailable)
}

// SourceUnavailable marks cause as a transient source failure, keeping its message.
func SourceUnavailable(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return Mark(Wrap(cause, msg), ErrSourceUnavailable)
}

// SourceFormat marks cause as a malformed-source failure, keeping its message.
func SourceFormat(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return Mark(Wrap(cause, msg), ErrSourceFormat)
}

// IsRetryable reports whether err is worth another attempt.
// Only transient source failures are; solver and validation errors are deterministic.
func IsRetryable(err error) bool {
	return err != nil && Is(err, ErrSourceUnavailable)
}

// IsTimeout reports whether err is a deadline, either ours or the context's.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded)
}
