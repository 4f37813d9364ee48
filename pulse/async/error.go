package async

import (
	"github.com/teranos/rota/errors"
)

// Reason is the classified cause stored on a failed or cancelled job.
type Reason string

const (
	ReasonInvalidInput      Reason = "invalid_input"
	ReasonSourceUnavailable Reason = "source_unavailable"
	ReasonSourceFormat      Reason = "source_format"
	ReasonConflict          Reason = "conflict"
	ReasonTimeout           Reason = "timeout"
	ReasonInternal          Reason = "internal"
)

// ErrJobFinished is returned by UpdateJob when the stored job is already
// completed, failed or cancelled. A terminal job is never rewritten.
var ErrJobFinished = errors.New("job already finished")

// ClassifyError maps a pipeline error onto a Reason by its marks, never by
// message text. Timeouts win over the source classes so a fetch that ran
// out of time is reported as such.
func ClassifyError(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errors.ErrConflict):
		return ReasonConflict
	case errors.IsTimeout(err):
		return ReasonTimeout
	case errors.Is(err, errors.ErrInvalidInput):
		return ReasonInvalidInput
	case errors.Is(err, errors.ErrSourceFormat):
		return ReasonSourceFormat
	case errors.Is(err, errors.ErrSourceUnavailable):
		return ReasonSourceUnavailable
	default:
		return ReasonInternal
	}
}

// Retryable reports whether a job failing with r may succeed on a later run
// without anyone changing the input.
func (r Reason) Retryable() bool {
	return r == ReasonSourceUnavailable || r == ReasonConflict || r == ReasonTimeout
}
