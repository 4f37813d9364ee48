package source

import (
	"context"
	stderrors "errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/teranos/rota/errors"
)

// classifyContext turns a context error into a timeout or a cancellation.
func classifyContext(err error, loc Locator) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(errors.Wrapf(err, "%s", loc), errors.ErrTimeout)
	}
	return errors.Wrapf(err, "%s", loc)
}

// classifyGoogle maps Sheets API failures onto the source taxonomy.
// Quota, auth and server-side errors are transient; a bad request or a
// missing spreadsheet will fail the same way on every retry.
func classifyGoogle(err error, loc Locator, op string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return classifyContext(err, loc)
	}

	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests,
			gerr.Code == http.StatusUnauthorized,
			gerr.Code == http.StatusForbidden,
			gerr.Code == http.StatusRequestTimeout,
			gerr.Code >= 500:
			return errors.SourceUnavailable(err, op+" "+loc.String())
		default:
			return errors.SourceFormat(err, op+" "+loc.String())
		}
	}

	// Transport-level failures (DNS, TLS, connection resets) are transient.
	return errors.SourceUnavailable(err, op+" "+loc.String())
}
