package restserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// statusFor maps a computation error to an HTTP status and an error kind.
func statusFor(err error) (int, string) {
	switch {
	case hydroerr.IsInput(err):
		return http.StatusBadRequest, "input"
	case hydroerr.IsLookup(err):
		return http.StatusNotFound, "lookup"
	case hydroerr.IsConvergence(err):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "timeout"
		}
		return http.StatusUnprocessableEntity, "convergence"
	case hydroerr.IsDegenerate(err):
		return http.StatusUnprocessableEntity, "degenerate"
	}
	return http.StatusInternalServerError, "internal"
}
