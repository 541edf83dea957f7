package httperr

import (
	"errors"
	"net/http"

	chatservice "github.com/jthale/attune/backend/internal/service/chat"
	"github.com/jthale/attune/backend/internal/service/session"
	"github.com/jthale/attune/backend/internal/service/suggest"
)

// Status maps service errors onto HTTP status codes.
func Status(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionFull):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, chatservice.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrUnknownIdentity):
		return http.StatusForbidden
	case errors.Is(err, suggest.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
