package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"fpoadmin/internal/api/wire"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// statusFor maps a service error to an HTTP status and envelope.
func statusFor(err error) (int, wire.ErrorResponse) {
	var (
		verr    *attribute.ValidationError
		rverr   domain.RuleViolationError
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &verr):
		out := wire.ErrorResponse{Message: "details do not match the " + string(verr.Category) + " schema"}
		for _, v := range verr.Violations {
			out.Violations = append(out.Violations, wire.Violation{Field: v.Field, Message: v.Reason})
		}
		return http.StatusUnprocessableEntity, out
	case errors.As(err, &rverr):
		out := wire.ErrorResponse{Message: "rejected by store rules"}
		for _, v := range rverr.Result.Violations {
			if v.Severity != domain.SeverityBlock {
				continue
			}
			out.Violations = append(out.Violations, wire.Violation{Rule: v.Rule, Message: v.Message})
		}
		return http.StatusConflict, out
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, wire.ErrorResponse{Message: err.Error()}
	case errors.Is(err, attribute.ErrUnknownCategory), errors.Is(err, domain.ErrMalformedChangeSet):
		return http.StatusBadRequest, wire.ErrorResponse{Message: err.Error()}
	case errors.As(err, &httpErr):
		msg := http.StatusText(httpErr.Code)
		if s, ok := httpErr.Message.(string); ok && s != "" {
			msg = s
		}
		return httpErr.Code, wire.ErrorResponse{Message: msg}
	default:
		return http.StatusInternalServerError, wire.ErrorResponse{Message: http.StatusText(http.StatusInternalServerError)}
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.Warn("write error response", "error", writeErr)
	}
}
