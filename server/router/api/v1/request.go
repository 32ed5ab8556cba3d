package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// requestMiddleware tags each request with an id, logs it and counts it.
func (s *APIV1Service) requestMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = shortuuid.New()
		}
		c.Response().Header().Set(requestIDHeader, requestID)

		reqCtx := observability.NewRequestContextWithID(slog.Default(), requestID, c.Request().Method+" "+c.Path())
		c.SetRequest(c.Request().WithContext(observability.WithRequestContext(c.Request().Context(), reqCtx)))

		err := next(c)
		if err != nil {
			c.Error(err)
		}
		status := c.Response().Status
		s.Metrics.RecordHTTPRequest(c.Request().Method, c.Path(), strconv.Itoa(status))
		reqCtx.Debug("request served",
			slog.Int("status", status),
			slog.Int64(observability.LogFieldDuration, reqCtx.Duration().Milliseconds()))
		return nil
	}
}

// httpStatus maps an error to the status code the API answers with.
func httpStatus(err error) int {
	switch apperrors.GetCodeFromError(err, "") {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidArgument, apperrors.ErrCodeInvalidTimestamp:
		return http.StatusBadRequest
	case apperrors.ErrCodeEncoding:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse writes err as a {"detail": ...} body. Internal details never reach the client.
func errorResponse(c echo.Context, err error) error {
	status := httpStatus(err)
	reqCtx := observability.FromContextOrNew(c.Request().Context(), c.Path())
	detail := "internal error"
	var appErr *apperrors.AppError
	switch {
	case status == http.StatusServiceUnavailable:
		detail = "embedding backend unavailable"
	case status < http.StatusInternalServerError && errors.As(err, &appErr):
		detail = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		reqCtx.Error("request failed", err, slog.String(observability.LogFieldErrorCode, string(apperrors.GetCodeFromError(err, "INTERNAL"))))
	}
	return c.JSON(status, map[string]string{"detail": detail})
}
