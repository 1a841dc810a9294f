package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/zhinst/zhinst-go/pkg/connection"
	"github.com/zhinst/zhinst-go/pkg/inspect"
	"github.com/zhinst/zhinst-go/pkg/model"
	"github.com/zhinst/zhinst-go/pkg/session"
)

// Error codes carried in ErrorResponse.Code.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUnsupportedDevice  = "UNSUPPORTED_DEVICE"
	ErrCodeNotConnected       = "NOT_CONNECTED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNodeNotFound),
		errors.Is(err, connection.ErrNoSuchNode),
		errors.Is(err, connection.ErrUnknownDevice),
		errors.Is(err, inspect.ErrNotParameter):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, model.ErrNotReadable),
		errors.Is(err, model.ErrNotWritable),
		errors.Is(err, connection.ErrAccessDenied):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, inspect.ErrEmptyPath),
		errors.Is(err, inspect.ErrInvalidPath),
		errors.Is(err, inspect.ErrInvalidNumber),
		errors.Is(err, model.ErrValueType),
		errors.Is(err, connection.ErrInvalidValue):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, session.ErrUnsupportedDeviceType):
		return http.StatusUnprocessableEntity, ErrCodeUnsupportedDevice
	case errors.Is(err, connection.ErrDeviceNotConnected),
		errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict, ErrCodeNotConnected
	case errors.Is(err, session.ErrClosed),
		errors.Is(err, connection.ErrConnectionClosed),
		errors.Is(err, connection.ErrNotConnected):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC(),
		Retryable: statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable,
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "requestID", requestID(r.Context()), "error", err)
	}
	writeError(w, r, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
