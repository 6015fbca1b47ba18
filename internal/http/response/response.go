// Package response writes JSON bodies for the plain chi handlers that sit
// outside huma: middleware rejections and the event stream preamble.
// Error bodies match the huma error shape: {code, message, details}.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with status. The header is already sent when encoding
// fails, so the failure is only logged.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(data)
	if err != nil && logger != nil {
		logger.Error("Encode response body", "status", status, "error", err)
	}
}

// Error writes err as an error body. Errors that are not domain errors are
// logged and reported as INTERNAL without their text.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	var de *domainerrors.Error
	if !errors.As(err, &de) {
		if logger != nil {
			logger.Error("Unhandled error", "error", err)
		}
		de = domainerrors.Internal("internal server error")
	}
	JSON(w, de.HTTPStatus(), ErrorBody{Code: string(de.Code), Message: de.Message, Details: de.Details}, logger)
}

// Unauthorized rejects a request whose identity header is malformed.
func Unauthorized(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, domainerrors.Unauthorized(message), logger)
}

// TooManyRequests rejects a throttled caller.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, domainerrors.RateLimited(message), logger)
}
