package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/qrapi/internal/domain"
)

// ErrorBody is the error object of a JSON error response.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSONError is the response structure for API errors. Usage and Limit are
// present only for quota errors.
type JSONError struct {
	Error ErrorBody `json:"error"`
	Usage *int      `json:"usage,omitempty"`
	Limit *int      `json:"limit,omitempty"`
}

// ErrorResponse maps err to an HTTP status and writes a JSON error body.
// Internal details never reach the client; they are logged instead.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, domain.ErrorOp(err), status)

	body := JSONError{Error: ErrorBody{Code: code, Message: domain.ErrorMessage(err)}}

	if qe, ok := domain.IsQuotaExceeded(err); ok {
		body.Usage = &qe.Usage
		body.Limit = &qe.Limit
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Error.Fields = ve.Fields
	}

	writeJSON(w, status, body)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.EQUOTA, domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.ECONFIG, domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Unauthorized("", "Missing API key"))
}

// logError logs 5xx responses as errors and 4xx as info.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	if status >= 500 {
		logger.Error("server error", attrs...)
	} else {
		logger.Info("client error", attrs...)
	}
}
