package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and Responder.writeError, so the
// API has one success shape and one error shape:
//
//	{"error": "challenge is not active", "code": "conflict"}
//	{"error": "name is required; subject is required", "code": "validation_error",
//	 "fields": {"name": "name is required", "subject": "subject is required"}}
//
// The error field is always a single human-readable line; code tells a
// program which branch of the taxonomy produced it.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/auth"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error  string            `json:"error"`            // single-line message
	Code   string            `json:"code"`             // machine-readable type
	Fields map[string]string `json:"fields,omitempty"` // per-field validation messages
	Detail string            `json:"detail,omitempty"` // underlying error, development only
}

// MessageResponse is the body of writes that return nothing else.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body; once Encode writes, any
// later header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// Responder turns service errors into HTTP responses. It is shared by every
// handler so the error mapping lives in exactly one place.
type Responder struct {
	logger *slog.Logger
	dev    bool
}

// NewResponder creates a Responder. When dev is true, 500 responses carry
// the underlying error text in the detail field.
func NewResponder(logger *slog.Logger, dev bool) *Responder {
	return &Responder{logger: logger, dev: dev}
}

// statusFor maps the error taxonomy to HTTP.
//
// ERROR MAPPING:
//
//	ErrValidation   → 400 validation_error
//	ErrUnauthorized → 401 unauthorized
//	ErrNotFound     → 404 not_found
//	ErrConflict     → 400 conflict (duplicate email, duplicate join, inactive challenge)
//	ErrUpstream     → 502 upstream_error
//	anything else   → 500 internal_error
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err to a status code and sends the standard error body.
//
// errors.As walks the wrap chain, so a service error such as
//
//	fmt.Errorf("service/session: %w", apperror.NotFound("study session", "4"))
//
// still yields the client-safe AppError message.
func (rs *Responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed",
			slog.String("requestId", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	if status == http.StatusInternalServerError {
		resp := ErrorResponse{Error: "internal server error", Code: code}
		if rs.dev {
			resp.Detail = err.Error()
		}
		writeJSON(w, status, resp)
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Fields = appErr.Fields
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="estudogame"`)
	}
	writeJSON(w, status, resp)
}

// NotFound answers unknown routes.
func (rs *Responder) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found", Code: "not_found"})
}

// MethodNotAllowed answers known routes called with the wrong method.
func (rs *Responder) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error: fmt.Sprintf("method %s not allowed", r.Method),
		Code:  "method_not_allowed",
	})
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body is too large")
		default:
			return apperror.ValidationFailed("body", "invalid JSON body")
		}
	}
	return nil
}

// parseID reads a positive integer URL parameter.
func parseID(r *http.Request, param, resource string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.ValidationFailed(param, fmt.Sprintf("invalid %s id", resource))
	}
	return id, nil
}

// accountID returns the authenticated caller. Routes behind RequireAuth always
// have one; a missing identity is reported as unauthorized rather than panicking.
func accountID(r *http.Request) (int64, error) {
	id, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		return 0, apperror.Unauthorized("authentication required")
	}
	return id, nil
}
