package web

// errors.go renders every API error the same way:
//
//  1. The technical error is logged with the request id for correlation
//  2. core.Classify picks the HTTP status from the failure kind
//  3. core.MapError supplies the user message, action and code
//  4. Field-level detail (field, value, suggestions) is passed through

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/JonMunkholm/reviewflow/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Kind) and human-readable (Message,
// Action) fields.
type ErrorResponse struct {
	Error       string    `json:"error"`
	Message     string    `json:"message"`
	Action      string    `json:"action,omitempty"`
	Code        string    `json:"code"`
	Kind        core.Kind `json:"kind,omitempty"`
	Field       string    `json:"field,omitempty"`
	Value       string    `json:"value,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// statusForKind maps a failure kind to its HTTP status.
func statusForKind(k core.Kind) int {
	switch k {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindStateViolation:
		return http.StatusConflict
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it as an ErrorResponse.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse(err)

	switch {
	case errors.Is(err, core.ErrTooManyRuns):
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "30")
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	default:
		status = statusForKind(resp.Kind)
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", resp.Code,
	)

	writeJSON(w, status, resp)
}

func errorResponse(err error) ErrorResponse {
	msg := core.MapError(err)
	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if errors.Is(err, errBadRequest) {
		resp.Error = err.Error()
		return resp
	}

	pe := core.Classify(err)
	resp.Kind = pe.Kind
	resp.Field = pe.Field
	resp.Value = pe.Value
	resp.Suggestions = pe.Suggestions
	// Caller mistakes are safe to echo; infra details stay in the log.
	if pe.Kind != core.KindInfra {
		resp.Error = pe.Error()
	}
	return resp
}
