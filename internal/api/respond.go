package api

import (
	"encoding/json"
	"net/http"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/logging"
)

// Error codes carried in ErrorResponse.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeInvalidState  = "INVALID_STATE"
	CodeTimeout       = "TIMEOUT"
	CodeInternal      = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// handleError maps a registry or team error to a response. Only errors
// marked user-facing reach the client verbatim.
func handleError(w http.ResponseWriter, logger *logging.Logger, err error) {
	if !errors.IsUserFacing(err) {
		logger.LogError("request failed", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}
	status, code := statusOf(err)
	if errors.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	respondError(w, status, code, err.Error())
}

func statusOf(err error) (int, string) {
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case errors.KindAlreadyExists:
		return http.StatusConflict, CodeAlreadyExists
	case errors.KindInvalidState:
		return http.StatusBadRequest, CodeInvalidState
	case errors.KindTimeout:
		return http.StatusServiceUnavailable, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
