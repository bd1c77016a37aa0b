package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/authgate/internal/auth"
)

// Error is the JSON body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Message: message,
		Error:   http.StatusText(status),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, message)
}

// writeTooManyRequests sets Retry-After in whole seconds.
func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

func writeServiceUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}

// writeServiceError maps an auth.Service error onto a response. Credential
// failures never reveal whether the account exists; a lock is the one
// distinction shown.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.IsClientError(err):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeConflict(w, "email already registered")
	case errors.Is(err, auth.ErrPhoneTaken):
		writeConflict(w, "phone already registered")
	case errors.Is(err, auth.ErrRateLimited):
		writeTooManyRequests(w, rateLimitWindow)
	case errors.Is(err, auth.ErrAccountLocked):
		writeUnauthorized(w, "account temporarily locked")
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountDisabled):
		writeUnauthorized(w, "invalid credentials")
	case isTokenError(err):
		writeUnauthorized(w, "invalid token")
	case errors.Is(err, auth.ErrRecordNotFound):
		writeNotFound(w, "user not found")
	case errors.Is(err, auth.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("security store unavailable",
			"error", err,
			"request_id", requestIDFrom(r.Context()),
		)
		writeServiceUnavailable(w, "authentication service unavailable")
	default:
		s.logger.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
		)
		writeInternalError(w, "internal server error")
	}
}

func isTokenError(err error) bool {
	return errors.Is(err, auth.ErrTokenMalformed) ||
		errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenSignatureInvalid) ||
		errors.Is(err, auth.ErrTokenKind) ||
		errors.Is(err, auth.ErrTokenVersionRevoked)
}
