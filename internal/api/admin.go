package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/nerrad567/authgate/internal/auth"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

func (r *setRoleRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Role, validation.Required),
	)
}

// handleGetUser returns one account. MANAGER and above.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListUsers returns every account.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": recs,
		"count": len(recs),
	})
}

// handleSetEnabled returns the enable or disable handler. Administrators
// cannot disable themselves.
func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "id")
		if id, ok := auth.IdentityFromContext(r.Context()); ok && !enabled && id.UserID == target {
			writeBadRequest(w, "cannot disable your own account")
			return
		}

		if err := s.service.SetEnabled(r.Context(), target, enabled); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.logAdminAction(r, "set enabled", target, "enabled", enabled)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "id")
	if err := s.service.Unlock(r.Context(), target); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logAdminAction(r, "unlock", target)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeTokens(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "id")
	if err := s.service.RevokeTokens(r.Context(), target); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logAdminAction(r, "revoke tokens", target)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeBadRequest(w, "role must be USER, MANAGER or ADMIN")
		return
	}

	target := chi.URLParam(r, "id")
	if err := s.service.SetRole(r.Context(), target, role); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logAdminAction(r, "set role", target, "role", role)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logAdminAction(r *http.Request, action, target string, args ...any) {
	actor := ""
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		actor = id.UserID
	}
	s.logger.Info("admin action",
		append([]any{
			"action", action,
			"target_user_id", target,
			"actor_user_id", actor,
			"request_id", requestIDFrom(r.Context()),
		}, args...)...,
	)
}
