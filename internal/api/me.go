package api

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/nerrad567/authgate/internal/auth"
)

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r *changePasswordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(0, maxPasswordLength)),
	)
}

// requireIdentity returns the identity the gate attached. The route policy guarantees
// one exists on every handler registered here; a missing one is a wiring bug.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
	}
	return id, ok
}

// handleMe returns the caller's own record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	rec, err := s.service.Profile(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleLogoutEverywhere revokes every token the caller holds, including
// the one used for this request.
func (s *Server) handleLogoutEverywhere(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := s.service.LogoutEverywhere(r.Context(), id.UserID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword replaces the caller's password and revokes their tokens.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := s.service.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
