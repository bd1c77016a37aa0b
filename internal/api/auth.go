package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/nerrad567/authgate/internal/auth"
)

// maxPasswordLength caps request passwords; bcrypt ignores bytes past 72.
const maxPasswordLength = 72

type signupRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (r *signupRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)

	return validation.ValidateStruct(r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Phone, validation.Required, validation.Length(6, 20)),
		validation.Field(&r.Password, validation.Required, validation.Length(0, maxPasswordLength)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (r *loginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)

	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.By(exactlyOneIdentifier(r.Phone))),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
	)
}

// exactlyOneIdentifier rejects a login naming both or neither identifier.
func exactlyOneIdentifier(phone string) validation.RuleFunc {
	return func(value interface{}) error {
		email, _ := value.(string) //nolint:errcheck // field is a string
		switch {
		case email == "" && phone == "":
			return errors.New("email or phone is required")
		case email != "" && phone != "":
			return errors.New("provide either email or phone, not both")
		}
		return nil
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *refreshRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type loginResponse struct {
	*auth.TokenPair
	User *auth.SecurityRecord `json:"user"`
}

// decodeAndValidate reads a JSON body into v and runs its validation rules.
// It writes the 400 response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	if err := v.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

// handleSignup creates a USER account.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rec, err := s.service.Signup(r.Context(), auth.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleLogin exchanges credentials for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, rec, err := s.service.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		ClientIP: clientIP(r),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{TokenPair: pair, User: rec})
}

// handleRefresh exchanges a refresh token for a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if isTokenError(err) || errors.Is(err, auth.ErrRecordNotFound) ||
			errors.Is(err, auth.ErrAccountDisabled) || errors.Is(err, auth.ErrAccountLocked) {
			writeUnauthorized(w, "invalid refresh token")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}
