package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nerrad567/authgate/internal/infrastructure/logging"
)

// DefaultMinPasswordLength is the shortest accepted password.
const DefaultMinPasswordLength = 8

// SignupInput is a new account request.
type SignupInput struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

// LoginInput carries exactly one of Email or Phone.
type LoginInput struct {
	Email    string
	Phone    string
	Password string
	ClientIP string
}

// Invalidator drops a cached record. *CachedRecordReader satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, id string)
}

// ServiceDeps wires a Service.
type ServiceDeps struct {
	Store      RecordStore
	Hasher     *PasswordHasher
	Guard      *Guard
	Tokens     *TokenEngine
	Normalizer *IdentifierNormalizer

	// LoginLimiter counts login attempts per normalised identifier and
	// password-change attempts per user. Nil disables it.
	LoginLimiter Limiter

	// Cache is invalidated after every mutation. Nil when caching is off.
	Cache Invalidator

	Events            EventSink
	Logger            *slog.Logger
	MinPasswordLength int
	Now               func() time.Time
}

// Service implements the account lifecycle on top of the Guard and TokenEngine.
type Service struct {
	store       RecordStore
	hasher      *PasswordHasher
	guard       *Guard
	tokens      *TokenEngine
	normalizer  *IdentifierNormalizer
	limiter     Limiter
	cache       Invalidator
	events      EventSink
	logger      *slog.Logger
	minPassword int
	now         func() time.Time
}

// NewService creates a Service. Optional dependencies get no-op defaults.
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		store:       deps.Store,
		hasher:      deps.Hasher,
		guard:       deps.Guard,
		tokens:      deps.Tokens,
		normalizer:  deps.Normalizer,
		limiter:     deps.LoginLimiter,
		cache:       deps.Cache,
		events:      deps.Events,
		logger:      deps.Logger,
		minPassword: deps.MinPasswordLength,
		now:         deps.Now,
	}
	if s.limiter == nil {
		s.limiter = NoLimit{}
	}
	if s.events == nil {
		s.events = nopSink{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.minPassword <= 0 {
		s.minPassword = DefaultMinPasswordLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Signup creates a USER account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SecurityRecord, error) {
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, ErrFullNameRequired
	}
	email, err := s.normalizer.Email(in.Email)
	if err != nil {
		return nil, err
	}
	phone, err := s.normalizer.Phone(in.Phone)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	rec := &SecurityRecord{
		Email:        email.Value,
		Phone:        phone.Value,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         RoleUser,
		Enabled:      true,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, storeFailure(err)
	}

	s.logger.Info("account created", "user_id", rec.ID, "identifier", logging.MaskIdentifier(rec.Email))
	s.emit(ctx, Event{Type: EventSignup, UserID: rec.ID, Identifier: logging.MaskIdentifier(rec.Email)})
	return rec, nil
}

// Login authenticates and issues a token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenPair, *SecurityRecord, error) {
	ident, err := s.normalizer.Login(in.Email, in.Phone)
	if err != nil {
		return nil, nil, err
	}
	masked := logging.MaskIdentifier(ident.Value)

	allowed, err := s.limiter.Allow(ctx, "login:"+string(ident.Kind)+":"+ident.Value)
	if err != nil {
		// Limiter outage must not lock everyone out.
		s.logger.Warn("login rate limiter unavailable", "error", err)
		allowed = true
	}
	if !allowed {
		s.emit(ctx, Event{Type: EventRateLimited, Identifier: masked, Reason: "login attempts"})
		return nil, nil, ErrRateLimited
	}

	rec, err := s.guard.Authenticate(ctx, ident, in.Password)
	if err != nil {
		s.logger.Info("login failed", "identifier", masked, "client_ip", in.ClientIP, "reason", err.Error())
		s.invalidateAfterLogin(ctx, ident)
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(rec)
	if err != nil {
		return nil, nil, err
	}
	s.invalidate(ctx, rec.ID)
	s.logger.Info("login succeeded", "user_id", rec.ID, "identifier", masked, "client_ip", in.ClientIP)
	return pair, rec, nil
}

// invalidateAfterLogin drops the cache entry of an account whose lock state
// may just have changed.
func (s *Service) invalidateAfterLogin(ctx context.Context, ident Identifier) {
	if s.cache == nil {
		return
	}
	if rec, err := s.store.GetByIdentifier(ctx, ident); err == nil {
		s.cache.Invalidate(ctx, rec.ID)
	}
}

// Refresh exchanges a refresh token for a new pair. The same live-record
// checks as the gate apply.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ValidateKind(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if err := checkLiveRecord(rec, claims, s.now()); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(rec)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Event{Type: EventTokenRefreshed, UserID: rec.ID})
	return pair, nil
}

// Profile returns the record for userID.
func (s *Service) Profile(ctx context.Context, userID string) (*SecurityRecord, error) {
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return rec, nil
}

// List returns every record.
func (s *Service) List(ctx context.Context) ([]SecurityRecord, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	return recs, nil
}

// LogoutEverywhere revokes every token issued to userID.
func (s *Service) LogoutEverywhere(ctx context.Context, userID string) error {
	return s.bumpVersion(ctx, userID, "logout everywhere")
}

// RevokeTokens is the administrative form of LogoutEverywhere.
func (s *Service) RevokeTokens(ctx context.Context, userID string) error {
	return s.bumpVersion(ctx, userID, "revoked by administrator")
}

func (s *Service) bumpVersion(ctx context.Context, userID, reason string) error {
	_, err := s.mutate(ctx, userID, func(rec *SecurityRecord) (bool, error) {
		rec.TokenVersion++
		return true, nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventTokensRevoked, UserID: userID, Reason: reason})
	return nil
}

// ChangePassword verifies current, stores next and revokes existing tokens.
// A wrong current password counts toward the lockout.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := s.checkPassword(next); err != nil {
		return err
	}

	allowed, err := s.limiter.Allow(ctx, "password:"+userID)
	if err != nil {
		s.logger.Warn("password change rate limiter unavailable", "error", err)
		allowed = true
	}
	if !allowed {
		s.emit(ctx, Event{Type: EventRateLimited, UserID: userID, Reason: "password change attempts"})
		return ErrRateLimited
	}

	verified, err := s.guard.VerifyPassword(ctx, userID, current)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}

	_, err = Mutate(ctx, s.store, userID, func(rec *SecurityRecord) (bool, error) {
		// The password or tokens changed after current was checked.
		if rec.PasswordHash != verified.PasswordHash || rec.TokenVersion != verified.TokenVersion {
			return false, ErrInvalidCredentials
		}
		if rec.IsLocked(s.now()) {
			return false, ErrAccountLocked
		}
		rec.PasswordHash = hash
		rec.TokenVersion++
		rec.FailedAttempts = 0
		rec.LockedUntil = nil
		return true, nil
	})
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountLocked):
		return err
	case err != nil:
		return storeFailure(err)
	}
	s.invalidate(ctx, userID)
	s.emit(ctx, Event{Type: EventPasswordChanged, UserID: userID})
	return nil
}

// SetEnabled enables or disables an account.
func (s *Service) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.mutate(ctx, userID, func(rec *SecurityRecord) (bool, error) {
		if rec.Enabled == enabled {
			return false, nil
		}
		rec.Enabled = enabled
		return true, nil
	})
	if err != nil {
		return err
	}

	typ := EventAccountDisabled
	if enabled {
		typ = EventAccountEnabled
	}
	s.emit(ctx, Event{Type: typ, UserID: userID})
	return nil
}

// Unlock clears a lock and the failure counter.
func (s *Service) Unlock(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, func(rec *SecurityRecord) (bool, error) {
		if rec.LockedUntil == nil && rec.FailedAttempts == 0 {
			return false, nil
		}
		rec.LockedUntil = nil
		rec.FailedAttempts = 0
		return true, nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventAccountUnlocked, UserID: userID, Reason: "unlocked by administrator"})
	return nil
}

// SetRole changes an account's role. Existing tokens stay valid; the gate
// reads the live role on every request.
func (s *Service) SetRole(ctx context.Context, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	var previous Role
	_, err := s.mutate(ctx, userID, func(rec *SecurityRecord) (bool, error) {
		previous = rec.Role
		if rec.Role == role {
			return false, nil
		}
		rec.Role = role
		return true, nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventRoleChanged, UserID: userID, Reason: fmt.Sprintf("%s -> %s", previous, role)})
	return nil
}

func (s *Service) mutate(ctx context.Context, userID string, fn MutateFunc) (*SecurityRecord, error) {
	rec, err := Mutate(ctx, s.store, userID, fn)
	if err != nil {
		return nil, storeFailure(err)
	}
	s.invalidate(ctx, userID)
	return rec, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}

func (s *Service) checkPassword(pw string) error {
	if len(pw) < s.minPassword {
		return fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, s.minPassword)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	s.events.Record(ctx, e)
}

// IsClientError reports whether err is a caller mistake rather than an
// authentication outcome or infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIdentifierRequired) ||
		errors.Is(err, ErrAmbiguousIdentifier) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrFullNameRequired) ||
		errors.Is(err, ErrUnknownRole)
}
