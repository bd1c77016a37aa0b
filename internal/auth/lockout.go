package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/authgate/internal/infrastructure/logging"
)

// Default lockout policy: five consecutive failures lock the account for five minutes.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 5 * time.Minute
)

// LockoutPolicy configures the failed-attempt lockout.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Guard verifies passwords and enforces the lockout policy.
//
// Every counter change goes through Mutate, so concurrent attempts against
// one account never lose an increment and the lock is set exactly once.
type Guard struct {
	store  RecordStore
	hasher *PasswordHasher
	policy LockoutPolicy
	events EventSink
	logger *slog.Logger
	now    func() time.Time
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithGuardClock replaces time.Now.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// WithGuardEvents sets the sink for login and lockout events.
func WithGuardEvents(sink EventSink) GuardOption {
	return func(g *Guard) {
		if sink != nil {
			g.events = sink
		}
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a Guard. A zero policy field takes its default.
func NewGuard(store RecordStore, hasher *PasswordHasher, policy LockoutPolicy, opts ...GuardOption) *Guard {
	if policy.Threshold <= 0 {
		policy.Threshold = DefaultLockoutThreshold
	}
	if policy.Duration <= 0 {
		policy.Duration = DefaultLockoutDuration
	}

	g := &Guard{
		store:  store,
		hasher: hasher,
		policy: policy,
		events: nopSink{},
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate checks password against the record found by ident.
//
// Returns the updated record on success. Failures are ErrInvalidCredentials
// (unknown identifier, disabled account and wrong password look the same),
// ErrAccountLocked, or ErrStoreUnavailable.
func (g *Guard) Authenticate(ctx context.Context, ident Identifier, password string) (*SecurityRecord, error) {
	masked := logging.MaskIdentifier(ident.Value)

	rec, err := g.store.GetByIdentifier(ctx, ident)
	if errors.Is(err, ErrRecordNotFound) {
		g.hasher.VerifyDummy(password)
		g.emit(ctx, Event{Type: EventLoginFailed, Identifier: masked, Reason: "unknown identifier"})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeFailure(err)
	}

	if rec.IsLocked(g.now()) {
		g.emit(ctx, Event{Type: EventLoginRejected, UserID: rec.ID, Identifier: masked, Reason: "locked"})
		return nil, ErrAccountLocked
	}

	ok, err := g.hasher.Verify(password, rec.PasswordHash)
	if err != nil {
		g.logger.Error("password hash unreadable", "user_id", rec.ID, "error", err)
		ok = false
	}

	if !ok || !rec.Enabled {
		reason := "password mismatch"
		if !rec.Enabled {
			reason = "account disabled"
		}
		return nil, g.recordFailure(ctx, rec.ID, masked, reason)
	}

	return g.recordSuccess(ctx, rec.ID, masked)
}

// VerifyPassword re-checks the password of an already authenticated user,
// e.g. before a password change. A mismatch counts toward the lockout like
// a failed login. The returned record is the one the password matched.
func (g *Guard) VerifyPassword(ctx context.Context, userID, password string) (*SecurityRecord, error) {
	rec, err := g.store.GetByID(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	masked := logging.MaskIdentifier(rec.Email)
	if rec.Email == "" {
		masked = logging.MaskIdentifier(rec.Phone)
	}

	if rec.IsLocked(g.now()) {
		g.emit(ctx, Event{Type: EventLoginRejected, UserID: rec.ID, Identifier: masked, Reason: "locked"})
		return nil, ErrAccountLocked
	}

	ok, err := g.hasher.Verify(password, rec.PasswordHash)
	if err != nil {
		g.logger.Error("password hash unreadable", "user_id", rec.ID, "error", err)
		ok = false
	}
	if !ok {
		return nil, g.recordFailure(ctx, rec.ID, masked, "current password mismatch")
	}
	if !rec.Enabled {
		return nil, ErrInvalidCredentials
	}
	return rec, nil
}

// recordFailure increments the failure counter and locks the account when
// the threshold is reached.
func (g *Guard) recordFailure(ctx context.Context, id, masked, reason string) error {
	var (
		locked     bool
		unlocked   bool
		lockedTill time.Time
	)

	_, err := Mutate(ctx, g.store, id, func(rec *SecurityRecord) (bool, error) {
		locked, unlocked = false, false
		now := g.now()

		if rec.IsLocked(now) {
			return false, ErrAccountLocked
		}
		if rec.LockExpired(now) {
			rec.LockedUntil = nil
			rec.FailedAttempts = 0
			unlocked = true
		}

		rec.FailedAttempts++
		if rec.FailedAttempts >= g.policy.Threshold {
			until := now.Add(g.policy.Duration).UTC()
			rec.LockedUntil = &until
			lockedTill = until
			locked = true
		}
		return true, nil
	})

	switch {
	case errors.Is(err, ErrAccountLocked):
		g.emit(ctx, Event{Type: EventLoginRejected, UserID: id, Identifier: masked, Reason: "locked"})
		return ErrAccountLocked
	case errors.Is(err, ErrRecordNotFound):
		return ErrInvalidCredentials
	case err != nil:
		return storeFailure(err)
	}

	if unlocked {
		g.emit(ctx, Event{Type: EventAccountUnlocked, UserID: id, Identifier: masked, Reason: "lock expired"})
	}
	g.emit(ctx, Event{Type: EventLoginFailed, UserID: id, Identifier: masked, Reason: reason})
	if locked {
		g.logger.Warn("account locked",
			"user_id", id,
			"identifier", masked,
			"locked_until", lockedTill.Format(time.RFC3339),
		)
		g.emit(ctx, Event{
			Type:       EventAccountLocked,
			UserID:     id,
			Identifier: masked,
			Reason:     fmt.Sprintf("%d consecutive failures", g.policy.Threshold),
		})
	}
	return ErrInvalidCredentials
}

// recordSuccess clears the failure counter and any expired lock.
func (g *Guard) recordSuccess(ctx context.Context, id, masked string) (*SecurityRecord, error) {
	var unlocked bool

	rec, err := Mutate(ctx, g.store, id, func(rec *SecurityRecord) (bool, error) {
		unlocked = false
		now := g.now()

		if rec.IsLocked(now) {
			return false, ErrAccountLocked
		}
		changed := false
		if rec.LockedUntil != nil {
			rec.LockedUntil = nil
			unlocked = true
			changed = true
		}
		if rec.FailedAttempts != 0 {
			rec.FailedAttempts = 0
			changed = true
		}
		return changed, nil
	})

	switch {
	case errors.Is(err, ErrAccountLocked):
		g.emit(ctx, Event{Type: EventLoginRejected, UserID: id, Identifier: masked, Reason: "locked"})
		return nil, ErrAccountLocked
	case errors.Is(err, ErrRecordNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, storeFailure(err)
	}

	if !rec.Enabled {
		// Disabled between the read and the reset.
		return nil, ErrInvalidCredentials
	}
	if unlocked {
		g.emit(ctx, Event{Type: EventAccountUnlocked, UserID: id, Identifier: masked, Reason: "lock expired"})
	}
	g.emit(ctx, Event{Type: EventLoginSucceeded, UserID: id, Identifier: masked})
	return rec, nil
}

func (g *Guard) emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = g.now().UTC()
	}
	g.events.Record(ctx, e)
}
