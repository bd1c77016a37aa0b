package auth

import (
	"context"
	"time"
)

// EventType names a security event.
type EventType string

// Security event types. Values are used as MQTT topic suffixes,
// InfluxDB tags and audit_logs.event_type.
const (
	EventLoginSucceeded  EventType = "login_succeeded"
	EventLoginFailed     EventType = "login_failed"
	EventLoginRejected   EventType = "login_rejected" // attempt against a locked account
	EventAccountLocked   EventType = "account_locked"
	EventAccountUnlocked EventType = "account_unlocked"
	EventSignup          EventType = "signup"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventTokensRevoked   EventType = "tokens_revoked"
	EventPasswordChanged EventType = "password_changed"
	EventAccountDisabled EventType = "account_disabled"
	EventAccountEnabled  EventType = "account_enabled"
	EventRoleChanged     EventType = "role_changed"
	EventRateLimited     EventType = "rate_limited"
)

// Event is one entry in the security trail. Identifier is already masked.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// EventSink receives security events. Implementations must not block the
// caller for long; the authentication path calls Record inline.
type EventSink interface {
	Record(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e Event)

// Record calls f.
func (f EventSinkFunc) Record(ctx context.Context, e Event) { f(ctx, e) }

type nopSink struct{}

func (nopSink) Record(context.Context, Event) {}
