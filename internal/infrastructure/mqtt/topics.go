package mqtt

import "strings"

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "authgate"

// Topics builds authgate MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("authgate")
//	topics.SecurityEvent("account_locked")
//	// Returns: "authgate/security/account_locked"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// SecurityEvent returns the topic for one security event type.
//
// Example: authgate/security/login_failed
func (t Topics) SecurityEvent(eventType string) string {
	return t.Prefix() + "/security/" + eventType
}

// AllSecurityEvents matches every security event.
//
// Pattern: authgate/security/+
func (t Topics) AllSecurityEvents() string {
	return t.Prefix() + "/security/+"
}

// SystemStatus returns the retained presence topic.
//
// Example: authgate/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}
