package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthEvents holds one point per security event.
const MeasurementAuthEvents = "auth_events"

// WriteAuthEvent records a security event as a counter point.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Only the event type and outcome are tags; user IDs are fields so the
// series cardinality stays bounded.
//
// Parameters:
//   - eventType: e.g. "login_failed", "account_locked"
//   - userID: affected account, may be empty
//   - at: when the event happened
//
// Example:
//
//	client.WriteAuthEvent("account_locked", "3f0c...", time.Now())
func (c *Client) WriteAuthEvent(eventType, userID string, at time.Time) {
	fields := map[string]interface{}{
		"count": 1,
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	c.writePoint(MeasurementAuthEvents,
		map[string]string{
			"event":   eventType,
			"outcome": outcomeOf(eventType),
		},
		fields,
		at,
	)
}

// outcomeOf groups event types for dashboards.
func outcomeOf(eventType string) string {
	switch eventType {
	case "login_failed", "login_rejected", "account_locked", "rate_limited":
		return "denied"
	case "login_succeeded", "token_refreshed", "signup":
		return "granted"
	default:
		return "admin"
	}
}

// writePoint queues a point unless the client is disconnected.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
