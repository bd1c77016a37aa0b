package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/authgate/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "authgate-dev-token",
		Org:           "authgate",
		Bucket:        "auth",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test unless RUN_INTEGRATION is set and the
// server answers.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("RUN_INTEGRATION not set, skipping InfluxDB integration test")
	}
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	client.Close() //nolint:errcheck // test cleanup
}

// recordingWriter captures points instead of sending them.
type recordingWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func newRecordingClient() (*Client, *recordingWriter) {
	w := &recordingWriter{}
	return &Client{writeAPI: w, connected: true, cfg: testConfig()}, w
}

func tagsOf(p *write.Point) map[string]string {
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func fieldsOf(p *write.Point) map[string]interface{} {
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteAuthEvent(t *testing.T) {
	c, w := newRecordingClient()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.WriteAuthEvent("account_locked", "user-1", at)
	c.WriteAuthEvent("signup", "", at)
	c.WriteAuthEvent("role_changed", "user-2", at)

	if len(w.points) != 3 {
		t.Fatalf("points = %d, want 3", len(w.points))
	}

	locked := w.points[0]
	if locked.Name() != MeasurementAuthEvents || !locked.Time().Equal(at) {
		t.Errorf("point = %s @ %v", locked.Name(), locked.Time())
	}
	if tags := tagsOf(locked); tags["event"] != "account_locked" || tags["outcome"] != "denied" {
		t.Errorf("tags = %v", tags)
	}
	if fields := fieldsOf(locked); fields["user_id"] != "user-1" {
		t.Errorf("fields = %v", fields)
	}

	if _, ok := fieldsOf(w.points[1])["user_id"]; ok {
		t.Error("empty user id should not be written")
	}
	if got := tagsOf(w.points[1])["outcome"]; got != "granted" {
		t.Errorf("signup outcome = %q", got)
	}
	if got := tagsOf(w.points[2])["outcome"]; got != "admin" {
		t.Errorf("role_changed outcome = %q", got)
	}
}

func TestWriteSkippedWhenDisconnected(t *testing.T) {
	c, w := newRecordingClient()
	c.connected = false

	c.WriteAuthEvent("login_failed", "u", time.Now())
	c.WriteAuthEvent("signup", "", time.Now())
	c.Flush()

	if len(w.points) != 0 || w.flushes != 0 {
		t.Errorf("disconnected client wrote %d points, %d flushes", len(w.points), w.flushes)
	}
}

func TestSetOnError(t *testing.T) {
	c, _ := newRecordingClient()
	errs := make(chan error, 1)
	c.SetOnError(func(err error) { errs <- err })

	src := make(chan error, 1)
	src <- errors.New("write rejected")
	close(src)
	c.handleWriteErrors(src)

	select {
	case err := <-errs:
		if err.Error() != "write rejected" {
			t.Errorf("callback error = %v", err)
		}
	default:
		t.Fatal("error callback not invoked")
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestIntegration_WriteAuthEvent(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	client.WriteAuthEvent("login_failed", "integration-user", time.Now())
	client.Flush()
}
