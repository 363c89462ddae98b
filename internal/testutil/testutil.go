// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/telemetry.receiver/internal/db"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewLocalRequest creates a test HTTP request that appears to come from
// loopback, which the /debug/ routes require.
func NewLocalRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestDB creates a migrated database in the test's temp dir and closes it
// when the test ends.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// Sensor describes a provisioned sensor for AddSensor. A zero Order stores
// NULL for node_order.
type Sensor struct {
	Type    db.SensorType
	NodeID  int64
	Network int64
	Order   int
}

// AddSensor provisions a sensor and its location and returns the sensor id.
func AddSensor(t *testing.T, d *db.DB, s Sensor) int64 {
	t.Helper()
	res, err := d.Exec(`INSERT INTO sensors (manufacturer, calibrated, sensor_type) VALUES ('test', 'NO', ?)`, string(s.Type))
	if err != nil {
		t.Fatalf("failed to insert sensor: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to read sensor id: %v", err)
	}

	var order any
	if s.Order != 0 {
		order = s.Order
	}
	if _, err := d.Exec(`INSERT INTO locations (location_sensor_id, node_id, node_order, network) VALUES (?, ?, ?, ?)`,
		id, s.NodeID, order, s.Network); err != nil {
		t.Fatalf("failed to insert location: %v", err)
	}
	return id
}

// CountReadings returns the number of stored readings.
func CountReadings(t *testing.T, d *db.DB) int {
	t.Helper()
	n, err := d.CountReadings(t.Context())
	if err != nil {
		t.Fatalf("failed to count readings: %v", err)
	}
	return n
}
