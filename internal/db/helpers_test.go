package db

import (
	"path/filepath"
	"testing"
)

// newTestDB creates a migrated database in the test's temp dir.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "receiver_test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testSensor struct {
	Type       string
	Calibrated bool
	NodeID     int64
	Network    int64
	Order      any // int or nil
}

// insertSensor provisions a sensor and its location, the way the
// provisioning tool does, and returns the sensor id.
func insertSensor(t *testing.T, db *DB, s testSensor) int64 {
	t.Helper()
	calibrated := "NO"
	if s.Calibrated {
		calibrated = "YES"
	}
	res, err := db.Exec(`INSERT INTO sensors (manufacturer, calibrated, sensor_type, measurement_unit, date_purchased, serial_number)
		VALUES ('Dallas OneWire', ?, ?, 'degrees celsius', '2017-01-01', 'serial')`, calibrated, s.Type)
	if err != nil {
		t.Fatalf("insert sensor failed: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO locations (location_sensor_id, x_location, y_location, z_location, compartment, node_id, node_order, network)
		VALUES (?, 1, 2, 3, 4, ?, ?, ?)`, id, s.NodeID, s.Order, s.Network); err != nil {
		t.Fatalf("insert location failed: %v", err)
	}
	return id
}
