package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SensorType is the sensor_type column of the directory.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorLight       SensorType = "light"
)

// SensorDescriptor is one provisioned sensor attached to a node.
type SensorDescriptor struct {
	SensorID   int64      `json:"sensor_id"`
	Type       SensorType `json:"sensor_type"`
	Calibrated bool       `json:"calibrated"`
	// OrderIndex is the sensor's temperature slot on its node (1-5), 0 when
	// not recorded.
	OrderIndex  int   `json:"node_order"`
	X           int64 `json:"x_location"`
	Y           int64 `json:"y_location"`
	Z           int64 `json:"z_location"`
	Compartment int64 `json:"compartment"`
}

// SensorsForNode returns the sensors located on node nodeID of network
// networkID, ordered by their slot on the node. An empty slice with a nil
// error means nothing is provisioned for that node.
func (db *DB) SensorsForNode(ctx context.Context, nodeID, networkID int64) ([]SensorDescriptor, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.sensor_id, s.sensor_type, s.calibrated, l.node_order,
		       l.x_location, l.y_location, l.z_location, l.compartment
		FROM sensors s
		JOIN locations l ON l.location_sensor_id = s.sensor_id
		WHERE l.node_id = ? AND l.network = ?
		ORDER BY l.node_order, s.sensor_id`,
		nodeID, networkID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors for node %d/%d: %w", nodeID, networkID, err)
	}
	defer rows.Close()

	sensors := []SensorDescriptor{}
	for rows.Next() {
		var (
			s                    SensorDescriptor
			sensorType           string
			calibrated           string
			order                sql.NullInt64
			x, y, z, compartment sql.NullInt64
		)
		if err := rows.Scan(&s.SensorID, &sensorType, &calibrated, &order, &x, &y, &z, &compartment); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		s.Type = SensorType(sensorType)
		s.Calibrated = calibrated == "YES"
		s.OrderIndex = int(order.Int64)
		s.X, s.Y, s.Z, s.Compartment = x.Int64, y.Int64, z.Int64, compartment.Int64
		sensors = append(sensors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}
	return sensors, nil
}
