package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/telemetry.receiver/internal/db"
	"github.com/banshee-data/telemetry.receiver/internal/packet"
)

// ReadingStore opens a transaction that readings are inserted through.
type ReadingStore interface {
	WithReadingTx(ctx context.Context, fn func(db.ReadingInserter) error) error
}

// PersistResult counts what happened to a packet's sensors.
type PersistResult struct {
	Stored  int
	Skipped int
}

// BuildReadings maps the fields of p onto sensors. Temperature sensors read
// the slot named by their order index, light sensors read the light field,
// and any other type is skipped. All readings share ts and the packet's
// voltage.
func BuildReadings(p *packet.DataPacket, sensors []db.SensorDescriptor, ts time.Time) ([]db.Reading, int, error) {
	if len(sensors) == 0 {
		return nil, 0, nil
	}

	voltage, err := p.Float(packet.FieldVoltage)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: voltage: %w", ErrMalformedPacket, err)
	}

	readings := make([]db.Reading, 0, len(sensors))
	skipped := 0
	for _, s := range sensors {
		var field int
		switch s.Type {
		case db.SensorTemperature:
			if s.OrderIndex < 1 || s.OrderIndex > packet.MaxTempSensors {
				return nil, 0, fmt.Errorf("%w: sensor %d has temperature order %d outside [1,%d]",
					ErrMalformedPacket, s.SensorID, s.OrderIndex, packet.MaxTempSensors)
			}
			field = packet.FieldNumTemp + s.OrderIndex
		case db.SensorLight:
			field = packet.FieldLight
		default:
			skipped++
			continue
		}

		value, err := p.Float(field)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: sensor %d: %w", ErrMalformedPacket, s.SensorID, err)
		}
		readings = append(readings, db.Reading{
			SensorID:  s.SensorID,
			Value:     value,
			Timestamp: ts,
			Voltage:   voltage,
		})
	}
	return readings, skipped, nil
}

// Persister stores the readings of one packet atomically.
type Persister struct {
	store ReadingStore
}

// NewPersister returns a Persister writing to store.
func NewPersister(store ReadingStore) *Persister {
	return &Persister{store: store}
}

// Persist decodes the readings of p for sensors and commits them in a single
// transaction. Decoding errors abort the packet before anything is written.
// When nothing is left to store no transaction is opened.
func (ps *Persister) Persist(ctx context.Context, p *packet.DataPacket, sensors []db.SensorDescriptor, ts time.Time) (PersistResult, error) {
	readings, skipped, err := BuildReadings(p, sensors, ts)
	if err != nil {
		return PersistResult{}, err
	}
	result := PersistResult{Skipped: skipped}
	if len(readings) == 0 {
		return result, nil
	}

	err = ps.store.WithReadingTx(ctx, func(ins db.ReadingInserter) error {
		for _, r := range readings {
			if err := ins.InsertReading(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	result.Stored = len(readings)
	return result, nil
}
