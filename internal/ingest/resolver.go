package ingest

import (
	"context"
	"fmt"

	"github.com/banshee-data/telemetry.receiver/internal/db"
	"github.com/banshee-data/telemetry.receiver/internal/packet"
)

// Directory looks up the sensors provisioned on a node.
type Directory interface {
	SensorsForNode(ctx context.Context, nodeID, networkID int64) ([]db.SensorDescriptor, error)
}

// Resolver maps a node identity onto the sensors attached to it. It only
// reads from the directory.
type Resolver struct {
	dir Directory
}

// NewResolver returns a Resolver backed by dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the sensors on nodeID/networkID ordered by their slot. An
// empty result is not an error.
func (r *Resolver) Resolve(ctx context.Context, nodeID, networkID int64) ([]db.SensorDescriptor, error) {
	sensors, err := r.dir.SensorsForNode(ctx, nodeID, networkID)
	if err != nil {
		return nil, fmt.Errorf("%w: node %d network %d: %w", ErrDirectoryLookup, nodeID, networkID, err)
	}
	return sensors, nil
}

// ResolvePacket decodes the node identity of p and resolves its sensors.
func (r *Resolver) ResolvePacket(ctx context.Context, p *packet.DataPacket) (nodeID, networkID int64, sensors []db.SensorDescriptor, err error) {
	nodeID, networkID, err = p.Node()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}
	sensors, err = r.Resolve(ctx, nodeID, networkID)
	return nodeID, networkID, sensors, err
}
