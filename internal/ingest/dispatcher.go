package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/telemetry.receiver/internal/db"
	"github.com/banshee-data/telemetry.receiver/internal/monitoring"
	"github.com/banshee-data/telemetry.receiver/internal/packet"
	"github.com/banshee-data/telemetry.receiver/internal/serialmux"
	"github.com/banshee-data/telemetry.receiver/internal/timesync"
	"github.com/banshee-data/telemetry.receiver/internal/timeutil"
)

// Link is the serial connection the dispatcher reads frames from and writes
// time responses to.
type Link interface {
	ReadFrame(ctx context.Context) (string, error)
	WriteFrame(b []byte) error
}

// Store is the subset of the database used during ingestion.
type Store interface {
	Directory
	ReadingStore
}

// Dispatcher reads frames one at a time and routes each to the time sync
// responder or to resolution and persistence.
type Dispatcher struct {
	link      Link
	responder *timesync.Responder
	resolver  *Resolver
	persister *Persister
	clock     timeutil.Clock
	logger    *slog.Logger
	stats     *Stats
}

// NewDispatcher wires a dispatcher over link and store. A nil clock uses
// the real time.
func NewDispatcher(link Link, store Store, clock timeutil.Clock) *Dispatcher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Dispatcher{
		link:      link,
		responder: timesync.NewResponder(link, clock),
		resolver:  NewResolver(store),
		persister: NewPersister(store),
		clock:     clock,
		logger:    monitoring.Logger,
		stats:     &Stats{started: clock.Now()},
	}
}

// SetLogger replaces the logger outcome entries are written to.
func (d *Dispatcher) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l
	}
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// Run processes frames until ctx is cancelled or the link fails. Read
// timeouts only give cancellation a chance to be noticed. Frame level
// failures are logged and never end the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := d.link.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, serialmux.ErrReadTimeout) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %w", ErrLinkRead, err)
		}

		_ = d.HandleFrame(ctx, frame)
	}
}

// HandleFrame classifies and acts on a single frame, writes its outcome
// entry and returns the frame's error, if any.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame string) error {
	d.stats.frames.Add(1)
	c := packet.Classify(frame)
	attrs := []slog.Attr{
		slog.String("frame_id", uuid.NewString()),
		slog.String("kind", c.Kind.String()),
	}

	var err error
	switch c.Kind {
	case packet.TimeSyncRequest:
		var resp string
		resp, err = d.responder.Respond()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrTimeSync, err)
		} else {
			d.stats.timeSyncs.Add(1)
		}
		attrs = append(attrs, slog.String("response", resp))

	case packet.Data:
		var res PersistResult
		res, err = d.handlePacket(ctx, c.Packet, &attrs)
		d.stats.readings.Add(int64(res.Stored))
		d.stats.skipped.Add(int64(res.Skipped))
		if err == nil {
			d.stats.packets.Add(1)
		}
		attrs = append(attrs, slog.Int("readings", res.Stored), slog.Int("skipped", res.Skipped))

	default:
		d.stats.unrecognized.Add(1)
		err = fmt.Errorf("%w: unrecognized frame", ErrMalformedPacket)
	}

	d.logOutcome(ctx, frame, err, attrs)
	return err
}

func (d *Dispatcher) handlePacket(ctx context.Context, p *packet.DataPacket, attrs *[]slog.Attr) (PersistResult, error) {
	// one timestamp for every reading of the packet
	ts := d.clock.Now()

	nodeID, networkID, sensors, err := d.resolver.ResolvePacket(ctx, p)
	if err != nil {
		return PersistResult{}, err
	}
	*attrs = append(*attrs,
		slog.Int64("node", nodeID),
		slog.Int64("network", networkID),
		slog.Int("sensors", len(sensors)),
		slog.String("rssi", p.RSSI()),
	)
	return d.persister.Persist(ctx, p, sensors, ts)
}

func (d *Dispatcher) logOutcome(ctx context.Context, frame string, err error, attrs []slog.Attr) {
	level := slog.LevelInfo
	msg := "frame handled"
	if err != nil {
		d.stats.errors.Add(1)
		attrs = append(attrs, slog.String("err", err.Error()))
		msg = "frame rejected"
		level = slog.LevelWarn
		if errors.Is(err, ErrDirectoryLookup) || errors.Is(err, ErrPersistence) || errors.Is(err, ErrTimeSync) {
			msg = "frame failed"
			level = slog.LevelError
		}
	}
	attrs = append(attrs, slog.String("frame", frame))
	d.logger.LogAttrs(ctx, level, msg, attrs...)
}

// AttachAdminRoutes mounts the ingestion counters under /debug/.
func (d *Dispatcher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("ingest-stats", "Frame and reading counters (JSON)", d.stats)
}

var _ Store = (*db.DB)(nil)
