package ingest

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry.receiver/internal/httputil"
)

// Stats counts frame outcomes since the dispatcher started.
type Stats struct {
	started time.Time

	frames       atomic.Int64
	timeSyncs    atomic.Int64
	packets      atomic.Int64
	readings     atomic.Int64
	skipped      atomic.Int64
	unrecognized atomic.Int64
	errors       atomic.Int64
}

// StatsSnapshot is a point in time copy of Stats.
type StatsSnapshot struct {
	Started      time.Time `json:"started"`
	Frames       int64     `json:"frames"`
	TimeSyncs    int64     `json:"time_syncs"`
	Packets      int64     `json:"packets"`
	Readings     int64     `json:"readings"`
	Skipped      int64     `json:"skipped"`
	Unrecognized int64     `json:"unrecognized"`
	Errors       int64     `json:"errors"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Started:      s.started,
		Frames:       s.frames.Load(),
		TimeSyncs:    s.timeSyncs.Load(),
		Packets:      s.packets.Load(),
		Readings:     s.readings.Load(),
		Skipped:      s.skipped.Load(),
		Unrecognized: s.unrecognized.Load(),
		Errors:       s.errors.Load(),
	}
}

func (s *Stats) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.Snapshot())
}
