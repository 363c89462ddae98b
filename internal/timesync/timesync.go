// Package timesync answers time requests from the coordinator node.
package timesync

import (
	"strconv"

	"github.com/banshee-data/telemetry.receiver/internal/timeutil"
)

// ResponsePrefix marks a frame as a time response so the coordinator can tell
// it apart from anything else on the link.
const ResponsePrefix = 'T'

// FrameWriter writes one frame to the link.
type FrameWriter interface {
	WriteFrame(b []byte) error
}

// Responder writes the current time back over the link.
type Responder struct {
	w     FrameWriter
	clock timeutil.Clock
}

// NewResponder returns a Responder writing to w. A nil clock uses the real
// time.
func NewResponder(w FrameWriter, clock timeutil.Clock) *Responder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Responder{w: w, clock: clock}
}

// Respond writes a single time frame. It does not wait for an acknowledgement
// and does not retry.
func (r *Responder) Respond() (string, error) {
	frame := Format(timeutil.UnixSeconds(r.clock.Now()))
	if err := r.w.WriteFrame([]byte(frame)); err != nil {
		return frame, err
	}
	return frame, nil
}

// Format renders seconds since the epoch as a time response frame, e.g.
// "T1508245123.456789".
func Format(seconds float64) string {
	return string(ResponsePrefix) + strconv.FormatFloat(seconds, 'f', 6, 64)
}
