package report

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/telemetry.receiver/internal/db"
	"github.com/banshee-data/telemetry.receiver/internal/httputil"
)

// DefaultChartLimit is how many recent readings the chart routes show.
const DefaultChartLimit = 500

// DefaultSummaryWindow is the look-back used when ?since is not given.
const DefaultSummaryWindow = 24 * time.Hour

// ReadingSource is where the debug routes read stored readings from.
type ReadingSource interface {
	RecentReadings(ctx context.Context, limit int) ([]db.Reading, error)
	ReadingsSince(ctx context.Context, since time.Time) ([]db.Reading, error)
}

// AttachAdminRoutes mounts the reading chart, plot and summary routes under
// /debug/.
func AttachAdminRoutes(mux *http.ServeMux, src ReadingSource) {
	debug := tsweb.Debugger(mux)

	debug.Handle("readings-chart", "Chart of recent readings (?limit=N)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readings, ok := recent(w, r, src)
		if !ok {
			return
		}
		var buf bytes.Buffer
		if err := RenderChart(&buf, "Recent readings", readings); err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}))

	debug.Handle("readings-plot", "PNG plot of recent readings (?limit=N)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readings, ok := recent(w, r, src)
		if !ok {
			return
		}
		if len(readings) == 0 {
			httputil.WriteJSONError(w, http.StatusNotFound, "no readings stored")
			return
		}
		var buf bytes.Buffer
		if err := RenderPlot(&buf, "Recent readings", readings); err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))

	debug.Handle("readings-summary", "Per sensor statistics as JSON (?since=24h)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireGET(w, r) {
			return
		}
		window := DefaultSummaryWindow
		if s := r.URL.Query().Get("since"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				httputil.WriteJSONError(w, http.StatusBadRequest, "invalid since duration")
				return
			}
			window = d
		}
		readings, err := src.ReadingsSince(r.Context(), time.Now().Add(-window))
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load readings: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, Summarize(readings))
	}))
}

func recent(w http.ResponseWriter, r *http.Request, src ReadingSource) ([]db.Reading, bool) {
	if !httputil.RequireGET(w, r) {
		return nil, false
	}
	limit := DefaultChartLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 50000 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid limit")
			return nil, false
		}
		limit = v
	}
	readings, err := src.RecentReadings(r.Context(), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load readings: %v", err))
		return nil, false
	}
	return readings, true
}
