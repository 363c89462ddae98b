package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.receiver/internal/db"
	"github.com/banshee-data/telemetry.receiver/internal/serialmux"
	"github.com/banshee-data/telemetry.receiver/internal/testutil"
	"github.com/banshee-data/telemetry.receiver/internal/timesync"
	"github.com/banshee-data/telemetry.receiver/internal/timeutil"
)

var fixedNow = time.Date(2017, 10, 17, 13, 12, 3, 456789000, time.UTC)

func newTestDispatcher(link Link, store Store) (*Dispatcher, *bytes.Buffer) {
	var logs bytes.Buffer
	d := NewDispatcher(link, store, timeutil.NewMockClock(fixedNow))
	d.SetLogger(slog.New(slog.NewJSONHandler(&logs, nil)))
	return d, &logs
}

// logEntries decodes the JSON log lines written by a dispatcher.
func logEntries(t *testing.T, logs *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestHandleFrame_TimeSync(t *testing.T) {
	store := newFakeStore()
	link := &fakeLink{}
	d, logs := newTestDispatcher(link, store)

	err := d.HandleFrame(context.Background(), "hello TIME world")
	require.NoError(t, err)

	require.Len(t, link.written, 1)
	assert.Equal(t, timesync.Format(timeutil.UnixSeconds(fixedNow)), string(link.written[0]))
	assert.Equal(t, "T1508245923.456789", string(link.written[0]))
	assert.Zero(t, store.lookups)
	assert.Zero(t, store.txCount)

	entries := logEntries(t, logs)
	require.Len(t, entries, 1)
	assert.Equal(t, "time_sync", entries[0]["kind"])
	assert.Equal(t, "T1508245923.456789", entries[0]["response"])
	assert.Equal(t, int64(1), d.Stats().TimeSyncs)
}

func TestHandleFrame_TimeSyncWriteError(t *testing.T) {
	link := &fakeLink{wErr: serialmux.ErrWriteFailed}
	d, logs := newTestDispatcher(link, newFakeStore())

	err := d.HandleFrame(context.Background(), "TIME")
	assert.ErrorIs(t, err, ErrTimeSync)
	assert.ErrorIs(t, err, serialmux.ErrWriteFailed)

	entries := logEntries(t, logs)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, int64(1), d.Stats().Errors)
}

func TestHandleFrame_Unrecognized(t *testing.T) {
	store := newFakeStore()
	link := &fakeLink{}
	d, logs := newTestDispatcher(link, store)

	for _, frame := range []string{"", "garbage", "1 2 3 4 5 6 7 8 9 10 11", "1 2 3 4 5 6 7 8 9 10 11 12 13"} {
		err := d.HandleFrame(context.Background(), frame)
		assert.ErrorIs(t, err, ErrMalformedPacket, "frame %q", frame)
	}

	assert.Zero(t, store.lookups)
	assert.Zero(t, store.txCount)
	assert.Empty(t, link.written)

	entries := logEntries(t, logs)
	require.Len(t, entries, 4)
	assert.Equal(t, "garbage", entries[1]["frame"])
	assert.Equal(t, "unrecognized", entries[1]["kind"])
	assert.Equal(t, "WARN", entries[1]["level"])
	assert.Equal(t, int64(4), d.Stats().Unrecognized)
}

func TestHandleFrame_Data(t *testing.T) {
	store := newFakeStore()
	store.provision(12, 3,
		db.SensorDescriptor{SensorID: 1, Type: db.SensorTemperature, OrderIndex: 1},
		db.SensorDescriptor{SensorID: 2, Type: db.SensorLight},
		db.SensorDescriptor{SensorID: 3, Type: "humidity"},
	)
	d, logs := newTestDispatcher(&fakeLink{}, store)

	err := d.HandleFrame(context.Background(), "12 3 3.7 450 2 21.5 22.0 0 0 0 2 -70")
	require.NoError(t, err)

	require.Len(t, store.committed, 2)
	assert.Equal(t, db.Reading{SensorID: 1, Value: 21.5, Timestamp: fixedNow, Voltage: 3.7}, store.committed[0])
	assert.Equal(t, db.Reading{SensorID: 2, Value: 450, Timestamp: fixedNow, Voltage: 3.7}, store.committed[1])

	entries := logEntries(t, logs)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "data", e["kind"])
	assert.Equal(t, float64(12), e["node"])
	assert.Equal(t, float64(3), e["network"])
	assert.Equal(t, "-70", e["rssi"])
	assert.Equal(t, float64(2), e["readings"])
	assert.Equal(t, float64(1), e["skipped"])
	assert.NotEmpty(t, e["frame_id"])
	assert.NotContains(t, e, "err")

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Packets)
	assert.Equal(t, int64(2), stats.Readings)
	assert.Equal(t, int64(1), stats.Skipped)
}

func TestHandleFrame_DataFailures(t *testing.T) {
	t.Run("directory lookup", func(t *testing.T) {
		store := newFakeStore()
		store.lookupErr = errStoreDown
		d, _ := newTestDispatcher(&fakeLink{}, store)

		err := d.HandleFrame(context.Background(), "12 3 3.7 450 2 21.5 22.0 0 0 0 2 -70")
		assert.ErrorIs(t, err, ErrDirectoryLookup)
		assert.Zero(t, store.txCount)
	})

	t.Run("persistence", func(t *testing.T) {
		store := newFakeStore()
		store.failInsert = 2
		store.provision(12, 3,
			db.SensorDescriptor{SensorID: 1, Type: db.SensorTemperature, OrderIndex: 1},
			db.SensorDescriptor{SensorID: 2, Type: db.SensorTemperature, OrderIndex: 2},
			db.SensorDescriptor{SensorID: 3, Type: db.SensorLight},
		)
		d, logs := newTestDispatcher(&fakeLink{}, store)

		err := d.HandleFrame(context.Background(), "12 3 3.7 450 2 21.5 22.0 0 0 0 2 -70")
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Empty(t, store.committed)
		assert.Equal(t, int64(0), d.Stats().Readings)
		assert.Equal(t, int64(0), d.Stats().Packets)

		entries := logEntries(t, logs)
		require.Len(t, entries, 1)
		assert.Equal(t, "ERROR", entries[0]["level"])
	})
}

func TestRun_EndsOnLinkReadError(t *testing.T) {
	store := newFakeStore()
	store.provision(12, 3, db.SensorDescriptor{SensorID: 2, Type: db.SensorLight})
	link := &fakeLink{
		frames: []string{"garbage", "TIME", "12 3 3.7 450 2 21.5 22.0 0 0 0 2 -70"},
		err:    io.EOF,
	}
	d, logs := newTestDispatcher(link, store)

	err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrLinkRead)
	assert.ErrorIs(t, err, io.EOF)

	// frame errors do not stop the loop
	assert.Len(t, logEntries(t, logs), 3)
	assert.Len(t, store.committed, 1)
	assert.Len(t, link.written, 1)
	assert.Equal(t, int64(3), d.Stats().Frames)
}

// timeoutLink times out a fixed number of times and then cancels.
type timeoutLink struct {
	fakeLink
	timeouts int
	cancel   context.CancelFunc
}

func (l *timeoutLink) ReadFrame(ctx context.Context) (string, error) {
	if l.timeouts == 0 {
		l.cancel()
		return "", ctx.Err()
	}
	l.timeouts--
	return "", serialmux.ErrReadTimeout
}

func TestRun_ReadTimeoutLoopsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	link := &timeoutLink{timeouts: 3, cancel: cancel}
	d, logs := newTestDispatcher(link, newFakeStore())

	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrLinkRead))
	assert.Zero(t, link.timeouts)
	assert.Empty(t, logs.String())
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	link := &fakeLink{frames: []string{"TIME"}}
	d, _ := newTestDispatcher(link, newFakeStore())

	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
	assert.Empty(t, link.written)
}

func TestEndToEnd_DataPacket(t *testing.T) {
	store := testutil.NewTestDB(t)
	tempID := testutil.AddSensor(t, store, testutil.Sensor{Type: db.SensorTemperature, NodeID: 12, Network: 3, Order: 1})
	lightID := testutil.AddSensor(t, store, testutil.Sensor{Type: db.SensorLight, NodeID: 12, Network: 3})

	port := serialmux.NewTestableSerialPort("12 3 3.7 450 2 21.5 22.0 0 0 0 2 -70\r\n")
	mux := serialmux.NewSerialMux(port)
	d, _ := newTestDispatcher(mux, store)

	err := d.Run(context.Background())
	require.ErrorIs(t, err, ErrLinkRead)

	readings, err := store.ReadingsSince(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, readings, 2)

	byID := map[int64]db.Reading{}
	for _, r := range readings {
		byID[r.SensorID] = r
	}
	assert.Equal(t, 21.5, byID[tempID].Value)
	assert.Equal(t, 450.0, byID[lightID].Value)
	for _, r := range readings {
		assert.Equal(t, 3.7, r.Voltage)
		assert.Equal(t, fixedNow, r.Timestamp)
	}
	assert.Empty(t, port.WrittenData())
}

func TestEndToEnd_TimeSync(t *testing.T) {
	store := testutil.NewTestDB(t)
	testutil.AddSensor(t, store, testutil.Sensor{Type: db.SensorLight, NodeID: 12, Network: 3})

	port := serialmux.NewTestableSerialPort("hello TIME world\n")
	mux := serialmux.NewSerialMux(port)
	d, _ := newTestDispatcher(mux, store)

	err := d.Run(context.Background())
	require.ErrorIs(t, err, ErrLinkRead)

	written := port.WrittenData()
	assert.True(t, strings.HasPrefix(written, "T"), "got %q", written)
	assert.NotContains(t, written, "\n")
	assert.Equal(t, 0, testutil.CountReadings(t, store))
}

func TestAdminRoutes_IngestStats(t *testing.T) {
	d, _ := newTestDispatcher(&fakeLink{}, newFakeStore())
	_ = d.HandleFrame(context.Background(), "garbage")

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.NewLocalRequest(http.MethodGet, "/debug/ingest-stats"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.Frames)
	assert.Equal(t, int64(1), got.Unrecognized)
	assert.Equal(t, int64(1), got.Errors)
	assert.Equal(t, fixedNow, got.Started.UTC())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, testutil.NewLocalRequest(http.MethodPost, "/debug/ingest-stats"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}
