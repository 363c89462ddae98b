package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/telemetry.receiver/internal/db"
)

var errStoreDown = errors.New("store down")

// fakeStore is an in-memory Store. Readings inserted in a transaction are
// only kept if the transaction callback succeeds.
type fakeStore struct {
	mu sync.Mutex

	sensors   map[[2]int64][]db.SensorDescriptor
	lookupErr error
	lookups   int

	// failInsert makes the nth insert (1-based) of a transaction fail
	failInsert int
	txCount    int
	committed  []db.Reading
}

func newFakeStore() *fakeStore {
	return &fakeStore{sensors: make(map[[2]int64][]db.SensorDescriptor)}
}

func (f *fakeStore) provision(nodeID, networkID int64, sensors ...db.SensorDescriptor) {
	f.sensors[[2]int64{nodeID, networkID}] = sensors
}

func (f *fakeStore) SensorsForNode(ctx context.Context, nodeID, networkID int64) ([]db.SensorDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := append([]db.SensorDescriptor{}, f.sensors[[2]int64{nodeID, networkID}]...)
	return out, nil
}

type fakeTx struct {
	store   *fakeStore
	pending []db.Reading
}

func (tx *fakeTx) InsertReading(ctx context.Context, r db.Reading) error {
	if tx.store.failInsert == len(tx.pending)+1 {
		return errStoreDown
	}
	tx.pending = append(tx.pending, r)
	return nil
}

func (f *fakeStore) WithReadingTx(ctx context.Context, fn func(db.ReadingInserter) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCount++
	tx := &fakeTx{store: f}
	if err := fn(tx); err != nil {
		return err
	}
	f.committed = append(f.committed, tx.pending...)
	return nil
}

// fakeLink replays frames and then returns err.
type fakeLink struct {
	frames  []string
	err     error
	written [][]byte
	wErr    error
}

func (l *fakeLink) ReadFrame(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(l.frames) == 0 {
		return "", l.err
	}
	f := l.frames[0]
	l.frames = l.frames[1:]
	return f, nil
}

func (l *fakeLink) WriteFrame(b []byte) error {
	if l.wErr != nil {
		return l.wErr
	}
	l.written = append(l.written, append([]byte(nil), b...))
	return nil
}
