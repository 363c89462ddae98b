// Serialmux provides an abstraction over the serial link to the coordinator
// node: line framed reads and synchronous writes for the single ingestion
// loop, plus a tap that lets debug clients subscribe to received frames.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"
)

var (
	// ErrWriteFailed reports a short write to the serial port.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrReadTimeout is returned by ReadFrame when the port's read timeout
	// elapsed without a complete frame. Buffered partial data is kept.
	ErrReadTimeout = errors.New("serial read timed out")
	// ErrTimeoutUnsupported is returned by SetReadTimeout when the port does
	// not implement TimeoutSerialPorter.
	ErrTimeoutUnsupported = errors.New("serial port does not support read timeouts")
)

// MaxFrameLength bounds a single frame. Longer runs without a line delimiter
// are cut at this length and returned as a frame of their own.
const MaxFrameLength = 1024

// SerialMux owns a serial port. Frames are read by one consumer through
// ReadFrame and copied to any number of debug subscribers.
type SerialMux[T SerialPorter] struct {
	port T

	readMu  sync.Mutex
	buf     []byte
	pending []byte
	readErr error

	writeMu sync.Mutex

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
}

// NewSerialMux creates a SerialMux instance backed by port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		buf:         make([]byte, 256),
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving a copy of every frame read. The
// channel is buffered; frames are dropped for subscribers that fall behind.
func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SetReadTimeout applies a read deadline to the underlying port.
func (s *SerialMux[T]) SetReadTimeout(d time.Duration) error {
	tp, ok := any(s.port).(TimeoutSerialPorter)
	if !ok {
		return ErrTimeoutUnsupported
	}
	return tp.SetReadTimeout(d)
}

// ReadFrame blocks until a newline-terminated frame is available and returns
// it without the delimiter or a trailing carriage return.
//
// A read that returns no data (the port's read timeout elapsed) yields
// ErrReadTimeout. Any other read error is returned as-is; it is sticky, so
// every later call returns it too. A partial frame pending at EOF is
// returned before the error.
func (s *SerialMux[T]) ReadFrame(ctx context.Context) (string, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 && i <= MaxFrameLength {
			return s.take(i, i+1), nil
		}
		if len(s.pending) >= MaxFrameLength {
			return s.take(MaxFrameLength, MaxFrameLength), nil
		}
		if s.readErr != nil {
			if len(s.pending) > 0 {
				return s.take(len(s.pending), len(s.pending)), nil
			}
			return "", s.readErr
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
		}
		if err != nil {
			s.readErr = err
			continue
		}
		if n == 0 {
			return "", ErrReadTimeout
		}
	}
}

// take removes pending[:skip] and returns pending[:end] as a frame.
func (s *SerialMux[T]) take(end, skip int) string {
	frame := string(bytes.TrimSuffix(s.pending[:end], []byte("\r")))
	s.pending = append(s.pending[:0], s.pending[skip:]...)
	s.publish(frame)
	return frame
}

func (s *SerialMux[T]) publish(frame string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
			// if the channel is full/blocking skip so as not to block the reader
		}
	}
}

// WriteFrame writes b to the serial port as-is. No delimiter is appended.
func (s *SerialMux[T]) WriteFrame(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes all subscribed channels and closes the serial port.
func (s *SerialMux[T]) Close() error {
	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

// AttachAdminRoutes mounts a live tail of received frames under /debug/.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint to issue Server-Side Events (SSE) for each frame read from the link.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case frame, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
