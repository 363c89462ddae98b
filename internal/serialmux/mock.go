package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestableSerialPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory TimeoutSerialPorter. Reads drain the
// data queued with NewTestableSerialPort or AddReadData. With nothing queued
// Read returns io.EOF, unless TimeoutWhenEmpty (return 0, nil like an
// elapsed deadline) or BlockReads (wait for data or Close) is set.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	rx     bytes.Buffer
	tx     bytes.Buffer
	closed bool

	// One-shot failures, cleared once returned.
	ReadError  error
	WriteError error

	// ShortWrite reports one byte fewer than written.
	ShortWrite bool
	CloseError error

	TimeoutWhenEmpty bool
	BlockReads       bool

	// Observed by tests.
	ReadCalls   int
	WriteCalls  int
	ReadTimeout time.Duration
}

// NewTestableSerialPort returns a port with input queued for reading.
func NewTestableSerialPort(input string) *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	p.rx.WriteString(input)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadCalls++

	if err := p.ReadError; err != nil {
		p.ReadError = nil
		return 0, err
	}
	for p.rx.Len() == 0 && !p.closed {
		switch {
		case p.BlockReads:
			p.cond.Wait()
		case p.TimeoutWhenEmpty:
			return 0, nil
		default:
			return 0, io.EOF
		}
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	return p.rx.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteCalls++

	if p.closed {
		return 0, ErrPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	n, _ := p.tx.Write(b)
	if p.ShortWrite && n > 0 {
		n--
	}
	return n, nil
}

// Close marks the port closed and wakes blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return p.CloseError
}

func (p *TestableSerialPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadTimeout = d
	return nil
}

// AddReadData queues more data for Read.
func (p *TestableSerialPort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx.WriteString(data)
	p.cond.Broadcast()
}

// WrittenData returns everything written so far.
func (p *TestableSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.String()
}

func (p *TestableSerialPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// MockOpenCall is one recorded call of a MockOpener.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// MockOpener returns an opener that records its calls and hands out port,
// or fails with err when err is set.
func MockOpener(port SerialPorter, err error) (SerialPortOpener, *[]MockOpenCall) {
	var mu sync.Mutex
	calls := &[]MockOpenCall{}
	open := func(path string, opts PortOptions) (SerialPorter, error) {
		mu.Lock()
		defer mu.Unlock()
		*calls = append(*calls, MockOpenCall{Path: path, Options: opts})
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	return open, calls
}
