package serialmux

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port the mux needs. Tests substitute
// TestableSerialPort.
type SerialPorter interface {
	io.ReadWriteCloser
}

// TimeoutSerialPorter is a port with a read deadline. When it elapses with
// nothing received, Read returns (0, nil); go.bug.st/serial ports behave
// this way.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortOpener opens the device at path.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)

// OpenRealPort opens a physical serial port with go.bug.st/serial.
func OpenRealPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Open opens the device at path using open and wraps it in a SerialMux. A
// positive readTimeout is applied to ports that support it so ReadFrame
// returns ErrReadTimeout instead of blocking forever.
func Open(path string, opts PortOptions, readTimeout time.Duration, open SerialPortOpener) (*SerialMux[SerialPorter], error) {
	if open == nil {
		open = OpenRealPort
	}

	port, err := open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	mux := NewSerialMux(port)
	if readTimeout > 0 {
		if err := mux.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
		}
	}
	return mux, nil
}
