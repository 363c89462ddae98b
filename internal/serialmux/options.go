package serialmux

import (
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the coordinator node's fixed link speed.
const DefaultBaudRate = 115200

var baudRates = []int{
	110, 300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800,
	38400, 57600, 115200, 128000, 230400, 256000,
}

// parities maps every accepted spelling to the canonical letter and the
// go.bug.st/serial constant.
var parities = map[string]struct {
	letter string
	mode   serial.Parity
}{
	"N": {"N", serial.NoParity}, "NONE": {"N", serial.NoParity},
	"E": {"E", serial.EvenParity}, "EVEN": {"E", serial.EvenParity},
	"O": {"O", serial.OddParity}, "ODD": {"O", serial.OddParity},
}

// PortOptions are the line settings of the link, as configured in the
// serial section of the receiver configuration. Zero values take the
// coordinator defaults (115200 8N1).
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalise fills in defaults and rejects settings the port cannot use.
// Parity comes back as a single letter: N, E or O.
func (o PortOptions) Normalise() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if !slices.Contains(baudRates, o.BaudRate) {
		return o, fmt.Errorf("baud rate %d is not a standard rate", o.BaudRate)
	}

	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("data bits must be 5-8, got %d", o.DataBits)
	}

	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits > 2 || o.StopBits < 1 {
		return o, fmt.Errorf("stop bits must be 1 or 2, got %d", o.StopBits)
	}

	key := strings.ToUpper(strings.TrimSpace(o.Parity))
	if key == "" {
		key = "N"
	}
	p, ok := parities[key]
	if !ok {
		return o, fmt.Errorf("parity %q not supported, use N, E or O", o.Parity)
	}
	o.Parity = p.letter
	return o, nil
}

// SerialMode returns the go.bug.st/serial mode for the normalised options.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalise()
	if err != nil {
		return nil, err
	}
	stop := serial.OneStopBit
	if n.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		Parity:   parities[n.Parity].mode,
		StopBits: stop,
	}, nil
}
