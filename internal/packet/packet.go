// Package packet classifies frames received from the coordinator node.
//
// A data packet is a line of exactly twelve whitespace separated tokens:
//
//	SENDER_ID NETWORK_ID VOLTAGE LIGHT NUM_TEMP TEMP_1 TEMP_2 TEMP_3 TEMP_4 TEMP_5 NUM_READINGS RSSI
//
// Any frame containing the marker TIME is a request for the current time.
package packet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TimeRequestMarker marks a frame as a time synchronisation request.
const TimeRequestMarker = "TIME"

// FieldCount is the exact number of tokens in a data packet.
const FieldCount = 12

// Field offsets within a data packet.
const (
	FieldSenderID = iota
	FieldNetworkID
	FieldVoltage
	FieldLight
	FieldNumTemp
	FieldTemp1
	FieldTemp2
	FieldTemp3
	FieldTemp4
	FieldTemp5
	FieldNumReadings
	FieldRSSI
)

// ErrNotFinite is returned by Float for NaN and infinite tokens.
var ErrNotFinite = errors.New("value is not finite")

// MaxTempSensors is the number of temperature slots in a packet.
const MaxTempSensors = 5

// Kind is the classification of a frame.
type Kind int

const (
	Unrecognized Kind = iota
	TimeSyncRequest
	Data
)

func (k Kind) String() string {
	switch k {
	case TimeSyncRequest:
		return "time_sync"
	case Data:
		return "data"
	default:
		return "unrecognized"
	}
}

// DataPacket holds the positional tokens of a data frame. Tokens are kept as
// received; numeric decoding happens when a field is used.
type DataPacket struct {
	Fields [FieldCount]string
}

// Classification is the result of Classify. Packet is set only for Data.
type Classification struct {
	Kind   Kind
	Frame  string
	Packet *DataPacket
}

// Classify sorts a frame into a time request, a data packet or an
// unrecognized frame. The TIME marker wins over the token count.
func Classify(frame string) Classification {
	if strings.Contains(frame, TimeRequestMarker) {
		return Classification{Kind: TimeSyncRequest, Frame: frame}
	}

	tokens := strings.Fields(frame)
	if len(tokens) != FieldCount {
		return Classification{Kind: Unrecognized, Frame: frame}
	}

	p := &DataPacket{}
	copy(p.Fields[:], tokens)
	return Classification{Kind: Data, Frame: frame, Packet: p}
}

// SenderID returns the raw sender (node) token.
func (p *DataPacket) SenderID() string { return p.Fields[FieldSenderID] }

// NetworkID returns the raw network token.
func (p *DataPacket) NetworkID() string { return p.Fields[FieldNetworkID] }

// Voltage returns the raw voltage token.
func (p *DataPacket) Voltage() string { return p.Fields[FieldVoltage] }

// RSSI returns the raw signal strength token.
func (p *DataPacket) RSSI() string { return p.Fields[FieldRSSI] }

// Temp returns the raw token of temperature slot order (1-5).
func (p *DataPacket) Temp(order int) (string, error) {
	if order < 1 || order > MaxTempSensors {
		return "", fmt.Errorf("temperature order %d out of range [1,%d]", order, MaxTempSensors)
	}
	return p.Fields[FieldNumTemp+order], nil
}

// Float parses field i as a finite float64.
func (p *DataPacket) Float(i int) (float64, error) {
	if i < 0 || i >= FieldCount {
		return 0, fmt.Errorf("field %d out of range", i)
	}
	v, err := strconv.ParseFloat(p.Fields[i], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse field %d (%q): %w", i, p.Fields[i], err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("field %d (%q): %w", i, p.Fields[i], ErrNotFinite)
	}
	return v, nil
}

// Node parses the sender and network tokens as the node identity.
func (p *DataPacket) Node() (nodeID, networkID int64, err error) {
	if nodeID, err = strconv.ParseInt(p.SenderID(), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse sender id %q: %w", p.SenderID(), err)
	}
	if networkID, err = strconv.ParseInt(p.NetworkID(), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse network id %q: %w", p.NetworkID(), err)
	}
	return nodeID, networkID, nil
}

func (p *DataPacket) String() string {
	return strings.Join(p.Fields[:], " ")
}
