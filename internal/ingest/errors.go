// Package ingest turns frames read from the serial link into time sync
// responses and persisted sensor readings.
package ingest

import "errors"

var (
	// ErrLinkUnavailable means the serial device could not be opened.
	ErrLinkUnavailable = errors.New("serial link unavailable")
	// ErrLinkRead means reading from an open link failed. There is no
	// reconnect, so it ends ingestion.
	ErrLinkRead = errors.New("serial link read failed")
	// ErrMalformedPacket covers frames that cannot be classified and data
	// packets with fields that cannot be decoded.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrDirectoryLookup means the sensor directory could not be queried.
	ErrDirectoryLookup = errors.New("sensor directory lookup failed")
	// ErrPersistence means a packet's readings could not be committed. None
	// of them were stored.
	ErrPersistence = errors.New("failed to persist readings")
	// ErrTimeSync means the time response could not be written back.
	ErrTimeSync = errors.New("failed to send time sync response")
)
