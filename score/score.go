// Package score decodes and encodes the binary fuse-sequence format: a
// small packed header followed by a flat array of timestamped ignition
// events. A Score is immutable once decoded.
package score

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxEventCount is the largest EventCount a header may declare.
	MaxEventCount = 128
	// MaxDeviceIndex and MaxFuseIndex bound the per-event device/fuse
	// selectors; each is one byte on the wire, limited to 0..15.
	MaxDeviceIndex = 15
	MaxFuseIndex   = 15

	headerSize = 7 // magic(4) + eventCount(1) + deviceMask(2)
	eventSize  = 8 // timestamp(4) + deviceIndex(1) + fuseIndex(1) + reserved(2)
)

var magic = [4]byte{'F', 'U', 'S', 'E'}

// Sentinel errors returned (wrapped) by Decode.
var (
	ErrInvalidMagic = errors.New("invalid magic")
	ErrTruncated    = errors.New("truncated score")
	ErrEventCount   = errors.New("event count out of range")
	ErrBadDeviceBit = errors.New("device index not present in device mask")
	ErrIndexRange   = errors.New("device or fuse index out of range")
	ErrUnsorted     = errors.New("events not sorted by ascending timestamp")
)

// Event is one scheduled ignition.
type Event struct {
	TimestampMs uint32
	DeviceIndex uint8
	FuseIndex   uint8
}

// Score is an immutable, validated in-memory sequence decoded from the
// wire format below.
type Score struct {
	DeviceMask uint16
	Events     []Event
}

// Decode parses and validates a raw score buffer. The returned error, if
// any, wraps one of the package's sentinel errors and is safe to compare
// with errors.Is.
func Decode(buf []byte) (*Score, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("score: %w: buffer shorter than header (%d bytes)", ErrTruncated, len(buf))
	}
	var gotMagic [4]byte
	copy(gotMagic[:], buf[0:4])
	if gotMagic != magic {
		return nil, fmt.Errorf("score: %w: got %q", ErrInvalidMagic, gotMagic)
	}
	eventCount := int(buf[4])
	if eventCount < 1 || eventCount > MaxEventCount {
		return nil, fmt.Errorf("score: %w: %d", ErrEventCount, eventCount)
	}
	deviceMask := binary.LittleEndian.Uint16(buf[5:7])

	wantLen := headerSize + eventCount*eventSize
	if len(buf) < wantLen {
		return nil, fmt.Errorf("score: %w: declared %d events need %d bytes, got %d", ErrTruncated, eventCount, wantLen, len(buf))
	}

	events := make([]Event, eventCount)
	var prevTs uint32
	for i := 0; i < eventCount; i++ {
		off := headerSize + i*eventSize
		ts := binary.LittleEndian.Uint32(buf[off : off+4])
		dev := buf[off+4]
		fuse := buf[off+5]
		if dev > MaxDeviceIndex || fuse > MaxFuseIndex {
			return nil, fmt.Errorf("score: %w: event %d has device=%d fuse=%d", ErrIndexRange, i, dev, fuse)
		}
		if deviceMask&(1<<dev) == 0 {
			return nil, fmt.Errorf("score: %w: event %d references device %d", ErrBadDeviceBit, i, dev)
		}
		if i > 0 && ts < prevTs {
			return nil, fmt.Errorf("score: %w: event %d has timestamp %d after %d", ErrUnsorted, i, ts, prevTs)
		}
		prevTs = ts
		events[i] = Event{TimestampMs: ts, DeviceIndex: dev, FuseIndex: fuse}
	}

	return &Score{DeviceMask: deviceMask, Events: events}, nil
}

// Encode serializes s back to the wire format, writing 0xFF 0xFF into each
// event's reserved bytes. Encode(Decode(buf)) is byte-identical to buf for
// any accepted buf whose reserved bytes are 0xFF 0xFF and that carries no
// trailing bytes; Decode ignores both, so Encode does not reproduce them.
func (s *Score) Encode() []byte {
	n := len(s.Events)
	buf := make([]byte, headerSize+n*eventSize)
	copy(buf[0:4], magic[:])
	buf[4] = uint8(n)
	binary.LittleEndian.PutUint16(buf[5:7], s.DeviceMask)
	for i, e := range s.Events {
		off := headerSize + i*eventSize
		binary.LittleEndian.PutUint32(buf[off:off+4], e.TimestampMs)
		buf[off+4] = e.DeviceIndex
		buf[off+5] = e.FuseIndex
		buf[off+6] = 0xFF
		buf[off+7] = 0xFF
	}
	return buf
}

// TotalDurationMs is the score's total playback length given a fuse hold
// time: the last event's timestamp plus the time it stays lit. The score
// alone doesn't carry fuseDurationMs (that's an engine-level setting), so
// this is computed on demand rather than stored on Score.
func (s *Score) TotalDurationMs(fuseDurationMs uint16) uint32 {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].TimestampMs + uint32(fuseDurationMs)
}

// NextEventAt returns the index of the first event whose TimestampMs is
// greater than or equal to ms, or len(Events) if none qualifies.
func (s *Score) NextEventAt(ms uint32) int {
	for i, e := range s.Events {
		if e.TimestampMs >= ms {
			return i
		}
	}
	return len(s.Events)
}
