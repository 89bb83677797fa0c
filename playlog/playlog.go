// Package playlog records a playback session's dispatched ignitions to a
// compact CBOR stream for post-show diagnostics and replay: a small
// binary record per ignition, not a human log line.
package playlog

import (
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Entry is one recorded ignition attempt.
type Entry struct {
	// SequenceMs is the event's score-time offset.
	SequenceMs uint32 `cbor:"t"`
	// DeviceIndex and FuseIndex identify which fuse was driven.
	DeviceIndex uint8 `cbor:"d"`
	FuseIndex   uint8 `cbor:"f"`
	// Error is the ignition error's message, empty on success.
	Error string `cbor:"e,omitempty"`
}

// Writer appends CBOR-encoded Entry records to an underlying stream. It is
// safe to share across concurrent callers: Record serializes its own
// access, since the engine dispatches events to several worker goroutines
// that may call it at the same time.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewWriter returns a Writer that appends one CBOR item per Record call to
// w, suitable for streaming decode with cbor.NewDecoder in sequence.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: cbor.NewEncoder(w)}
}

// Record appends entry to the stream.
func (w *Writer) Record(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(entry)
}

// ReadAll decodes every Entry from r, in order, until EOF.
func ReadAll(r io.Reader) ([]Entry, error) {
	dec := cbor.NewDecoder(r)
	var entries []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			return entries, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
