package serialfuse

import (
	"bytes"
	"testing"
)

// fakeConn is an in-memory io.ReadWriteCloser standing in for a relay
// board: it decodes the 2/3-byte request frames Device writes and answers
// reads from an internal register file, the way a real board's firmware
// would over the wire.
type fakeConn struct {
	regs   [256]byte
	pend   bytes.Buffer
	closed bool
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.pend.Write(p)
	for {
		switch {
		case f.pend.Len() >= 3 && f.pend.Bytes()[0] == opWrite:
			b := f.pend.Next(3)
			f.regs[b[1]] = b[2]
		case f.pend.Len() >= 2 && f.pend.Bytes()[0] == opRead:
			// Leave the request buffered; Read will consume it and
			// produce the reply directly from regs.
			return len(p), nil
		default:
			return len(p), nil
		}
	}
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.pend.Len() >= 2 && f.pend.Bytes()[0] == opRead {
		b := f.pend.Next(2)
		p[0] = f.regs[b[1]]
		return 1, nil
	}
	return 0, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestDeviceWriteThenRead(t *testing.T) {
	conn := &fakeConn{}
	d := newDevice(conn)

	if err := d.WriteRegister(0x14, 0b1100_0000); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	got, err := d.ReadRegister(0x14)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if got != 0b1100_0000 {
		t.Fatalf("got %08b, want %08b", got, 0b1100_0000)
	}
}

func TestDeviceProbeAndClose(t *testing.T) {
	conn := &fakeConn{}
	d := newDevice(conn)
	if !d.Probe() {
		t.Fatal("Probe returned false on a healthy connection")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conn.closed {
		t.Fatal("Close did not close the underlying connection")
	}
}
