package actuator

import (
	"errors"
	"testing"
)

type fakeActuator struct {
	idx       uint8
	regs      [256]byte
	reachable bool
	closed    bool
}

func (f *fakeActuator) ReadRegister(reg byte) (byte, error) { return f.regs[reg], nil }
func (f *fakeActuator) WriteRegister(reg byte, v byte) error {
	f.regs[reg] = v
	return nil
}
func (f *fakeActuator) Probe() bool  { return f.reachable }
func (f *fakeActuator) Close() error { f.closed = true; return nil }

func TestOpenPopulatesByDeviceIndex(t *testing.T) {
	opened := map[uint8]*fakeActuator{}
	opener := func(i uint8) (FuseActuator, error) {
		a := &fakeActuator{idx: i, reachable: true}
		opened[i] = a
		return a, nil
	}
	r, err := Open(0b0000_0000_0000_0101, opener) // devices 0 and 2
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.At(0) == nil || r.At(2) == nil {
		t.Fatal("expected devices 0 and 2 to be populated")
	}
	if r.At(1) != nil {
		t.Fatal("device 1 was not in the mask and must be nil")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !opened[0].closed || !opened[2].closed {
		t.Fatal("Close did not close opened handles")
	}
}

func TestOpenUnreachable(t *testing.T) {
	opener := func(i uint8) (FuseActuator, error) {
		return &fakeActuator{idx: i, reachable: false}, nil
	}
	_, err := Open(0b1, opener)
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("want *UnreachableError, got %v", err)
	}
	if unreachable.DeviceIndex != 0 {
		t.Fatalf("DeviceIndex = %d, want 0", unreachable.DeviceIndex)
	}
}

func TestOpenInitFailed(t *testing.T) {
	wantErr := errors.New("bus busy")
	opener := func(i uint8) (FuseActuator, error) {
		return nil, wantErr
	}
	_, err := Open(0b1, opener)
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("want *InitError, got %v", err)
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error to match, got %v", err)
	}
}
