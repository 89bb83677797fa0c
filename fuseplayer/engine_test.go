package fuseplayer

import (
	"sync"
	"testing"
	"time"

	"github.com/CR1337/rl-fuse-player/actuator"
	"github.com/CR1337/rl-fuse-player/score"
)

// fakeBus is an in-memory actuator.FuseActuator that records every
// register write, enabling deterministic assertions about the
// light/extinguish register sequence without real hardware.
type fakeBus struct {
	mu      sync.Mutex
	regs    [256]byte
	writes  []byte // register values written to 0x14, in order
	readErr error
}

func (f *fakeBus) ReadRegister(reg byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.regs[reg], nil
}

func (f *fakeBus) WriteRegister(reg byte, v byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[reg] = v
	if reg == 0x14 {
		f.writes = append(f.writes, v)
	}
	return nil
}

func (f *fakeBus) Probe() bool { return true }

func (f *fakeBus) snapshot() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func scoreBytes(t *testing.T, mask uint16, events []score.Event) []byte {
	t.Helper()
	sc := &score.Score{DeviceMask: mask, Events: events}
	return sc.Encode()
}

func newTestEngine(t *testing.T, bus *fakeBus, events []score.Event) *Engine {
	t.Helper()
	buf := scoreBytes(t, 0x0001, events)
	e, err := New(Config{
		ScoreBytes:       buf,
		Opener:           func(uint8) (actuator.FuseActuator, error) { return bus, nil },
		FuseDurationMs:   200,
		TimeResolutionMs: 10,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestSmokePlay(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
		{TimestampMs: 500, DeviceIndex: 0, FuseIndex: 3},
	})
	if !e.Play(nil) {
		t.Fatal("Play returned false")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.IsPlaying() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if e.IsPlaying() {
		t.Fatal("engine did not auto-stop")
	}
	// Auto-stop happens as soon as the last event is dispatched; that
	// event's extinguish lands fuseDurationMs later.
	for len(bus.snapshot()) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	writes := bus.snapshot()
	if len(writes) != 4 {
		t.Fatalf("got %d register writes, want 4: %#v", len(writes), writes)
	}
	if writes[0]&0b11 == 0 {
		t.Errorf("first write did not set fuse 0's bits: %08b", writes[0])
	}
	if writes[1]&0b11 != 0 {
		t.Errorf("second write did not clear fuse 0's bits: %08b", writes[1])
	}
	if writes[2]&0b11000000 == 0 {
		t.Errorf("third write did not set fuse 3's bits: %08b", writes[2])
	}
	if writes[3]&0b11000000 != 0 {
		t.Errorf("fourth write did not clear fuse 3's bits: %08b", writes[3])
	}
}

func TestPauseReclaim(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
		{TimestampMs: 500, DeviceIndex: 0, FuseIndex: 3},
	})
	start := time.Now()
	e.Play(nil)
	time.Sleep(200 * time.Millisecond)
	e.Pause(nil)
	time.Sleep(300 * time.Millisecond)
	e.Play(nil)

	deadline := time.Now().Add(3 * time.Second)
	// The third write is the second event's light.
	for len(bus.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	elapsed := time.Since(start)
	// Second event fires at 500 score-ms + 300 paused ms ~= 800ms real time.
	if elapsed < 700*time.Millisecond || elapsed > 1100*time.Millisecond {
		t.Fatalf("second event fired after %v, want ~800ms", elapsed)
	}
}

func TestJumpForward(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
		{TimestampMs: 500, DeviceIndex: 0, FuseIndex: 1},
		{TimestampMs: 1000, DeviceIndex: 0, FuseIndex: 2},
		{TimestampMs: 1500, DeviceIndex: 0, FuseIndex: 3},
	})
	e.Play(nil)
	time.Sleep(100 * time.Millisecond)
	e.Jump(nil, 1200)

	// The 0ms event fires before the jump; the 500ms and 1000ms events
	// must be skipped, so no write ever sets fuse 1's or fuse 2's bits.
	time.Sleep(100 * time.Millisecond)
	for _, w := range bus.snapshot() {
		if w&0b0011_1100 != 0 {
			t.Fatalf("write %08b shortly after jump set fuse 1 or 2 (events 1..2 must be skipped): %#v", w, bus.snapshot())
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(bus.snapshot()) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	writes := bus.snapshot()
	if len(writes) != 4 {
		t.Fatalf("got %d writes, want 4 (only the 0ms and 1500ms events): %#v", len(writes), writes)
	}
	if writes[2]&0b11000000 == 0 {
		t.Errorf("expected fuse 3's bits set, got %08b", writes[2])
	}
}

func TestJumpPastEndAutoStops(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
		{TimestampMs: 500, DeviceIndex: 0, FuseIndex: 1},
	})
	e.Play(nil)
	e.Jump(nil, 10_000) // past the last event

	deadline := time.Now().Add(2 * time.Second)
	for e.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if e.IsPlaying() {
		t.Fatal("engine did not auto-stop after a jump past the end of the score")
	}
	if n := len(bus.snapshot()); n != 0 {
		t.Fatalf("got %d writes, want 0 (no event lies at or after the jump target): %#v", n, bus.snapshot())
	}
}

func TestAlreadyPlayingWarning(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
	})
	if !e.Play(nil) {
		t.Fatal("first Play returned false")
	}
	if e.Play(nil) {
		t.Fatal("second Play returned true, want false")
	}
	if rec := e.LastError(); rec.Kind != AlreadyPlaying || rec.Level != Warning {
		t.Fatalf("LastError = %+v, want AlreadyPlaying/Warning", rec)
	}
	if !e.IsPlaying() {
		t.Fatal("first play was affected by the rejected second play")
	}
}

func TestInvalidMagicDisablesEngine(t *testing.T) {
	buf := []byte("FUSX\x01\x01\x00")
	e, err := New(Config{
		ScoreBytes:       buf,
		Opener:           func(uint8) (actuator.FuseActuator, error) { return &fakeBus{}, nil },
		FuseDurationMs:   200,
		TimeResolutionMs: 10,
	})
	if err == nil {
		t.Fatal("want non-nil error for invalid magic")
	}
	if rec := e.LastError(); rec.Kind != InvalidMagic || rec.Level != Error {
		t.Fatalf("LastError = %+v, want InvalidMagic/Error", rec)
	}
	if e.Play(nil) {
		t.Fatal("Play on a disabled engine must return false")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close on disabled engine: %v", err)
	}
}

func TestExternalBarrierSync(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
	})
	barrier := NewRendezvous(2)
	observed := make(chan bool, 1)
	go func() {
		barrier.Wait()
		observed <- e.IsPlaying()
	}()
	e.Play(barrier)
	if playing := <-observed; !playing {
		t.Fatal("observer saw isPlaying == false immediately after barrier release")
	}
}

func TestStopIdempotent(t *testing.T) {
	bus := &fakeBus{}
	e := newTestEngine(t, bus, []score.Event{
		{TimestampMs: 0, DeviceIndex: 0, FuseIndex: 0},
		{TimestampMs: 5000, DeviceIndex: 0, FuseIndex: 1},
	})
	e.Play(nil)
	time.Sleep(50 * time.Millisecond)
	e.Stop(nil)
	if e.IsPlaying() || e.IsPaused() {
		t.Fatal("engine not stopped after first Stop")
	}
	if got := e.CurrentTimeMs(); got != 0 {
		t.Fatalf("CurrentTimeMs after stop = %d, want 0", got)
	}
	e.Stop(nil)
	if e.IsPlaying() || e.IsPaused() {
		t.Fatal("engine not stopped after second Stop")
	}
	if got := e.CurrentTimeMs(); got != 0 {
		t.Fatalf("CurrentTimeMs after second stop = %d, want 0", got)
	}
}
