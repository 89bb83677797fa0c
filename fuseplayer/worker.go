package fuseplayer

import (
	"sync"
	"time"

	"github.com/CR1337/rl-fuse-player/actuator"
	"github.com/CR1337/rl-fuse-player/score"
)

// fuseRegisterMasks maps fuseIndex%4 to the two-bit mask that fuse occupies
// within its register (MCP-23008-style GPIO expander: four fuses packed
// two bits each into one 8-bit register).
var fuseRegisterMasks = [4]byte{
	0b0000_0011,
	0b0000_1100,
	0b0011_0000,
	0b1100_0000,
}

const fuseRegisterBase = 0x14

func fuseRegister(fuseIndex uint8) (reg byte, mask byte) {
	reg = fuseRegisterBase + fuseIndex/4
	mask = fuseRegisterMasks[fuseIndex%4]
	return
}

// worker is one cooperative goroutine per score event, not per fuse, so
// that overlapping events on different fuses queue independently
// (overlapping events on the *same* fuse are assumed not to occur). It
// owns its own condition-guarded latch; the event index and actuator
// reference are captured by value in the worker struct, never through a
// pointer that could outlive its frame.
type worker struct {
	index          int
	event          score.Event
	act            actuator.FuseActuator
	fuseDurationMs uint16

	mu        sync.Mutex
	cond      *sync.Cond
	scheduled bool
	halt      bool

	onIgnite func(idx int, event score.Event, err error)
}

func newWorker(idx int, ev score.Event, act actuator.FuseActuator, fuseDurationMs uint16, onIgnite func(int, score.Event, error)) *worker {
	w := &worker{
		index:          idx,
		event:          ev,
		act:            act,
		fuseDurationMs: fuseDurationMs,
		onIgnite:       onIgnite,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// signal latches this worker's event as due, waking it if it is parked.
func (w *worker) signal() {
	w.mu.Lock()
	w.scheduled = true
	w.cond.Signal()
	w.mu.Unlock()
}

// haltAndWake tells the worker to exit at its next wakeup.
func (w *worker) haltAndWake() {
	w.mu.Lock()
	w.halt = true
	w.cond.Signal()
	w.mu.Unlock()
}

// run is the worker's cooperative loop: wait for the signal, light, hold,
// extinguish, repeat until halted.
func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		w.mu.Lock()
		for !w.scheduled && !w.halt {
			w.cond.Wait()
		}
		if w.halt {
			w.mu.Unlock()
			return
		}
		w.scheduled = false
		w.mu.Unlock()

		w.fire()
	}
}

func (w *worker) fire() {
	lightErr := w.setFuse(true)
	time.Sleep(time.Duration(w.fuseDurationMs) * time.Millisecond)
	extinguishErr := w.setFuse(false)

	if w.onIgnite == nil {
		return
	}
	err := lightErr
	if err == nil {
		err = extinguishErr
	}
	w.onIgnite(w.index, w.event, err)
}

// setFuse performs the read-modify-write register update for lighting
// (light=true) or extinguishing (light=false) this worker's fuse,
// preserving neighboring fuses packed into the same register. Bus errors
// are retried a bounded number of times with exponential backoff before
// being surfaced as terminal.
func (w *worker) setFuse(light bool) error {
	reg, mask := fuseRegister(w.event.FuseIndex)
	const maxAttempts = 3
	backoff := 5 * time.Millisecond
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = w.writeFuseRegister(reg, mask, light)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (w *worker) writeFuseRegister(reg, mask byte, light bool) error {
	v, err := w.act.ReadRegister(reg)
	if err != nil {
		return err
	}
	v &^= mask
	if light {
		v |= mask
	}
	return w.act.WriteRegister(reg, v)
}
