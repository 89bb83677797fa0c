package fuseplayer

import "time"

// runDriver is the engine's single dedicated loop goroutine. It reacts to
// submitted commands as soon as they arrive rather than only at tick
// boundaries — a select over the request channel and the ticker channel
// gives commands sub-quantum latency for free, without needing a separate
// condition variable: Go's channel select already is that primitive.
// Ticks remain on the TimeResolutionMs cadence, which quantizes dispatch.
func (e *Engine) runDriver() {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Duration(e.cfg.TimeResolutionMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-e.requestCh:
			e.applyCommand(cmd)
			// Do not wait for the next tick before checking for another
			// command.
			continue
		case <-e.done:
			return
		case <-ticker.C:
		}

		if e.IsPaused() {
			continue
		}
		if !e.IsPlaying() {
			continue
		}
		e.tick(e.clock.NowMs(), e.dispatchEvent)
	}
}

// applyCommand performs the state transition cmd requests and then
// releases the caller (and any attached external barrier) via the
// handshake. Command priority across multiple pending commands is moot
// here: the single-slot mailbox guarantees only one command is ever in
// flight.
func (e *Engine) applyCommand(cmd *pendingCommand) {
	now := e.clock.NowMs()
	switch cmd.kind {
	case cmdPlay:
		e.applyPlay(now)
	case cmdPause:
		e.applyPause(now)
	case cmdStop:
		e.applyStop(now)
	case cmdJump:
		e.applyJump(now, cmd.jumpMs)
	}
	cmd.rendezvous()
}

// dispatchEvent signals the worker for eventIndex. The driver does not
// wait for the worker to finish lighting/extinguishing before returning:
// the next event may dispatch before the previous one's extinguish
// completes.
func (e *Engine) dispatchEvent(eventIndex int) {
	e.workers[eventIndex].signal()
}
