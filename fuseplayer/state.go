package fuseplayer

// Playback state is mutated exclusively by the engine driver goroutine;
// stateMu exists only so query methods called from arbitrary caller
// goroutines can take a consistent snapshot rather than exposing the
// fields raw.

// applyPlay realizes the Stopped/Paused -> Playing transitions. Called
// only from the driver goroutine.
func (e *Engine) applyPlay(now int64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.isPaused {
		e.startMs += now - e.pauseStartedMs
	} else {
		e.startMs = now
	}
	e.isPlaying = true
	e.isPaused = false
}

// applyPause realizes Playing -> Paused. Preconditions are checked by the
// caller-facing Pause method before the command is ever submitted, so by
// the time this runs the transition is known-valid.
func (e *Engine) applyPause(now int64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.pauseStartedMs = now
	e.isPlaying = false
	e.isPaused = true
}

// applyStop realizes any-state -> Stopped, used both for explicit Stop
// commands and for auto-stop when the score is exhausted.
func (e *Engine) applyStop(now int64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.startMs = now
	e.pauseStartedMs = now
	e.nextEventIndex = 0
	e.isPlaying = false
	e.isPaused = false
}

// applyJump realizes the jump transition: startMs is rebased so that
// "now - startMs" reads as ms, and nextEventIndex is set to the first
// event at or after ms (score length if none qualifies, which auto-stops
// on the next tick).
func (e *Engine) applyJump(now int64, ms uint32) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.startMs = now - int64(ms)
	e.nextEventIndex = e.sc.NextEventAt(ms)
}

// tick dispatches every event whose due time has elapsed, in ascending
// index order, and auto-stops once the score is exhausted. dispatch is
// called with the stateMu lock NOT held, so it may safely signal workers
// without risking a deadlock against a concurrent query.
func (e *Engine) tick(now int64, dispatch func(eventIndex int)) {
	for {
		e.stateMu.Lock()
		if e.nextEventIndex >= len(e.sc.Events) {
			e.stateMu.Unlock()
			// A prior Jump may have staged nextEventIndex at or past the
			// end of the score with no event left to dispatch; nothing
			// in the dispatch loop below will ever run applyStop in that
			// case, so it has to happen here instead.
			e.applyStop(now)
			return
		}
		due := e.sc.Events[e.nextEventIndex].TimestampMs
		elapsed := now - e.startMs
		if elapsed < 0 || uint32(elapsed) < due {
			e.stateMu.Unlock()
			return
		}
		idx := e.nextEventIndex
		e.nextEventIndex++
		autoStop := e.nextEventIndex == len(e.sc.Events)
		e.stateMu.Unlock()

		dispatch(idx)

		if autoStop {
			e.applyStop(now)
			return
		}
	}
}

// IsPlaying reports whether the engine is currently playing.
func (e *Engine) IsPlaying() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.isPlaying
}

// IsPaused reports whether the engine is currently paused.
func (e *Engine) IsPaused() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.isPaused
}

// CurrentTimeMs returns the playback position: now-startMs while playing,
// the frozen position at the moment pause began while paused, or 0 while
// stopped. Computed on demand from the clock rather than cached.
func (e *Engine) CurrentTimeMs() uint32 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	switch {
	case e.isPlaying:
		return clampMs(e.clock.NowMs() - e.startMs)
	case e.isPaused:
		return clampMs(e.pauseStartedMs - e.startMs)
	default:
		return 0
	}
}

// TotalDurationMs returns the score's total playback length.
func (e *Engine) TotalDurationMs() uint32 {
	return e.totalDurationMs
}

func clampMs(ms int64) uint32 {
	if ms < 0 {
		return 0
	}
	return uint32(ms)
}
