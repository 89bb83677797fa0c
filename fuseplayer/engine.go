// Package fuseplayer implements the sequence-playback engine: the
// monotonic-clock-driven state machine that interprets a decoded score,
// schedules ignitions across a fleet of per-event workers, and accepts
// asynchronous transport commands from arbitrary goroutines while its
// driver loop runs, synchronizing command handoff via rendezvous so
// callers know exactly when a requested transition has taken effect.
package fuseplayer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/CR1337/rl-fuse-player/actuator"
	"github.com/CR1337/rl-fuse-player/clock"
	"github.com/CR1337/rl-fuse-player/playlog"
	"github.com/CR1337/rl-fuse-player/score"
	"github.com/CR1337/rl-fuse-player/scoresig"
)

// Config configures a new Engine. ScoreBytes and Opener are required;
// FuseDurationMs and TimeResolutionMs must be non-zero.
type Config struct {
	// ScoreBytes is the raw score, optionally signed (see
	// RequireSignedScore).
	ScoreBytes []byte
	// Opener obtains a FuseActuator for a given device index; see
	// driver/mcp23008 and driver/serialfuse for concrete implementations.
	Opener actuator.Opener
	// FuseDurationMs is how long a fuse stays lit, 1..65535.
	FuseDurationMs uint16
	// TimeResolutionMs is the driver's quantum, 1..1_000_000.
	TimeResolutionMs uint32
	// RequireSignedScore, if true, verifies a scoresig trailer on
	// ScoreBytes before decoding and rejects the score outright if the
	// digest doesn't match.
	RequireSignedScore bool
	// Log receives diagnostic messages; defaults to log.Default().
	Log *log.Logger
	// EventLog, if set, receives a CBOR record (via playlog) of every
	// dispatched ignition, successful or not.
	EventLog io.Writer
	// Clock overrides the time source; defaults to a fresh
	// clock.Monotonic. The driver's tick cadence and the workers' hold
	// time still run on real time whatever Clock is set.
	Clock clock.Clock
}

// Engine is the sequence-playback engine. The zero Engine is not usable;
// construct one with New.
type Engine struct {
	cfg      Config
	sc       *score.Score
	registry *actuator.Registry
	clock    clock.Clock
	log      *log.Logger
	playLog  *playlog.Writer

	workers []*worker
	wg      sync.WaitGroup

	cmdMu     sync.Mutex
	requestCh chan *pendingCommand
	done      chan struct{}
	closed    atomic.Bool

	// disabled is set when construction hit a fatal error: the engine
	// handle is still returned and queryable, but every transport command
	// is a no-op.
	disabled atomic.Bool

	errRec atomic.Pointer[ErrorRecord]

	stateMu         sync.RWMutex
	isPlaying       bool
	isPaused        bool
	startMs         int64
	pauseStartedMs  int64
	nextEventIndex  int
	totalDurationMs uint32
}

// New validates cfg, decodes and opens every actuator the score needs,
// spawns the worker pool and the driver goroutine, and returns the
// running Engine.
//
// On a fatal construction error (bad score, unreachable actuator), New
// still returns a non-nil Engine whose LastError reports the failure and
// whose transport commands are all no-ops, so a caller can inspect why
// construction failed without a second round trip. The returned error is
// non-nil in exactly that case, so ordinary callers that do
// `if err != nil { return }` behave correctly too.
func New(cfg Config) (*Engine, error) {
	e := &Engine{cfg: cfg}
	e.resetError()

	if cfg.Log != nil {
		e.log = cfg.Log
	} else {
		e.log = log.Default()
	}
	if cfg.Clock != nil {
		e.clock = cfg.Clock
	} else {
		e.clock = clock.NewMonotonic()
	}
	if cfg.EventLog != nil {
		e.playLog = playlog.NewWriter(cfg.EventLog)
	}

	scoreBytes := cfg.ScoreBytes
	if cfg.RequireSignedScore {
		stripped, err := scoresig.Verify(scoreBytes)
		if err != nil {
			e.latch(InvalidScoreSignature, Error, nil)
			e.disabled.Store(true)
			return e, fmt.Errorf("fuseplayer: %w", err)
		}
		scoreBytes = stripped
	}

	sc, err := score.Decode(scoreBytes)
	if err != nil {
		e.latchDecodeError(err)
		e.disabled.Store(true)
		return e, fmt.Errorf("fuseplayer: %w", err)
	}
	e.sc = sc
	e.totalDurationMs = sc.TotalDurationMs(cfg.FuseDurationMs)

	registry, err := actuator.Open(sc.DeviceMask, cfg.Opener)
	if err != nil {
		e.latch(ActuatorInitFailed, Error, err)
		e.disabled.Store(true)
		registry.Close()
		return e, fmt.Errorf("fuseplayer: %w", err)
	}
	e.registry = registry

	e.workers = make([]*worker, len(sc.Events))
	e.wg.Add(len(sc.Events))
	for i, ev := range sc.Events {
		act := registry.At(ev.DeviceIndex)
		w := newWorker(i, ev, act, cfg.FuseDurationMs, e.onIgnite)
		e.workers[i] = w
		go w.run(&e.wg)
	}

	e.requestCh = make(chan *pendingCommand)
	e.done = make(chan struct{})
	e.wg.Add(1)
	go e.runDriver()

	return e, nil
}

func (e *Engine) latchDecodeError(err error) {
	switch {
	case errors.Is(err, score.ErrInvalidMagic):
		e.latch(InvalidMagic, Error, nil)
	case errors.Is(err, score.ErrTruncated):
		e.latch(TruncatedScore, Error, nil)
	case errors.Is(err, score.ErrUnsorted):
		e.latch(MalformedScore, Error, nil)
	default:
		e.latch(TruncatedScore, Error, nil)
	}
}

// onIgnite is the worker completion callback: it latches bus errors on
// the error surface and, if an event log was configured, records the
// attempt.
func (e *Engine) onIgnite(idx int, ev score.Event, err error) {
	if err != nil {
		e.latch(ActuatorBusError, Error, err)
		e.log.Printf("fuseplayer: event %d (device=%d fuse=%d): %v", idx, ev.DeviceIndex, ev.FuseIndex, err)
	}
	if e.playLog == nil {
		return
	}
	entry := playlog.Entry{
		SequenceMs:  ev.TimestampMs,
		DeviceIndex: ev.DeviceIndex,
		FuseIndex:   ev.FuseIndex,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if werr := e.playLog.Record(entry); werr != nil {
		e.log.Printf("fuseplayer: event log write failed: %v", werr)
	}
}

// Play transitions Stopped/Paused -> Playing. It returns false with
// AlreadyPlaying latched if the engine is already playing.
func (e *Engine) Play(barrier Barrier) bool {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.resetError()
	if e.disabled.Load() {
		return false
	}
	if e.IsPlaying() {
		e.latch(AlreadyPlaying, Warning, nil)
		return false
	}
	return e.submit(cmdPlay, 0, barrier)
}

// Pause transitions Playing -> Paused. It returns false with
// AlreadyPaused latched if the engine is not currently playing.
func (e *Engine) Pause(barrier Barrier) bool {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.resetError()
	if e.disabled.Load() {
		return false
	}
	if !e.IsPlaying() {
		e.latch(AlreadyPaused, Warning, nil)
		return false
	}
	return e.submit(cmdPause, 0, barrier)
}

// Stop transitions unconditionally to Stopped, resetting nextEventIndex to
// 0. Stop; Stop is idempotent: the second call observes the same Stopped
// state and performs the same reset.
func (e *Engine) Stop(barrier Barrier) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.resetError()
	if e.disabled.Load() {
		return
	}
	e.submit(cmdStop, 0, barrier)
}

// Jump unconditionally restages playback position to ms, latching
// JumpedBeyondEnd (but still applying the jump) if ms exceeds
// TotalDurationMs.
func (e *Engine) Jump(barrier Barrier, ms uint32) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.resetError()
	if e.disabled.Load() {
		return
	}
	if ms > e.totalDurationMs {
		e.latch(JumpedBeyondEnd, Warning, nil)
	}
	e.submit(cmdJump, ms, barrier)
}

// Close halts every worker and the driver loop, joins all goroutines, and
// releases the actuator registry. Close is idempotent and safe to call on
// a disabled Engine (one returned alongside a non-nil error from New).
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.disabled.Load() {
		if e.registry != nil {
			return e.registry.Close()
		}
		return nil
	}
	close(e.done)
	for _, w := range e.workers {
		w.haltAndWake()
	}
	e.wg.Wait()
	return e.registry.Close()
}
