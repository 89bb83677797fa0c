package fuseplayer

import "fmt"

// Level is the severity of a latched ErrorRecord.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Kind identifies the taxonomy of errors and warnings the engine can
// latch.
type Kind int

const (
	NoError Kind = iota
	AlreadyPlaying
	AlreadyPaused
	JumpedBeyondEnd
	InvalidMagic
	TruncatedScore
	MalformedScore
	ActuatorInitFailed
	ActuatorBusError
	AllocationFailed
	InvalidScoreSignature
)

func (k Kind) String() string {
	switch k {
	case NoError:
		return "no error"
	case AlreadyPlaying:
		return "fuses are already playing"
	case AlreadyPaused:
		return "fuses are already paused"
	case JumpedBeyondEnd:
		return "jumped beyond end of fuses"
	case InvalidMagic:
		return "FUSE magic is invalid"
	case TruncatedScore:
		return "score buffer is truncated"
	case MalformedScore:
		return "score events are not sorted by ascending timestamp"
	case ActuatorInitFailed:
		return "actuator initialization failed"
	case ActuatorBusError:
		return "actuator bus error"
	case AllocationFailed:
		return "memory allocation failed"
	case InvalidScoreSignature:
		return "score signature verification failed"
	default:
		return "unknown error"
	}
}

// ErrorRecord is the typed, leveled error readable after any public
// operation.
type ErrorRecord struct {
	Kind        Kind
	Level       Level
	ActuatorErr error
}

// String renders a human-readable message, delegating to the wrapped
// actuator error's own string when one is present.
func (e ErrorRecord) String() string {
	if e.Kind == ActuatorBusError && e.ActuatorErr != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.ActuatorErr)
	}
	return e.Kind.String()
}

var noErrorRecord = ErrorRecord{Kind: NoError, Level: Info}

// resetError clears the error surface at the start of a public operation.
func (e *Engine) resetError() {
	rec := noErrorRecord
	e.errRec.Store(&rec)
}

// latch records kind/level (and, for ActuatorBusError, the wrapped cause)
// on the error surface.
func (e *Engine) latch(kind Kind, level Level, actuatorErr error) {
	rec := ErrorRecord{Kind: kind, Level: level, ActuatorErr: actuatorErr}
	e.errRec.Store(&rec)
}

// LastError returns the most recently latched error. The read is
// lock-free (atomic.Pointer) and may race benignly with a concurrent
// latch from the driver goroutine between quanta; it is intended for
// diagnostics, not control flow.
func (e *Engine) LastError() ErrorRecord {
	if rec := e.errRec.Load(); rec != nil {
		return *rec
	}
	return noErrorRecord
}
