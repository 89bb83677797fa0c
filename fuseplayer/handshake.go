package fuseplayer

// commandKind identifies which transport transition a pendingCommand
// requests. Because the Command Lock (Engine.cmdMu) is held by the caller
// for the whole duration of a command, at most one pendingCommand is ever
// in flight: a single-slot mailbox realized as an unbuffered channel
// rather than a bag of mutually exclusive boolean flags, removing the
// "what if two flags are set" priority question by construction.
type commandKind int

const (
	cmdPlay commandKind = iota
	cmdPause
	cmdStop
	cmdJump
)

// pendingCommand is the mailbox payload: one transport request plus the
// rendezvous points the engine driver signals once it has applied the
// transition.
type pendingCommand struct {
	kind     commandKind
	jumpMs   uint32
	external Barrier
	internal *Rendezvous
}

// submit hands cmd to the driver goroutine via the request channel and
// blocks until the driver has applied it. Callers must hold e.cmdMu.
// It returns false only if the engine was closed before the driver could
// pick the command up.
func (e *Engine) submit(kind commandKind, jumpMs uint32, external Barrier) bool {
	internal := NewRendezvous(2)
	cmd := &pendingCommand{kind: kind, jumpMs: jumpMs, external: external, internal: internal}
	select {
	case e.requestCh <- cmd:
	case <-e.done:
		return false
	}
	internal.Wait()
	return true
}

// rendezvous is called by the driver goroutine after applying cmd. It
// releases the caller (and, if present, a third-party observer) at the
// exact moment the transition has taken effect.
func (cmd *pendingCommand) rendezvous() {
	cmd.internal.Wait()
	if cmd.external != nil {
		cmd.external.Wait()
	}
}
