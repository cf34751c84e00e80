package reactor

import "github.com/google/uuid"

// Timer fires a callback exactly once after a configured delay. Cancellation
// is best-effort: if the timer has already been queued for dispatch when
// Cancel is called, the callback may still run.
type Timer struct {
	platformTimerState

	id       uuid.UUID
	reactor  *Reactor
	millis   int
	callback func(*Timer)
	state    *fastState // stateFresh (armed) / stateClosed (fired-or-cancelled)
}

const (
	timerArmed  = stateFresh
	timerClosed = stateClosed
)

// NewTimer arms a one-shot timer bound to reactor, firing callback after
// millis milliseconds. The callback runs on the reactor's thread.
func NewTimer(reactor *Reactor, millis int, callback func(*Timer)) (*Timer, error) {
	t := &Timer{
		id:       uuid.New(),
		reactor:  reactor,
		millis:   millis,
		callback: callback,
		state:    newFastState(timerArmed),
	}
	if err := reactor.armTimer(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel marks the timer cancelled. If the callback hasn't started
// dispatching yet, it never will. Idempotent.
func (t *Timer) Cancel() {
	if t.state.TryTransition(timerArmed, timerClosed) {
		t.reactor.cancelTimer(t)
	}
}

// fire is invoked by the Darwin and Windows backends when the timer
// expires (the Linux backend performs the same transition inline in its
// handleEvent). It transitions to closed and, unless cancellation already
// won the race, invokes the user callback on the reactor thread.
func (t *Timer) fire() {
	if !t.state.TryTransition(timerArmed, timerClosed) {
		return
	}
	if t.callback != nil {
		t.callback(t)
	}
}
