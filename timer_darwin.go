//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// platformTimerState holds the kqueue EVFILT_TIMER ident backing a Timer.
type platformTimerState struct {
	ident uint64
}

func (t *Timer) handleEvent(events uint32) {
	t.reactor.removeHandler(int(t.ident))
	t.fire()
}

// armTimer registers a one-shot EVFILT_TIMER event using a reactor-assigned
// ident (kqueue timer idents are caller-chosen, unlike fd-based filters).
func (r *Reactor) armTimer(t *Timer) error {
	t.ident = r.nextTimerIdent()
	r.addHandler(int(t.ident), t)

	millis := t.millis
	if millis <= 0 {
		millis = 1
	}
	ev := unix.Kevent_t{
		Ident:  t.ident,
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_ADD | unix.EV_ONESHOT,
		Data:   int64(millis),
	}
	if _, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		r.removeHandler(int(t.ident))
		return newError(RuntimeInit, "kevent_timer", int(errnoOf(err)), err)
	}
	return nil
}

func (r *Reactor) cancelTimer(t *Timer) {
	r.removeHandler(int(t.ident))
	ev := unix.Kevent_t{
		Ident:  t.ident,
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_DELETE,
	}
	_, _ = unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
}
