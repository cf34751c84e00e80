//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// wake triggers the EVFILT_USER event registered in initPlatform, which
// kevent reports on the reactor thread regardless of which goroutine calls
// this. Exec locks the mailbox mutex, pushes, then calls this; Stop calls it
// directly.
func (r *Reactor) wake() {
	ev := unix.Kevent_t{
		Ident:  uint64(r.wakeIdent),
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, _ = unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
}
