//go:build darwin

package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// platformState holds the kqueue multiplex handle and the EVFILT_USER
// identity used as the Exec/Stop wake source.
type platformState struct {
	kq        int
	wakeIdent uintptr

	// timerIdentSeq hands out EVFILT_TIMER idents. kqueue timer idents are
	// caller-chosen (unlike fds), so they're drawn from a range well above
	// any real file descriptor to keep the shared handlers map collision
	// free with socket fds.
	timerIdentSeq atomic.Uint64
}

const timerIdentBase = uint64(1) << 32

func (r *Reactor) nextTimerIdent() uint64 {
	return timerIdentBase + r.timerIdentSeq.Add(1)
}

const (
	maxKqueueEvents = 64
	wakeUserIdent   = 1
)

func (r *Reactor) initPlatform() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return newError(RuntimeInit, "kqueue", int(errnoOf(err)), err)
	}
	r.kq = kq
	r.wakeIdent = wakeUserIdent
	ev := unix.Kevent_t{}
	unix.SetKevent(&ev, wakeUserIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		_ = unix.Close(kq)
		return newError(RuntimeInit, "kevent", int(errnoOf(err)), err)
	}
	return nil
}

func (r *Reactor) registerSocket(s *Socket) {}

func (r *Reactor) unregisterSocket(s *Socket) {
	changes := []unix.Kevent_t{{}, {}}
	unix.SetKevent(&changes[0], uintptr(s.fd), unix.EVFILT_READ, unix.EV_DELETE)
	unix.SetKevent(&changes[1], uintptr(s.fd), unix.EVFILT_WRITE, unix.EV_DELETE)
	_, _ = unix.Kevent(r.kq, changes, nil, nil)
}

func (r *Reactor) armReadPersistent(s *Socket) error {
	ev := unix.Kevent_t{}
	unix.SetKevent(&ev, uintptr(s.fd), unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	return nil
}

func (r *Reactor) armWriteOnce(s *Socket) error {
	ev := unix.Kevent_t{}
	unix.SetKevent(&ev, uintptr(s.fd), unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT)
	if _, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	return nil
}

// disarmRead drops EVFILT_READ interest for s. Called once a zero-length
// read has been observed, so the cleared edge can't re-trigger and deliver
// OnDisconnected a second time.
func (r *Reactor) disarmRead(s *Socket) {
	ev := unix.Kevent_t{}
	unix.SetKevent(&ev, uintptr(s.fd), unix.EVFILT_READ, unix.EV_DELETE)
	_, _ = unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
}

func (r *Reactor) runLoop() error {
	events := make([]unix.Kevent_t, maxKqueueEvents)
	for r.isRunning() {
		n, err := unix.Kevent(r.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return newError(RuntimeFault, "kevent", int(errnoOf(err)), err)
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			switch ev.Filter {
			case unix.EVFILT_USER:
				r.dispatchExec()
			case unix.EVFILT_TIMER:
				if h := r.lookupHandler(int(ev.Ident)); h != nil {
					h.handleEvent(0)
				}
			case unix.EVFILT_READ:
				if h := r.lookupHandler(int(ev.Ident)); h != nil {
					h.handleEvent(evRead)
				}
			case unix.EVFILT_WRITE:
				if h := r.lookupHandler(int(ev.Ident)); h != nil {
					h.handleEvent(evWrite)
				}
			}
		}
	}
	return nil
}
