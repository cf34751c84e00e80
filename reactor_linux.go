//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// platformState holds the Linux epoll multiplex handle and the eventfd
// used as the Exec/Stop wake source.
type platformState struct {
	epfd   int
	wakeFD int
}

const maxEpollEvents = 64

func (r *Reactor) initPlatform() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return newError(RuntimeInit, "epoll_create1", int(errnoOf(err)), err)
	}
	r.epfd = epfd
	if err := r.initWake(); err != nil {
		_ = unix.Close(r.epfd)
		return err
	}
	return nil
}

// registerSocket is a no-op on readiness backends: interest is established
// lazily by the first operation (connect/listen/write) that requests it.
func (r *Reactor) registerSocket(s *Socket) {}

func (r *Reactor) unregisterSocket(s *Socket) {
	if s.epollRegistered {
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, s.fd, nil)
		s.epollRegistered = false
	}
}

// epollArm issues EPOLL_CTL_ADD the first time a socket is registered for
// events and EPOLL_CTL_MOD thereafter, tracking registration state on the
// socket. The original source combined ADD|MOD into a single (invalid)
// operation constant; this corrects that per the spec's redesign note.
func (r *Reactor) epollArm(s *Socket, events uint32, oneshot bool) error {
	if oneshot {
		events |= unix.EPOLLONESHOT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(s.fd)}
	op := unix.EPOLL_CTL_MOD
	if !s.epollRegistered {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(r.epfd, op, s.fd, &ev); err != nil {
		return err
	}
	s.epollRegistered = true
	return nil
}

func (r *Reactor) armReadPersistent(s *Socket) error {
	return r.epollArm(s, unix.EPOLLIN, false)
}

func (r *Reactor) armWriteOnce(s *Socket) error {
	return r.epollArm(s, unix.EPOLLOUT, true)
}

// disarmRead drops all epoll interest for s. Called once a zero-length read
// has been observed: EPOLLIN is level-triggered and persistent here, so a
// half-closed fd would otherwise stay readable and re-report on every
// subsequent epoll_wait.
func (r *Reactor) disarmRead(s *Socket) {
	if !s.epollRegistered {
		return
	}
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, s.fd, nil)
	s.epollRegistered = false
}

func (r *Reactor) runLoop() error {
	events := make([]unix.EpollEvent, maxEpollEvents)
	for r.isRunning() {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return newError(RuntimeFault, "epoll_wait", int(errnoOf(err)), err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.wakeFD {
				r.drainWake()
				r.dispatchExec()
				continue
			}
			if h := r.lookupHandler(fd); h != nil {
				var mask uint32
				if events[i].Events&unix.EPOLLIN != 0 || events[i].Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
					mask |= evRead
				}
				if events[i].Events&unix.EPOLLOUT != 0 {
					mask |= evWrite
				}
				h.handleEvent(mask)
			}
		}
	}
	return nil
}
