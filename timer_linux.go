//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// platformTimerState holds the Linux timerfd backing a Timer.
type platformTimerState struct {
	timerFD int
}

func (t *Timer) handleEvent(events uint32) {
	// Expiry and Cancel race on the same CAS; only the winner releases the
	// timerfd, so it is closed exactly once.
	if !t.state.TryTransition(timerArmed, timerClosed) {
		return
	}
	// Drain the timerfd's expiration counter before firing, otherwise a
	// lingering readable edge could be misread as a second expiry.
	var buf [8]byte
	_, _ = unix.Read(t.timerFD, buf[:])
	t.reactor.removeHandler(t.timerFD)
	_ = unix.Close(t.timerFD)
	if t.callback != nil {
		t.callback(t)
	}
}

// armTimer creates a CLOCK_MONOTONIC timerfd, arms it for a one-shot
// expiry, and registers it with epoll.
func (r *Reactor) armTimer(t *Timer) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return newError(KernelCreate, "timerfd_create", int(errnoOf(err)), err)
	}
	t.timerFD = fd

	secs := t.millis / 1000
	nsecRemainder := (t.millis % 1000) * 1_000_000
	spec := unix.ItimerSpec{
		Value: unix.Timespec{Sec: int64(secs), Nsec: int64(nsecRemainder)},
	}
	if spec.Value.Sec == 0 && spec.Value.Nsec == 0 {
		// timerfd treats an all-zero it_value as "disarm"; fire as soon as
		// possible instead for a zero-delay timer.
		spec.Value.Nsec = 1
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return newError(RuntimeInit, "timerfd_settime", int(errnoOf(err)), err)
	}

	r.addHandler(fd, t)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.removeHandler(fd)
		_ = unix.Close(fd)
		return newError(RuntimeInit, "epoll_ctl", int(errnoOf(err)), err)
	}
	return nil
}

func (r *Reactor) cancelTimer(t *Timer) {
	r.removeHandler(t.timerFD)
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, t.timerFD, nil)
	_ = unix.Close(t.timerFD)
}
