//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// initWake creates the eventfd used to wake the reactor thread out of
// epoll_wait from any goroutine, for both Exec and Stop.
func (r *Reactor) initWake() error {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return newError(RuntimeInit, "eventfd", int(errnoOf(err)), err)
	}
	r.wakeFD = fd
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		_ = unix.Close(fd)
		return newError(RuntimeInit, "epoll_ctl", int(errnoOf(err)), err)
	}
	return nil
}

// wake writes to the eventfd, which epoll_wait reports as readable on the
// reactor thread. Exec locks the mailbox mutex, pushes, then calls this;
// Stop calls it directly.
func (r *Reactor) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(r.wakeFD, buf[:])
}

// drainWake consumes the accumulated eventfd counter so epoll doesn't keep
// reporting it readable.
func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFD, buf[:])
		if err != nil {
			return
		}
	}
}
