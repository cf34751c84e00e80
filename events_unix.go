//go:build linux || darwin

package reactor

import "golang.org/x/sys/unix"

// Generic readiness bits, translated from the backend-native epoll/kqueue
// event representation so socket_unix.go's dispatch logic is shared between
// Linux and Darwin without referencing Linux-only epoll constants from a
// Darwin build (or vice versa).
const (
	evRead uint32 = 1 << iota
	evWrite
)

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return 0
}
