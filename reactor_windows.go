//go:build windows

package reactor

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// platformState holds the I/O completion port handle. Unlike the readiness
// backends, Windows needs no separate wake handle: PostQueuedCompletionStatus
// with a nil overlapped is itself the wake signal.
type platformState struct {
	iocp windows.Handle
}

func (r *Reactor) initPlatform() error {
	if err := ensureWinsock(); err != nil {
		return wrapError(RuntimeInit, "wsastartup", err)
	}
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return wrapError(RuntimeInit, "create_io_completion_port", err)
	}
	r.iocp = iocp
	return nil
}

// registerSocket associates the socket's handle with the completion port,
// using the fd itself as completion key so the reactor can look the socket
// back up through the same handlers map the readiness backends use.
func (r *Reactor) registerSocket(s *Socket) {
	_, _ = windows.CreateIoCompletionPort(windows.Handle(s.fd), r.iocp, uintptr(s.fd), 0)
}

func (r *Reactor) unregisterSocket(s *Socket) {
	// Closing the handle removes its association with the port; there is no
	// explicit disassociation call.
}

func (r *Reactor) wake() {
	_ = windows.PostQueuedCompletionStatus(r.iocp, 0, 0, nil)
}

func (r *Reactor) runLoop() error {
	for r.isRunning() {
		var bytes uint32
		var key uintptr
		var ov *windows.Overlapped

		err := windows.GetQueuedCompletionStatus(r.iocp, &bytes, &key, &ov, windows.INFINITE)

		if ov == nil {
			// Either our own wake (key == 0, ov == nil, err == nil) or a
			// fatal port failure (err != nil with no operation attached).
			if err != nil {
				return wrapError(RuntimeFault, "get_queued_completion_status", err)
			}
			r.dispatchExec()
			continue
		}

		op := (*ioOperation)(unsafe.Pointer(ov))
		h := r.lookupHandler(int(key))
		if h == nil {
			continue
		}
		sock, ok := h.(*Socket)
		if !ok {
			// Timer completions never carry an overlapped; this branch is
			// unreachable in practice but guards against a stray key reuse.
			continue
		}
		if err != nil {
			sock.handleIOFailure(op, err)
			continue
		}
		sock.handleCompletion(op, bytes)
	}
	return nil
}
