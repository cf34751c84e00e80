//go:build linux || darwin

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// platformSocketState is empty on the readiness backends; all socket
// bookkeeping for Linux/Darwin lives in the common Socket fields.
type platformSocketState struct{}

func platformSocketCreate(domain, typ, protocol int) (int, error) {
	return unix.Socket(domain, typ, protocol)
}

func platformSetNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

func platformCloseRaw(fd int) error {
	return unix.Close(fd)
}

// Bind binds the kernel socket to addr.
func (s *Socket) Bind(addr unix.Sockaddr) error {
	if err := unix.Bind(s.fd, addr); err != nil {
		return newError(BindFailed, "bind", int(errnoOf(err)), err)
	}
	s.state.TryTransition(stateFresh, stateBound)
	return nil
}

// Listen enters Listening and requests persistent read-interest on the
// handle so arriving connections are dispatched via handleEvent.
func (s *Socket) Listen(backlog int) error {
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		return newError(ListenFailed, "listen", int(errnoOf(err)), err)
	}
	s.listening = true
	s.state.TransitionAny([]socketState{stateFresh, stateBound}, stateListening)
	if err := s.reactor.armReadPersistent(s); err != nil {
		return wrapError(ListenFailed, "listen", err)
	}
	return nil
}

// Connect issues a non-blocking connect and registers one-shot write
// interest; success or failure is observed asynchronously through
// OnConnected/OnError, not the return value, unless the operation couldn't
// even be submitted.
func (s *Socket) Connect(addr unix.Sockaddr) error {
	s.state.TryTransition(stateFresh, stateConnecting)
	err := unix.Connect(s.fd, addr)
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		return newError(ConnectFailed, "connect", int(errnoOf(err)), err)
	}
	if arErr := s.reactor.armWriteOnce(s); arErr != nil {
		return wrapError(ConnectFailed, "connect", arErr)
	}
	return nil
}

// Write attempts an immediate send loop until EAGAIN/EWOULDBLOCK; any
// remaining bytes are appended to the pending-write buffer and one-shot
// write-interest is re-armed. Returns bytes already accepted by the kernel
// on this call.
func (s *Socket) Write(buf []byte) (int, error) {
	if !s.Valid() {
		return 0, wrapError(IoFailed, "send", errors.New("socket not valid"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeInFlight {
		s.pending = append(s.pending, buf...)
		s.checkHighWaterMark()
		return 0, nil
	}
	return s.writeLocked(buf)
}

func (s *Socket) writeLocked(buf []byte) (int, error) {
	total := 0
	for len(buf) > 0 {
		n, err := unix.Write(s.fd, buf)
		if n > 0 {
			total += n
			buf = buf[n:]
			continue
		}
		if err == nil {
			continue
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			s.pending = append(s.pending, buf...)
			s.writeInFlight = true
			s.checkHighWaterMark()
			if arErr := s.reactor.armWriteOnce(s); arErr != nil {
				s.emitErrorLocked(IoFailed, "send", 0, arErr)
			}
			return total, nil
		}
		s.emitErrorLocked(IoFailed, "send", int(errnoOf(err)), err)
		return total, nil
	}
	return total, nil
}

func (s *Socket) checkHighWaterMark() {
	hwm := s.reactor.opts.writeHighWaterMark
	if hwm > 0 && len(s.pending) > hwm {
		s.emitErrorLocked(IoFailed, "backpressure", 0, errors.New("pending write buffer exceeds high water mark"))
	}
}

func (s *Socket) emitErrorLocked(kind Kind, hint string, errno int, cause error) {
	if s.cb.OnError != nil {
		s.cb.OnError(s, newError(kind, hint, errno, cause))
	}
}

// Close tears the socket down: half-close the send side, close the kernel
// handle, disassociate from the reactor. Idempotent.
func (s *Socket) Close() error {
	if !s.state.TransitionAny([]socketState{stateFresh, stateBound, stateListening, stateConnecting, stateConnected}, stateClosed) {
		return nil
	}
	s.reactor.removeSocket(s)
	_ = unix.Shutdown(s.fd, unix.SHUT_WR)
	return unix.Close(s.fd)
}

// handleEvent dispatches a readiness edge to the accept, read, or connect/
// write-completion path depending on socket role and state.
func (s *Socket) handleEvent(events uint32) {
	if events&evRead != 0 {
		switch {
		case s.listening:
			s.acceptLoop()
		case s.state.Load() == stateConnecting:
			// A failed non-blocking connect reports EPOLLERR/EPOLLHUP (folded
			// into evRead by the backend), even though the socket is armed
			// one-shot for EPOLLOUT. Connect completion/failure is decided
			// exclusively by writeReady's getsockopt(SO_ERROR) check below;
			// treating this edge as read-readiness here would run recv on a
			// socket that was never connected and report a bogus IoFailed
			// ahead of (or instead of) the real ConnectFailed.
		default:
			s.readLoop()
		}
	}
	if events&evWrite != 0 {
		s.writeReady()
	}
}

func (s *Socket) acceptLoop() {
	for {
		fd, _, err := unix.Accept(s.fd)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			s.emitError(AcceptFailed, "accept", int(errnoOf(err)), err)
			return
		}
		conn, err := newSocketFromFD(s.reactor, s.domain, s.typ, s.protocol, fd, Callbacks{})
		if err != nil {
			_ = unix.Close(fd)
			s.emitError(AcceptFailed, "accept", 0, err)
			continue
		}
		if err := s.reactor.armReadPersistent(conn); err != nil {
			s.emitError(AcceptFailed, "accept", 0, err)
		}
		cb := s.Callbacks()
		if cb.OnAccepted != nil {
			cb.OnAccepted(s, conn)
		}
	}
}

func (s *Socket) readLoop() {
	if s.remoteClosed {
		return
	}
	for {
		n, err := unix.Read(s.fd, s.readBuf)
		if n > 0 {
			cb := s.Callbacks()
			if cb.OnReceived != nil {
				cb.OnReceived(s, s.readBuf[:n])
			}
			if n < len(s.readBuf) {
				return
			}
			continue
		}
		if n == 0 {
			// EPOLLIN/EVFILT_READ stays persistently set on a half-closed fd,
			// so without disarming interest here a level-triggered backend
			// would keep re-reporting this edge and deliver OnDisconnected
			// again on every subsequent poll. Disarm and latch so this
			// socket never dispatches another callback, per the "once
			// disconnected, no further callbacks" invariant.
			s.remoteClosed = true
			s.reactor.disarmRead(s)
			cb := s.Callbacks()
			if cb.OnDisconnected != nil {
				cb.OnDisconnected(s)
			}
			return
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return
		}
		s.emitError(IoFailed, "recv", int(errnoOf(err)), err)
		return
	}
}

func (s *Socket) writeReady() {
	if !s.connected {
		s.connected = true
		errno, _ := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if errno != 0 {
			s.emitError(ConnectFailed, "getsockopt", errno, unix.Errno(errno))
			_ = s.Close()
			return
		}
		s.state.TryTransition(stateConnecting, stateConnected)
		cb := s.Callbacks()
		if cb.OnConnected != nil {
			cb.OnConnected(s)
		}
		if err := s.reactor.armReadPersistent(s); err != nil {
			s.emitError(IoFailed, "recv", 0, err)
		}
		return
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	sent := 0
	if len(pending) > 0 {
		s.mu.Lock()
		n, _ := s.writeLocked(pending)
		sent = n
		s.mu.Unlock()
	}

	s.mu.Lock()
	stillPending := len(s.pending) > 0
	s.writeInFlight = stillPending
	s.mu.Unlock()

	cb := s.Callbacks()
	if cb.OnSent != nil {
		cb.OnSent(s, sent)
	}
}
