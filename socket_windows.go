//go:build windows

package reactor

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsOpKind int

const (
	opRead windowsOpKind = iota
	opWrite
	opConnect
	opAccept
)

// ioOperation is the Go analogue of async_operation: an embedded
// windows.Overlapped whose address GetQueuedCompletionStatus hands back, so
// the completing operation is recovered by reinterpreting that address as
// *ioOperation (the same CONTAINING_RECORD trick the original performs in
// C++, valid here because Overlapped is the first field and the struct is
// kept alive by the owning Socket for as long as the kernel holds its
// address).
type ioOperation struct {
	windows.Overlapped
	kind windowsOpKind
}

type readOperation struct {
	ioOperation
	wsabuf windows.WSABuf
}

type writeOperation struct {
	ioOperation
	wsabuf windows.WSABuf
	buf    []byte
}

type connectOperation struct {
	ioOperation
}

// acceptAddrLen is the per-address buffer AcceptEx requires: large enough
// for a sockaddr of any supported family plus 16 bytes of slack, matching
// the original's sizeof(sockaddr_in)+16 sizing generalized to IPv6.
const acceptAddrLen = int(unsafe.Sizeof(windows.RawSockaddrAny{})) + 16

type acceptOperation struct {
	ioOperation
	newSocket *Socket
	addrBuf   [2 * acceptAddrLen]byte
}

// platformSocketState holds the overlapped operations a socket keeps in
// flight (the handle itself is Socket.fd), mirroring
// socket_base_pimpl's connect_op/read_op/write_op/accept_op members.
type platformSocketState struct {
	readOp    readOperation
	writeOp   writeOperation
	connectOp connectOperation
	acceptOp  *acceptOperation
}

func platformSocketCreate(domain, typ, protocol int) (int, error) {
	h, err := windows.WSASocket(int32(domain), int32(typ), int32(protocol), nil, 0, windows.WSA_FLAG_OVERLAPPED)
	return int(h), err
}

// platformSetNonblocking is a no-op: overlapped-mode sockets created with
// WSA_FLAG_OVERLAPPED are inherently asynchronous.
func platformSetNonblocking(fd int) error { return nil }

func platformCloseRaw(fd int) error {
	return windows.Closesocket(windows.Handle(fd))
}

func (s *Socket) handle() windows.Handle { return windows.Handle(s.fd) }

// Bind binds the socket to addr.
func (s *Socket) Bind(addr windows.Sockaddr) error {
	if err := windows.Bind(s.handle(), addr); err != nil {
		return wrapError(BindFailed, "bind", err)
	}
	s.state.TryTransition(stateFresh, stateBound)
	return nil
}

// Listen enters Listening and arms the first AcceptEx.
func (s *Socket) Listen(backlog int) error {
	if backlog <= 0 {
		backlog = 128
	}
	if err := windows.Listen(s.handle(), backlog); err != nil {
		return wrapError(ListenFailed, "listen", err)
	}
	s.listening = true
	s.state.TransitionAny([]socketState{stateFresh, stateBound}, stateListening)
	if err := s.startAccept(); err != nil {
		return wrapError(ListenFailed, "accept_ex", err)
	}
	return nil
}

// startAccept pre-creates the socket AcceptEx will bind the next inbound
// connection to, then issues the overlapped AcceptEx call.
func (s *Socket) startAccept() error {
	conn, err := NewSocket(s.reactor, s.domain, s.typ, s.protocol, Callbacks{})
	if err != nil {
		return err
	}

	op := &acceptOperation{newSocket: conn}
	op.kind = opAccept
	s.acceptOp = op

	var recvd uint32
	err = windows.AcceptEx(s.handle(), conn.handle(), &op.addrBuf[0], 0,
		uint32(acceptAddrLen), uint32(acceptAddrLen), &recvd, &op.Overlapped)
	if err != nil && err != windows.ERROR_IO_PENDING {
		_ = conn.Close()
		return err
	}
	return nil
}

// Connect binds to the wildcard address (ConnectEx requires a bound socket)
// and issues the overlapped connect.
func (s *Socket) Connect(addr windows.Sockaddr) error {
	wildcard := &windows.SockaddrInet4{}
	_ = windows.Bind(s.handle(), wildcard)

	s.state.TryTransition(stateFresh, stateConnecting)
	s.connectOp.kind = opConnect

	var sent uint32
	err := windows.ConnectEx(s.handle(), addr, nil, 0, &sent, &s.connectOp.Overlapped)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return wrapError(ConnectFailed, "connect_ex", err)
	}
	return nil
}

// startRead arms the next overlapped WSARecv into the shared read buffer.
func (s *Socket) startRead() {
	s.readOp = readOperation{}
	s.readOp.kind = opRead
	s.readOp.wsabuf = windows.WSABuf{Len: uint32(len(s.readBuf)), Buf: &s.readBuf[0]}

	var flags, bytes uint32
	err := windows.WSARecv(s.handle(), &s.readOp.wsabuf, 1, &bytes, &flags, &s.readOp.Overlapped, nil)
	if err != nil && err != windows.ERROR_IO_PENDING {
		s.emitError(IoFailed, "wsarecv", 0, err)
	}
}

// Write queues buf for the overlapped write path. A write already in flight
// appends to the pending buffer instead of issuing a second WSASend.
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
	return s.startWriteLocked(buf)
}

func (s *Socket) startWriteLocked(buf []byte) (int, error) {
	s.writeOp.buf = append(s.writeOp.buf[:0], buf...)
	s.writeOp.kind = opWrite
	s.writeOp.Overlapped = windows.Overlapped{}
	s.writeOp.wsabuf = windows.WSABuf{Len: uint32(len(s.writeOp.buf)), Buf: &s.writeOp.buf[0]}
	s.writeInFlight = true

	err := windows.WSASend(s.handle(), &s.writeOp.wsabuf, 1, nil, 0, &s.writeOp.Overlapped, nil)
	if err != nil && err != windows.ERROR_IO_PENDING {
		s.writeInFlight = false
		s.emitErrorLocked(IoFailed, "wsasend", 0, err)
		return 0, nil
	}
	s.checkHighWaterMark()
	return len(s.writeOp.buf), nil
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

// Close tears the socket down. Idempotent.
func (s *Socket) Close() error {
	if !s.state.TransitionAny([]socketState{stateFresh, stateBound, stateListening, stateConnecting, stateConnected}, stateClosed) {
		return nil
	}
	s.reactor.removeSocket(s)
	_ = windows.Shutdown(s.handle(), windows.SHUT_WR)
	return windows.Closesocket(s.handle())
}

// handleCompletion dispatches a successful overlapped completion by
// operation kind, re-arming whichever operation needs to stay persistent
// (read, accept) the way the original's wait_for_input switch does.
func (s *Socket) handleCompletion(op *ioOperation, bytes uint32) {
	switch op.kind {
	case opAccept:
		accepted := s.acceptOp.newSocket
		accepted.connected = true
		accepted.state.TryTransition(stateFresh, stateConnected)
		accepted.startRead()

		cb := s.Callbacks()
		if cb.OnAccepted != nil {
			cb.OnAccepted(s, accepted)
		}
		// Re-arm so the listener keeps accepting; the original only issues
		// a single AcceptEx per socket_base_pimpl, which would stop
		// accepting after the first connection.
		if err := s.startAccept(); err != nil {
			s.emitError(AcceptFailed, "accept_ex", 0, err)
		}

	case opConnect:
		s.connected = true
		s.state.TryTransition(stateConnecting, stateConnected)
		s.startRead()
		cb := s.Callbacks()
		if cb.OnConnected != nil {
			cb.OnConnected(s)
		}

	case opRead:
		if bytes == 0 {
			cb := s.Callbacks()
			if cb.OnDisconnected != nil {
				cb.OnDisconnected(s)
			}
			return
		}
		cb := s.Callbacks()
		if cb.OnReceived != nil {
			cb.OnReceived(s, s.readBuf[:bytes])
		}
		s.startRead()

	case opWrite:
		s.mu.Lock()
		pending := s.pending
		s.pending = nil
		s.writeInFlight = false
		if len(pending) > 0 {
			_, _ = s.startWriteLocked(pending)
		}
		s.mu.Unlock()

		cb := s.Callbacks()
		if cb.OnSent != nil {
			cb.OnSent(s, int(bytes))
		}
	}
}

// handleIOFailure dispatches a failed overlapped completion. A read that
// fails with ERROR_NETNAME_DELETED is a graceful peer close, not an error,
// matching the original's special case in wait_for_input.
func (s *Socket) handleIOFailure(op *ioOperation, err error) {
	if op.kind == opRead && errors.Is(err, windows.ERROR_NETNAME_DELETED) {
		cb := s.Callbacks()
		if cb.OnDisconnected != nil {
			cb.OnDisconnected(s)
		}
		return
	}
	s.emitError(IoFailed, "io_completion", 0, err)
}
