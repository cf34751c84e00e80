package reactor

import (
	"sync"

	"github.com/google/uuid"
)

// Callbacks is the set of optional notification callbacks for a Socket. All
// are pure notifications and may re-enter the reactor API (issue writes,
// close, register a new bundle).
type Callbacks struct {
	OnConnected    func(s *Socket)
	OnDisconnected func(s *Socket)
	OnReceived     func(s *Socket, buf []byte)
	OnSent         func(s *Socket, n int)
	OnAccepted     func(listener, conn *Socket)
	OnError        func(s *Socket, err *Error)
}

// Socket is an async byte-stream or datagram socket bound to exactly one
// Reactor. Its address is stable for its whole lifetime (it's always
// accessed through a *Socket), so the reactor can dispatch by fd identity
// without the move/back-reference hazard the original C++ design has to
// guard against.
type Socket struct {
	id uuid.UUID

	fd                          int
	domain, typ, protocol       int
	reactor                     *Reactor
	state                       *fastState
	epollRegistered             bool // Linux only; harmless elsewhere
	listening, connected bool
	writeInFlight        bool
	remoteClosed         bool // readiness backends only; latches after a zero-length read

	mu      sync.Mutex
	cb      Callbacks
	pending []byte

	readBuf []byte

	platformSocketState
}

// NewSocket creates a non-blocking kernel socket of the given family/type/
// protocol and registers it with reactor. Fails with KernelCreate if the
// underlying syscall fails.
func NewSocket(reactor *Reactor, domain, typ, protocol int, callbacks Callbacks) (*Socket, error) {
	fd, err := platformSocketCreate(domain, typ, protocol)
	if err != nil {
		return nil, wrapError(KernelCreate, "socket", err)
	}
	return newSocket(reactor, domain, typ, protocol, fd, false, callbacks)
}

// newSocketFromFD adopts an already-accepted kernel handle, making it
// non-blocking and entering Connected.
func newSocketFromFD(reactor *Reactor, domain, typ, protocol, fd int, callbacks Callbacks) (*Socket, error) {
	return newSocket(reactor, domain, typ, protocol, fd, true, callbacks)
}

func newSocket(reactor *Reactor, domain, typ, protocol, fd int, accepted bool, callbacks Callbacks) (*Socket, error) {
	if err := platformSetNonblocking(fd); err != nil {
		_ = platformCloseRaw(fd)
		return nil, wrapError(KernelCreate, "set_nonblock", err)
	}
	s := &Socket{
		id:       uuid.New(),
		fd:       fd,
		domain:   domain,
		typ:      typ,
		protocol: protocol,
		reactor:  reactor,
		cb:       callbacks,
		readBuf:  make([]byte, reactor.opts.readBufferSize),
	}
	if accepted {
		s.state = newFastState(stateConnected)
		s.connected = true
	} else {
		s.state = newFastState(stateFresh)
	}
	reactor.addSocket(s)
	return s, nil
}

// SetCallbacks replaces the callback bundle; it takes effect for subsequent
// events.
func (s *Socket) SetCallbacks(callbacks Callbacks) {
	s.mu.Lock()
	s.cb = callbacks
	s.mu.Unlock()
}

// Callbacks returns a copy of the current callback bundle.
func (s *Socket) Callbacks() Callbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

// FD exposes the underlying kernel handle.
func (s *Socket) FD() int { return s.fd }

// Valid reports whether the socket has not yet been closed.
func (s *Socket) Valid() bool { return !s.state.IsClosed() }

func (s *Socket) emitError(kind Kind, hint string, errno int, cause error) {
	cb := s.Callbacks()
	if cb.OnError != nil {
		cb.OnError(s, newError(kind, hint, errno, cause))
	}
}
