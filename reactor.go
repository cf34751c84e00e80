package reactor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// handler is the dispatch target for a registered file descriptor: a
// socket, a timer, or the reactor's own wake source. Readiness backends
// store the handler as the epoll/kqueue "user pointer" equivalent (here, a
// map keyed by fd, since Go cannot safely pin an arbitrary pointer across
// the kernel boundary the way the C++ original does).
type handler interface {
	handleEvent(events uint32)
}

// Reactor owns the kernel multiplex handle, a cross-thread work mailbox,
// and drives event dispatch. At most one goroutine may be blocked in Run at
// a time; other goroutines may concurrently call Exec, Stop, and construct
// new sockets/timers bound to this reactor.
type Reactor struct {
	platformState

	opts *reactorOptions
	log  zerolog.Logger

	running atomic.Bool
	execQ   execQueue

	mu       sync.Mutex
	handlers map[int]handler

	closeOnce sync.Once
}

// New allocates the kernel multiplex handle and registers the internal wake
// source. Returns a RuntimeInit error if the kernel primitive can't be
// created.
func New(opts ...Option) (*Reactor, error) {
	cfg := resolveOptions(opts)
	r := &Reactor{
		opts:     cfg,
		log:      cfg.logger,
		handlers: make(map[int]handler),
	}
	if err := r.initPlatform(); err != nil {
		return nil, err
	}
	return r, nil
}

// Run sets the run flag, then blocks dispatching events until Stop is
// called or ctx is cancelled. It tolerates spurious wakes and zero-event
// returns by retrying. Returns a RuntimeFault error if the kernel
// multiplex primitive fails fatally; returns nil on an orderly Stop.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	defer r.running.Store(false)

	if ctx != nil && ctx.Done() != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				r.Stop()
			case <-done:
			}
		}()
	}

	return r.runLoop()
}

// Stop clears the run flag and wakes the loop. Idempotent, safe from any
// goroutine including one running inside a callback on the reactor thread.
func (r *Reactor) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.wake()
	}
}

func (r *Reactor) isRunning() bool { return r.running.Load() }

// Exec enqueues a zero-argument work item and signals the wake source so
// the reactor thread dequeues and runs it. Items run in enqueue order,
// interleaved with I/O events in arrival order, on the reactor thread. If
// the reactor isn't currently waiting, the item runs on the next call to
// Run.
func (r *Reactor) Exec(work func()) {
	if work == nil {
		return
	}
	r.execQ.push(work)
	r.wake()
}

// dispatchExec drains and runs every pending Exec item. The readiness
// backends call it when the wake event is reached while walking the batch
// returned by the current poll, so Exec items run in between that batch's
// I/O events in arrival order; the IOCP backend calls it once per wake
// completion.
func (r *Reactor) dispatchExec() {
	buf := make([]func(), 0, 16)
	items := r.execQ.drain(buf)
	for _, f := range items {
		r.safeCall(f)
	}
}

func (r *Reactor) safeCall(f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("recovered panic from reactor callback")
		}
	}()
	f()
}

func (r *Reactor) addHandler(fd int, h handler) {
	r.mu.Lock()
	r.handlers[fd] = h
	r.mu.Unlock()
}

func (r *Reactor) removeHandler(fd int) {
	r.mu.Lock()
	delete(r.handlers, fd)
	r.mu.Unlock()
}

func (r *Reactor) lookupHandler(fd int) handler {
	r.mu.Lock()
	h := r.handlers[fd]
	r.mu.Unlock()
	return h
}

// addSocket associates a socket's kernel handle with the multiplex handle.
// Called once from the socket's constructor.
func (r *Reactor) addSocket(s *Socket) {
	r.addHandler(s.fd, s)
	r.registerSocket(s)
}

// removeSocket disassociates a socket from the multiplex handle. Called
// from Socket.Close.
func (r *Reactor) removeSocket(s *Socket) {
	r.unregisterSocket(s)
	r.removeHandler(s.fd)
}
