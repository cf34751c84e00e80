// Package reactor implements a cross-platform asynchronous I/O reactor for
// byte-stream and datagram sockets, plus a timer facility bound to the same
// dispatch thread.
//
// # Architecture
//
// A [Reactor] owns a single kernel multiplex handle and drives dispatch from
// whichever goroutine calls [Reactor.Run]. [Socket] and [Timer] values are
// bound to exactly one Reactor for their whole lifetime; their callbacks
// ([Callbacks]) always run on the reactor's goroutine, never concurrently
// with each other.
//
// I/O multiplexing is implemented using platform-native mechanisms:
//   - Linux: epoll, timerfd, eventfd
//   - macOS/BSD: kqueue, EVFILT_TIMER, EVFILT_USER
//   - Windows: I/O Completion Ports, AcceptEx/ConnectEx, CreateTimerQueueTimer
//
// # Thread Safety
//
// [Reactor.Exec] may be called from any goroutine to schedule work onto the
// reactor thread; it wakes the dispatch loop via the platform's wake
// mechanism (eventfd, EVFILT_USER, or a completion post) so the work runs
// promptly even if the loop is currently blocked waiting for I/O.
// [Reactor.Stop] and [Timer.Cancel] are also safe to call from any
// goroutine. Other [Socket] methods are not synchronized against the
// dispatch loop; they are called from the reactor goroutine (inside a
// callback or an Exec item).
//
// # Usage
//
//	rx, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sock, err := reactor.NewSocket(rx, unix.AF_INET, unix.SOCK_STREAM, 0, reactor.Callbacks{
//	    OnReceived: func(s *reactor.Socket, buf []byte) {
//	        _, _ = s.Write(buf)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := sock.Listen(128); err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	if err := rx.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
// Failures surfaced through callbacks or returned from constructors are
// [*Error] values, carrying a [Kind] classification, an optional errno, and
// the wrapped cause via [errors.Unwrap].
package reactor
