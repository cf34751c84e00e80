package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startReactor(t *testing.T, opts ...Option) (*Reactor, func()) {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err, "New()")

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- r.Run(ctx)
	}()

	// Give the loop a moment to start blocking in its wait call.
	time.Sleep(20 * time.Millisecond)

	return r, func() {
		cancel()
		r.Stop()
		select {
		case err := <-runDone:
			if err != nil {
				t.Errorf("Run() returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not exit within timeout")
		}
	}
}

// TestExecWakeup verifies that Exec wakes a blocked reactor promptly and
// runs the work item on the reactor goroutine.
func TestExecWakeup(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()

	done := make(chan struct{})
	r.Exec(func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Exec callback did not run within timeout")
	}
}

// TestExecOrdering verifies that work items run in enqueue order.
func TestExecOrdering(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()

	const n = 200
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < n; i++ {
		i := i
		r.Exec(func() {
			mu.Lock()
			order = append(order, i)
			finished := len(order) == n
			mu.Unlock()
			if finished {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all Exec items ran within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("exec items ran out of order: order[%d] = %d", i, v)
		}
	}
}

// TestTimerFireAndCancel covers both halves of the timer contract: a timer
// left alone fires once after its delay, and a timer cancelled before that
// delay elapses never invokes its callback.
func TestTimerFireAndCancel(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()

	fired := make(chan struct{})
	_, err := NewTimer(r, 20, func(*Timer) {
		close(fired)
	})
	require.NoError(t, err, "NewTimer()")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire within timeout")
	}

	var cancelledRan atomic.Bool
	timer, err := NewTimer(r, 50, func(*Timer) {
		cancelledRan.Store(true)
	})
	require.NoError(t, err, "NewTimer()")
	timer.Cancel()
	timer.Cancel() // idempotent

	time.Sleep(150 * time.Millisecond)
	require.False(t, cancelledRan.Load(), "cancelled timer callback ran")
}

// TestTimerCancelRaceIsSafe exercises Cancel racing the reactor's own fire
// path: whichever side wins the CAS, the callback must run at most once.
func TestTimerCancelRaceIsSafe(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()

	const rounds = 50
	for i := 0; i < rounds; i++ {
		var fireCount atomic.Int32
		timer, err := NewTimer(r, 1, func(*Timer) {
			fireCount.Add(1)
		})
		if err != nil {
			t.Fatalf("NewTimer failed: %v", err)
		}
		go timer.Cancel()
		time.Sleep(5 * time.Millisecond)
		if c := fireCount.Load(); c > 1 {
			t.Fatalf("round %d: timer callback ran %d times", i, c)
		}
	}
}

// TestInvariantSingleThreadDispatch checks that Exec work items never
// overlap with each other, i.e. the reactor serializes their execution onto
// a single logical thread of control.
func TestInvariantSingleThreadDispatch(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()

	var active atomic.Int32
	var maxActive atomic.Int32
	var wg sync.WaitGroup

	const n = 500
	wg.Add(n)
	for i := 0; i < n; i++ {
		r.Exec(func() {
			defer wg.Done()
			cur := active.Add(1)
			for {
				m := maxActive.Load()
				if cur <= m || maxActive.CompareAndSwap(m, cur) {
					break
				}
			}
			active.Add(-1)
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("exec items did not complete within timeout")
	}

	if m := maxActive.Load(); m != 1 {
		t.Fatalf("expected at most 1 concurrently active callback, observed %d", m)
	}
}

// TestStopIsIdempotent verifies Stop can be called multiple times, including
// concurrently, without panicking.
func TestStopIsIdempotent(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop()
		}()
	}
	wg.Wait()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not exit after concurrent Stop calls")
	}
}
