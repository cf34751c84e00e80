//go:build windows

package reactor

import (
	"golang.org/x/sys/windows"
)

// platformTimerState holds the Windows timer-queue handle. CreateTimerQueueTimer
// runs the callback on a system thread-pool thread, never the reactor
// thread, so the callback's only job is to hand control back via Exec —
// exactly what the original's on_timer does with io_->exec(...).
type platformTimerState struct {
	handle windows.Handle
	cbPtr  uintptr
}

// armTimer schedules a one-shot timer on the default timer queue.
func (r *Reactor) armTimer(t *Timer) error {
	millis := t.millis
	if millis < 0 {
		millis = 0
	}

	t.cbPtr = windows.NewCallback(func(param uintptr, _ byte) uintptr {
		r.Exec(func() { t.fire() })
		return 0
	})

	var handle windows.Handle
	err := windows.CreateTimerQueueTimer(&handle, 0, t.cbPtr, 0, uint32(millis), 0, 0)
	if err != nil {
		return wrapError(RuntimeInit, "create_timer_queue_timer", err)
	}
	t.handle = handle
	return nil
}

func (r *Reactor) cancelTimer(t *Timer) {
	if t.handle != 0 {
		_ = windows.DeleteTimerQueueTimer(0, t.handle, 0)
	}
}
