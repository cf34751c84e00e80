//go:build windows

package reactor

import (
	"sync"

	"golang.org/x/sys/windows"
)

var winsockOnce sync.Once
var winsockErr error

// ensureWinsock performs the process-wide WSAStartup exactly once, mirroring
// the original's static socket_init instance. There is no matching WSACleanup
// call: a long-lived process has no natural point to call it from, and the
// original's own teardown (global destructor order) is no more deterministic.
func ensureWinsock() error {
	winsockOnce.Do(func() {
		var data windows.WSAData
		winsockErr = windows.WSAStartup(uint32(0x0202), &data)
	})
	return winsockErr
}
