//go:build windows

package netaddr

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// ToSockaddr converts Address into the windows.Sockaddr form the reactor
// package's Bind/Connect accept on Windows.
func (a Address) ToSockaddr() (windows.Sockaddr, error) {
	switch a.family {
	case IPv4:
		sa := &windows.SockaddrInet4{Port: int(a.port)}
		sa.Addr = a.ip.As4()
		return sa, nil
	case IPv6:
		sa := &windows.SockaddrInet6{Port: int(a.port)}
		sa.Addr = a.ip.As16()
		return sa, nil
	default:
		return nil, fmt.Errorf("netaddr: address family %v has no Windows sockaddr form", a.family)
	}
}
