//go:build linux || darwin

package netaddr

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ToSockaddr converts Address into the unix.Sockaddr form the reactor
// package's Bind/Connect accept, the Go equivalent of address.h's
// to_sockaddr overload set.
func (a Address) ToSockaddr() (unix.Sockaddr, error) {
	switch a.family {
	case IPv4:
		sa := &unix.SockaddrInet4{Port: int(a.port)}
		b := a.ip.As4()
		sa.Addr = b
		return sa, nil
	case IPv6:
		sa := &unix.SockaddrInet6{Port: int(a.port)}
		b := a.ip.As16()
		sa.Addr = b
		return sa, nil
	case Unix:
		return &unix.SockaddrUnix{Name: a.path}, nil
	default:
		return nil, fmt.Errorf("netaddr: unknown address family %v", a.family)
	}
}

// FromSockaddr recovers an Address from a unix.Sockaddr, as returned by
// accept(2) or getpeername(2).
func FromSockaddr(sa unix.Sockaddr) (Address, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip, err := NewIP(fmtIP4(v.Addr), uint16(v.Port))
		return ip, err
	case *unix.SockaddrInet6:
		ip, err := NewIP(fmtIP6(v.Addr), uint16(v.Port))
		return ip, err
	case *unix.SockaddrUnix:
		return NewUnix(v.Name)
	default:
		return Address{}, fmt.Errorf("netaddr: unsupported sockaddr type %T", sa)
	}
}

func fmtIP4(b [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func fmtIP6(b [16]byte) string {
	return fmt.Sprintf("%x:%x:%x:%x:%x:%x:%x:%x",
		uint16(b[0])<<8|uint16(b[1]), uint16(b[2])<<8|uint16(b[3]),
		uint16(b[4])<<8|uint16(b[5]), uint16(b[6])<<8|uint16(b[7]),
		uint16(b[8])<<8|uint16(b[9]), uint16(b[10])<<8|uint16(b[11]),
		uint16(b[12])<<8|uint16(b[13]), uint16(b[14])<<8|uint16(b[15]))
}
