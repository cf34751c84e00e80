// Package netaddr provides the IPv4/IPv6/Unix-domain endpoint type used to
// address reactor sockets. It sits outside the reactor core: reactor never
// imports it, it only accepts whatever produces a unix.Sockaddr or
// windows.Sockaddr.
package netaddr

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// Family mirrors the address families address.h distinguishes between: IPv4,
// IPv6, and (outside Windows) Unix-domain.
type Family int

const (
	IPv4 Family = iota
	IPv6
	Unix
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	case Unix:
		return "unix"
	default:
		return "unknown"
	}
}

// Address is an opaque socket endpoint: an IPv4/IPv6 host-port pair or a
// Unix-domain path. Construct with NewIP or NewUnix; inspect with Family,
// IP, Port, and Path.
type Address struct {
	family Family
	ip     netip.Addr
	port   uint16
	path   string
}

// NewIP parses ip and builds an Address of family IPv4 or IPv6 depending on
// the parsed form, matching ip4_sockaddress/ip6_sockaddress's constructor
// validation (invalid text is rejected immediately, not deferred to connect
// time).
func NewIP(ip string, port uint16) (Address, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Address{}, fmt.Errorf("netaddr: invalid IP address format: %w", err)
	}
	fam := IPv4
	if addr.Is4In6() {
		addr = addr.Unmap()
	} else if addr.Is6() {
		fam = IPv6
	}
	return Address{family: fam, ip: addr, port: port}, nil
}

// NewUnix builds a Unix-domain Address bound to path.
func NewUnix(path string) (Address, error) {
	if path == "" {
		return Address{}, errors.New("netaddr: empty unix socket path")
	}
	return Address{family: Unix, path: path}, nil
}

// Family reports which variant this Address holds.
func (a Address) Family() Family { return a.family }

// IP returns the IP portion; zero value if Family is Unix.
func (a Address) IP() netip.Addr { return a.ip }

// Port returns the port portion; zero if Family is Unix.
func (a Address) Port() uint16 { return a.port }

// Path returns the socket path; empty if Family is IPv4/IPv6.
func (a Address) Path() string { return a.path }

// String renders the address the way net.JoinHostPort/a bare path would.
func (a Address) String() string {
	switch a.family {
	case Unix:
		return a.path
	default:
		return net.JoinHostPort(a.ip.String(), fmt.Sprintf("%d", a.port))
	}
}
