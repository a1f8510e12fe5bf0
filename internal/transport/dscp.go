//go:build !js && !wasip1

package transport

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// setDSCP marks outgoing datagrams with the given differentiated services
// code point.
func setDSCP(conn *net.UDPConn, dscp int) error {
	tos := dscp << 2
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() == nil && !addr.IP.IsUnspecified() {
		return ipv6.NewConn(conn).SetTrafficClass(tos)
	}
	return ipv4.NewConn(conn).SetTOS(tos)
}
