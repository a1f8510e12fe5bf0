// Package discovery finds the local address a client socket binds to when
// none is configured.
package discovery

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoAddress is returned when no usable local address exists.
var ErrNoAddress = errors.New("no usable local address")

// routeProbe is only used to pick a route. Dialing UDP sends nothing.
const routeProbe = "8.8.8.8:53"

type (
	dialFunc  func(network, address string) (net.Conn, error)
	addrsFunc func() ([]net.Addr, error)
)

// OutboundIP returns the local IP the OS would use to reach the internet,
// falling back to the first non-loopback interface address when there is
// no default route.
func OutboundIP() (net.IP, error) {
	return outboundIP(routeProbe, net.Dial, net.InterfaceAddrs)
}

func outboundIP(probe string, dial dialFunc, addrs addrsFunc) (net.IP, error) {
	routeErr := errors.New("route lookup returned no address")
	if conn, err := dial("udp", probe); err == nil {
		local, ok := conn.LocalAddr().(*net.UDPAddr)
		conn.Close()
		if ok && local.IP != nil && !local.IP.IsUnspecified() {
			return local.IP, nil
		}
	} else {
		routeErr = err
	}

	ips, err := localIPs(addrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v; list interfaces: %v", ErrNoAddress, routeErr, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoAddress, routeErr)
	}
	return ips[0], nil
}

// LocalIPs returns non-loopback interface addresses, IPv4 first.
func LocalIPs() ([]net.IP, error) {
	return localIPs(net.InterfaceAddrs)
}

func localIPs(addrs addrsFunc) ([]net.IP, error) {
	list, err := addrs()
	if err != nil {
		return nil, err
	}

	var v4, v6 []net.IP
	for _, addr := range list {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			v4 = append(v4, ip4)
		} else {
			v6 = append(v6, ip)
		}
	}
	return append(v4, v6...), nil
}
