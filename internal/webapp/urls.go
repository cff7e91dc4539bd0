package webapp

import (
	"fmt"
	"net"
)

// ResolveURLs maps a bound port to its reachable addresses: the loopback URL
// the supervisor publishes as the base, plus any externally reachable URLs
// derived from non-loopback interface addresses.
func (a *App) ResolveURLs(port int) (internal string, external []string) {
	internal = fmt.Sprintf("http://127.0.0.1:%d/", port)

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return internal, nil
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.To4() == nil {
			continue
		}
		external = append(external, fmt.Sprintf("http://%s:%d/", ip.String(), port))
	}
	return internal, external
}
