package captive

import "github.com/grandcat/zeroconf"

// announce publishes the portal over mDNS so the device shows up as
// <hostname>.local while it hosts the onboarding access point.
func announce(hostname string, port int) (*zeroconf.Server, error) {
	return zeroconf.Register(hostname, "_http._tcp", "local.", port, []string{"path=/"}, nil)
}
