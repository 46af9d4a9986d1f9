// Package captive hosts the onboarding surface of an unconnected device: a
// local access point, a catch-all DNS responder so client OSes pop their
// captive-portal sheet, a small HTTP portal with a join QR code, and an
// optional mDNS announcement.
package captive

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/tickerhw/wifid/wifi"
)

// Config carries the access point and portal parameters.
type Config struct {
	// Address and Mask define the AP's own address on the hosted subnet.
	Address net.IP
	Mask    net.IPMask
	// Channel and MaxClients are passed through to the radio.
	Channel    int
	MaxClients int
	// DNSAddr is the UDP listen address for the catch-all DNS responder.
	// Empty disables it.
	DNSAddr string
	// HTTPAddr is the TCP listen address for the portal. Empty disables it.
	HTTPAddr string
	// Hostname, when set, is announced over mDNS while the portal runs.
	Hostname string
	// Admin, when set, replaces the built-in portal page at /.
	Admin http.Handler
}

// DefaultConfig returns the stock portal configuration.
func DefaultConfig() Config {
	return Config{
		Address:    net.IPv4(192, 168, 4, 1),
		Mask:       net.CIDRMask(24, 32),
		Channel:    1,
		MaxClients: 4,
		DNSAddr:    ":53",
		HTTPAddr:   ":80",
	}
}

// Bootstrapper owns the access point and its companion services as one unit:
// Start brings them all up, Stop tears them all down. It implements the
// manager's access-point controller contract, so Start is idempotent for
// identical credentials.
type Bootstrapper struct {
	radio  wifi.Radio
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	name     string
	secret   string
	dns      *dnsServer
	portal   *http.Server
	portalLn net.Listener
	mdns     *zeroconf.Server
}

// New creates a stopped bootstrapper.
func New(radio wifi.Radio, cfg Config, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{radio: radio, cfg: cfg, logger: logger}
}

// Start brings up the access point and its services. Calling it again with
// the same credentials is a no-op; changed credentials restart everything.
func (b *Bootstrapper) Start(name, secret string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		if b.name == name && b.secret == secret {
			return nil
		}
		b.stopLocked()
	}

	// A single-role radio has to give up the station link for the AP.
	if !b.radio.SupportsConcurrentRoles() {
		if err := b.radio.Disconnect(); err != nil {
			b.logger.Warn("releasing station link for access point failed", "error", err)
		}
	}

	if err := b.radio.StartAccessPoint(wifi.APConfig{
		Name:       name,
		Secret:     secret,
		Address:    b.cfg.Address,
		Mask:       b.cfg.Mask,
		Channel:    b.cfg.Channel,
		MaxClients: b.cfg.MaxClients,
	}); err != nil {
		return fmt.Errorf("starting access point: %w", err)
	}

	if b.cfg.DNSAddr != "" {
		srv, err := newDNSServer(b.cfg.DNSAddr, b.cfg.Address, b.logger)
		if err != nil {
			b.teardownLocked()
			return fmt.Errorf("starting dns responder: %w", err)
		}
		b.dns = srv
	}

	if b.cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", b.cfg.HTTPAddr)
		if err != nil {
			b.teardownLocked()
			return fmt.Errorf("starting portal listener: %w", err)
		}
		b.portalLn = ln
		b.portal = &http.Server{Handler: portalHandler(b.cfg.Address, name, secret, b.cfg.Admin)}
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				b.logger.Error("portal server stopped", "error", err)
			}
		}(b.portal, ln)

		if b.cfg.Hostname != "" {
			port := ln.Addr().(*net.TCPAddr).Port
			mdns, err := announce(b.cfg.Hostname, port)
			if err != nil {
				// Discovery is a nicety; the portal works without it.
				b.logger.Warn("mdns announcement failed", "error", err)
			} else {
				b.mdns = mdns
			}
		}
	}

	b.running = true
	b.name = name
	b.secret = secret
	b.logger.Info("access point up",
		"name", name,
		"address", b.cfg.Address.String(),
		"dns", b.cfg.DNSAddr,
		"portal", b.cfg.HTTPAddr)
	return nil
}

// Stop tears down the services and the access point. Safe to call when
// already stopped.
func (b *Bootstrapper) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.stopLocked()
	return nil
}

// Running reports whether the access point is up.
func (b *Bootstrapper) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bootstrapper) stopLocked() {
	b.teardownLocked()
	b.running = false
	b.name = ""
	b.secret = ""
	b.logger.Info("access point down")
}

func (b *Bootstrapper) teardownLocked() {
	if b.mdns != nil {
		b.mdns.Shutdown()
		b.mdns = nil
	}
	if b.portal != nil {
		if err := b.portal.Close(); err != nil {
			b.logger.Warn("closing portal server failed", "error", err)
		}
		b.portal = nil
		b.portalLn = nil
	}
	if b.dns != nil {
		if err := b.dns.Shutdown(); err != nil {
			b.logger.Warn("closing dns responder failed", "error", err)
		}
		b.dns = nil
	}
	if err := b.radio.StopAccessPoint(); err != nil {
		b.logger.Warn("stopping access point failed", "error", err)
	}
}

// PortalAddr returns the portal's bound address, or "" when it is not
// running. Useful when HTTPAddr picked an ephemeral port.
func (b *Bootstrapper) PortalAddr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.portalLn == nil {
		return ""
	}
	return b.portalLn.Addr().String()
}
