//go:build linux

package networkmanager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/google/uuid"

	"github.com/tickerhw/wifid/wifi"
)

const (
	scanSettleDelay = 3 * time.Second
	linkPollPeriod  = 2 * time.Second
	apProfileID     = "wifid-ap"
)

// Radio implements wifi.Radio over D-Bus against NetworkManager.
type Radio struct {
	NM       gonetworkmanager.NetworkManager
	Settings gonetworkmanager.Settings

	logger *slog.Logger
	events chan wifi.Event

	// mu guards everything below: the scan settle and connect goroutines
	// and the link watcher all touch this state concurrently.
	mu           sync.Mutex
	connections  map[string]gonetworkmanager.Connection
	accessPoints map[string]gonetworkmanager.AccessPoint
	apActive     gonetworkmanager.ActiveConnection
	linked       bool
	linkedName   string
}

// New creates a NetworkManager-backed radio and starts its link watcher.
func New(logger *slog.Logger) (*Radio, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create network manager client: %w", wifi.ErrRadioFault)
	}

	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", wifi.ErrRadioFault)
	}

	if logger == nil {
		logger = slog.Default()
	}

	r := &Radio{
		NM:           nm,
		Settings:     settings,
		logger:       logger,
		events:       make(chan wifi.Event, 16),
		connections:  make(map[string]gonetworkmanager.Connection),
		accessPoints: make(map[string]gonetworkmanager.AccessPoint),
	}
	go r.watchLink()
	return r, nil
}

func (r *Radio) Events() <-chan wifi.Event {
	return r.events
}

func (r *Radio) emit(ev wifi.Event) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *Radio) rememberAccessPoints(found map[string]gonetworkmanager.AccessPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ssid, ap := range found {
		r.accessPoints[ssid] = ap
	}
}

func (r *Radio) lookupAccessPoint(ssid string) (gonetworkmanager.AccessPoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ap, ok := r.accessPoints[ssid]
	return ap, ok
}

func (r *Radio) cachedProfile(ssid string) (gonetworkmanager.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[ssid]
	return conn, ok
}

func (r *Radio) rememberProfile(ssid string, conn gonetworkmanager.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[ssid] = conn
}

func (r *Radio) markLinked(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linked = true
	r.linkedName = name
}

func (r *Radio) isLinked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linked
}

// dropLinked clears the link bookkeeping and reports the network that was
// associated, if any.
func (r *Radio) dropLinked() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.linked {
		return "", false
	}
	name := r.linkedName
	r.linked = false
	r.linkedName = ""
	return name, true
}

// SupportsConcurrentRoles reports false: NetworkManager cannot host an AP and
// keep a station association on the same adapter, so hybrid mode degrades to
// tearing the station link down before the AP comes up.
func (r *Radio) SupportsConcurrentRoles() bool {
	return false
}

func (r *Radio) wirelessDevice() (gonetworkmanager.DeviceWireless, error) {
	devices, err := r.NM.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", wifi.ErrRadioFault)
	}
	for _, device := range devices {
		if dev, ok := device.(gonetworkmanager.DeviceWireless); ok {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no wireless device found: %w", wifi.ErrNetworkNotFound)
}

// strengthToSignal converts NetworkManager's 0-100 strength to a dBm-like
// figure. The mapping is the usual linear approximation.
func strengthToSignal(strength uint8) int {
	return int(strength)/2 - 100
}

func (r *Radio) collectScan(dev gonetworkmanager.DeviceWireless) ([]wifi.ObservedNetwork, error) {
	accessPoints, err := dev.GetAccessPoints()
	if err != nil {
		return nil, fmt.Errorf("listing access points: %w", wifi.ErrRadioFault)
	}

	strongest := make(map[string]uint8)
	found := make(map[string]gonetworkmanager.AccessPoint)
	results := make([]wifi.ObservedNetwork, 0, len(accessPoints))
	for _, ap := range accessPoints {
		ssid, err := ap.GetPropertySSID()
		if err != nil || ssid == "" {
			continue
		}

		strength, _ := ap.GetPropertyStrength()
		if prev, seen := strongest[ssid]; seen && strength <= prev {
			continue
		}
		strongest[ssid] = strength
		found[ssid] = ap

		flags, _ := ap.GetPropertyFlags()
		wpaFlags, _ := ap.GetPropertyWPAFlags()
		rsnFlags, _ := ap.GetPropertyRSNFlags()
		isSecure := (uint32(flags)&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0) || (wpaFlags > 0) || (rsnFlags > 0)
		var security wifi.SecurityType
		if wpaFlags > 0 || rsnFlags > 0 {
			security = wifi.SecurityWPA
		} else if isSecure {
			security = wifi.SecurityWEP
		} else {
			security = wifi.SecurityOpen
		}

		results = append(results, wifi.ObservedNetwork{
			Name:     ssid,
			Signal:   strengthToSignal(strength),
			Secured:  isSecure,
			Security: security,
		})
	}

	// De-duplicate entries that were replaced by a stronger BSSID.
	deduped := results[:0]
	for _, obs := range results {
		if strengthToSignal(strongest[obs.Name]) == obs.Signal {
			deduped = append(deduped, obs)
		}
	}

	r.rememberAccessPoints(found)
	wifi.SortObserved(deduped)
	return deduped, nil
}

func (r *Radio) Scan(blocking bool) ([]wifi.ObservedNetwork, error) {
	dev, err := r.wirelessDevice()
	if err != nil {
		return nil, err
	}

	if err := dev.RequestScan(); err != nil {
		return nil, fmt.Errorf("requesting scan: %w", wifi.ErrRadioFault)
	}

	if blocking {
		time.Sleep(scanSettleDelay)
		return r.collectScan(dev)
	}

	go func() {
		time.Sleep(scanSettleDelay)
		results, err := r.collectScan(dev)
		if err != nil {
			r.emit(wifi.Event{Kind: wifi.EventRadioFault, Err: err})
			return
		}
		r.emit(wifi.Event{Kind: wifi.EventScanComplete, Results: results})
	}()
	return nil, nil
}

// knownProfile finds the NetworkManager connection profile for an SSID.
func (r *Radio) knownProfile(ssid string) (gonetworkmanager.Connection, bool) {
	if conn, ok := r.cachedProfile(ssid); ok {
		return conn, true
	}
	profiles, err := r.Settings.ListConnections()
	if err != nil {
		return nil, false
	}
	for _, profile := range profiles {
		s, err := profile.GetSettings()
		if err != nil {
			continue
		}
		if wireless, ok := s["802-11-wireless"]; ok {
			if ssidBytes, ok := wireless["ssid"].([]byte); ok && string(ssidBytes) == ssid {
				r.rememberProfile(ssid, profile)
				return profile, true
			}
		}
	}
	return nil, false
}

func (r *Radio) BeginConnect(name, secret string) error {
	dev, err := r.wirelessDevice()
	if err != nil {
		return err
	}

	go r.connect(dev, name, secret)
	return nil
}

func (r *Radio) connect(dev gonetworkmanager.DeviceWireless, name, secret string) {
	ap, apOK := r.lookupAccessPoint(name)
	if !apOK {
		r.emit(wifi.Event{Kind: wifi.EventNetworkNotFound, Name: name})
		return
	}

	var active gonetworkmanager.ActiveConnection
	var err error
	if profile, ok := r.knownProfile(name); ok {
		active, err = r.NM.ActivateWirelessConnection(profile, dev, ap)
	} else {
		deviceInterface, _ := dev.GetPropertyInterface()
		profile := map[string]map[string]interface{}{
			"connection": {
				"id":             name,
				"uuid":           uuid.New().String(),
				"type":           "802-11-wireless",
				"interface-name": deviceInterface,
				"autoconnect":    false,
			},
			"802-11-wireless": {
				"mode": "infrastructure",
				"ssid": []byte(name),
			},
			"ipv4": {"method": "auto"},
			"ipv6": {"method": "auto"},
		}
		if secret != "" {
			profile["802-11-wireless"]["security"] = "802-11-wireless-security"
			profile["802-11-wireless-security"] = map[string]interface{}{
				"key-mgmt": "wpa-psk",
				"psk":      secret,
			}
		}
		active, err = r.NM.AddAndActivateWirelessConnection(profile, dev, ap)
	}
	if err != nil {
		r.emit(wifi.Event{Kind: wifi.EventRadioFault, Name: name, Err: fmt.Errorf("activating connection: %w", wifi.ErrRadioFault)})
		return
	}

	stateChanges := make(chan gonetworkmanager.StateChange, 1)
	done := make(chan struct{})
	defer close(done)
	if err := active.SubscribeState(stateChanges, done); err != nil {
		r.emit(wifi.Event{Kind: wifi.EventRadioFault, Name: name, Err: fmt.Errorf("subscribing to state: %w", wifi.ErrRadioFault)})
		return
	}

	initialState, err := active.GetPropertyState()
	if err == nil && initialState == gonetworkmanager.NmActiveConnectionStateActivated {
		r.linkUp(dev, name)
		return
	}

	for change := range stateChanges {
		switch change.State {
		case gonetworkmanager.NmActiveConnectionStateActivated:
			r.linkUp(dev, name)
			return
		case gonetworkmanager.NmActiveConnectionStateDeactivated:
			// NetworkManager does not tell us why; a bad PSK is by far the
			// most common cause of deactivation during association.
			r.emit(wifi.Event{Kind: wifi.EventAuthRejected, Name: name})
			return
		}
	}
}

func (r *Radio) linkUp(dev gonetworkmanager.DeviceWireless, name string) {
	signal := 0
	if ap, ok := r.lookupAccessPoint(name); ok {
		if strength, err := ap.GetPropertyStrength(); err == nil {
			signal = strengthToSignal(strength)
		}
	}
	r.markLinked(name)
	r.emit(wifi.Event{Kind: wifi.EventLinkUp, Name: name, Signal: signal})
}

func (r *Radio) Disconnect() error {
	r.dropLinked()
	dev, err := r.wirelessDevice()
	if err != nil {
		return err
	}
	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("disconnecting: %w", wifi.ErrRadioFault)
	}
	return nil
}

func (r *Radio) StartAccessPoint(cfg wifi.APConfig) error {
	r.mu.Lock()
	running := r.apActive != nil
	r.mu.Unlock()
	if running {
		return nil
	}

	dev, err := r.wirelessDevice()
	if err != nil {
		return err
	}

	profile := map[string]map[string]interface{}{
		"connection": {
			"id":          apProfileID,
			"uuid":        uuid.New().String(),
			"type":        "802-11-wireless",
			"autoconnect": false,
		},
		"802-11-wireless": {
			"mode":    "ap",
			"ssid":    []byte(cfg.Name),
			"band":    "bg",
			"channel": uint32(cfg.Channel),
		},
		// Shared mode has NetworkManager hand out addresses on the AP
		// subnet, which is what the captive portal needs.
		"ipv4": {"method": "shared"},
		"ipv6": {"method": "ignore"},
	}
	if cfg.Secret != "" {
		profile["802-11-wireless"]["security"] = "802-11-wireless-security"
		profile["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      cfg.Secret,
		}
	}

	active, err := r.NM.AddAndActivateConnection(profile, dev)
	if err != nil {
		return fmt.Errorf("starting access point: %w", wifi.ErrRadioFault)
	}
	r.mu.Lock()
	r.apActive = active
	r.mu.Unlock()
	r.logger.Info("access point profile activated", "ssid", cfg.Name)
	return nil
}

func (r *Radio) StopAccessPoint() error {
	r.mu.Lock()
	active := r.apActive
	r.mu.Unlock()
	if active == nil {
		return nil
	}
	if err := r.NM.DeactivateConnection(active); err != nil {
		return fmt.Errorf("stopping access point: %w", wifi.ErrRadioFault)
	}
	r.mu.Lock()
	r.apActive = nil
	r.mu.Unlock()

	// Remove the throwaway profile so repeated starts do not pile up.
	if profile, ok := r.knownProfileByID(apProfileID); ok {
		_ = profile.Delete()
	}
	return nil
}

func (r *Radio) knownProfileByID(id string) (gonetworkmanager.Connection, bool) {
	profiles, err := r.Settings.ListConnections()
	if err != nil {
		return nil, false
	}
	for _, profile := range profiles {
		s, err := profile.GetSettings()
		if err != nil {
			continue
		}
		if c, ok := s["connection"]; ok {
			if profileID, ok := c["id"].(string); ok && profileID == id {
				return profile, true
			}
		}
	}
	return nil, false
}

// watchLink polls the adapter and reports link loss through the event queue.
// Not every NetworkManager version supports signal subscription, so polling
// is the portable option here.
func (r *Radio) watchLink() {
	for {
		time.Sleep(linkPollPeriod)
		if !r.isLinked() {
			continue
		}
		dev, err := r.wirelessDevice()
		if err != nil {
			continue
		}
		state, err := dev.GetPropertyState()
		if err != nil {
			continue
		}
		if state != gonetworkmanager.NmDeviceStateActivated {
			if name, ok := r.dropLinked(); ok {
				r.emit(wifi.Event{Kind: wifi.EventLinkLost, Name: name})
			}
		}
	}
}
