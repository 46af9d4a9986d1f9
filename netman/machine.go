package netman

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tickerhw/wifid/wifi"
)

// State is the connectivity manager's mode.
type State int

const (
	StateOffline State = iota
	StateConnecting
	StateConnected
	StateAccessPoint
	StateHybrid
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAccessPoint:
		return "access-point"
	case StateHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the connection state, safe to hand to
// collaborators. Nothing outside the machine ever mutates the live state.
type Snapshot struct {
	State               State      `json:"state"`
	ActiveNetwork       string     `json:"activeNetwork,omitempty"`
	ActiveSignal        int        `json:"activeSignal,omitempty"`
	ConnectionStartedAt time.Time  `json:"connectionStartedAt,omitzero"`
	LastAttemptAt       time.Time  `json:"lastAttemptAt,omitzero"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	AccessPointRunning  bool       `json:"accessPointRunning"`
	Degraded            bool       `json:"degraded"`
	Uptime              time.Duration `json:"uptime,omitempty"`
}

// AccessPointController is what the machine needs from the captive-portal
// bootstrapper. Start must be idempotent for identical parameters.
type AccessPointController interface {
	Start(name, secret string) error
	Stop() error
	Running() bool
}

// Machine is the connection state machine. All transitions happen inside
// Tick; radio callbacks only ever enqueue events. The host loop calls Tick
// periodically, so no two transitions are ever in flight at once.
type Machine struct {
	cfg    Config
	store  *Store
	radio  wifi.Radio
	ap     AccessPointController
	logger *slog.Logger
	now    func() time.Time

	mu                  sync.Mutex
	state               State
	active              string
	activeSignal        int
	connectionStartedAt time.Time
	lastAttemptAt       time.Time
	lastScanAt          time.Time
	failures            int
	target              string
	observed            []wifi.ObservedNetwork
	prevScanNames       map[string]bool
	scanPending         bool
	retryUnlocked       bool
	apEnabled           bool
	degraded            bool
	pendingConnect      string
}

// NewMachine wires the state machine together. It starts Offline: the only
// state from which everything else is reachable.
func NewMachine(cfg Config, store *Store, radio wifi.Radio, ap AccessPointController, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:           cfg,
		store:         store,
		radio:         radio,
		ap:            ap,
		logger:        logger,
		now:           time.Now,
		state:         StateOffline,
		apEnabled:     cfg.APEnabled,
		prevScanNames: make(map[string]bool),
	}
}

// SetClock replaces the machine's clock. Timeouts are polled against it on
// every tick rather than enforced by timers.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Tick advances the machine: drain radio events, poll the connect timeout,
// apply admin requests, then drive reconnection and scanning.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drainEvents()
	m.pollTimeout()
	m.applyPending()
	m.maybeReconnect()
	m.maybeScan()
}

func (m *Machine) drainEvents() {
	for {
		select {
		case ev := <-m.radio.Events():
			m.handleEvent(ev)
		default:
			return
		}
	}
}

func (m *Machine) handleEvent(ev wifi.Event) {
	switch ev.Kind {
	case wifi.EventLinkUp:
		m.completeConnect(ev.Name, ev.Signal)
	case wifi.EventLinkLost:
		m.handleLinkLost(ev.Name)
	case wifi.EventScanComplete:
		m.ingestScan(ev.Results)
	case wifi.EventAuthRejected:
		if m.state == StateConnecting && (ev.Name == "" || ev.Name == m.target) {
			m.failAttempt(wifi.ErrAuthRejected)
		}
	case wifi.EventNetworkNotFound:
		if m.state == StateConnecting && (ev.Name == "" || ev.Name == m.target) {
			m.failAttempt(wifi.ErrNetworkNotFound)
		}
	case wifi.EventRadioFault:
		m.degraded = true
		m.logger.Error("radio fault", "error", ev.Err)
		if m.state == StateConnecting {
			m.failAttempt(wifi.ErrRadioFault)
		}
		// Last resort: stay administrable even on a sick radio.
		if m.state == StateOffline {
			m.ensureAccessPoint()
		}
	}
}

func (m *Machine) completeConnect(name string, signal int) {
	if m.state != StateConnecting {
		return
	}

	now := m.now()
	m.active = name
	m.activeSignal = signal
	m.connectionStartedAt = now
	m.failures = 0
	m.retryUnlocked = false
	m.target = ""
	m.store.RecordSuccess(name, signal, now)

	if m.ap != nil && m.ap.Running() {
		if m.apEnabled {
			m.state = StateHybrid
		} else {
			// The AP was only a fallback; a working link replaces it.
			if err := m.ap.Stop(); err != nil {
				m.logger.Warn("stopping fallback access point failed", "error", err)
			}
			m.state = StateConnected
		}
	} else if m.apEnabled {
		m.state = StateConnected
		m.ensureAccessPoint()
	} else {
		m.state = StateConnected
	}
	m.logger.Info("connected", "network", name, "signal", signal, "state", m.state.String())
}

func (m *Machine) handleLinkLost(name string) {
	if m.state != StateConnected && m.state != StateHybrid {
		return
	}
	m.logger.Warn("link lost", "network", name)
	m.active = ""
	m.activeSignal = 0

	// Leave the station states before ensureAccessPoint runs, so its state
	// mapping never sees a stale Connected/Hybrid with no link behind it.
	if m.ap != nil && m.ap.Running() {
		m.state = StateAccessPoint
		return
	}
	m.state = StateOffline
	if m.apEnabled {
		m.ensureAccessPoint()
	}
}

func (m *Machine) failAttempt(cause error) {
	m.failures++
	if m.target != "" {
		m.store.RecordFailure(m.target)
	}
	m.logger.Warn("connect attempt failed",
		"network", m.target,
		"error", cause,
		"failures", m.failures,
		"budget", m.cfg.MaxAttempts)
	m.target = ""

	// Hybrid interpretation: a failed opportunistic reconnect never tears
	// the access point down.
	if m.ap != nil && m.ap.Running() {
		m.state = StateAccessPoint
	} else {
		m.state = StateOffline
	}

	if m.failures >= m.cfg.MaxAttempts {
		m.ensureAccessPoint()
	}
}

func (m *Machine) pollTimeout() {
	if m.state != StateConnecting {
		return
	}
	if m.now().Sub(m.connectionStartedAt) < m.cfg.ConnectTimeout {
		return
	}
	if err := m.radio.Disconnect(); err != nil {
		m.logger.Warn("aborting timed-out attempt failed", "error", err)
	}
	m.failAttempt(wifi.ErrConnectTimeout)
}

func (m *Machine) ingestScan(results []wifi.ObservedNetwork) {
	for i := range results {
		if kn, ok := m.store.Get(results[i].Name); ok {
			results[i].Known = true
			results[i].AutoConnectEligible = kn.AutoConnect
		}
	}
	wifi.SortObserved(results)

	// A known network that was absent from the previous scan re-arms one
	// opportunistic attempt even after the failure budget is spent.
	names := make(map[string]bool, len(results))
	for _, obs := range results {
		names[obs.Name] = true
		if obs.Known && obs.AutoConnectEligible && !m.prevScanNames[obs.Name] {
			m.retryUnlocked = true
		}
	}
	m.prevScanNames = names

	m.observed = results
	m.scanPending = false
	m.lastScanAt = m.now()

	if _, ok := Select(m.store.List(), results); !ok && m.state == StateOffline {
		// No known network is reachable: trade connectivity for
		// guaranteed administrability.
		m.ensureAccessPoint()
	}
}

func (m *Machine) applyPending() {
	if m.pendingConnect == "" {
		return
	}
	name := m.pendingConnect
	m.pendingConnect = ""
	m.attempt(name)
}

func (m *Machine) maybeReconnect() {
	switch m.state {
	case StateConnecting, StateConnected, StateHybrid:
		return
	}

	if m.store.Len() == 0 {
		// Unconfigured device: nothing to connect to, be discoverable.
		m.ensureAccessPoint()
		return
	}

	if !m.lastAttemptAt.IsZero() && m.now().Sub(m.lastAttemptAt) < m.cfg.RetryInterval {
		return
	}

	candidate, ok := Select(m.store.List(), m.observed)
	if !ok {
		return
	}

	if m.failures >= m.cfg.MaxAttempts && !m.retryUnlocked {
		m.ensureAccessPoint()
		return
	}

	m.attempt(candidate.Name)
}

func (m *Machine) attempt(name string) {
	kn, ok := m.store.Get(name)
	if !ok {
		return
	}
	// Re-issuing the connect for the current target is a no-op.
	if m.state == StateConnecting && m.target == name {
		return
	}

	now := m.now()
	m.lastAttemptAt = now
	m.retryUnlocked = false

	if err := m.radio.BeginConnect(kn.Name, kn.Secret); err != nil {
		if errors.Is(err, wifi.ErrRadioFault) {
			m.degraded = true
		}
		m.target = name
		m.failAttempt(err)
		return
	}

	m.target = name
	m.connectionStartedAt = now
	m.state = StateConnecting
	m.logger.Info("connecting", "network", name, "attempt", m.failures+1)
}

func (m *Machine) maybeScan() {
	if m.scanPending || m.state == StateConnecting {
		return
	}
	if !m.lastScanAt.IsZero() && m.now().Sub(m.lastScanAt) < m.cfg.ScanInterval {
		return
	}

	if _, err := m.radio.Scan(false); err != nil {
		m.logger.Warn("scan request failed", "error", err)
		if errors.Is(err, wifi.ErrRadioFault) {
			m.degraded = true
		}
		m.lastScanAt = m.now()
		return
	}
	m.scanPending = true
	m.lastScanAt = m.now()
}

func (m *Machine) ensureAccessPoint() {
	if m.ap == nil {
		return
	}
	if !m.ap.Running() {
		if err := m.ap.Start(m.cfg.APName, m.cfg.APSecret); err != nil {
			m.logger.Error("starting access point failed", "error", err)
			return
		}
		m.logger.Info("access point started", "name", m.cfg.APName)
	}

	switch m.state {
	case StateConnected, StateHybrid:
		m.state = StateHybrid
	case StateConnecting:
		// Keep the attempt; the state resolves when it does.
	default:
		m.state = StateAccessPoint
	}
}

// AddNetwork adds or updates a known network. Takes effect on a later tick.
func (m *Machine) AddNetwork(name, secret string, priority int, autoConnect bool) bool {
	return m.store.Add(name, secret, priority, autoConnect)
}

// RemoveNetwork forgets a known network. An active link to it survives until
// it drops on its own.
func (m *Machine) RemoveNetwork(name string) bool {
	return m.store.Remove(name)
}

// UpdateNetwork applies partial updates to a known network.
func (m *Machine) UpdateNetwork(name string, opts UpdateOptions) bool {
	return m.store.Update(name, opts)
}

// ConnectNow requests an explicit connection attempt on the next tick,
// superseding any attempt in flight. Returns false when the network is not
// in the store, without touching the machine state.
func (m *Machine) ConnectNow(name string) bool {
	if _, ok := m.store.Get(name); !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingConnect = name
	return true
}

// Disconnect drops the station link immediately, superseding an in-flight
// attempt regardless of its timeout bookkeeping.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.radio.Disconnect(); err != nil {
		m.logger.Warn("disconnect failed", "error", err)
	}
	m.pendingConnect = ""
	m.target = ""
	m.active = ""
	m.activeSignal = 0

	if m.ap != nil && m.ap.Running() {
		m.state = StateAccessPoint
	} else {
		m.state = StateOffline
	}
}

// SetAccessPointEnabled flips the administrative AP flag. Disabling does not
// tear down a fallback AP while unconnected; administrability wins until the
// next successful connection.
func (m *Machine) SetAccessPointEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apEnabled = enabled
	if m.ap == nil {
		return
	}
	if enabled {
		if m.state == StateConnected {
			m.ensureAccessPoint()
		}
		return
	}
	if m.ap.Running() && (m.state == StateConnected || m.state == StateHybrid) {
		if err := m.ap.Stop(); err != nil {
			m.logger.Warn("stopping access point failed", "error", err)
			return
		}
		m.state = StateConnected
	}
}

// Snapshot returns a copy of the current connection state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:               m.state,
		ActiveNetwork:       m.active,
		ActiveSignal:        m.activeSignal,
		ConnectionStartedAt: m.connectionStartedAt,
		LastAttemptAt:       m.lastAttemptAt,
		ConsecutiveFailures: m.failures,
		AccessPointRunning:  m.ap != nil && m.ap.Running(),
		Degraded:            m.degraded,
	}
	if m.state == StateConnected || m.state == StateHybrid {
		snap.Uptime = m.now().Sub(m.connectionStartedAt)
	}
	return snap
}

// IsConnected is the gating predicate for outbound traffic.
func (m *Machine) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected || m.state == StateHybrid
}

// ListKnown returns the known networks, highest priority first.
func (m *Machine) ListKnown() []KnownNetwork {
	return m.store.List()
}

// ListScanned returns the latest scan results, strongest first.
func (m *Machine) ListScanned() []wifi.ObservedNetwork {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wifi.ObservedNetwork, len(m.observed))
	copy(out, m.observed)
	return out
}
