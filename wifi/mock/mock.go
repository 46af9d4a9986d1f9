package mock

import (
	"sync"
	"time"

	"github.com/tickerhw/wifid/wifi"
)

var DefaultActionSleep = 200 * time.Millisecond

// AirNetwork describes a network the mock radio can "see", along with the
// secret it will accept for it.
type AirNetwork struct {
	wifi.ObservedNetwork
	Secret string
}

// Radio is a scripted in-memory implementation of wifi.Radio for tests and
// the mock build.
type Radio struct {
	mu sync.Mutex

	// Air is the set of networks visible to a scan. Tests mutate it between
	// ticks to simulate networks appearing and disappearing.
	Air []AirNetwork

	// HoldConnect makes BeginConnect accept the attempt but never resolve
	// it, for exercising connect timeouts.
	HoldConnect bool

	// Error overrides, in the style of a configurable fake: when set, the
	// corresponding operation fails with this error.
	ConnectError error
	ScanError    error
	StartAPError error
	StopAPError  error

	// ConcurrentRoles reports hybrid capability via SupportsConcurrentRoles.
	ConcurrentRoles bool

	// ActionSleep is a delay before every action, to better emulate a
	// real-world radio. Set to 0 during testing.
	ActionSleep time.Duration

	connected    string
	apRunning    bool
	apConfig     wifi.APConfig
	connectCalls int
	scanCalls    int
	startAPCalls int
	disconnects  int
	events       chan wifi.Event
}

// New creates a mock radio with a handful of fun networks in the air.
func New() (*Radio, error) {
	return &Radio{
		Air: []AirNetwork{
			{ObservedNetwork: wifi.ObservedNetwork{Name: "Password is password", Signal: -45, Secured: true, Security: wifi.SecurityWPA}, Secret: "password"},
			{ObservedNetwork: wifi.ObservedNetwork{Name: "TacoBoutAGoodSignal", Signal: -38, Security: wifi.SecurityOpen}},
			{ObservedNetwork: wifi.ObservedNetwork{Name: "I Believe Wi Can Fi", Signal: -72, Secured: true, Security: wifi.SecurityWPA}, Secret: "believe"},
			{ObservedNetwork: wifi.ObservedNetwork{Name: "Dunder MiffLAN", Signal: -60, Secured: true, Security: wifi.SecurityWPA}, Secret: "thatswhatshesaid"},
			{ObservedNetwork: wifi.ObservedNetwork{Name: "Hot singles in your area", Signal: -81, Secured: true, Security: wifi.SecurityWPA}, Secret: "swipe"},
		},
		ConcurrentRoles: true,
		ActionSleep:     DefaultActionSleep,
		events:          make(chan wifi.Event, 16),
	}, nil
}

func (r *Radio) sleep() {
	if r.ActionSleep > 0 {
		time.Sleep(r.ActionSleep)
	}
}

func (r *Radio) emit(ev wifi.Event) {
	select {
	case r.events <- ev:
	default:
		// Queue full: drop rather than block the radio context.
	}
}

func (r *Radio) Events() <-chan wifi.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(chan wifi.Event, 16)
	}
	return r.events
}

func (r *Radio) BeginConnect(name, secret string) error {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.events == nil {
		r.events = make(chan wifi.Event, 16)
	}
	if r.ConnectError != nil {
		return r.ConnectError
	}
	r.connectCalls++
	if r.HoldConnect {
		return nil
	}

	for _, air := range r.Air {
		if air.Name != name {
			continue
		}
		if air.Secured && air.Secret != secret {
			r.emit(wifi.Event{Kind: wifi.EventAuthRejected, Name: name})
			return nil
		}
		r.connected = name
		r.emit(wifi.Event{Kind: wifi.EventLinkUp, Name: name, Signal: air.Signal})
		return nil
	}

	r.emit(wifi.Event{Kind: wifi.EventNetworkNotFound, Name: name})
	return nil
}

func (r *Radio) Disconnect() error {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = ""
	r.disconnects++
	return nil
}

func (r *Radio) Scan(blocking bool) ([]wifi.ObservedNetwork, error) {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.events == nil {
		r.events = make(chan wifi.Event, 16)
	}
	if r.ScanError != nil {
		return nil, r.ScanError
	}
	r.scanCalls++

	results := make([]wifi.ObservedNetwork, 0, len(r.Air))
	for _, air := range r.Air {
		results = append(results, air.ObservedNetwork)
	}
	wifi.SortObserved(results)

	if blocking {
		// Link interruption around a blocking scan is backend-dependent;
		// this radio scans without dropping the link, like NetworkManager.
		return results, nil
	}

	r.emit(wifi.Event{Kind: wifi.EventScanComplete, Results: results})
	return nil, nil
}

func (r *Radio) StartAccessPoint(cfg wifi.APConfig) error {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StartAPError != nil {
		return r.StartAPError
	}
	if r.apRunning && r.apConfig.Name == cfg.Name && r.apConfig.Secret == cfg.Secret {
		return nil
	}
	r.apRunning = true
	r.apConfig = cfg
	r.startAPCalls++
	return nil
}

func (r *Radio) StopAccessPoint() error {
	r.sleep()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StopAPError != nil {
		return r.StopAPError
	}
	r.apRunning = false
	return nil
}

func (r *Radio) SupportsConcurrentRoles() bool {
	return r.ConcurrentRoles
}

// DropLink simulates losing the station link; the manager finds out through
// the event queue like it would from a real radio.
func (r *Radio) DropLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected == "" {
		return
	}
	name := r.connected
	r.connected = ""
	r.emit(wifi.Event{Kind: wifi.EventLinkLost, Name: name})
}

// Fault injects an unrecoverable radio error event.
func (r *Radio) Fault(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(chan wifi.Event, 16)
	}
	r.emit(wifi.Event{Kind: wifi.EventRadioFault, Err: err})
}

// Connected returns the name of the associated network, or "".
func (r *Radio) Connected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// APRunning reports whether the mock access point is up.
func (r *Radio) APRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apRunning
}

// StartAPCalls counts the StartAccessPoint invocations that actually changed
// state, for asserting idempotence.
func (r *Radio) StartAPCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startAPCalls
}

// ConnectCalls counts accepted BeginConnect invocations.
func (r *Radio) ConnectCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectCalls
}

// ScanCalls counts accepted Scan invocations.
func (r *Radio) ScanCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanCalls
}
