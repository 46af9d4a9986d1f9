package wifi

import "net"

// EventKind enumerates the events a Radio can emit.
type EventKind int

const (
	EventLinkUp EventKind = iota
	EventLinkLost
	EventScanComplete
	EventAuthRejected
	EventNetworkNotFound
	EventRadioFault
)

func (k EventKind) String() string {
	switch k {
	case EventLinkUp:
		return "link-up"
	case EventLinkLost:
		return "link-lost"
	case EventScanComplete:
		return "scan-complete"
	case EventAuthRejected:
		return "auth-rejected"
	case EventNetworkNotFound:
		return "network-not-found"
	case EventRadioFault:
		return "radio-fault"
	default:
		return "unknown"
	}
}

// Event is emitted by a Radio and consumed by the connection state machine
// from its tick loop. Radio implementations must never mutate manager state
// from their own callback context; everything flows through this queue.
type Event struct {
	Kind    EventKind
	Name    string            // network the event concerns, when applicable
	Signal  int               // link signal in dBm for EventLinkUp
	Results []ObservedNetwork // scan results for EventScanComplete
	Err     error             // underlying cause for EventRadioFault
}

// APConfig carries the parameters for hosting a local access point.
type APConfig struct {
	Name       string
	Secret     string
	Address    net.IP
	Mask       net.IPMask
	Channel    int
	MaxClients int
}

// Radio abstracts the single wireless adapter. The station and access-point
// roles share one radio; SupportsConcurrentRoles reports whether both can be
// active at the same time.
type Radio interface {
	// BeginConnect starts association with a network. It returns once the
	// attempt is underway; the outcome (link-up, auth rejection, not-found,
	// or silence until the caller's own timeout) arrives on Events.
	BeginConnect(name, secret string) error
	// Disconnect drops the station link. Calling it with no link active is
	// a no-op.
	Disconnect() error
	// Scan looks for networks in the air. A blocking scan suspends the
	// caller for the scan duration and returns the results directly; because
	// the roles share one radio, a backend may briefly interrupt and restore
	// an active station link around the scan. A non-blocking scan returns
	// immediately with a nil slice and delivers results as an
	// EventScanComplete.
	Scan(blocking bool) ([]ObservedNetwork, error)
	// StartAccessPoint brings up the local access point. Starting an AP
	// that is already running with the same parameters is a no-op.
	StartAccessPoint(cfg APConfig) error
	// StopAccessPoint tears the access point down. Safe to call when no AP
	// is running.
	StopAccessPoint() error
	// SupportsConcurrentRoles reports whether station and AP roles can run
	// simultaneously on this adapter.
	SupportsConcurrentRoles() bool
	// Events returns the radio's event queue.
	Events() <-chan Event
}
