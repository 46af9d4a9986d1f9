package wifi

// SecurityType represents the security protocol of a network.
type SecurityType int

const (
	SecurityUnknown SecurityType = iota
	SecurityOpen
	SecurityWEP
	SecurityWPA
)

func (s SecurityType) String() string {
	switch s {
	case SecurityOpen:
		return "open"
	case SecurityWEP:
		return "wep"
	case SecurityWPA:
		return "wpa"
	default:
		return "unknown"
	}
}

// ObservedNetwork is a single entry from a radio scan. Scan results are
// transient: every scan replaces the previous list wholesale and nothing
// here is ever persisted.
type ObservedNetwork struct {
	Name     string
	Signal   int // dBm, closer to zero is stronger
	Secured  bool
	Security SecurityType

	// Known and AutoConnectEligible are derived by cross-referencing the
	// saved-network store at scan time; the radio itself never sets them.
	Known               bool
	AutoConnectEligible bool
}
