package netman

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults mirror the firmware constants this manager grew out of.
const (
	DefaultCapacity       = 5
	DefaultConnectTimeout = 20 * time.Second
	DefaultRetryInterval  = 30 * time.Second
	DefaultScanInterval   = 60 * time.Second
	DefaultMaxAttempts    = 5
	DefaultAPName         = "wifid-setup"
	DefaultAPSecret       = "12345678"
)

// Config carries the connectivity manager's tunables.
type Config struct {
	// Capacity bounds the known-network store.
	Capacity int
	// ConnectTimeout is how long a connect attempt may stay in Connecting
	// before it is failed. Polled against the clock each tick.
	ConnectTimeout time.Duration
	// RetryInterval is the fixed delay between reconnect attempts. The
	// policy is deliberately not exponential: the device has nothing better
	// to do with the radio.
	RetryInterval time.Duration
	// ScanInterval rate-limits radio scans.
	ScanInterval time.Duration
	// MaxAttempts is the consecutive-failure budget before the machine
	// commits to access-point mode.
	MaxAttempts int
	// APName and APSecret are the credentials for the fallback access point.
	APName   string
	APSecret string
	// APEnabled keeps the access point up even while a station link is
	// active (hybrid mode). When false the AP only runs as a fallback and
	// is torn down on a successful connection.
	APEnabled bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		ConnectTimeout: DefaultConnectTimeout,
		RetryInterval:  DefaultRetryInterval,
		ScanInterval:   DefaultScanInterval,
		MaxAttempts:    DefaultMaxAttempts,
		APName:         DefaultAPName,
		APSecret:       DefaultAPSecret,
	}
}

// configFile is the TOML shape of the optional config file. Pointer fields
// distinguish a missing value from a zero, so users only override the keys
// they care about.
type configFile struct {
	Capacity       *int    `toml:"capacity,omitempty"`
	ConnectTimeout *string `toml:"connect_timeout,omitempty"`
	RetryInterval  *string `toml:"retry_interval,omitempty"`
	ScanInterval   *string `toml:"scan_interval,omitempty"`
	MaxAttempts    *int    `toml:"max_attempts,omitempty"`
	APName         *string `toml:"ap_name,omitempty"`
	APSecret       *string `toml:"ap_secret,omitempty"`
	APEnabled      *bool   `toml:"ap_enabled,omitempty"`
}

// LoadConfig reads a TOML config file and overlays it on the defaults.
// An empty path returns the defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var cf configFile
	if err := toml.Unmarshal(data, &cf); err != nil {
		return cfg, err
	}

	if cf.Capacity != nil {
		cfg.Capacity = *cf.Capacity
	}
	if cf.ConnectTimeout != nil {
		d, err := time.ParseDuration(*cf.ConnectTimeout)
		if err != nil {
			return cfg, fmt.Errorf("connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if cf.RetryInterval != nil {
		d, err := time.ParseDuration(*cf.RetryInterval)
		if err != nil {
			return cfg, fmt.Errorf("retry_interval: %w", err)
		}
		cfg.RetryInterval = d
	}
	if cf.ScanInterval != nil {
		d, err := time.ParseDuration(*cf.ScanInterval)
		if err != nil {
			return cfg, fmt.Errorf("scan_interval: %w", err)
		}
		cfg.ScanInterval = d
	}
	if cf.MaxAttempts != nil {
		cfg.MaxAttempts = *cf.MaxAttempts
	}
	if cf.APName != nil {
		cfg.APName = *cf.APName
	}
	if cf.APSecret != nil {
		cfg.APSecret = *cf.APSecret
	}
	if cf.APEnabled != nil {
		cfg.APEnabled = *cf.APEnabled
	}

	return cfg, nil
}
