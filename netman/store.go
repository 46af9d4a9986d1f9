package netman

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// KnownNetwork is a trusted, persisted credential entry.
type KnownNetwork struct {
	Name            string     `json:"name"`
	Secret          string     `json:"-"`
	Priority        int        `json:"priority"` // 1-10, higher wins
	AutoConnect     bool       `json:"autoConnect"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
	AttemptCount    int        `json:"attemptCount"`
	LastSignal      int        `json:"lastSignal"`
}

// UpdateOptions specifies the properties to update for a known network.
// A nil value for a field means that the property should not be changed.
type UpdateOptions struct {
	Secret      *string
	Priority    *int
	AutoConnect *bool
}

// Store owns the bounded, prioritized set of known networks. Every mutation
// is written through to the persister; persistence failures are logged and
// otherwise ignored, the in-memory copy stays authoritative for the process
// lifetime.
type Store struct {
	mu        sync.Mutex
	capacity  int
	persister Persister
	logger    *slog.Logger
	networks  []KnownNetwork
}

// NewStore creates an empty store. A nil persister disables persistence.
func NewStore(capacity int, persister Persister, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		capacity:  capacity,
		persister: persister,
		logger:    logger,
	}
}

// Load replaces the store contents from the persister. Called once at
// startup; a failure leaves the store empty and is not fatal.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}

	networks, err := s.persister.Load()
	if err != nil {
		s.logger.Warn("loading network list failed", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(networks) > s.capacity {
		networks = networks[:s.capacity]
	}
	s.networks = networks
	return nil
}

func clampPriority(priority int) int {
	if priority < 1 {
		return 1
	}
	if priority > 10 {
		return 10
	}
	return priority
}

// Add inserts a network, or updates it in place when the name is already
// known. When the store is full, the lowest-priority entry is evicted first;
// priority ties go to the entry with the oldest last connection, with
// never-connected entries losing the tie.
func (s *Store) Add(name, secret string, priority int, autoConnect bool) bool {
	if name == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	priority = clampPriority(priority)

	for i := range s.networks {
		if s.networks[i].Name == name {
			s.networks[i].Secret = secret
			s.networks[i].Priority = priority
			s.networks[i].AutoConnect = autoConnect
			s.saveLocked()
			return true
		}
	}

	if len(s.networks) >= s.capacity {
		victim := s.evictionVictimLocked()
		s.logger.Info("evicting network", "network", s.networks[victim].Name, "priority", s.networks[victim].Priority)
		s.networks = append(s.networks[:victim], s.networks[victim+1:]...)
	}

	s.networks = append(s.networks, KnownNetwork{
		Name:        name,
		Secret:      secret,
		Priority:    priority,
		AutoConnect: autoConnect,
	})
	s.saveLocked()
	return true
}

// evictionVictimLocked picks the index to evict: lowest priority, then
// never-connected, then oldest LastConnectedAt.
func (s *Store) evictionVictimLocked() int {
	victim := 0
	for i := 1; i < len(s.networks); i++ {
		a := s.networks[i]
		b := s.networks[victim]
		switch {
		case a.Priority != b.Priority:
			if a.Priority < b.Priority {
				victim = i
			}
		case a.LastConnectedAt == nil && b.LastConnectedAt != nil:
			victim = i
		case a.LastConnectedAt != nil && b.LastConnectedAt != nil &&
			a.LastConnectedAt.Before(*b.LastConnectedAt):
			victim = i
		}
	}
	return victim
}

// Remove deletes a network by name.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.networks {
		if s.networks[i].Name == name {
			s.networks = append(s.networks[:i], s.networks[i+1:]...)
			s.saveLocked()
			return true
		}
	}
	return false
}

// Update applies the non-nil fields of opts to a known network.
func (s *Store) Update(name string, opts UpdateOptions) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.networks {
		if s.networks[i].Name != name {
			continue
		}
		if opts.Secret != nil {
			s.networks[i].Secret = *opts.Secret
		}
		if opts.Priority != nil {
			s.networks[i].Priority = clampPriority(*opts.Priority)
		}
		if opts.AutoConnect != nil {
			s.networks[i].AutoConnect = *opts.AutoConnect
		}
		s.saveLocked()
		return true
	}
	return false
}

// Get returns a copy of the named network.
func (s *Store) Get(name string) (KnownNetwork, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.networks {
		if n.Name == name {
			return n, true
		}
	}
	return KnownNetwork{}, false
}

// List returns a copy of the store contents, highest priority first.
func (s *Store) List() []KnownNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]KnownNetwork, len(s.networks))
	copy(out, s.networks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of known networks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.networks)
}

// Capacity returns the store's fixed capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// RecordSuccess notes a successful connection on a network.
func (s *Store) RecordSuccess(name string, signal int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.networks {
		if s.networks[i].Name == name {
			t := at
			s.networks[i].LastConnectedAt = &t
			s.networks[i].LastSignal = signal
			s.networks[i].AttemptCount++
			s.saveLocked()
			return
		}
	}
}

// RecordFailure notes a failed connection attempt on a network.
func (s *Store) RecordFailure(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.networks {
		if s.networks[i].Name == name {
			s.networks[i].AttemptCount++
			s.saveLocked()
			return
		}
	}
}

func (s *Store) saveLocked() {
	if s.persister == nil {
		return
	}
	networks := make([]KnownNetwork, len(s.networks))
	copy(networks, s.networks)
	if err := s.persister.Save(networks); err != nil {
		s.logger.Warn("persisting network list failed", "error", err)
	}
}
