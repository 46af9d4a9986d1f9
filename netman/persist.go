package netman

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrPersistence wraps failures of the settings collaborator. Callers log it
// and move on; connectivity never depends on persistence succeeding.
var ErrPersistence = errors.New("persistence failure")

// Persister is the settings-store collaborator boundary: the manager saves
// the full list after every mutation and loads it once at startup.
type Persister interface {
	Save(networks []KnownNetwork) error
	Load() ([]KnownNetwork, error)
}

// networkRecord is the flat TOML shape of one entry. Timestamps travel as
// RFC3339 strings, empty when the network never connected.
type networkRecord struct {
	Name            string `toml:"name"`
	Secret          string `toml:"secret"`
	Priority        int    `toml:"priority"`
	AutoConnect     bool   `toml:"auto_connect"`
	LastConnectedAt string `toml:"last_connected_at,omitempty"`
	AttemptCount    int    `toml:"attempt_count"`
	LastSignal      int    `toml:"last_signal"`
}

type networkFile struct {
	Networks []networkRecord `toml:"networks"`
}

func toRecord(n KnownNetwork) networkRecord {
	rec := networkRecord{
		Name:         n.Name,
		Secret:       n.Secret,
		Priority:     n.Priority,
		AutoConnect:  n.AutoConnect,
		AttemptCount: n.AttemptCount,
		LastSignal:   n.LastSignal,
	}
	if n.LastConnectedAt != nil {
		rec.LastConnectedAt = n.LastConnectedAt.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func fromRecord(rec networkRecord) (KnownNetwork, error) {
	n := KnownNetwork{
		Name:         rec.Name,
		Secret:       rec.Secret,
		Priority:     rec.Priority,
		AutoConnect:  rec.AutoConnect,
		AttemptCount: rec.AttemptCount,
		LastSignal:   rec.LastSignal,
	}
	if rec.LastConnectedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, rec.LastConnectedAt)
		if err != nil {
			return n, err
		}
		n.LastConnectedAt = &t
	}
	return n, nil
}

// FileStore persists the network list as a TOML file. Writes go through a
// temp file and rename so a crash never leaves a half-written list.
type FileStore struct {
	path string
}

// NewFileStore creates a TOML-backed persister at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(networks []KnownNetwork) error {
	doc := networkFile{Networks: make([]networkRecord, 0, len(networks))}
	for _, n := range networks {
		doc.Networks = append(doc.Networks, toRecord(n))
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding network list: %w", ErrPersistence)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating settings directory: %w", ErrPersistence)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing network list: %w", ErrPersistence)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing network list: %w", ErrPersistence)
	}
	return nil
}

func (f *FileStore) Load() ([]KnownNetwork, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading network list: %w", ErrPersistence)
	}

	var doc networkFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding network list: %w", ErrPersistence)
	}

	out := make([]KnownNetwork, 0, len(doc.Networks))
	for _, rec := range doc.Networks {
		n, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("decoding network %q: %w", rec.Name, ErrPersistence)
		}
		out = append(out, n)
	}
	return out, nil
}
