package netman

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := []KnownNetwork{
		{Name: "Cafe", Secret: "latte", Priority: 2, AutoConnect: true},
		{Name: "Home", Secret: "hunter2", Priority: 9, AutoConnect: true, LastConnectedAt: &at, AttemptCount: 4, LastSignal: -51},
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Load orders by priority, highest first.
	assert.Equal(t, "Home", out[0].Name)
	assert.Equal(t, "hunter2", out[0].Secret)
	assert.Equal(t, 4, out[0].AttemptCount)
	assert.Equal(t, -51, out[0].LastSignal)
	require.NotNil(t, out[0].LastConnectedAt)
	assert.True(t, out[0].LastConnectedAt.Equal(at))

	assert.Equal(t, "Cafe", out[1].Name)
	assert.Nil(t, out[1].LastConnectedAt)
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save([]KnownNetwork{{Name: "a", Priority: 1}, {Name: "b", Priority: 2}}))
	require.NoError(t, s.Save([]KnownNetwork{{Name: "c", Priority: 3}}))

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Name)
}

func TestSQLiteStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save([]KnownNetwork{{Name: "Home", Secret: "x", Priority: 5, AutoConnect: true}}))
	require.NoError(t, s.Close())

	s2, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	out, err := s2.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Home", out[0].Name)
}
