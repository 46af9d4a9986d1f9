package netman

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	saves   int
	last    []KnownNetwork
	loadRes []KnownNetwork
	saveErr error
	loadErr error
}

func (p *memPersister) Save(networks []KnownNetwork) error {
	p.saves++
	p.last = networks
	return p.saveErr
}

func (p *memPersister) Load() ([]KnownNetwork, error) {
	return p.loadRes, p.loadErr
}

func TestStoreAddUpdatesInPlace(t *testing.T) {
	s := NewStore(5, nil, discardLogger())

	require.True(t, s.Add("Home", "old", 3, true))
	require.True(t, s.Add("Home", "new", 7, false))

	assert.Equal(t, 1, s.Len())
	kn, ok := s.Get("Home")
	require.True(t, ok)
	assert.Equal(t, "new", kn.Secret)
	assert.Equal(t, 7, kn.Priority)
	assert.False(t, kn.AutoConnect)
}

func TestStoreRejectsEmptyName(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	assert.False(t, s.Add("", "secret", 5, true))
	assert.Equal(t, 0, s.Len())
}

func TestStorePriorityClamped(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	s.Add("low", "x", -3, true)
	s.Add("high", "x", 99, true)

	kn, _ := s.Get("low")
	assert.Equal(t, 1, kn.Priority)
	kn, _ = s.Get("high")
	assert.Equal(t, 10, kn.Priority)
}

func TestStoreEvictsLowestPriority(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	s.Add("a", "x", 5, true)
	s.Add("b", "x", 4, true)
	s.Add("c", "x", 3, true)
	s.Add("d", "x", 2, true)
	s.Add("e", "x", 1, true)

	require.True(t, s.Add("f", "x", 3, true))

	assert.Equal(t, 5, s.Len())
	_, ok := s.Get("e")
	assert.False(t, ok, "lowest-priority entry should be evicted")
	_, ok = s.Get("f")
	assert.True(t, ok)
}

func TestStoreEvictionTieBreaks(t *testing.T) {
	t.Run("never-connected loses first", func(t *testing.T) {
		s := NewStore(2, nil, discardLogger())
		s.Add("connected", "x", 5, true)
		s.Add("fresh", "x", 5, true)
		s.RecordSuccess("connected", -50, time.Now())

		s.Add("newcomer", "x", 5, true)

		_, ok := s.Get("fresh")
		assert.False(t, ok)
		_, ok = s.Get("connected")
		assert.True(t, ok)
	})

	t.Run("oldest connection loses", func(t *testing.T) {
		s := NewStore(2, nil, discardLogger())
		s.Add("stale", "x", 5, true)
		s.Add("recent", "x", 5, true)
		now := time.Now()
		s.RecordSuccess("stale", -50, now.Add(-time.Hour))
		s.RecordSuccess("recent", -50, now)

		s.Add("newcomer", "x", 5, true)

		_, ok := s.Get("stale")
		assert.False(t, ok)
		_, ok = s.Get("recent")
		assert.True(t, ok)
	})
}

func TestStoreRemove(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	s.Add("Home", "x", 5, true)

	assert.True(t, s.Remove("Home"))
	assert.False(t, s.Remove("Home"))
	assert.Equal(t, 0, s.Len())
}

func TestStoreUpdatePartial(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	s.Add("Home", "secret", 5, true)

	priority := 9
	require.True(t, s.Update("Home", UpdateOptions{Priority: &priority}))

	kn, _ := s.Get("Home")
	assert.Equal(t, 9, kn.Priority)
	assert.Equal(t, "secret", kn.Secret, "unset fields must not change")
	assert.True(t, kn.AutoConnect)

	assert.False(t, s.Update("nope", UpdateOptions{Priority: &priority}))
}

func TestStoreListOrder(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	s.Add("beta", "x", 5, true)
	s.Add("alpha", "x", 5, true)
	s.Add("top", "x", 9, true)

	names := make([]string, 0, 3)
	for _, n := range s.List() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"top", "alpha", "beta"}, names)
}

func TestStoreRecordSuccessAndFailure(t *testing.T) {
	s := NewStore(5, nil, discardLogger())
	s.Add("Home", "x", 5, true)

	s.RecordFailure("Home")
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.RecordSuccess("Home", -42, at)

	kn, _ := s.Get("Home")
	assert.Equal(t, 2, kn.AttemptCount)
	assert.Equal(t, -42, kn.LastSignal)
	require.NotNil(t, kn.LastConnectedAt)
	assert.True(t, kn.LastConnectedAt.Equal(at))

	// Unknown names are a silent no-op.
	s.RecordFailure("nope")
	s.RecordSuccess("nope", -1, at)
}

func TestStoreLoadTrimsToCapacity(t *testing.T) {
	p := &memPersister{}
	for i := 0; i < 7; i++ {
		p.loadRes = append(p.loadRes, KnownNetwork{Name: string(rune('a' + i)), Priority: 5})
	}
	s := NewStore(5, p, discardLogger())

	require.NoError(t, s.Load())
	assert.Equal(t, 5, s.Len())
}

func TestStoreSurvivesPersistenceFailure(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	s := NewStore(5, p, discardLogger())

	assert.True(t, s.Add("Home", "x", 5, true))
	_, ok := s.Get("Home")
	assert.True(t, ok, "in-memory copy stays authoritative")
}

func TestStoreWritesThroughOnMutation(t *testing.T) {
	p := &memPersister{}
	s := NewStore(5, p, discardLogger())

	s.Add("Home", "x", 5, true)
	s.RecordFailure("Home")
	s.Remove("Home")

	assert.Equal(t, 3, p.saves)
	assert.Empty(t, p.last)
}
