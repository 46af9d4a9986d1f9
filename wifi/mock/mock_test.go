package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerhw/wifid/wifi"
)

func newTestRadio(t *testing.T) *Radio {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	r.ActionSleep = 0
	return r
}

func nextEvent(t *testing.T, r *Radio) wifi.Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	default:
		t.Fatal("no event queued")
		return wifi.Event{}
	}
}

func TestBeginConnect(t *testing.T) {
	r := newTestRadio(t)

	require.NoError(t, r.BeginConnect("Password is password", "password"))
	ev := nextEvent(t, r)
	assert.Equal(t, wifi.EventLinkUp, ev.Kind)
	assert.Equal(t, "Password is password", ev.Name)
	assert.Equal(t, -45, ev.Signal)
	assert.Equal(t, "Password is password", r.Connected())
}

func TestBeginConnectWrongSecret(t *testing.T) {
	r := newTestRadio(t)

	require.NoError(t, r.BeginConnect("Password is password", "hunter2"))
	ev := nextEvent(t, r)
	assert.Equal(t, wifi.EventAuthRejected, ev.Kind)
	assert.Empty(t, r.Connected())
}

func TestBeginConnectUnknownNetwork(t *testing.T) {
	r := newTestRadio(t)

	require.NoError(t, r.BeginConnect("NoSuchNetwork", ""))
	ev := nextEvent(t, r)
	assert.Equal(t, wifi.EventNetworkNotFound, ev.Kind)
}

func TestScanBlocking(t *testing.T) {
	r := newTestRadio(t)

	results, err := r.Scan(true)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Signal, results[i].Signal, "results must be sorted strongest first")
	}
}

func TestScanAsync(t *testing.T) {
	r := newTestRadio(t)

	results, err := r.Scan(false)
	require.NoError(t, err)
	assert.Nil(t, results)

	ev := nextEvent(t, r)
	assert.Equal(t, wifi.EventScanComplete, ev.Kind)
	assert.Len(t, ev.Results, 5)
}

func TestAccessPointIdempotence(t *testing.T) {
	r := newTestRadio(t)
	cfg := wifi.APConfig{Name: "wifid-setup", Secret: "12345678"}

	require.NoError(t, r.StartAccessPoint(cfg))
	require.NoError(t, r.StartAccessPoint(cfg))
	assert.True(t, r.APRunning())
	assert.Equal(t, 1, r.StartAPCalls())

	require.NoError(t, r.StopAccessPoint())
	require.NoError(t, r.StopAccessPoint())
	assert.False(t, r.APRunning())
}

func TestDropLink(t *testing.T) {
	r := newTestRadio(t)
	require.NoError(t, r.BeginConnect("TacoBoutAGoodSignal", ""))
	_ = nextEvent(t, r) // link-up

	r.DropLink()
	ev := nextEvent(t, r)
	assert.Equal(t, wifi.EventLinkLost, ev.Kind)
	assert.Equal(t, "TacoBoutAGoodSignal", ev.Name)

	// A second drop with no link is silent.
	r.DropLink()
	select {
	case ev := <-r.Events():
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}
