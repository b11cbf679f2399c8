package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/orbit"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

var issTLE = orbit.TLE{
	Name:  "ISS (ZARYA)",
	Line1: "1 25544U 98067A   20029.91667824  .00001264  00000-0  31518-4 0  9992",
	Line2: "2 25544  51.6443  19.6205 0004976  22.0078  66.3239 15.49240571212486",
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	rt := module.NewRuntime(nil, "tracker", "", "tracking")
	return New(rt, Config{Observer: orbit.Observer{LatDeg: 60.1841, LonDeg: 24.8283, AltKm: 0.052}})
}

func TestNew_StartsDisabled(t *testing.T) {
	tr := newTestTracker(t)
	require.Equal(t, StateDisabled, tr.state)
}

func TestTick_DisabledIgnoresEverything(t *testing.T) {
	tr := newTestTracker(t)
	tr.tick(time.Now()) // must not panic with nil broker
	require.Equal(t, StateDisabled, tr.state)
}

func TestDescribe_RegistersExpectedRPCsAndQueue(t *testing.T) {
	tr := newTestTracker(t)
	desc := tr.Describe()

	require.Len(t, desc.Queues, 1)
	require.Equal(t, "tracking", desc.Queues[0].Binds[0].Exchange)
	require.Equal(t, "tle.updated", desc.Queues[0].Binds[0].RoutingKey)

	verbs := make(map[string]bool)
	for _, r := range desc.RPCs {
		verbs[r.Verb] = true
		require.Equal(t, "tracking", r.Exchange)
	}
	require.True(t, verbs["set_target"])
	require.True(t, verbs["get_config"])
	require.True(t, verbs["get_satellite_pass"])
	require.True(t, verbs["get_satellite_position"])
}

func TestRpcGetConfig_ReflectsObserver(t *testing.T) {
	tr := newTestTracker(t)
	resp, err := tr.rpcGetConfig("get_config", nil)
	require.NoError(t, err)
	require.InDelta(t, 60.1841, resp["latitude"], 1e-6)
	require.InDelta(t, 24.8283, resp["longitude"], 1e-6)
}

func TestRpcGetSatellitePass_ErrorsWithoutATarget(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.rpcGetSatellitePass("get_satellite_pass", nil)
	require.Error(t, err)
}

func TestRpcGetSatellitePosition_ErrorsWithoutATarget(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.rpcGetSatellitePosition("get_satellite_position", nil)
	require.Error(t, err)
}

// TestTrackingPointClamping restates broadcastPointing's clamp rules inline
// (azimuth above 180 folded by -360, negative elevation raised to 0); it
// does not call broadcastPointing, which publishes through the broker.
func TestTrackingPointClamping(t *testing.T) {
	az := 270.0
	if az > 180 {
		az -= 360
	}
	require.Equal(t, -90.0, az)

	el := -3.0
	if el < 0 {
		el = 0
	}
	require.Equal(t, 0.0, el)
}

func TestSetState_UpdatesStateAndKeepsTarget(t *testing.T) {
	tr := newTestTracker(t)
	tr.target = "FORESAIL-1"
	tr.setState(StateWaiting)
	require.Equal(t, StateWaiting, tr.state)
	require.Equal(t, "FORESAIL-1", tr.targetName())
}

// TestRefreshPassIsNoopWithoutTLE guards against a nil-pointer on the
// hasTLE=false path, exercised after an explicit clear-target.
func TestRefreshPassIsNoopWithoutTLE(t *testing.T) {
	tr := newTestTracker(t)
	tr.refreshPass(time.Now())
	require.False(t, tr.hasPass)
}

func TestTickWaitingTransitionsToAOSNearPreAOSWindow(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	tr.tle = issTLE
	tr.hasTLE = true
	tr.state = StateWaiting
	tr.pass = types.Pass{TAOS: now.Add(90 * time.Second)}
	tr.hasPass = true

	tr.tick(now)
	// Within the preAOS window the tracker leaves WAITING either for AOS
	// (elevation still below the horizon) or straight to TRACKING (the
	// real SGP4 propagation already has it risen at this instant).
	require.Contains(t, []State{StateAOS, StateTracking}, tr.state)
}
