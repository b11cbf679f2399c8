package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/metrics"
	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/orbit"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

// State is the tracker state machine's current state (spec 4.H).
type State string

const (
	StateDisabled State = "DISABLED"
	StateWaiting  State = "WAITING"
	StateAOS      State = "AOS"
	StateTracking State = "TRACKING"
	StateLOS      State = "LOS"
)

// TickInterval is the tracker's per-step cadence, matching the 2s loop of
// orbit_tracker.py's setup() coroutine.
const TickInterval = 2 * time.Second

// preAOSWindow is how far ahead of a predicted AOS the tracker moves from
// WAITING to AOS (emitting "preaos"), matching the original's hardcoded
// 120 second lookahead.
const preAOSWindow = 120 * time.Second

// searchHorizon bounds how far ahead NextPass searches for the next pass;
// wide enough for any LEO repeat period without scanning indefinitely.
const searchHorizon = 36 * time.Hour

// defaultMinElevation is used when a process/config doesn't specify one.
const defaultMinElevation = 5.0

// Config configures one Tracker instance.
type Config struct {
	Observer     orbit.Observer
	MinElevation float64  // degrees; defaults to defaultMinElevation if zero
	Rotators     []string // rotator module prefixes this tracker drives, carried in event bodies
}

// Tracker drives a single target TLE through the DISABLED→WAITING→AOS→
// TRACKING→LOS state machine, broadcasting pointings and lifecycle events.
// Grounded on _examples/original_source/gs/tracking/orbit_tracker.py.
type Tracker struct {
	rt  *module.Runtime
	cfg Config

	mu     sync.Mutex
	state  State
	target string
	tle    orbit.TLE
	hasTLE bool
	pass   types.Pass
	hasPass bool
}

// New builds a Tracker bound to rt, reporting events/pointings through it.
func New(rt *module.Runtime, cfg Config) *Tracker {
	if cfg.MinElevation == 0 {
		cfg.MinElevation = defaultMinElevation
	}
	return &Tracker{
		rt:    rt,
		cfg:   cfg,
		state: StateDisabled,
	}
}

// Describe registers the tracker's RPC surface and its tle.updated queue,
// matching orbit_tracker.py's rpc_handler verbs and tle_updated_callback.
func (t *Tracker) Describe() module.Description {
	return module.Description{
		Queues: []module.QueueReg{
			{
				Name: "",
				Binds: []module.Bind{
					{Exchange: "tracking", RoutingKey: "tle.updated", Prefixed: false},
				},
				Handler: t.handleTLEUpdated,
			},
		},
		RPCs: []module.RPCReg{
			{Exchange: "tracking", Verb: "set_target", Handler: t.rpcSetTarget},
			{Exchange: "tracking", Verb: "get_config", Handler: t.rpcGetConfig},
			{Exchange: "tracking", Verb: "get_satellite_pass", Handler: t.rpcGetSatellitePass},
			{Exchange: "tracking", Verb: "get_satellite_position", Handler: t.rpcGetSatellitePosition},
		},
	}
}

// Run starts the tracker's 2s tick loop; it blocks until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t.tick(now)
		}
	}
}

// tick advances the state machine by one step, grounded on
// orbit_tracker.py's update_traking().
func (t *Tracker) tick(now time.Time) {
	t.mu.Lock()
	state := t.state
	hasTLE := t.hasTLE
	tle := t.tle
	hasPass := t.hasPass
	pass := t.pass
	t.mu.Unlock()

	if state == StateDisabled || !hasTLE {
		return
	}

	point, err := orbit.Track(tle, t.cfg.Observer, now)
	if err != nil {
		t.rt.Log().Warn().Err(err).Str("target", t.targetName()).Msg("tracking: propagation failed")
		return
	}

	switch state {
	case StateWaiting:
		if !hasPass {
			return
		}
		if point.ElevationDeg > 0 {
			t.setState(StateTracking)
			t.sendEvent("aos", nil)
			t.broadcastPointing(point)
		} else if !now.Before(pass.TAOS.Add(-preAOSWindow)) {
			t.setState(StateAOS)
			t.sendEvent("preaos", map[string]any{
				"az_aos": pass.AzAOS,
				"az_max": pass.AzMax,
				"el_max": pass.ElMax,
				"az_los": pass.AzLOS,
				"aos":    pass.TAOS,
				"max":    pass.TMax,
				"los":    pass.TLOS,
			})
		}

	case StateAOS:
		if point.ElevationDeg > 0 {
			t.setState(StateTracking)
			t.sendEvent("aos", nil)
			t.broadcastPointing(point)
		}

	case StateTracking:
		t.broadcastPointing(point)
		if point.ElevationDeg < 0 {
			t.setState(StateLOS)
			t.sendEvent("los", nil)
			t.mu.Lock()
			t.hasPass = false
			t.mu.Unlock()
			t.refreshPass(now)
		}

	case StateLOS:
		t.setState(StateWaiting)
		t.refreshPass(now)
	}
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	metrics.TrackerStateTransitionsTotal.WithLabelValues(string(s)).Inc()
	t.rt.Log().Info().Str("state", string(s)).Str("target", t.targetName()).Msg("tracking: state transition")
}

func (t *Tracker) targetName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// broadcastPointing publishes the current az/el/range on the tracking
// exchange, clamping the way broadcast_pointing() does: elevation never
// negative, azimuth folded into (-180, 180].
func (t *Tracker) broadcastPointing(p orbit.TrackPoint) {
	az := p.AzimuthDeg
	if az > 180 {
		az -= 360
	}
	el := p.ElevationDeg
	if el < 0 {
		el = 0
	}
	metrics.TrackerElevation.Set(el)
	body, _ := json.Marshal(map[string]any{
		"target":   t.targetName(),
		"az":       az,
		"el":       el,
		"velocity": p.RangeRateKmS,
	})
	if err := t.rt.Broker.Publish("tracking", t.rt.Prefixed("target.position"), body); err != nil {
		t.rt.Log().Warn().Err(err).Msg("tracking: pointing publish failed")
	}
}

// sendEvent publishes a lifecycle event on the event exchange, matching
// send_event()'s routing-key-is-event-name convention.
func (t *Tracker) sendEvent(name string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	params["target"] = t.targetName()
	rotators := make(map[string]bool, len(t.cfg.Rotators))
	for _, r := range t.cfg.Rotators {
		rotators[r] = true
	}
	params["rotators"] = rotators
	body, _ := json.Marshal(params)
	if err := t.rt.Broker.Publish("event", name, body); err != nil {
		t.rt.Log().Warn().Err(err).Str("event", name).Msg("tracking: event publish failed")
	}
}

// refreshPass recomputes the next pass for the current TLE, used after a
// target is set and after every LOS, matching set_target()'s predict call.
func (t *Tracker) refreshPass(now time.Time) {
	t.mu.Lock()
	tle := t.tle
	hasTLE := t.hasTLE
	t.mu.Unlock()
	if !hasTLE {
		return
	}

	opts := orbit.Options{MinElevationDeg: t.cfg.MinElevation}
	pass, ok, err := orbit.NextPass(tle, t.cfg.Observer, now, searchHorizon, opts)
	if err != nil {
		t.rt.Log().Warn().Err(err).Msg("tracking: pass prediction failed")
		return
	}
	t.mu.Lock()
	t.pass = pass
	t.hasPass = ok
	t.mu.Unlock()
	if !ok {
		t.rt.Log().Warn().Str("target", t.targetName()).Dur("horizon", searchHorizon).Msg("tracking: no pass found within horizon")
	}
}

func (t *Tracker) handleTLEUpdated(d broker.Delivery) {
	var msg struct {
		Satellite string `json:"satellite"`
		Line1     string `json:"tle1"`
		Line2     string `json:"tle2"`
	}
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		t.rt.Log().Warn().Err(err).Msg("tracking: malformed tle.updated message")
		return
	}
	t.mu.Lock()
	match := t.target != "" && t.target == msg.Satellite
	t.mu.Unlock()
	if !match {
		return
	}

	tle := orbit.TLE{Name: msg.Satellite, Line1: msg.Line1, Line2: msg.Line2}
	t.mu.Lock()
	t.tle = tle
	t.hasTLE = true
	t.mu.Unlock()
	t.rt.Log().Info().Str("target", msg.Satellite).Msg("tracking: TLE refreshed from broadcast")

	if age, err := tle.Age(time.Now()); err == nil && age > orbit.TLEAgeWarning {
		t.rt.Log().Warn().Str("target", msg.Satellite).Dur("age", age).Msg("tracking: TLE is stale")
	}
	t.refreshPass(time.Now())
}

// rpcSetTarget implements rpc.set_target: {satellite, tle1, tle2}. Setting
// satellite to "" or "None" disables tracking, matching set_target(None).
func (t *Tracker) rpcSetTarget(_ string, body map[string]any) (map[string]any, error) {
	name, _ := body["satellite"].(string)

	t.mu.Lock()
	wasTracking := t.state == StateTracking
	t.mu.Unlock()
	if wasTracking {
		t.sendEvent("los", nil)
	}

	if name == "" || name == "None" {
		t.mu.Lock()
		t.target = ""
		t.hasTLE = false
		t.hasPass = false
		t.state = StateDisabled
		t.mu.Unlock()
		return map[string]any{"ok": true}, nil
	}

	line1, _ := body["tle1"].(string)
	line2, _ := body["tle2"].(string)
	if line1 == "" || line2 == "" {
		return nil, rpc.NewRPCError("set_target requires tle1 and tle2 for %q", name)
	}

	tle := orbit.TLE{Name: name, Line1: line1, Line2: line2}
	if age, err := tle.Age(time.Now()); err == nil && age > orbit.TLEAgeWarning {
		t.rt.Log().Warn().Str("target", name).Dur("age", age).Msg("tracking: TLE is stale")
	}

	t.mu.Lock()
	t.target = name
	t.tle = tle
	t.hasTLE = true
	t.state = StateWaiting
	t.mu.Unlock()

	t.refreshPass(time.Now())
	return map[string]any{"ok": true, "target": name}, nil
}

func (t *Tracker) rpcGetConfig(_ string, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"latitude":      t.cfg.Observer.LatDeg,
		"longitude":     t.cfg.Observer.LonDeg,
		"altitude":      t.cfg.Observer.AltKm,
		"min_elevation": t.cfg.MinElevation,
	}, nil
}

func (t *Tracker) rpcGetSatellitePass(_ string, _ map[string]any) (map[string]any, error) {
	t.mu.Lock()
	pass, ok := t.pass, t.hasPass
	state := t.state
	t.mu.Unlock()
	if !ok {
		return nil, rpc.NewRPCError("no pass predicted (state=%s)", state)
	}
	return map[string]any{
		"t_aos":  pass.TAOS,
		"az_aos": pass.AzAOS,
		"el_aos": pass.ElAOS,
		"t_max":  pass.TMax,
		"az_max": pass.AzMax,
		"el_max": pass.ElMax,
		"t_los":  pass.TLOS,
		"az_los": pass.AzLOS,
		"el_los": pass.ElLOS,
	}, nil
}

func (t *Tracker) rpcGetSatellitePosition(_ string, _ map[string]any) (map[string]any, error) {
	t.mu.Lock()
	tle, hasTLE := t.tle, t.hasTLE
	t.mu.Unlock()
	if !hasTLE {
		return nil, rpc.NewRPCError("no target set")
	}
	p, err := orbit.Track(tle, t.cfg.Observer, time.Now())
	if err != nil {
		return nil, fmt.Errorf("tracking: position lookup: %w", err)
	}
	return map[string]any{
		"az":    p.AzimuthDeg,
		"el":    p.ElevationDeg,
		"range": p.RangeKm,
	}, nil
}
