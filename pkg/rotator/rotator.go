package rotator

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/metrics"
	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/orbit"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
)

// PositionRange bounds the motor-space azimuth and elevation the rotator
// will ever be commanded to, matching rotator.py's (-90, 450, 0, 90)
// constructor assertion.
type PositionRange struct {
	AzMin, AzMax float64
	ElMin, ElMax float64
}

// DefaultPositionRange matches the original's hardcoded default bounds.
var DefaultPositionRange = PositionRange{AzMin: -90, AzMax: 450, ElMin: 0, ElMax: 90}

// DutyCycleRange caps how much of the rotator's travel envelope tracking
// may command, as a percentage of full range; preaos widens it and aos
// restores it, matching set_dutycycle_range() calls in tracking_event().
type DutyCycleRange struct {
	AzMax, ElMax float64
}

// DefaultDutyCycleRange is the steady-state duty cycle applied outside a
// preaos/aos bracket.
var DefaultDutyCycleRange = DutyCycleRange{AzMax: 60, ElMax: 60}

// preaosDutyCycle is the widened azimuth duty cycle commanded just before
// AOS so a full compass-crossing slew isn't throttled mid-pass.
const preaosDutyCycle = 100.0

// closeEnoughDeg is the pointing-accuracy tolerance used by check_pointing,
// matching the original's accuracy=0.1 default.
const closeEnoughDeg = 0.1

// sunStepDeg is the azimuth step used to walk a candidate position away
// from the sun keepout, matching closest_valid_position()'s 2-degree step.
const sunStepDeg = 2.0

// maxSunSteps bounds the keepout search so a pathological configuration
// (minSunAngle wider than the whole sky) can't loop forever.
const maxSunSteps = 180

// tickInterval is the rotator's control loop cadence. The original varies
// between 1s (moving) and 2s (settled); a fixed 1s loop is simpler and
// well within the hardware's response time.
const tickInterval = 1 * time.Second

// Driver is the hardware boundary: whatever serial/network link talks to
// the physical rotator controller implements this. No concrete driver
// ships in this package.
type Driver interface {
	Stop(ctx context.Context) error
	Position(ctx context.Context) (azDeg, elDeg float64, err error)
	SetPosition(ctx context.Context, azDeg, elDeg float64) error
	ResetPosition(ctx context.Context, azDeg, elDeg float64) error
}

// CalibrationRecorder appends an audit entry each time rpc.reset_position
// is invoked, matching the original's cal_history.txt append (spec's
// supplemented calibration-history feature). Optional: a nil recorder is
// a no-op.
type CalibrationRecorder interface {
	RecordCalibration(ctx context.Context, azDeg, elDeg float64, at time.Time) error
}

// Config configures one Rotator instance.
type Config struct {
	Driver   Driver
	Observer orbit.Observer

	TrackingEnabled bool
	Threshold       float64 // minimum commanded elevation, matches rotator.py's threshold=0.5 default
	PositionRange   PositionRange
	DutyCycleRange  DutyCycleRange
	HorizonMap      HorizonMap
	MinSunAngleDeg  *float64

	Recorder CalibrationRecorder
}

// Rotator is the rotator module: it owns a target position, clamps every
// commanded position against the horizon map/sun keepout/motor range, and
// reacts to tracker broadcasts. Grounded on
// _examples/original_source/gs/hardware/{rotator.py,base.py}.
type Rotator struct {
	rt     *module.Runtime
	driver Driver
	obs    orbit.Observer

	mu        sync.Mutex
	tracking  bool
	manual    bool
	posRange  PositionRange
	dutyRange DutyCycleRange
	horizon   HorizonMap
	minSun    *float64
	threshold float64
	recorder  CalibrationRecorder

	targetAz, targetEl float64
	hasTarget          bool
	lastCommand        time.Time
}

// New builds a Rotator bound to rt and driver.
func New(rt *module.Runtime, cfg Config) *Rotator {
	posRange := cfg.PositionRange
	if posRange == (PositionRange{}) {
		posRange = DefaultPositionRange
	}
	dutyRange := cfg.DutyCycleRange
	if dutyRange == (DutyCycleRange{}) {
		dutyRange = DefaultDutyCycleRange
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = 0.5
	}
	return &Rotator{
		rt:        rt,
		driver:    cfg.Driver,
		obs:       cfg.Observer,
		tracking:  cfg.TrackingEnabled,
		posRange:  posRange,
		dutyRange: dutyRange,
		horizon:   cfg.HorizonMap,
		minSun:    cfg.MinSunAngleDeg,
		threshold: threshold,
		recorder:  cfg.Recorder,
	}
}

// Describe registers the rotator's RPC surface and its event/position
// queue bindings, matching rotator.py's rpc_handler and tracking_event.
func (r *Rotator) Describe() module.Description {
	return module.Description{
		Queues: []module.QueueReg{
			{
				Binds: []module.Bind{
					{Exchange: "event", RoutingKey: "#", Prefixed: false},
					{Exchange: "tracking", RoutingKey: "target.position", Prefixed: false},
				},
				Handler: r.handleTrackingMessage,
			},
		},
		RPCs: []module.RPCReg{
			{Exchange: "rotator", Verb: "status", Handler: r.rpcStatus},
			{Exchange: "rotator", Verb: "rotate", Handler: r.rpcRotate},
			{Exchange: "rotator", Verb: "stop", Handler: r.rpcStop},
			{Exchange: "rotator", Verb: "tracking", Handler: r.rpcTracking},
			{Exchange: "rotator", Verb: "reset_position", Handler: r.rpcResetPosition},
			{Exchange: "rotator", Verb: "get_position_target", Handler: r.rpcGetPositionTarget},
			{Exchange: "rotator", Verb: "get_position_range", Handler: r.rpcGetPositionRange},
			{Exchange: "rotator", Verb: "set_position_range", Handler: r.rpcSetPositionRange},
			{Exchange: "rotator", Verb: "get_dutycycle_range", Handler: r.rpcGetDutyCycleRange},
			{Exchange: "rotator", Verb: "set_dutycycle_range", Handler: r.rpcSetDutyCycleRange},
		},
	}
}

// Run drives the control loop until ctx is cancelled.
func (r *Rotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.checkState(ctx)
		}
	}
}

// checkState commands the driver towards the current target if not
// already pointed there, then publishes status. Grounded on
// rotator.py's check_state().
func (r *Rotator) checkState(ctx context.Context) {
	r.mu.Lock()
	hasTarget := r.hasTarget
	targetAz, targetEl := r.targetAz, r.targetEl
	r.mu.Unlock()
	if !hasTarget {
		r.publishStatus(ctx)
		return
	}

	az, el := r.closestValidPosition(targetAz, targetEl)

	curAz, curEl, err := r.driver.Position(ctx)
	if err != nil {
		r.rt.Log().Warn().Err(err).Msg("rotator: position read failed")
		return
	}
	if !closePositions(curAz, curEl, az, el) {
		if err := r.driver.SetPosition(ctx, az, el); err != nil {
			r.rt.Log().Warn().Err(err).Msg("rotator: set_position failed")
			return
		}
		metrics.RotatorMovesTotal.Inc()
		metrics.RotatorAzimuth.Set(az)
		metrics.RotatorElevation.Set(el)
		r.mu.Lock()
		r.lastCommand = time.Now()
		r.mu.Unlock()
	}
	r.publishStatus(ctx)
}

func closePositions(az1, el1, az2, el2 float64) bool {
	return math.Abs(az1-az2) <= closeEnoughDeg && math.Abs(el1-el2) <= closeEnoughDeg
}

// closestValidPosition clamps (az, el) into the configured motor range and
// horizon floor, then steps azimuth away from the sun until the keepout
// angle is satisfied, matching base.py's closest_valid_position().
func (r *Rotator) closestValidPosition(az, el float64) (float64, float64) {
	r.mu.Lock()
	posRange := r.posRange
	horizon := r.horizon
	minSun := r.minSun
	obs := r.obs
	r.mu.Unlock()

	az = clampf(az, posRange.AzMin, posRange.AzMax)
	minEl := posRange.ElMin
	if h := horizon.MinElevation(az); h > minEl {
		minEl = h
	}
	el = clampf(el, minEl, posRange.ElMax)

	if minSun == nil {
		return az, el
	}

	for i := 0; i < maxSunSteps; i++ {
		angle, sunAz, _ := r.sunAngle(obs, az, el)
		if angle >= *minSun {
			return az, el
		}
		if normalizeAz(az-sunAz) < 180 {
			az += sunStepDeg
		} else {
			az -= sunStepDeg
		}
		az = clampf(az, posRange.AzMin, posRange.AzMax)
		if h := horizon.MinElevation(az); h > el {
			el = h
		}
	}
	return az, el
}

// sunAngle returns the angular separation in degrees between the pointing
// direction (az, el) and the sun, plus the sun's current azimuth.
func (r *Rotator) sunAngle(obs orbit.Observer, az, el float64) (angleDeg, sunAzDeg, sunElDeg float64) {
	sun := orbit.SunAzEl(obs, time.Now())
	a1, e1 := deg2rad(az), deg2rad(el)
	a2, e2 := deg2rad(sun.AzimuthDeg), deg2rad(sun.ElevationDeg)
	cosAngle := math.Sin(e1)*math.Sin(e2) + math.Cos(e1)*math.Cos(e2)*math.Cos(a1-a2)
	cosAngle = clampf(cosAngle, -1, 1)
	return rad2deg(math.Acos(cosAngle)), sun.AzimuthDeg, sun.ElevationDeg
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// setTarget stores a new target position, applying the threshold floor
// the original's tracking_event applies to incoming target.position
// updates.
func (r *Rotator) setTarget(az, el float64) {
	if el < r.threshold {
		el = r.threshold
	}
	r.mu.Lock()
	r.targetAz, r.targetEl = az, el
	r.hasTarget = true
	r.mu.Unlock()
}

func (r *Rotator) publishStatus(ctx context.Context) {
	curAz, curEl, err := r.driver.Position(ctx)
	if err != nil {
		return
	}
	r.mu.Lock()
	body, _ := json.Marshal(map[string]any{
		"az":       curAz,
		"el":       curEl,
		"tracking": r.trackingStateLabel(),
	})
	r.mu.Unlock()
	if err := r.rt.Broker.Publish("rotator", r.rt.Prefixed("status"), body); err != nil {
		r.rt.Log().Warn().Err(err).Msg("rotator: status publish failed")
	}
}

// trackingStateLabel mirrors get_status_msg()'s tracking field: "timeout"
// once the rotator has gone too long without a fresh command, else
// "tracking"/"manual" depending on who last set the target. Caller must
// hold r.mu.
func (r *Rotator) trackingStateLabel() string {
	const staleAfter = 60 * time.Second
	if !r.lastCommand.IsZero() && time.Since(r.lastCommand) > staleAfter {
		return "timeout"
	}
	if r.manual {
		return "manual"
	}
	return "tracking"
}

// handleTrackingMessage reacts to the tracker's target.position broadcasts
// and event/* lifecycle messages, grounded on rotator.py's tracking_event.
func (r *Rotator) handleTrackingMessage(d broker.Delivery) {
	r.mu.Lock()
	enabled := r.tracking
	r.mu.Unlock()
	if !enabled {
		return
	}

	if d.Exchange == "tracking" {
		r.handlePositionBroadcast(d)
		return
	}
	r.handleLifecycleEvent(d)
}

func (r *Rotator) handlePositionBroadcast(d broker.Delivery) {
	var msg struct {
		Az float64 `json:"az"`
		El float64 `json:"el"`
	}
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return
	}
	r.mu.Lock()
	r.manual = false
	r.mu.Unlock()
	r.setTarget(normalizeAz(msg.Az), msg.El)
}

func (r *Rotator) handleLifecycleEvent(d broker.Delivery) {
	var body map[string]any
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return
	}
	rotators, _ := body["rotators"].(map[string]any)
	if _, named := rotators[r.selfName()]; !named {
		return
	}

	switch d.RoutingKey {
	case "preaos":
		r.handlePreAOS(body)
	case "aos":
		r.mu.Lock()
		r.dutyRange.AzMax = DefaultDutyCycleRange.AzMax
		r.mu.Unlock()
	case "los":
		r.mu.Lock()
		r.hasTarget = false
		r.mu.Unlock()
		_ = r.driver.Stop(context.Background())
	}
}

func (r *Rotator) selfName() string { return strings.TrimSuffix(r.rt.Prefixed(""), ".") }

// handlePreAOS implements the compass-crossing azimuth bias: when a pass's
// AOS/LOS azimuths straddle 0/360 on opposite sides, the AOS azimuth is
// rebiased onto the same winding as AzMax so the rotator doesn't slew the
// long way around, matching rotator.py's preaos branch of tracking_event
// exactly.
func (r *Rotator) handlePreAOS(body map[string]any) {
	azAOS := mod360(toFloat(body["az_aos"]))
	azMax := mod360(toFloat(body["az_max"]))
	azLOS := mod360(toFloat(body["az_los"]))
	elAOS := toFloat(body["el_aos"])

	crosses := (azAOS > 270 && azAOS < 360 && azLOS < 180) ||
		(azLOS > 270 && azLOS < 360 && azAOS < 180) ||
		(azAOS > 0 && azAOS < 90 && azLOS > 180) ||
		(azLOS > 0 && azLOS < 90 && azAOS > 180)

	if crosses {
		if azMax > 180 {
			if azAOS < 90 {
				azAOS += 360
			}
		} else if azAOS > 270 {
			azAOS -= 360
		}
	}

	r.mu.Lock()
	r.dutyRange.AzMax = preaosDutyCycle
	r.manual = false
	r.mu.Unlock()
	r.setTarget(azAOS, elAOS)
}

func mod360(v float64) float64 {
	for v < 0 {
		v += 360
	}
	for v >= 360 {
		v -= 360
	}
	return v
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func (r *Rotator) rpcStatus(_ string, _ map[string]any) (map[string]any, error) {
	ctx := context.Background()
	az, el, err := r.driver.Position(ctx)
	if err != nil {
		return nil, rpc.NewRPCError("reading position: %v", err)
	}
	r.mu.Lock()
	resp := map[string]any{
		"az":        az,
		"el":        el,
		"tracking":  r.trackingStateLabel(),
		"target_az": r.targetAz,
		"target_el": r.targetEl,
	}
	if r.minSun != nil {
		angle, sunAz, sunEl := r.sunAngle(r.obs, az, el)
		resp["az_sun"] = sunAz
		resp["el_sun"] = sunEl
		resp["sun_angle"] = angle
		resp["min_sun_angle"] = *r.minSun
	}
	r.mu.Unlock()
	return resp, nil
}

func (r *Rotator) rpcRotate(_ string, body map[string]any) (map[string]any, error) {
	az, ok1 := body["az"].(float64)
	el, ok2 := body["el"].(float64)
	if !ok1 || !ok2 {
		return nil, rpc.NewRPCError("rotate requires az and el")
	}
	r.mu.Lock()
	r.manual = true
	r.mu.Unlock()
	r.setTarget(az, el)
	return map[string]any{"ok": true}, nil
}

func (r *Rotator) rpcStop(_ string, _ map[string]any) (map[string]any, error) {
	if err := r.driver.Stop(context.Background()); err != nil {
		return nil, rpc.NewRPCError("stop: %v", err)
	}
	r.mu.Lock()
	r.hasTarget = false
	r.mu.Unlock()
	return map[string]any{"ok": true}, nil
}

func (r *Rotator) rpcTracking(_ string, body map[string]any) (map[string]any, error) {
	mode, _ := body["mode"].(string)
	r.mu.Lock()
	r.tracking = mode != "disabled"
	r.mu.Unlock()
	return map[string]any{"ok": true, "tracking": mode}, nil
}

func (r *Rotator) rpcResetPosition(_ string, body map[string]any) (map[string]any, error) {
	az, ok1 := body["az"].(float64)
	el, ok2 := body["el"].(float64)
	if !ok1 || !ok2 {
		return nil, rpc.NewRPCError("reset_position requires az and el")
	}
	ctx := context.Background()
	if err := r.driver.ResetPosition(ctx, az, el); err != nil {
		return nil, rpc.NewRPCError("reset_position: %v", err)
	}
	now := time.Now()
	r.mu.Lock()
	recorder := r.recorder
	r.mu.Unlock()
	if recorder != nil {
		if err := recorder.RecordCalibration(ctx, az, el, now); err != nil {
			r.rt.Log().Warn().Err(err).Msg("rotator: calibration audit write failed")
		}
	}
	return map[string]any{"ok": true}, nil
}

func (r *Rotator) rpcGetPositionTarget(_ string, _ map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasTarget {
		return map[string]any{"set": false}, nil
	}
	return map[string]any{"set": true, "az": r.targetAz, "el": r.targetEl}, nil
}

func (r *Rotator) rpcGetPositionRange(_ string, _ map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"az_min": r.posRange.AzMin, "az_max": r.posRange.AzMax,
		"el_min": r.posRange.ElMin, "el_max": r.posRange.ElMax,
	}, nil
}

func (r *Rotator) rpcSetPositionRange(_ string, body map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := body["az_min"].(float64); ok {
		r.posRange.AzMin = v
	}
	if v, ok := body["az_max"].(float64); ok {
		r.posRange.AzMax = v
	}
	if v, ok := body["el_min"].(float64); ok {
		r.posRange.ElMin = v
	}
	if v, ok := body["el_max"].(float64); ok {
		r.posRange.ElMax = v
	}
	return map[string]any{"ok": true}, nil
}

func (r *Rotator) rpcGetDutyCycleRange(_ string, _ map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{"az_max": r.dutyRange.AzMax, "el_max": r.dutyRange.ElMax}, nil
}

func (r *Rotator) rpcSetDutyCycleRange(_ string, body map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := body["az_max"].(float64); ok {
		r.dutyRange.AzMax = v
	}
	if v, ok := body["el_max"].(float64); ok {
		r.dutyRange.ElMax = v
	}
	return map[string]any{"ok": true}, nil
}
