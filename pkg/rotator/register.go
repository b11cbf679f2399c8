package rotator

import (
	"context"
	"fmt"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/config"
	"github.com/aaltosatellite/porthouse/pkg/launcher"
	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/orbit"
)

// className is the launch spec's module identifier, replacing the
// original's dotted Python import path (gs.hardware.rotator.Rotator).
const className = "rotator.Rotator"

func init() {
	launcher.Register(className, launcher.Factory{
		RequiredParams: []string{"driver"},
		New:            newRunner,
	})
}

type runner struct {
	rt *module.Runtime
	ro *Rotator
}

func (r *runner) Run(ctx context.Context) error {
	if err := r.rt.Start(ctx, r.ro); err != nil {
		return err
	}
	return r.ro.Run(ctx)
}

// newRunner builds a Rotator from a launch spec's resolved params. driver
// is looked up from a process-wide registry of already-constructed Driver
// instances (see RegisterDriver) since a hardware link can't be
// constructed from YAML-scalar params alone.
func newRunner(params map[string]any, prefix string, _ bool) (launcher.Runner, error) {
	driverName, _ := params["driver"].(string)
	drv, ok := lookupDriver(driverName)
	if !ok {
		return nil, fmt.Errorf("rotator: no driver registered under name %q", driverName)
	}

	gs, err := config.LoadGroundstation()
	if err != nil {
		return nil, fmt.Errorf("rotator: loading groundstation config: %w", err)
	}
	globals, err := config.LoadGlobals()
	if err != nil {
		return nil, fmt.Errorf("rotator: loading globals: %w", err)
	}

	cfg := Config{
		Driver: drv,
		Observer: orbit.Observer{
			LatDeg: gs.Latitude,
			LonDeg: gs.Longitude,
			AltKm:  gs.Elevation / 1000.0,
		},
		TrackingEnabled: boolParam(params, "tracking_enabled", true),
	}
	if v, ok := params["threshold"].(float64); ok {
		cfg.Threshold = v
	}
	if v, ok := params["min_sun_angle"].(float64); ok {
		cfg.MinSunAngleDeg = &v
	}

	br := broker.New(globals.AMQPURL)
	rt := module.NewRuntime(br, "rotator", prefix, "rotator")
	ro := New(rt, cfg)

	return &runner{rt: rt, ro: ro}, nil
}

func boolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

// driverRegistry lets a cmd/porthouse main wire a concrete Driver
// implementation (built from its own hardware-specific config) in under a
// name the launch spec's YAML refers to by string, mirroring how the
// launcher already resolves module classes by string.
var driverRegistry = map[string]Driver{}

// RegisterDriver installs a concrete Driver under name for the rotator
// factory to pick up at launch time.
func RegisterDriver(name string, d Driver) {
	driverRegistry[name] = d
}

func lookupDriver(name string) (Driver, bool) {
	d, ok := driverRegistry[name]
	return d, ok
}
