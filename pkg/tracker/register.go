package tracker

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
// original's dotted Python import path (gs.tracking.orbit_tracker.OrbitTracker).
const className = "tracker.OrbitTracker"

func init() {
	launcher.Register(className, launcher.Factory{
		New: newRunner,
	})
}

// runner adapts a Tracker into the launcher.Runner the registry expects:
// connect/register through the module runtime, then drive the tick loop.
type runner struct {
	rt *module.Runtime
	tr *Tracker
}

func (r *runner) Run(ctx context.Context) error {
	if err := r.rt.Start(ctx, r.tr); err != nil {
		return err
	}
	return r.tr.Run(ctx)
}

func newRunner(params map[string]any, prefix string, _ bool) (launcher.Runner, error) {
	gs, err := config.LoadGroundstation()
	if err != nil {
		return nil, fmt.Errorf("tracker: loading groundstation config: %w", err)
	}
	globals, err := config.LoadGlobals()
	if err != nil {
		return nil, fmt.Errorf("tracker: loading globals: %w", err)
	}

	minEl := defaultMinElevation
	if v, ok := params["min_elevation"].(float64); ok {
		minEl = v
	}

	br := broker.New(globals.AMQPURL)
	rt := module.NewRuntime(br, "tracker", prefix, "tracking")
	tr := New(rt, Config{
		Observer: orbit.Observer{
			LatDeg: gs.Latitude,
			LonDeg: gs.Longitude,
			AltKm:  gs.Elevation / 1000.0,
		},
		MinElevation: minEl,
	})

	return &runner{rt: rt, tr: tr}, nil
}
