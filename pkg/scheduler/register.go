package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/config"
	"github.com/aaltosatellite/porthouse/pkg/launcher"
	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/orbit"
	"github.com/aaltosatellite/porthouse/pkg/storage"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

// className is the launch spec's module identifier, replacing the
// original's dotted Python import path (gs.scheduler.scheduler.Scheduler).
const className = "scheduler.Scheduler"

func init() {
	launcher.Register(className, launcher.Factory{
		New: newRunner,
	})
}

// runner adapts a Scheduler into the launcher.Runner the registry expects:
// connect/register through the module runtime, then drive the check and
// auto-placement loops.
type runner struct {
	rt  *module.Runtime
	sch *Scheduler
}

func (r *runner) Run(ctx context.Context) error {
	if err := r.rt.Start(ctx, r.sch); err != nil {
		return err
	}
	return r.sch.Run(ctx)
}

// newRunner builds a Scheduler from a launch spec's resolved params.
// tle.yaml supplies the Process.Target -> TLE map (spec 4.D's tle.yaml,
// satellites[].source == "lines" is the only kind resolvable without a
// network call; "web"/"space-track" entries are skipped here silently,
// matching the open question in spec §9 about per-source TLE
// resolution order: later file entries win on a name collision).
// "processes" is a launch-spec params list of process descriptors
// (spec §3's Process shape); any entry failing to parse is a fatal
// configuration error per spec §7.
func newRunner(params map[string]any, prefix string, _ bool) (launcher.Runner, error) {
	gs, err := config.LoadGroundstation()
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading groundstation config: %w", err)
	}
	globals, err := config.LoadGlobals()
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading globals: %w", err)
	}

	tles, err := loadTLEs()
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	var archive Archive
	if globals.DBURL != "" {
		store, err := storage.NewPostgresStore(context.Background(), globals.DBURL)
		if err != nil {
			return nil, fmt.Errorf("scheduler: connecting task archive: %w", err)
		}
		archive = store
	}

	br := broker.New(globals.AMQPURL)
	rt := module.NewRuntime(br, "scheduler", prefix, "scheduler")

	obs := orbit.Observer{
		LatDeg: gs.Latitude,
		LonDeg: gs.Longitude,
		AltKm:  gs.Elevation / 1000.0,
	}

	sch := New(rt, obs, gs.Name, tles, archive)

	processes, err := parseProcessList(params["processes"])
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	for _, p := range processes {
		sch.AddProcess(p)
	}

	return &runner{rt: rt, sch: sch}, nil
}

// loadTLEs resolves tle.yaml's satellites[] into an orbit.TLE map keyed by
// satellite name, for the auto-placement pass predictor. Only the "lines"
// source kind is resolvable offline; "web" and "space-track" entries are
// skipped, so the scheduler starts without them and picks them up only if a
// tle.updated broadcast arrives (Scheduler.handleTLEUpdate via SetTLE). No
// module in this repository fetches those sources or publishes that
// broadcast.
func loadTLEs() (map[string]orbit.TLE, error) {
	cfg, err := config.LoadTLEConfig()
	if err != nil {
		return map[string]orbit.TLE{}, nil // tle.yaml is optional; no auto-placement without it
	}

	tles := make(map[string]orbit.TLE, len(cfg.Satellites))
	for _, sat := range cfg.Satellites {
		if sat.Source != config.TLESourceLines {
			continue // not fetched here; see the function comment
		}
		tles[sat.Name] = orbit.TLE{Name: sat.Name, Line1: sat.TLE1, Line2: sat.TLE2}
	}
	return tles, nil
}

func parseProcessList(v any) ([]*types.Process, error) {
	raw, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("processes must be a list")
	}
	out := make([]*types.Process, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each processes entry must be a map")
		}
		p, err := parseProcess(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseProcess(m map[string]any) (*types.Process, error) {
	name, _ := m["process_name"].(string)
	if name == "" {
		return nil, fmt.Errorf("process entry missing process_name")
	}
	if strings.Contains(name, "#") {
		return nil, fmt.Errorf("process %q: process_name must not contain '#'", name)
	}

	p := &types.Process{
		ProcessName: name,
		Enabled:     boolField(m, "enabled", true),
		Target:      stringField(m, "target"),
		Tracker:     types.Tracker(firstNonEmptyStr(stringField(m, "tracker"), string(types.TrackerOrbit))),
		Rotators:    stringSetField(m, "rotators"),
	}
	if v, ok := m["priority"].(float64); ok {
		p.Priority = int(v)
	}
	if v, ok := m["preaos_time"].(float64); ok {
		p.PreAOSTime = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["min_elevation"].(float64); ok {
		p.MinElevation = v
	}
	if v, ok := m["min_max_elevation"].(float64); ok {
		p.MinMaxElevation = v
	}
	if v, ok := m["sun_max_elevation"].(float64); ok {
		p.SunMaxElevation = &v
	}
	if v, ok := m["obj_sunlit"].(bool); ok {
		p.ObjSunlit = &v
	}

	if durStr, ok := m["duration"].(string); ok && durStr != "" {
		min, max, err := parseDurationRange(durStr)
		if err != nil {
			return nil, fmt.Errorf("process %q: duration: %w", name, err)
		}
		p.MinDuration, p.MaxDuration = min, max
	}

	if raw, ok := m["daily_windows"].([]any); ok {
		windows, err := parseTimeWindows(raw)
		if err != nil {
			return nil, fmt.Errorf("process %q: daily_windows: %w", name, err)
		}
		p.DailyWindows = windows
	}

	if raw, ok := m["date_ranges"].([]any); ok {
		ranges, err := parseDateRanges(raw)
		if err != nil {
			return nil, fmt.Errorf("process %q: date_ranges: %w", name, err)
		}
		p.DateRanges = ranges
	}

	return p, nil
}

// parseDurationRange parses "<min>|<max>" seconds, with an empty max
// segment meaning "unbounded", matching spec 3's Process.duration shape.
func parseDurationRange(s string) (min, max time.Duration, err error) {
	parts := strings.SplitN(s, "|", 2)
	minSec, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid min %q: %w", parts[0], err)
	}
	min = time.Duration(minSec * float64(time.Second))
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return min, 0, nil
	}
	maxSec, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid max %q: %w", parts[1], err)
	}
	return min, time.Duration(maxSec * float64(time.Second)), nil
}

// parseTimeWindows parses a list of "HH:MM:SS|HH:MM:SS" strings.
func parseTimeWindows(raw []any) ([]types.TimeWindow, error) {
	out := make([]types.TimeWindow, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("window entry must be a string")
		}
		parts := strings.SplitN(s, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("window %q: want \"HH:MM:SS|HH:MM:SS\"", s)
		}
		start, err := parseClockOffset(parts[0])
		if err != nil {
			return nil, fmt.Errorf("window %q: start: %w", s, err)
		}
		end, err := parseClockOffset(parts[1])
		if err != nil {
			return nil, fmt.Errorf("window %q: end: %w", s, err)
		}
		out = append(out, types.TimeWindow{Start: start, End: end})
	}
	return out, nil
}

func parseClockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// parseDateRanges parses a list of "YYYY-MM-DD|YYYY-MM-DD" strings; the
// end date is extended to its final instant so it's inclusive of the
// whole calendar day, matching spec 3's "both endpoints within at least
// one date range" wording.
func parseDateRanges(raw []any) ([]types.DateRange, error) {
	out := make([]types.DateRange, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("date range entry must be a string")
		}
		parts := strings.SplitN(s, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("date range %q: want \"YYYY-MM-DD|YYYY-MM-DD\"", s)
		}
		start, err := time.Parse("2006-01-02", strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("date range %q: start: %w", s, err)
		}
		end, err := time.Parse("2006-01-02", strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("date range %q: end: %w", s, err)
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
		out = append(out, types.DateRange{Start: start.UTC(), End: end.UTC()})
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func stringSetField(m map[string]any, key string) map[string]struct{} {
	out := map[string]struct{}{}
	raw, ok := m[key].([]any)
	if !ok {
		return out
	}
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out[s] = struct{}{}
		}
	}
	return out
}

func firstNonEmptyStr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
