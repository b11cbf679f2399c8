package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/metrics"
	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/orbit"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
	"github.com/aaltosatellite/porthouse/pkg/schedule"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

// checkInterval matches scheduler.py's check_schedule loop
// (`await asyncio.sleep(1)`).
const checkInterval = 1 * time.Second

// autoPlaceInterval is how often the priority-ranked auto-placement pass
// re-predicts passes and fills the schedule; far coarser than checkInterval
// since pass prediction is comparatively expensive.
const autoPlaceInterval = 30 * time.Minute

// autoPlaceHorizon matches predict_passes' default `period=24.0` hours.
const autoPlaceHorizon = 24 * time.Hour

// Archive is the optional SQL sink for tasks and passes that outlive
// pkg/schedule's in-memory archive; *storage.PostgresStore implements it.
type Archive interface {
	ArchiveTask(ctx context.Context, task *types.Task) error
	RecordPass(ctx context.Context, groundstation string, pass types.Pass) error
}

// Scheduler owns the active schedule, auto-places tasks from its
// registered processes' predicted passes, and starts tracking as each
// task's preaos window opens. Grounded on
// original_source/gs/scheduler/scheduler.py.
type Scheduler struct {
	rt     *module.Runtime
	sched  *schedule.Schedule
	obs    orbit.Observer
	gsName string
	archive Archive // nil disables SQL persistence

	mu      sync.Mutex
	tles    map[string]orbit.TLE // guarded by mu; refreshed by tle.updated broadcasts
	started map[string]bool      // task names already handed to tracking/rotator
}

// New builds a Scheduler. tles maps a Process.Target name to the TLE used
// to predict its passes; a process whose target has no entry is skipped
// during auto-placement and logged once per auto-place pass.
func New(rt *module.Runtime, obs orbit.Observer, gsName string, tles map[string]orbit.TLE, archive Archive) *Scheduler {
	return &Scheduler{
		rt:      rt,
		sched:   schedule.New(),
		obs:     obs,
		gsName:  gsName,
		tles:    tles,
		archive: archive,
		started: make(map[string]bool),
	}
}

// AddProcess registers a process template the auto-placement loop will
// expand into tasks.
func (s *Scheduler) AddProcess(p *types.Process) {
	s.sched.AddProcess(p)
}

// SetTLE installs or replaces the TLE used for a given target name, called
// by handleTLEUpdate for the tracking exchange's tle.updated broadcasts
// (spec §9's "last source processed wins" resolution). The
// registration-time tle.yaml "lines" entries arrive through New's tles map
// instead.
func (s *Scheduler) SetTLE(target string, tle orbit.TLE) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tles[target] = tle
}

func (s *Scheduler) getTLE(target string) (orbit.TLE, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tle, ok := s.tles[target]
	return tle, ok
}

// Describe registers the scheduler's RPC surface on exchange "scheduler",
// matching scheduler.py's single `rpc_handler` bound to "rpc.#" but split
// into one handler per verb, the Go idiom the rest of this repo uses, plus
// a queue subscription to the tracker's TLE-update broadcasts so
// auto-placement keeps predicting against fresh elements.
func (s *Scheduler) Describe() module.Description {
	return module.Description{
		Queues: []module.QueueReg{
			{
				Binds: []module.Bind{
					{Exchange: "tracking", RoutingKey: "tle.updated"},
				},
				Handler: s.handleTLEUpdate,
			},
		},
		RPCs: []module.RPCReg{
			{Exchange: "scheduler", Verb: "get_schedule", Handler: s.rpcGetSchedule},
			{Exchange: "scheduler", Verb: "get_processes", Handler: s.rpcGetProcesses},
			{Exchange: "scheduler", Verb: "add_process", Handler: s.rpcAddProcess},
			{Exchange: "scheduler", Verb: "add_task", Handler: s.rpcAddTask},
			{Exchange: "scheduler", Verb: "remove_task", Handler: s.rpcRemoveTask},
			{Exchange: "scheduler", Verb: "get_pass", Handler: s.rpcGetPass},
		},
	}
}

// handleTLEUpdate applies a tle.updated broadcast's {satellite, tle1, tle2}
// body to the scheduler's local TLE map, matching orbit_tracker.py's TLE
// hygiene note carried into the scheduler so auto-placement sees the same
// elements the tracker is using.
func (s *Scheduler) handleTLEUpdate(d broker.Delivery) {
	var body struct {
		Satellite string `json:"satellite"`
		TLE1      string `json:"tle1"`
		TLE2      string `json:"tle2"`
	}
	if err := json.Unmarshal(d.Body, &body); err != nil || body.Satellite == "" {
		s.rt.Log().Warn().Err(err).Msg("scheduler: malformed tle.updated broadcast")
		return
	}
	s.SetTLE(body.Satellite, orbit.TLE{Name: body.Satellite, Line1: body.TLE1, Line2: body.TLE2})
}

// Run drives the check loop and the auto-placement loop until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.autoPlace(time.Now())

	checkTicker := time.NewTicker(checkInterval)
	defer checkTicker.Stop()
	autoTicker := time.NewTicker(autoPlaceInterval)
	defer autoTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-checkTicker.C:
			s.checkSchedule(now)
		case now := <-autoTicker.C:
			s.autoPlace(now)
		}
	}
}

// autoPlace expands every enabled process's predicted passes into
// candidate tasks and places them greedily in descending Priority order,
// so a higher-priority process claims a contested rotator slot and a
// lower-priority one is simply rejected by schedule.Add's conflict check
// (spec 4.G step 5) rather than evicted after the fact.
func (s *Scheduler) autoPlace(now time.Time) {
	processes := s.sched.Processes()
	sort.SliceStable(processes, func(i, j int) bool {
		return processes[i].Priority > processes[j].Priority
	})

	placed, rejected, skipped := 0, 0, 0
	for _, proc := range processes {
		if !proc.Enabled || proc.Tracker != types.TrackerOrbit {
			continue
		}
		tle, ok := s.getTLE(proc.Target)
		if !ok {
			skipped++
			s.rt.Log().Debug().Str("process", proc.ProcessName).Str("target", proc.Target).
				Msg("scheduler: no TLE available, skipping auto-placement")
			continue
		}

		passes, err := orbit.PredictPasses(tle, s.obs, now, now.Add(autoPlaceHorizon), orbit.Options{
			MinElevationDeg:    proc.MinElevation,
			SunMaxElevationDeg: proc.SunMaxElevation,
			RequireSunlit:      proc.ObjSunlit,
			Mode:               orbit.ModeFast,
		})
		if err != nil {
			s.rt.Log().Warn().Err(err).Str("process", proc.ProcessName).Msg("scheduler: pass prediction failed")
			continue
		}

		for _, pass := range passes {
			if !pass.Valid(proc.MinMaxElevation) {
				continue
			}

			task := &types.Task{
				ProcessName:   proc.ProcessName,
				StartTime:     pass.TAOS.Add(-proc.PreAOSTime),
				EndTime:       pass.TLOS,
				Rotators:      proc.Rotators,
				Status:        types.TaskScheduled,
				AutoScheduled: true,
			}
			ok, err := s.sched.Add(task, schedule.AddOptions{ApplyLimits: true})
			switch {
			case err != nil:
				rejected++
			case ok:
				placed++
			}
		}
	}

	if placed > 0 {
		s.broadcastScheduleChanged()
	}
	metrics.SchedulerActiveTasks.Set(float64(len(s.sched.ActiveTasks())))
	metrics.SchedulerPlacementsTotal.WithLabelValues("placed").Add(float64(placed))
	metrics.SchedulerPlacementsTotal.WithLabelValues("rejected").Add(float64(rejected))
	s.rt.Log().Info().Int("placed", placed).Int("rejected", rejected).Int("skipped_no_tle", skipped).
		Msg("scheduler: auto-placement pass complete")
}

// checkSchedule starts tracking for tasks entering their preaos window and
// retires tasks whose end_time has passed, matching scheduler.py's
// check_schedule/start_pass.
func (s *Scheduler) checkSchedule(now time.Time) {
	for _, task := range s.sched.ActiveTasks() {
		s.mu.Lock()
		started := s.started[task.TaskName]
		s.mu.Unlock()

		if now.After(task.EndTime) {
			s.retire(task)
			continue
		}

		proc, ok := s.sched.Process(task.ProcessName)
		preaos := task.StartTime
		if ok {
			preaos = task.StartTime.Add(-proc.PreAOSTime)
		}
		if !started && !now.Before(preaos) {
			s.startPass(task)
			s.mu.Lock()
			s.started[task.TaskName] = true
			s.mu.Unlock()
		}
	}
}

// startPass broadcasts the current pass and kicks the rotator/tracker into
// automatic tracking, matching scheduler.py's start_pass.
func (s *Scheduler) startPass(task *types.Task) {
	s.rt.Log().Info().Str("task", task.TaskName).Str("process", task.ProcessName).Msg("scheduler: starting pass")

	body, _ := json.Marshal(map[string]any{
		"task":    task.TaskName,
		"process": task.ProcessName,
		"start":   task.StartTime,
		"end":     task.EndTime,
	})
	if err := s.rt.Broker.Publish("scheduler", "pass.current", body); err != nil {
		s.rt.Log().Warn().Err(err).Msg("scheduler: pass.current publish failed")
	}

	for rotatorPrefix := range task.Rotators {
		trackingBody, _ := json.Marshal(map[string]any{"mode": "automatic"})
		_ = s.rt.Broker.Publish("rotator", rotatorPrefix+".rpc.tracking", trackingBody)
	}

	proc, ok := s.sched.Process(task.ProcessName)
	if !ok {
		return
	}
	tle, ok := s.getTLE(proc.Target)
	if !ok {
		s.rt.Log().Warn().Str("target", proc.Target).Msg("scheduler: no TLE to hand to tracker")
		return
	}
	setTargetBody, _ := json.Marshal(map[string]any{
		"satellite": tle.Name,
		"tle1":      tle.Line1,
		"tle2":      tle.Line2,
	})
	_ = s.rt.Broker.Publish("tracking", "rpc.set_target", setTargetBody)
}

// retire removes an expired task from the active schedule and, if an
// Archive is configured, persists the task beyond pkg/schedule's in-memory
// deleted index. No pass-history row is written: Archive.RecordPass is not
// called.
func (s *Scheduler) retire(task *types.Task) {
	if err := s.sched.Remove(task.TaskName); err != nil {
		s.rt.Log().Warn().Err(err).Str("task", task.TaskName).Msg("scheduler: removing expired task failed")
		return
	}
	s.mu.Lock()
	delete(s.started, task.TaskName)
	s.mu.Unlock()

	if s.archive == nil {
		return
	}
	archived, ok := s.sched.Deleted(task.TaskName)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archive.ArchiveTask(ctx, archived); err != nil {
		s.rt.Log().Warn().Err(err).Str("task", task.TaskName).Msg("scheduler: archiving task failed")
	}
	s.broadcastScheduleChanged()
}

func (s *Scheduler) broadcastScheduleChanged() {
	body, _ := json.Marshal(map[string]any{
		"time":     time.Now().UTC(),
		"schedule": s.sched.ActiveTasks(),
	})
	if err := s.rt.Broker.Publish("scheduler", "schedule.changed", body); err != nil {
		s.rt.Log().Warn().Err(err).Msg("scheduler: schedule.changed publish failed")
	}
}

func taskToMap(t *types.Task) map[string]any {
	rotators := make([]string, 0, len(t.Rotators))
	for r := range t.Rotators {
		rotators = append(rotators, r)
	}
	return map[string]any{
		"task_name":      t.TaskName,
		"process_name":   t.ProcessName,
		"start_time":     t.StartTime,
		"end_time":       t.EndTime,
		"status":         string(t.Status),
		"rotators":       rotators,
		"auto_scheduled": t.AutoScheduled,
	}
}

func (s *Scheduler) rpcGetSchedule(_ string, _ map[string]any) (map[string]any, error) {
	tasks := s.sched.ActiveTasks()
	out := make([]map[string]any, len(tasks))
	for i, t := range tasks {
		out[i] = taskToMap(t)
	}
	return map[string]any{"schedule": out}, nil
}

func (s *Scheduler) rpcGetProcesses(_ string, _ map[string]any) (map[string]any, error) {
	processes := s.sched.Processes()
	out := make([]map[string]any, len(processes))
	for i, p := range processes {
		out[i] = map[string]any{
			"process_name": p.ProcessName,
			"priority":     p.Priority,
			"enabled":      p.Enabled,
			"target":       p.Target,
		}
	}
	return map[string]any{"processes": out}, nil
}

func (s *Scheduler) rpcAddProcess(_ string, body map[string]any) (map[string]any, error) {
	name, _ := body["process_name"].(string)
	if name == "" {
		return nil, rpc.NewRPCError("add_process requires process_name")
	}
	target, _ := body["target"].(string)
	priority := 0
	if v, ok := body["priority"].(float64); ok {
		priority = int(v)
	}
	rotators := map[string]struct{}{}
	if raw, ok := body["rotators"].([]any); ok {
		for _, r := range raw {
			if name, ok := r.(string); ok {
				rotators[name] = struct{}{}
			}
		}
	}
	s.sched.AddProcess(&types.Process{
		ProcessName: name,
		Priority:    priority,
		Enabled:     true,
		Rotators:    rotators,
		Tracker:     types.TrackerOrbit,
		Target:      target,
	})
	return map[string]any{"ok": true}, nil
}

func (s *Scheduler) rpcAddTask(_ string, body map[string]any) (map[string]any, error) {
	process, _ := body["process_name"].(string)
	if process == "" {
		return nil, rpc.NewRPCError("add_task requires process_name")
	}
	start, err := parseRPCTime(body["start_time"])
	if err != nil {
		return nil, rpc.NewRPCError("add_task: start_time: %v", err)
	}
	end, err := parseRPCTime(body["end_time"])
	if err != nil {
		return nil, rpc.NewRPCError("add_task: end_time: %v", err)
	}

	proc, ok := s.sched.Process(process)
	rotators := map[string]struct{}{}
	if ok {
		rotators = proc.Rotators
	}

	task := &types.Task{
		ProcessName: process,
		StartTime:   start,
		EndTime:     end,
		Rotators:    rotators,
		Status:      types.TaskScheduled,
	}
	if _, err := s.sched.Add(task, schedule.AddOptions{}); err != nil {
		if conflict, ok := err.(*schedule.ConflictError); ok {
			names := make([]string, len(conflict.Conflicts))
			for i, c := range conflict.Conflicts {
				names[i] = c.TaskName
			}
			return nil, rpc.NewRPCError("overlaps with %v", names)
		}
		return nil, err
	}

	s.broadcastScheduleChanged()
	return map[string]any{"ok": true, "task_name": task.TaskName}, nil
}

func (s *Scheduler) rpcRemoveTask(_ string, body map[string]any) (map[string]any, error) {
	name, _ := body["task_name"].(string)
	if name == "" {
		return nil, rpc.NewRPCError("remove_task requires task_name")
	}
	if err := s.sched.Remove(name); err != nil {
		return nil, rpc.NewRPCError("%v", err)
	}
	s.broadcastScheduleChanged()
	return map[string]any{"ok": true}, nil
}

func (s *Scheduler) rpcGetPass(_ string, body map[string]any) (map[string]any, error) {
	satellite, _ := body["satellite"].(string)
	if satellite == "" {
		return nil, rpc.NewRPCError("get_pass requires satellite")
	}
	tle, ok := s.getTLE(satellite)
	if !ok {
		return nil, rpc.NewRPCError("no TLE configured for %q", satellite)
	}

	period := autoPlaceHorizon
	if v, ok := body["period"].(float64); ok {
		period = time.Duration(v * float64(time.Hour))
	}
	minEl := 0.0
	if v, ok := body["min_elevation"].(float64); ok {
		minEl = v
	}

	now := time.Now()
	passes, err := orbit.PredictPasses(tle, s.obs, now, now.Add(period), orbit.Options{MinElevationDeg: minEl})
	if err != nil {
		return nil, fmt.Errorf("get_pass: %w", err)
	}

	out := make([]map[string]any, len(passes))
	for i, p := range passes {
		out[i] = map[string]any{
			"t_aos":  p.TAOS,
			"az_aos": p.AzAOS,
			"t_max":  p.TMax,
			"el_max": p.ElMax,
			"t_los":  p.TLOS,
			"az_los": p.AzLOS,
		}
	}
	return map[string]any{"passes": out}, nil
}

func parseRPCTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected ISO-8601 string, got %T", v)
	}
	return time.Parse(time.RFC3339, s)
}

var _ rpc.Publisher = (*broker.Client)(nil)
