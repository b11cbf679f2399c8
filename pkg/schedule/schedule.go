package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

// ConflictError lists every task a rejected add conflicted with,
// step 5 ("raise with the full conflict list").
type ConflictError struct {
	Conflicts []*types.Task
}

func (e *ConflictError) Error() string {
	names := make([]string, len(e.Conflicts))
	for i, t := range e.Conflicts {
		names[i] = t.TaskName
	}
	return fmt.Sprintf("schedule: overlaps with %s", strings.Join(names, ", "))
}

// Schedule is the active contact schedule plus its deleted-task archive.
type Schedule struct {
	mu sync.Mutex

	processes map[string]*types.Process

	tasks   map[string]*types.Task // active, keyed by task_name
	byStart []*types.Task          // active, sorted by StartTime
	byEnd   []*types.Task          // active, sorted by EndTime

	deleted       map[string]*types.Task // archive, keyed by task_name
	deletedByStart []*types.Task

	maxTaskNo map[string]int
}

// New returns an empty schedule.
func New() *Schedule {
	return &Schedule{
		processes: make(map[string]*types.Process),
		tasks:     make(map[string]*types.Task),
		deleted:   make(map[string]*types.Task),
		maxTaskNo: make(map[string]int),
	}
}

// AddProcess registers (or replaces) a process template.
func (s *Schedule) AddProcess(p *types.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[p.ProcessName] = p
}

// Process looks up a process by name.
func (s *Schedule) Process(name string) (*types.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[name]
	return p, ok
}

// Processes returns every registered process template, in no particular
// order; callers that need a stable order (e.g. priority-ranked
// auto-placement) sort the result themselves.
func (s *Schedule) Processes() []*types.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Process, 0, len(s.processes))
	for _, p := range s.processes {
		out = append(out, p)
	}
	return out
}

// Task looks up an active task by name.
func (s *Schedule) Task(name string) (*types.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	return t, ok
}

// taskNameNo parses the "<process> #<n>[ <suffix>]" convention, returning
// the numeric suffix or 0 if the name doesn't match it.
func taskNameNo(name string) (process string, no int) {
	idx := strings.LastIndex(name, " #")
	if idx < 0 {
		return name, 0
	}
	rest := name[idx+2:]
	// rest may be "<n>" or "<n> <suffix>"
	numPart := rest
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		numPart = rest[:sp]
	}
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return name, 0
	}
	return name[:idx], n
}

// updateTaskNumbering ensures max_task_no[process] never falls behind a
// name that's already in use.
func (s *Schedule) updateTaskNumbering(name string) {
	process, no := taskNameNo(name)
	if no > s.maxTaskNo[process] {
		s.maxTaskNo[process] = no
	}
}

// newTaskName assigns "<process> #<max+1>".
func (s *Schedule) newTaskName(process string) string {
	n := s.maxTaskNo[process] + 1
	s.maxTaskNo[process] = n
	return fmt.Sprintf("%s #%d", process, n)
}

func insertSortedByStart(list []*types.Task, t *types.Task) []*types.Task {
	i := sort.Search(len(list), func(i int) bool { return list[i].StartTime.After(t.StartTime) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = t
	return list
}

func insertSortedByEnd(list []*types.Task, t *types.Task) []*types.Task {
	i := sort.Search(len(list), func(i int) bool { return list[i].EndTime.After(t.EndTime) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = t
	return list
}

func removeTask(list []*types.Task, name string) []*types.Task {
	out := list[:0]
	for _, t := range list {
		if t.TaskName != name {
			out = append(out, t)
		}
	}
	return out
}

func sharesRotator(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for r := range a {
		if _, ok := b[r]; ok {
			return true
		}
	}
	return false
}

// GetOverlapping returns every active task sharing at least one rotator
// with rotators whose half-open interval intersects [start, end), sorted by
// start time; a task that only touches start or end is not returned.
func (s *Schedule) GetOverlapping(start, end time.Time, rotators map[string]struct{}) []*types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOverlappingLocked(start, end, rotators, "")
}

func (s *Schedule) getOverlappingLocked(start, end time.Time, rotators map[string]struct{}, excludeName string) []*types.Task {
	var out []*types.Task
	for _, t := range s.byStart {
		if t.TaskName == excludeName {
			continue
		}
		if !t.StartTime.Before(end) {
			continue
		}
		if !t.EndTime.After(start) {
			continue
		}
		if !sharesRotator(t.Rotators, rotators) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// AddOptions controls the optional apply_limits behavior of Add.
type AddOptions struct {
	ApplyLimits bool
}

// Add places a task on the schedule if it does not conflict with any
// existing task sharing a rotator. It returns
// (scheduled, error): scheduled is false (no error) when the task was
// EXECUTED/CANCELLED on arrival and simply archived.
func (s *Schedule) Add(task *types.Task, opts AddOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Status == types.TaskExecuted || task.Status == types.TaskCancelled {
		s.updateTaskNumbering(task.TaskName)
		s.deleted[task.TaskName] = task
		s.deletedByStart = insertSortedByStart(s.deletedByStart, task)
		return false, nil
	}

	proc, hasProc := s.processes[task.ProcessName]

	if task.TaskName == "" {
		task.TaskName = s.newTaskName(task.ProcessName)
	}

	if opts.ApplyLimits && hasProc && proc.MaxDuration > 0 {
		used := s.usedSecondsInWindow(task.ProcessName, task.StartTime, task.TaskName)
		remaining := proc.MaxDuration - used
		if remaining <= 0 {
			return false, fmt.Errorf("schedule: process %q has exhausted its daily duration budget", task.ProcessName)
		}
		capped := task.StartTime.Add(remaining)
		if capped.Before(task.EndTime) {
			task.EndTime = capped
		}
		if hasProc && !isValid(task, proc) {
			return false, fmt.Errorf("schedule: task %q invalid against process %q after limit capping", task.TaskName, task.ProcessName)
		}
	} else if !task.EndTime.After(task.StartTime) {
		return false, fmt.Errorf("schedule: end_time must be after start_time")
	}

	conflicts := s.getOverlappingLocked(task.StartTime, task.EndTime, task.Rotators, "")
	if len(conflicts) > 0 {
		return false, &ConflictError{Conflicts: conflicts}
	}

	if task.Status == "" {
		task.Status = types.TaskScheduled
	}
	s.tasks[task.TaskName] = task
	s.byStart = insertSortedByStart(s.byStart, task)
	s.byEnd = insertSortedByEnd(s.byEnd, task)
	s.updateTaskNumbering(task.TaskName)
	return true, nil
}

// usedSecondsInWindow sums durations of tasks for process within the
// UTC-noon-to-UTC-noon window containing at, including EXECUTED tasks,
// excluding the task being (re-)added.
func (s *Schedule) usedSecondsInWindow(process string, at time.Time, excludeName string) time.Duration {
	winStart, winEnd := noonWindow(at)
	var total time.Duration
	for _, t := range s.tasks {
		if t.ProcessName != process || t.TaskName == excludeName {
			continue
		}
		if t.StartTime.Before(winStart) || !t.StartTime.Before(winEnd) {
			continue
		}
		total += t.EndTime.Sub(t.StartTime)
	}
	for _, t := range s.deleted {
		if t.ProcessName != process || t.Status != types.TaskExecuted {
			continue
		}
		if t.StartTime.Before(winStart) || !t.StartTime.Before(winEnd) {
			continue
		}
		total += t.EndTime.Sub(t.StartTime)
	}
	return total
}

func noonWindow(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	noon := time.Date(at.Year(), at.Month(), at.Day(), 12, 0, 0, 0, time.UTC)
	if at.Before(noon) {
		return noon.AddDate(0, 0, -1), noon
	}
	return noon, noon.AddDate(0, 0, 1)
}

// Remove transitions a task ONGOING->EXECUTED (else ->CANCELLED) and moves
// it to the deleted archive.
func (s *Schedule) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("schedule: no active task named %q", name)
	}

	if t.Status == types.TaskOngoing {
		t.Status = types.TaskExecuted
	} else {
		t.Status = types.TaskCancelled
	}

	delete(s.tasks, name)
	s.byStart = removeTask(s.byStart, name)
	s.byEnd = removeTask(s.byEnd, name)

	s.deleted[name] = t
	s.deletedByStart = insertSortedByStart(s.deletedByStart, t)
	return nil
}

// Deleted returns the archived task by name, if any.
func (s *Schedule) Deleted(name string) (*types.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.deleted[name]
	return t, ok
}

// ActiveTasks returns a snapshot of every active task sorted by start time.
func (s *Schedule) ActiveTasks() []*types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Task, len(s.byStart))
	copy(out, s.byStart)
	return out
}
