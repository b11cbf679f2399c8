package schedule

import (
	"time"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

// isValid reports whether a task still satisfies its process' constraints
// predicate.
func isValid(task *types.Task, proc *types.Process) bool {
	dur := task.EndTime.Sub(task.StartTime)
	if dur < proc.MinDuration {
		return false
	}
	if proc.MaxDuration > 0 && dur > proc.MaxDuration {
		return false
	}

	if len(proc.DailyWindows) > 0 && !inAnyWindow(task.StartTime, task.EndTime, proc.DailyWindows) {
		return false
	}

	if len(proc.DateRanges) > 0 && !inAnyDateRange(task.StartTime, task.EndTime, proc.DateRanges) {
		return false
	}

	return true
}

func clockOffset(t time.Time) time.Duration {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.Sub(midnight)
}

func inAnyWindow(start, end time.Time, windows []types.TimeWindow) bool {
	so, eo := clockOffset(start), clockOffset(end)
	for _, w := range windows {
		if so >= w.Start && so <= w.End && eo >= w.Start && eo <= w.End {
			return true
		}
	}
	return false
}

func inAnyDateRange(start, end time.Time, ranges []types.DateRange) bool {
	for _, r := range ranges {
		if !start.Before(r.Start) && !start.After(r.End) && !end.Before(r.Start) && !end.After(r.End) {
			return true
		}
	}
	return false
}

// Valid exposes isValid for external callers (e.g. the scheduler RPC
// surface validating an operator-supplied task before Add).
func Valid(task *types.Task, proc *types.Process) bool {
	return isValid(task, proc)
}
