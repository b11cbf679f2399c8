package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func rotators(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Adding an overlapping task on the same rotator is rejected; moving it
// to a free rotator succeeds.
func TestAdd_RejectsConflictThenAcceptsOnDifferentRotator(t *testing.T) {
	s := New()
	taskA := &types.Task{
		TaskName:    "",
		ProcessName: "ISS-pass",
		StartTime:   mustTime(t, "2025-01-02T10:00:00Z"),
		EndTime:     mustTime(t, "2025-01-02T10:10:00Z"),
		Rotators:    rotators("uhf"),
	}
	ok, err := s.Add(taskA, AddOptions{})
	require.NoError(t, err)
	require.True(t, ok)

	taskB := &types.Task{
		ProcessName: "ISS-pass",
		StartTime:   mustTime(t, "2025-01-02T10:05:00Z"),
		EndTime:     mustTime(t, "2025-01-02T10:15:00Z"),
		Rotators:    rotators("uhf"),
	}
	_, err = s.Add(taskB, AddOptions{})
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	require.Equal(t, "ISS-pass #1", conflict.Conflicts[0].TaskName)

	taskB.Rotators = rotators("sband")
	ok, err = s.Add(taskB, AddOptions{})
	require.NoError(t, err)
	require.True(t, ok)
}

// Splitting a task around a hole produces two numbered pieces.
func TestSplitByHoles(t *testing.T) {
	s := New()
	task := &types.Task{
		TaskName:    "DEMO #1",
		ProcessName: "DEMO",
		StartTime:   mustTime(t, "2025-01-02T10:00:00Z"),
		EndTime:     mustTime(t, "2025-01-02T10:30:00Z"),
		Rotators:    rotators("uhf"),
	}
	_, err := s.Add(task, AddOptions{})
	require.NoError(t, err)

	pieces, err := s.SplitByHoles("DEMO #1", []Hole{
		{Start: mustTime(t, "2025-01-02T10:10:00Z"), End: mustTime(t, "2025-01-02T10:15:00Z")},
	})
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	require.Equal(t, "DEMO #1 a", pieces[0].TaskName)
	require.Equal(t, mustTime(t, "2025-01-02T10:09:59Z"), pieces[0].EndTime)
	require.Equal(t, "DEMO #1 b", pieces[1].TaskName)
	require.Equal(t, mustTime(t, "2025-01-02T10:15:01Z"), pieces[1].StartTime)
}

func TestAdd_RejectsZeroDuration(t *testing.T) {
	s := New()
	task := &types.Task{
		ProcessName: "P",
		StartTime:   mustTime(t, "2025-01-02T10:00:00Z"),
		EndTime:     mustTime(t, "2025-01-02T10:00:00Z"),
		Rotators:    rotators("uhf"),
	}
	_, err := s.Add(task, AddOptions{})
	require.Error(t, err)
}

func TestAdd_AdjacentTasksDoNotOverlap(t *testing.T) {
	s := New()
	a := &types.Task{ProcessName: "P", StartTime: mustTime(t, "2025-01-02T10:00:00Z"), EndTime: mustTime(t, "2025-01-02T10:10:00Z"), Rotators: rotators("uhf")}
	_, err := s.Add(a, AddOptions{})
	require.NoError(t, err)

	b := &types.Task{ProcessName: "P", StartTime: mustTime(t, "2025-01-02T10:10:00Z"), EndTime: mustTime(t, "2025-01-02T10:20:00Z"), Rotators: rotators("uhf")}
	ok, err := s.Add(b, AddOptions{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNoDuplicateTaskNames(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		task := &types.Task{
			ProcessName: "P",
			StartTime:   mustTime(t, "2025-01-02T10:00:00Z").Add(time.Duration(i) * time.Hour),
			EndTime:     mustTime(t, "2025-01-02T10:05:00Z").Add(time.Duration(i) * time.Hour),
			Rotators:    rotators("uhf"),
		}
		_, err := s.Add(task, AddOptions{})
		require.NoError(t, err)
	}
	seen := map[string]bool{}
	for _, task := range s.ActiveTasks() {
		require.False(t, seen[task.TaskName])
		seen[task.TaskName] = true
	}
	require.Equal(t, 5, s.maxTaskNo["P"])
}

func TestRemove_OngoingBecomesExecuted(t *testing.T) {
	s := New()
	task := &types.Task{
		TaskName:    "P #1",
		ProcessName: "P",
		StartTime:   mustTime(t, "2025-01-02T10:00:00Z"),
		EndTime:     mustTime(t, "2025-01-02T10:10:00Z"),
		Rotators:    rotators("uhf"),
		Status:      types.TaskOngoing,
	}
	_, err := s.Add(task, AddOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Remove("P #1"))
	archived, ok := s.Deleted("P #1")
	require.True(t, ok)
	require.Equal(t, types.TaskExecuted, archived.Status)

	_, stillActive := s.Task("P #1")
	require.False(t, stillActive)
}

func TestIntervalPredicates(t *testing.T) {
	a := &types.Task{StartTime: mustTime(t, "2025-01-02T10:00:00Z"), EndTime: mustTime(t, "2025-01-02T11:00:00Z"), Rotators: rotators("uhf")}
	b := &types.Task{StartTime: mustTime(t, "2025-01-02T10:15:00Z"), EndTime: mustTime(t, "2025-01-02T10:45:00Z"), Rotators: rotators("uhf")}
	require.True(t, IsInside(b, a))
	require.True(t, IsEncompassing(a, b))
	require.False(t, IsOutside(a, b))

	c := &types.Task{StartTime: mustTime(t, "2025-01-02T11:00:00Z"), EndTime: mustTime(t, "2025-01-02T12:00:00Z"), Rotators: rotators("uhf")}
	require.True(t, IsOutside(a, c))

	d := &types.Task{StartTime: mustTime(t, "2025-01-02T09:00:00Z"), EndTime: mustTime(t, "2025-01-02T10:30:00Z"), Rotators: rotators("uhf")}
	require.True(t, IsReachingInto(d, a))
	require.True(t, IsReachingOut(a, d))
}

func TestSuffixLabelSequence(t *testing.T) {
	require.Equal(t, "a", suffixLabel(0))
	require.Equal(t, "z", suffixLabel(25))
	require.Equal(t, "aa", suffixLabel(26))
	require.Equal(t, "ab", suffixLabel(27))
}

// Processes lists every registered process template regardless of
// insertion order, which the scheduler's priority-ranked auto-placement
// pass depends on for its own sorting.
func TestProcesses_ListsAllRegistered(t *testing.T) {
	s := New()
	require.Empty(t, s.Processes())

	s.AddProcess(&types.Process{ProcessName: "alpha", Priority: 1})
	s.AddProcess(&types.Process{ProcessName: "beta", Priority: 0})

	procs := s.Processes()
	require.Len(t, procs, 2)
	names := map[string]bool{}
	for _, p := range procs {
		names[p.ProcessName] = true
	}
	require.True(t, names["alpha"])
	require.True(t, names["beta"])

	p, ok := s.Process("alpha")
	require.True(t, ok)
	require.Equal(t, 1, p.Priority)
}
