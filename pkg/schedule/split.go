package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

// Hole is one interval to carve out of a task.
type Hole struct {
	Start, End time.Time
}

// suffixLabel produces the i-th (0-indexed) label of the bijective
// base-26 sequence a, b, ..., z, aa, ab, ..., matching
// `iter_all_strings()` in the original.
func suffixLabel(i int) string {
	n := i + 1
	var buf []byte
	for n > 0 {
		n--
		buf = append([]byte{byte('a' + n%26)}, buf...)
		n /= 26
	}
	return string(buf)
}

func mergeHoles(holes []Hole) []Hole {
	if len(holes) == 0 {
		return nil
	}
	sorted := append([]Hole(nil), holes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Hole{sorted[0]}
	for _, h := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !h.Start.After(last.End) {
			if h.End.After(last.End) {
				last.End = h.End
			}
			continue
		}
		merged = append(merged, h)
	}
	return merged
}

// SplitTask carves task's interval around holes, producing the surviving
// pieces with successive lower-case suffixes appended to the task name
// when more than one piece results. It does not
// mutate the schedule; the caller (Schedule.SplitByHoles) removes the
// original and adds the pieces.
func SplitTask(task *types.Task, holes []Hole) []*types.Task {
	merged := mergeHoles(holes)

	var pieces []*types.Task
	cursor := task.StartTime
	for _, h := range merged {
		if h.Start.After(task.EndTime) {
			break
		}
		if h.End.Before(task.StartTime) {
			continue
		}
		pieceEnd := h.Start.Add(-time.Second)
		if pieceEnd.After(cursor) {
			piece := *task
			piece.StartTime = cursor
			piece.EndTime = pieceEnd
			pieces = append(pieces, &piece)
		}
		next := h.End.Add(time.Second)
		if next.After(cursor) {
			cursor = next
		}
	}
	if cursor.Before(task.EndTime) {
		piece := *task
		piece.StartTime = cursor
		piece.EndTime = task.EndTime
		pieces = append(pieces, &piece)
	}

	if len(pieces) <= 1 {
		return pieces
	}
	for i, p := range pieces {
		p.TaskName = task.TaskName + " " + suffixLabel(i)
	}
	return pieces
}

// SplitByHoles removes the named task and re-adds its surviving pieces
// (suffixed if more than one), returning the new pieces.
func (s *Schedule) SplitByHoles(name string, holes []Hole) ([]*types.Task, error) {
	s.mu.Lock()
	original, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("schedule: no active task named %q", name)
	}

	pieces := SplitTask(original, holes)

	if err := s.Remove(name); err != nil {
		return nil, err
	}
	for _, p := range pieces {
		p.Status = types.TaskScheduled
		if _, err := s.Add(p, AddOptions{}); err != nil {
			return nil, err
		}
	}
	return pieces, nil
}
