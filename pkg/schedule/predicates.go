package schedule

import "github.com/aaltosatellite/porthouse/pkg/types"

// Interval predicates between two tasks sharing at least one rotator.
// Tasks sharing no rotator are always "outside" each other: they cannot
// conflict regardless of their time ranges.

// IsOutside reports a, b do not overlap at all. Tasks are half-open
// intervals [start, end): one ending exactly when the other starts does
// not overlap.
func IsOutside(a, b *types.Task) bool {
	if !sharesRotator(a.Rotators, b.Rotators) {
		return true
	}
	return !a.EndTime.After(b.StartTime) || !b.EndTime.After(a.StartTime)
}

// IsInside reports a lies entirely within b (b encompasses a).
func IsInside(a, b *types.Task) bool {
	if !sharesRotator(a.Rotators, b.Rotators) {
		return false
	}
	return !a.StartTime.Before(b.StartTime) && !a.EndTime.After(b.EndTime)
}

// IsEncompassing reports a entirely contains b.
func IsEncompassing(a, b *types.Task) bool {
	return IsInside(b, a)
}

// IsReachingInto reports a starts before b and ends inside b (a's tail
// overlaps b's head).
func IsReachingInto(a, b *types.Task) bool {
	if !sharesRotator(a.Rotators, b.Rotators) {
		return false
	}
	return a.StartTime.Before(b.StartTime) && a.EndTime.After(b.StartTime) && !a.EndTime.After(b.EndTime)
}

// IsReachingOut reports a starts inside b and ends after b (a's head
// overlaps b's tail) — the mirror of IsReachingInto.
func IsReachingOut(a, b *types.Task) bool {
	return IsReachingInto(b, a)
}
