package orbit

import (
	"time"
)

const goldenRatio = 0.6180339887498949

// elevationFunc returns the elevation in degrees (possibly masked to a very
// negative value by a visibility predicate) at a given instant.
type elevationFunc func(t time.Time) float64

// goldenSectionMax finds the time of maximum elevationFunc within [lo, hi]
// to within tolerance, using golden-section search. It assumes the
// function is unimodal on the interval, true for a single satellite pass.
func goldenSectionMax(f elevationFunc, lo, hi time.Time, tolerance time.Duration) time.Time {
	a, b := lo, hi
	span := b.Sub(a)

	x1 := a.Add(time.Duration(float64(span) * (1 - goldenRatio)))
	x2 := a.Add(time.Duration(float64(span) * goldenRatio))
	f1, f2 := f(x1), f(x2)

	for b.Sub(a) > tolerance {
		if f1 < f2 {
			a = x1
			x1 = x2
			f1 = f2
			x2 = a.Add(time.Duration(float64(b.Sub(a)) * goldenRatio))
			f2 = f(x2)
		} else {
			b = x2
			x2 = x1
			f2 = f1
			x1 = a.Add(time.Duration(float64(b.Sub(a)) * (1 - goldenRatio)))
			f1 = f(x1)
		}
	}

	mid := a.Add(b.Sub(a) / 2)
	if f(mid) >= f1 && f(mid) >= f2 {
		return mid
	}
	if f1 > f2 {
		return x1
	}
	return x2
}

// bisectCrossing finds the instant in [lo, hi] where f crosses the
// threshold, assuming f(lo) and f(hi) lie on opposite sides of it.
func bisectCrossing(f elevationFunc, lo, hi time.Time, threshold float64, tolerance time.Duration) time.Time {
	flo := f(lo) - threshold
	for hi.Sub(lo) > tolerance {
		mid := lo.Add(hi.Sub(lo) / 2)
		fmid := f(mid) - threshold
		if sameSign(flo, fmid) {
			lo = mid
			flo = fmid
		} else {
			hi = mid
		}
	}
	return lo.Add(hi.Sub(lo) / 2)
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}
