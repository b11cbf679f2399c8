package orbit

import (
	"time"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

// TrackPoint is an instantaneous observation of a target used by the orbit
// tracker's per-tick pointing broadcast (spec 4.H).
type TrackPoint struct {
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
	RangeRateKmS float64
}

// rangeRateSample is the interval used to estimate range-rate by finite
// difference; go-satellite exposes no velocity vector directly.
const rangeRateSample = 1 * time.Second

// Track computes tle's instantaneous azimuth, elevation, range and
// range-rate as seen from obs at instant t.
func Track(tle TLE, obs Observer, t time.Time) (TrackPoint, error) {
	sat, err := parseTLE(tle)
	if err != nil {
		return TrackPoint{}, err
	}

	pos, err := propagateWith(sat, t)
	if err != nil {
		return TrackPoint{}, err
	}
	aer := aerAt(pos, t, obs)

	tp := TrackPoint{
		AzimuthDeg:   aer.AzimuthDeg,
		ElevationDeg: aer.ElevationDeg,
		RangeKm:      aer.RangeKm,
	}

	if pos2, err2 := propagateWith(sat, t.Add(rangeRateSample)); err2 == nil {
		aer2 := aerAt(pos2, t.Add(rangeRateSample), obs)
		tp.RangeRateKmS = (aer2.RangeKm - aer.RangeKm) / rangeRateSample.Seconds()
	}

	return tp, nil
}

// NextPass returns the soonest pass of tle over obs beginning at or after
// from, searching up to horizon ahead. ok is false if none is found.
func NextPass(tle TLE, obs Observer, from time.Time, horizon time.Duration, opts Options) (pass types.Pass, ok bool, err error) {
	passes, err := PredictPasses(tle, obs, from, from.Add(horizon), opts)
	if err != nil {
		return types.Pass{}, false, err
	}
	for _, p := range passes {
		if p.TLOS.After(from) {
			return p, true, nil
		}
	}
	return types.Pass{}, false, nil
}
