package rotator

import "sort"

// HorizonPoint is one (azimuth, minimum elevation) sample of a horizon
// map, masking obstructions like masts or nearby buildings.
type HorizonPoint struct {
	AzimuthDeg    float64
	MinElevation float64
}

// HorizonMap is a closed azimuth->minimum-elevation curve, linearly
// interpolated between samples and wrapping at 360 degrees, matching
// az_dependent_min_el()'s numpy.interp call over the configured map.
type HorizonMap []HorizonPoint

// MinElevation returns the minimum elevation permitted at azDeg, linearly
// interpolating between the two bracketing samples. An empty map always
// allows elevation 0.
func (h HorizonMap) MinElevation(azDeg float64) float64 {
	if len(h) == 0 {
		return 0
	}
	pts := make([]HorizonPoint, len(h))
	copy(pts, h)
	sort.Slice(pts, func(i, j int) bool { return pts[i].AzimuthDeg < pts[j].AzimuthDeg })

	az := normalizeAz(azDeg)

	last := pts[len(pts)-1]
	if az < pts[0].AzimuthDeg {
		// wrap from the last sample - 360 for the opening segment
		span := pts[0].AzimuthDeg - (last.AzimuthDeg - 360)
		if span <= 0 {
			return pts[0].MinElevation
		}
		frac := (az - (last.AzimuthDeg - 360)) / span
		return last.MinElevation + frac*(pts[0].MinElevation-last.MinElevation)
	}
	if az >= last.AzimuthDeg {
		// wrap to the first sample + 360 for the closing segment
		span := pts[0].AzimuthDeg + 360 - last.AzimuthDeg
		if span <= 0 {
			return last.MinElevation
		}
		frac := (az - last.AzimuthDeg) / span
		return last.MinElevation + frac*(pts[0].MinElevation-last.MinElevation)
	}

	for i := 1; i < len(pts); i++ {
		if az <= pts[i].AzimuthDeg {
			prev := pts[i-1]
			span := pts[i].AzimuthDeg - prev.AzimuthDeg
			if span <= 0 {
				return prev.MinElevation
			}
			frac := (az - prev.AzimuthDeg) / span
			return prev.MinElevation + frac*(pts[i].MinElevation-prev.MinElevation)
		}
	}
	return last.MinElevation
}

func normalizeAz(az float64) float64 {
	for az < 0 {
		az += 360
	}
	for az >= 360 {
		az -= 360
	}
	return az
}
