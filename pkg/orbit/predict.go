package orbit

import (
	"strconv"
	"strings"
	"time"

	"github.com/aaltosatellite/porthouse/pkg/types"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Observer is a groundstation's geodetic position.
type Observer struct {
	LatDeg, LonDeg, AltKm float64
}

// Mode selects the coarse-scan/bisection resolution tradeoff.
type Mode int

const (
	// ModeAccurate uses a fine coarse-scan step, for one-off or
	// few-satellite predictions.
	ModeAccurate Mode = iota
	// ModeFast uses a coarser step, for scanning many satellites over
	// long windows where sub-second AOS/LOS precision is not needed.
	ModeFast
)

// Options constrains and tunes a pass search.
type Options struct {
	MinElevationDeg    float64
	SunMaxElevationDeg *float64 // non-nil: reject instants where the sun is higher than this (darkness gate)
	RequireSunlit      *bool    // non-nil: reject instants where satellite sunlit state doesn't match
	Mode               Mode
}

func (o Options) coarseStep() time.Duration {
	if o.Mode == ModeFast {
		return 60 * time.Second
	}
	return 15 * time.Second
}

func (o Options) tolerance() time.Duration {
	if o.Mode == ModeFast {
		return 2 * time.Second
	}
	return 500 * time.Millisecond
}

// PredictPasses finds every pass of tle over a groundstation within
// [start, end), ordered by TAOS. A pass already above the elevation floor
// at start, or still above it at end, is reported with its AOS/LOS time
// clipped to the window boundary (no true rise/set crossing exists inside
// the window to bisect for).
func PredictPasses(tle TLE, obs Observer, start, end time.Time, opts Options) ([]types.Pass, error) {
	sat, err := parseTLE(tle)
	if err != nil {
		return nil, err
	}

	halfPeriod, err := halfOrbitPeriod(tle)
	if err != nil {
		return nil, err
	}

	maskedEl := func(t time.Time) float64 {
		pos, perr := propagateWith(sat, t)
		if perr != nil {
			return -90
		}
		if !visibilityOK(t, pos, obs, opts) {
			return -90
		}
		aer := aerAt(pos, t, obs)
		return aer.ElevationDeg
	}

	var passes []types.Pass
	step := opts.coarseStep()
	tol := opts.tolerance()

	prev := start
	prevEl := maskedEl(prev)
	aboveAtStart := prevEl >= opts.MinElevationDeg
	var riseBracket time.Time
	inPass := aboveAtStart
	if inPass {
		riseBracket = start
	}

	for cursor := start.Add(step); !cursor.After(end); cursor = cursor.Add(step) {
		curEl := maskedEl(cursor)

		switch {
		case !inPass && curEl >= opts.MinElevationDeg:
			riseBracket = bisectCrossing(maskedEl, prev, cursor, opts.MinElevationDeg, tol)
			inPass = true

		case inPass && curEl < opts.MinElevationDeg:
			setBracket := bisectCrossing(maskedEl, prev, cursor, opts.MinElevationDeg, tol)
			if p, ok := buildPass(tle, sat, obs, riseBracket, setBracket, halfPeriod, opts); ok {
				passes = append(passes, p)
			}
			inPass = false
		}

		prev, prevEl = cursor, curEl
	}

	if inPass {
		if p, ok := buildPass(tle, sat, obs, riseBracket, end, halfPeriod, opts); ok {
			passes = append(passes, p)
		}
	}

	return passes, nil
}

func buildPass(tle TLE, sat satellite.Satellite, obs Observer, aos, los time.Time, halfPeriod time.Duration, opts Options) (types.Pass, bool) {
	if !los.After(aos) || los.Sub(aos) > halfPeriod {
		return types.Pass{}, false
	}

	maskedEl := func(t time.Time) float64 {
		pos, err := propagateWith(sat, t)
		if err != nil {
			return -90
		}
		if !visibilityOK(t, pos, obs, opts) {
			return -90
		}
		return aerAt(pos, t, obs).ElevationDeg
	}
	tmax := goldenSectionMax(maskedEl, aos, los, opts.tolerance())

	posAOS, _ := propagateWith(sat, aos)
	posMax, _ := propagateWith(sat, tmax)
	posLOS, _ := propagateWith(sat, los)

	aerAOS := aerAt(posAOS, aos, obs)
	aerMax := aerAt(posMax, tmax, obs)
	aerLOS := aerAt(posLOS, los, obs)

	p := types.Pass{
		ObjectName: tle.Name,
		Status:     types.PassPredicted,
		TAOS:       aos,
		AzAOS:      aerAOS.AzimuthDeg,
		ElAOS:      aerAOS.ElevationDeg,
		TMax:       tmax,
		AzMax:      aerMax.AzimuthDeg,
		ElMax:      aerMax.ElevationDeg,
		TLOS:       los,
		AzLOS:      aerLOS.AzimuthDeg,
		ElLOS:      aerLOS.ElevationDeg,
	}
	return p, p.Valid(opts.MinElevationDeg)
}

func aerAt(pos eciKm, t time.Time, obs Observer) AER {
	gmst := gmstRadians(t)
	ecef := eciToECEF(pos, gmst)
	obsECEF := observerECEF(obs.LatDeg, obs.LonDeg, obs.AltKm)
	return topocentric(ecef, obsECEF, obs.LatDeg, obs.LonDeg)
}

func visibilityOK(t time.Time, satPos eciKm, obs Observer, opts Options) bool {
	if opts.SunMaxElevationDeg != nil {
		if sunElevationDeg(t, obs.LatDeg, obs.LonDeg, obs.AltKm) > *opts.SunMaxElevationDeg {
			return false
		}
	}
	if opts.RequireSunlit != nil {
		sunlit := isSunlit(satPos, sunPositionECI(t))
		if sunlit != *opts.RequireSunlit {
			return false
		}
	}
	return true
}

// halfOrbitPeriod reads the mean motion (revolutions/day) from a TLE's
// fixed-column line 2 and returns half the resulting orbital period, the
// upper bound a genuine single pass's AOS-to-LOS span must respect.
func halfOrbitPeriod(tle TLE) (time.Duration, error) {
	line := tle.Line2
	if len(line) < 63 {
		return 0, errShortTLE(tle.Name)
	}
	field := strings.TrimSpace(line[52:63])
	revPerDay, err := strconv.ParseFloat(field, 64)
	if err != nil || revPerDay <= 0 {
		return 0, errShortTLE(tle.Name)
	}
	period := time.Duration(24.0 / revPerDay * float64(time.Hour))
	return period / 2, nil
}

func errShortTLE(name string) error {
	return &malformedTLEError{Name: name}
}

type malformedTLEError struct{ Name string }

func (e *malformedTLEError) Error() string {
	return "orbit: line 2 of TLE " + e.Name + " is missing or too short to carry mean motion"
}
