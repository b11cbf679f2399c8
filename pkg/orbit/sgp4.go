package orbit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// TLE is a two-line element set plus its catalog name.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// eciKm is a position or velocity vector in Earth-centered inertial
// coordinates, kilometers (or km/s for velocity).
type eciKm struct {
	X, Y, Z float64
}

// propagate runs SGP4 for tle at instant t (UTC) and returns its ECI
// position. go-satellite's Satellite is cheap to rebuild per call; a
// pass search calls this many times across the search window, so callers
// that propagate the same TLE repeatedly should prefer propagateWith.
func propagate(tle TLE, t time.Time) (eciKm, error) {
	sat, err := parseTLE(tle)
	if err != nil {
		return eciKm{}, err
	}
	return propagateWith(sat, t)
}

func parseTLE(tle TLE) (satellite.Satellite, error) {
	sat := satellite.TLEToSat(tle.Line1, tle.Line2, satellite.GravityWGS84)
	return sat, nil
}

func propagateWith(sat satellite.Satellite, t time.Time) (eciKm, error) {
	u := t.UTC()
	pos, _ := satellite.Propagate(sat, u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second())
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return eciKm{}, fmt.Errorf("orbit: sgp4 propagation failed at %s", u)
	}
	return eciKm{X: pos.X, Y: pos.Y, Z: pos.Z}, nil
}

// TLEAgeWarning is the age past which a TLE is considered stale enough to
// warrant a warning, spec 4.H "TLE hygiene".
const TLEAgeWarning = 14 * 24 * time.Hour

// Epoch parses the TLE epoch carried in line 1 columns 19-32 (2-digit year
// plus fractional day-of-year) into a UTC time.
func (tle TLE) Epoch() (time.Time, error) {
	if len(tle.Line1) < 32 {
		return time.Time{}, errShortTLE(tle.Name)
	}
	yy, err := strconv.Atoi(strings.TrimSpace(tle.Line1[18:20]))
	if err != nil {
		return time.Time{}, errShortTLE(tle.Name)
	}
	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}
	dayFrac, err := strconv.ParseFloat(strings.TrimSpace(tle.Line1[20:32]), 64)
	if err != nil {
		return time.Time{}, errShortTLE(tle.Name)
	}
	day := int(dayFrac)
	frac := dayFrac - float64(day)
	base := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day-1)
	return base.Add(time.Duration(frac * 24 * float64(time.Hour))), nil
}

// Age returns how old tle's epoch is relative to now.
func (tle TLE) Age(now time.Time) (time.Duration, error) {
	epoch, err := tle.Epoch()
	if err != nil {
		return 0, err
	}
	return now.Sub(epoch), nil
}
