package orbit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var issTLE = TLE{
	Name:  "ISS (ZARYA)",
	Line1: "1 25544U 98067A   20029.91667824  .00001264  00000-0  31518-4 0  9992",
	Line2: "2 25544  51.6443  19.6205 0004976  22.0078  66.3239 15.49240571212486",
}

func TestObserverECEF_Equator(t *testing.T) {
	p := observerECEF(0, 0, 0)
	require.InDelta(t, earthRadiusKm, p.X, 0.5)
	require.InDelta(t, 0, p.Y, 1e-6)
	require.InDelta(t, 0, p.Z, 0.5)
}

func TestTopocentric_DirectlyOverhead(t *testing.T) {
	obs := observerECEF(10, 20, 0)
	// A point displaced from the observer along the local geodetic vertical
	// is directly overhead: elevation should be ~90 degrees regardless of
	// azimuth. (The geocentric radius differs from that vertical by about
	// 0.07 degrees at this latitude, so it cannot stand in for "up".)
	lat, lon := 10*math.Pi/180, 20*math.Pi/180
	const heightKm = 500.0
	overhead := eciKm{
		X: obs.X + heightKm*math.Cos(lat)*math.Cos(lon),
		Y: obs.Y + heightKm*math.Cos(lat)*math.Sin(lon),
		Z: obs.Z + heightKm*math.Sin(lat),
	}
	aer := topocentric(overhead, obs, 10, 20)
	require.InDelta(t, 90, aer.ElevationDeg, 0.01)
}

func TestGMSTWrapsWithinRange(t *testing.T) {
	g := gmstRadians(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.GreaterOrEqual(t, g, 0.0)
	require.Less(t, g, 2*3.141592653589793)
}

func TestGoldenSectionMax_FindsParabolaPeak(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	peak := base.Add(30 * time.Minute)
	f := func(t time.Time) float64 {
		dt := t.Sub(peak).Seconds()
		return 90 - dt*dt/1000
	}
	got := goldenSectionMax(f, base, base.Add(time.Hour), time.Second)
	require.InDelta(t, 0, got.Sub(peak).Seconds(), 5)
}

func TestBisectCrossing_LinearRamp(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := func(t time.Time) float64 {
		return t.Sub(base).Seconds() - 600 // crosses zero at +600s
	}
	got := bisectCrossing(f, base, base.Add(20*time.Minute), 0, time.Millisecond*100)
	require.InDelta(t, 600, got.Sub(base).Seconds(), 1)
}

func TestHalfOrbitPeriod_ParsesMeanMotion(t *testing.T) {
	half, err := halfOrbitPeriod(issTLE)
	require.NoError(t, err)
	require.InDelta(t, 46.4, half.Minutes(), 1)
}

func TestHalfOrbitPeriod_RejectsShortLine(t *testing.T) {
	_, err := halfOrbitPeriod(TLE{Name: "BAD", Line2: "too short"})
	require.Error(t, err)
}

func TestIsSunlit_OppositeSideIsShadowed(t *testing.T) {
	sun := eciKm{X: 1.496e8, Y: 0, Z: 0}
	litSide := eciKm{X: 7000, Y: 0, Z: 0}
	require.True(t, isSunlit(litSide, sun))

	darkSide := eciKm{X: -7000, Y: 0, Z: 0}
	require.False(t, isSunlit(darkSide, sun))
}

func TestPredictPasses_InvariantsHold(t *testing.T) {
	obs := Observer{LatDeg: 60.1841, LonDeg: 24.8283, AltKm: 0.052}
	start := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	passes, err := PredictPasses(issTLE, obs, start, end, Options{MinElevationDeg: 10, Mode: ModeFast})
	require.NoError(t, err)

	for _, p := range passes {
		require.True(t, p.TLOS.After(p.TAOS))
		require.GreaterOrEqual(t, p.ElMax, 10.0)
		require.False(t, p.TAOS.Before(start))
		require.False(t, p.TLOS.After(end))
	}
}

func TestPredictPasses_SunlitConstraintExcludesEclipsedPasses(t *testing.T) {
	obs := Observer{LatDeg: 60.1841, LonDeg: 24.8283, AltKm: 0.052}
	start := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	sunlitOnly := true
	passes, err := PredictPasses(issTLE, obs, start, end, Options{
		MinElevationDeg: 10,
		RequireSunlit:   &sunlitOnly,
		Mode:            ModeFast,
	})
	require.NoError(t, err)
	for _, p := range passes {
		require.GreaterOrEqual(t, p.ElMax, 10.0)
	}
}
