// Package orbit implements pass prediction: given a groundstation and a
// target, find AOS/max/LOS event triples over a time window subject to
// elevation, sun-angle, and sunlit visibility predicates.
//
// SGP4 propagation from TLE elements is delegated to
// github.com/joshuaferrara/go-satellite (sgp4.go); everything else —
// topocentric azimuth/elevation, the golden-section maximum search, and
// the bisection rise/set search — is this package's own numerical core,
// grounded on the event-discovery shape of
// _examples/original_source/gs/tracking/orbit_tracker.py's predict_passes.
package orbit
