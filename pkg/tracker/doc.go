// Package tracker implements the orbit tracker module (spec 4.H): a
// DISABLED→WAITING→AOS→TRACKING→LOS state machine that drives a single
// target TLE through pkg/orbit's pass prediction, broadcasting per-tick
// pointings on the "tracking" exchange and preaos/aos/los lifecycle events
// on "event", grounded on
// _examples/original_source/gs/tracking/orbit_tracker.py.
package tracker
