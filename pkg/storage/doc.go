// Package storage holds the framework's embedded persistence: a bbolt
// store for the TLE cache and the rotator's calibration audit trail
// (spec's supplemented calibration-history feature), grounded on
// _examples/cuemby-warren/pkg/storage/boltdb.go, plus an optional pgx-backed
// archive of executed/cancelled tasks and completed passes for sites that
// want history beyond pkg/schedule's in-memory archive.
package storage
