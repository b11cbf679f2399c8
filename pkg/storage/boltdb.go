package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTLE         = []byte("tle")
	bucketCalibration = []byte("calibration")
)

// TLEEntry is one cached two-line element set, timestamped by when it was
// fetched and tagged with which configured source supplied it (spec's
// supplemented TLE-source-plurality feature).
type TLEEntry struct {
	Satellite string    `json:"satellite"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CalibrationEntry is one rotator position-reset audit record, matching
// rotator.py's rpc.reset_position handler's cal_history.txt append.
type CalibrationEntry struct {
	Rotator string    `json:"rotator"`
	Azimuth float64   `json:"az"`
	Elevation float64 `json:"el"`
	At      time.Time `json:"at"`
}

// BoltStore is the embedded cache backing TLE lookups and the calibration
// audit trail, grounded on
// _examples/cuemby-warren/pkg/storage/boltdb.go's BoltStore.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) "porthouse.db" under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "porthouse.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTLE, bucketCalibration} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("storage: creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutTLE upserts the cached TLE for entry.Satellite.
func (s *BoltStore) PutTLE(entry TLEEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTLE).Put([]byte(entry.Satellite), data)
	})
}

// GetTLE looks up the cached TLE for satellite.
func (s *BoltStore) GetTLE(satellite string) (*TLEEntry, error) {
	var entry TLEEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTLE).Get([]byte(satellite))
		if data == nil {
			return fmt.Errorf("storage: no cached TLE for %q", satellite)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTLEs returns every cached TLE.
func (s *BoltStore) ListTLEs() ([]*TLEEntry, error) {
	var out []*TLEEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTLE).ForEach(func(_, v []byte) error {
			var entry TLEEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, &entry)
			return nil
		})
	})
	return out, err
}

// RecordCalibration appends a calibration audit entry, keyed so ForEach
// naturally returns entries in chronological order (a fixed-width UTC
// timestamp with all nine fractional digits sorts lexically the same as
// chronologically).
func (s *BoltStore) RecordCalibration(entry CalibrationEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := []byte(entry.Rotator + "|" + entry.At.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
		return tx.Bucket(bucketCalibration).Put(key, data)
	})
}

// ListCalibrations returns every calibration entry for rotator, oldest first.
func (s *BoltStore) ListCalibrations(rotator string) ([]CalibrationEntry, error) {
	var out []CalibrationEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCalibration).Cursor()
		prefix := []byte(rotator + "|")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var entry CalibrationEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// RotatorCalibrationRecorder adapts a BoltStore to pkg/rotator's
// CalibrationRecorder interface for a single named rotator instance.
type RotatorCalibrationRecorder struct {
	Store   *BoltStore
	Rotator string
}

// RecordCalibration implements rotator.CalibrationRecorder.
func (r RotatorCalibrationRecorder) RecordCalibration(_ context.Context, azDeg, elDeg float64, at time.Time) error {
	return r.Store.RecordCalibration(CalibrationEntry{
		Rotator:   r.Rotator,
		Azimuth:   azDeg,
		Elevation: elDeg,
		At:        at,
	})
}
