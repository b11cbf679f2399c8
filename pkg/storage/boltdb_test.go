package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutAndGetTLE_RoundTrips(t *testing.T) {
	store := newTestStore(t)

	entry := TLEEntry{
		Satellite: "FORESAIL-1",
		Line1:     "1 99999U 24001A   24001.00000000  .00000000  00000-0  00000-0 0  9990",
		Line2:     "2 99999  97.4000 100.0000 0010000  90.0000 270.0000 15.20000000000010",
		Source:    "celestrak",
		FetchedAt: time.Now(),
	}
	require.NoError(t, store.PutTLE(entry))

	got, err := store.GetTLE("FORESAIL-1")
	require.NoError(t, err)
	require.Equal(t, entry.Line1, got.Line1)
	require.Equal(t, entry.Source, got.Source)
}

func TestGetTLE_MissingReturnsError(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetTLE("NOSUCHSAT")
	require.Error(t, err)
}

func TestListTLEs_ReturnsEveryEntry(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.PutTLE(TLEEntry{Satellite: "SAT-A"}))
	require.NoError(t, store.PutTLE(TLEEntry{Satellite: "SAT-B"}))

	all, err := store.ListTLEs()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestPutTLE_UpsertsExisting(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.PutTLE(TLEEntry{Satellite: "SAT-A", Source: "celestrak"}))
	require.NoError(t, store.PutTLE(TLEEntry{Satellite: "SAT-A", Source: "spacetrack"}))

	got, err := store.GetTLE("SAT-A")
	require.NoError(t, err)
	require.Equal(t, "spacetrack", got.Source)

	all, err := store.ListTLEs()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestListCalibrations_OrderedAndScopedToRotator(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordCalibration(CalibrationEntry{Rotator: "az-el-1", Azimuth: 10, Elevation: 5, At: base}))
	require.NoError(t, store.RecordCalibration(CalibrationEntry{Rotator: "az-el-1", Azimuth: 20, Elevation: 6, At: base.Add(time.Hour)}))
	require.NoError(t, store.RecordCalibration(CalibrationEntry{Rotator: "az-el-2", Azimuth: 99, Elevation: 1, At: base}))

	entries, err := store.ListCalibrations("az-el-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 10.0, entries[0].Azimuth)
	require.Equal(t, 20.0, entries[1].Azimuth)
}

func TestRotatorCalibrationRecorder_ImplementsInterfaceAndWrites(t *testing.T) {
	store := newTestStore(t)
	recorder := RotatorCalibrationRecorder{Store: store, Rotator: "az-el-1"}

	err := recorder.RecordCalibration(context.Background(), 45.0, 30.0, time.Now())
	require.NoError(t, err)

	entries, err := store.ListCalibrations("az-el-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 45.0, entries[0].Azimuth)
}
