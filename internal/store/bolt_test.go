package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zberg/go-ae200/pkg/ae200"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetSnapshot(t *testing.T) {
	s := newTestStore(t)

	snap := &Snapshot{
		ControllerID: "office",
		DeviceID:     "3",
		Name:         "Living Room",
		Attributes:   ae200.Attributes{"Drive": "ON", "SetTemp": "24.0", "InletTemp": ""},
		FetchedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.SaveSnapshot(snap))

	got, err := s.GetSnapshot("office", "3")
	require.NoError(t, err)
	assert.Equal(t, snap.Name, got.Name)
	assert.Equal(t, snap.Attributes, got.Attributes)
	assert.True(t, snap.FetchedAt.Equal(got.FetchedAt))

	// Saving again replaces the previous snapshot.
	snap.Attributes = ae200.Attributes{"Drive": "OFF"}
	require.NoError(t, s.SaveSnapshot(snap))
	got, err = s.GetSnapshot("office", "3")
	require.NoError(t, err)
	assert.Equal(t, ae200.Attributes{"Drive": "OFF"}, got.Attributes)
}

func TestGetSnapshotNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSnapshot("office", "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSnapshot(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveSnapshot(&Snapshot{ControllerID: "office", DeviceID: "1"}))
	require.NoError(t, s.DeleteSnapshot("office", "1"))

	_, err := s.GetSnapshot("office", "1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, s.DeleteSnapshot("office", "1"))
}

func TestListSnapshots(t *testing.T) {
	s := newTestStore(t)

	for _, snap := range []*Snapshot{
		{ControllerID: "office", DeviceID: "2", Name: "Bedroom"},
		{ControllerID: "office", DeviceID: "1", Name: "Living Room"},
		{ControllerID: "office2", DeviceID: "1", Name: "Lobby"},
		{ControllerID: "home", DeviceID: "7", Name: "Garage"},
	} {
		require.NoError(t, s.SaveSnapshot(snap))
	}

	office, err := s.ListSnapshots("office")
	require.NoError(t, err)
	require.Len(t, office, 2)
	assert.Equal(t, "Living Room", office[0].Name)
	assert.Equal(t, "Bedroom", office[1].Name)

	all, err := s.ListSnapshots("")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "Garage", all[0].Name)

	none, err := s.ListSnapshots("attic")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReopenKeepsSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(&Snapshot{ControllerID: "office", DeviceID: "1", Name: "Living Room"}))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetSnapshot("office", "1")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", got.Name)
}
