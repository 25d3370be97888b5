package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	require.NoError(t, db.Delete([]byte("a")))
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("mutable")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("mutable"), stored)
}

func TestOverlayStagesUntilCommit(t *testing.T) {
	backing := NewMemDB()
	require.NoError(t, backing.Put([]byte("existing"), []byte("old")))

	overlay := NewOverlay(backing)
	require.NoError(t, overlay.Put([]byte("new"), []byte("value")))
	require.NoError(t, overlay.Delete([]byte("existing")))

	// Overlay reads observe staged state.
	got, err := overlay.Get([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	_, err = overlay.Get([]byte("existing"))
	require.ErrorIs(t, err, ErrNotFound)

	// Backing store is untouched before commit.
	_, err = backing.Get([]byte("new"))
	require.ErrorIs(t, err, ErrNotFound)
	got, err = backing.Get([]byte("existing"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)

	require.NoError(t, overlay.Commit())

	got, err = backing.Get([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	_, err = backing.Get([]byte("existing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOverlayReadThrough(t *testing.T) {
	backing := NewMemDB()
	require.NoError(t, backing.Put([]byte("k"), []byte("v")))

	overlay := NewOverlay(backing)
	got, err := overlay.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
