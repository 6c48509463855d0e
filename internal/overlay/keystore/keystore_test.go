package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenGeneratesAndPersistsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	k1, err := Open(path)
	require.NoError(t, err)
	require.NotNil(t, k1.Current())

	k2, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, k1.Current().ID(), k2.Current().ID())
}

func TestRotateRetiresPreviousKeyAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	k, err := Open(path, WithMaxRetainedKeys(1))
	require.NoError(t, err)
	oldID := k.Current().ID()

	newKey, err := k.Rotate()
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newKey.ID())

	verifKeys := k.VerificationKeys()
	require.Len(t, verifKeys, 2)
	assert.Equal(t, newKey.ID(), verifKeys[0].ID())
	assert.Equal(t, oldID, verifKeys[1].ID())

	reloaded, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, newKey.ID(), reloaded.Current().ID())
	assert.Len(t, reloaded.VerificationKeys(), 2)
}

func TestRotateBoundsRetainedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	k, err := Open(path, WithMaxRetainedKeys(1))
	require.NoError(t, err)

	_, err = k.Rotate()
	require.NoError(t, err)
	_, err = k.Rotate()
	require.NoError(t, err)

	assert.Len(t, k.VerificationKeys(), 2) // current + 1 retained
}
