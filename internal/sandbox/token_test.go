package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintTokenThenVerifyTokenRoundTrips(t *testing.T) {
	key, err := newSigningKey()
	require.NoError(t, err)

	token, err := mintToken("scan-123", key)
	require.NoError(t, err)

	scanID, err := VerifyToken(token, key)
	require.NoError(t, err)
	assert.Equal(t, "scan-123", scanID)
}

func TestVerifyTokenRejectsWrongKey(t *testing.T) {
	key, err := newSigningKey()
	require.NoError(t, err)
	other, err := newSigningKey()
	require.NoError(t, err)

	token, err := mintToken("scan-123", key)
	require.NoError(t, err)

	_, err = VerifyToken(token, other)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	key, err := newSigningKey()
	require.NoError(t, err)

	_, err = VerifyToken("not-a-jwt", key)
	assert.Error(t, err)
}

func TestNewSigningKeyIsThirtyTwoBytesAndUnique(t *testing.T) {
	a, err := newSigningKey()
	require.NoError(t, err)
	b, err := newSigningKey()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
