package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/crypto"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	svc, err := crypto.NewWithKeys(map[int]string{1: "01234567890123456789012345678901"})
	require.NoError(t, err)

	enc, err := svc.Encrypt("hello world")
	require.NoError(t, err)
	assert.Equal(t, 1, enc.KeyVersion)
	assert.NotEmpty(t, enc.Nonce)

	pt, err := svc.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", pt)
}

func TestWrongKeyYieldsBadCiphertext(t *testing.T) {
	t.Parallel()

	svc1, err := crypto.NewWithKeys(map[int]string{1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	require.NoError(t, err)
	svc2, err := crypto.NewWithKeys(map[int]string{1: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"})
	require.NoError(t, err)

	enc, err := svc1.Encrypt("secret")
	require.NoError(t, err)

	_, err = svc2.Decrypt(enc)
	require.Error(t, err)
}

func TestMultipleKeyVersionsCoexist(t *testing.T) {
	t.Parallel()

	svcV1, err := crypto.NewWithKeys(map[int]string{1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	require.NoError(t, err)
	encOld, err := svcV1.Encrypt("old-row")
	require.NoError(t, err)

	svcBoth, err := crypto.NewWithKeys(map[int]string{
		1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		2: "cccccccccccccccccccccccccccccccc",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, svcBoth.CurrentKeyVersion())

	pt, err := svcBoth.Decrypt(encOld)
	require.NoError(t, err)
	assert.Equal(t, "old-row", pt)

	rewrapped, err := svcBoth.Rewrap(encOld)
	require.NoError(t, err)
	assert.Equal(t, 2, rewrapped.KeyVersion)

	pt2, err := svcBoth.Decrypt(rewrapped)
	require.NoError(t, err)
	assert.Equal(t, "old-row", pt2)
}

func TestNoEncryptionMode(t *testing.T) {
	t.Parallel()

	svc := mustNoEncryptionService(t)
	enc, err := svc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, 0, enc.KeyVersion)

	pt, err := svc.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "plain", pt)
}

func mustNoEncryptionService(t *testing.T) *crypto.Service {
	t.Helper()
	t.Setenv(crypto.EnvMasterKey, "")
	t.Setenv(crypto.EnvMasterKeyAlternate, "")
	svc, err := crypto.New()
	require.NoError(t, err)
	require.True(t, svc.NoEncryption())
	return svc
}
