package service

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cryptoDomain.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewAESGCM_InvalidKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 24, 31, 33, 64} {
		_, err := NewAESGCM(make([]byte, size))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize, "key size %d", size)
	}
}

func TestAESGCM_RoundTrip(t *testing.T) {
	cipher, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	plaintexts := [][]byte{
		nil,
		[]byte("x"),
		[]byte("https://example.com/hook"),
		make([]byte, 64*1024),
	}

	for _, plaintext := range plaintexts {
		env, err := cipher.Encrypt(plaintext, nil)
		require.NoError(t, err)
		assert.Len(t, env.Nonce, cryptoDomain.NonceSize)
		assert.Len(t, env.Tag, cryptoDomain.TagSize)
		assert.Len(t, env.Ciphertext, len(plaintext))

		decrypted, err := cipher.Decrypt(env, nil)
		require.NoError(t, err)
		assert.Equal(t, plaintext, []byte(decrypted))
	}
}

func TestAESGCM_RoundTrip_ThroughEncodedForm(t *testing.T) {
	cipher, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	env, err := cipher.Encrypt([]byte("payload"), nil)
	require.NoError(t, err)

	parsed, err := cryptoDomain.ParseEnvelope(env.Encode())
	require.NoError(t, err)

	decrypted, err := cipher.Decrypt(parsed, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), decrypted)
}

func TestAESGCM_TamperDetection(t *testing.T) {
	cipher, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	env, err := cipher.Encrypt([]byte("sensitive value"), nil)
	require.NoError(t, err)

	// Flip every bit of the ciphertext and tag regions, one at a time.
	flipRegion := func(t *testing.T, region []byte) {
		t.Helper()
		for byteIdx := range region {
			for bit := 0; bit < 8; bit++ {
				region[byteIdx] ^= 1 << bit
				_, err := cipher.Decrypt(env, nil)
				assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
				region[byteIdx] ^= 1 << bit
			}
		}
	}

	flipRegion(t, env.Ciphertext)
	flipRegion(t, env.Tag)

	// Untampered envelope still decrypts after the sweep.
	decrypted, err := cipher.Decrypt(env, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("sensitive value"), decrypted)
}

func TestAESGCM_WrongKey(t *testing.T) {
	cipher1, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)
	cipher2, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	env, err := cipher1.Encrypt([]byte("value"), nil)
	require.NoError(t, err)

	_, err = cipher2.Decrypt(env, nil)
	assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
}

func TestAESGCM_AADBinding(t *testing.T) {
	cipher, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	env, err := cipher.Encrypt([]byte("value"), []byte("u1/webhook"))
	require.NoError(t, err)

	// Same AAD decrypts.
	decrypted, err := cipher.Decrypt(env, []byte("u1/webhook"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), decrypted)

	// Different or missing AAD fails authentication.
	_, err = cipher.Decrypt(env, []byte("u2/webhook"))
	assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	_, err = cipher.Decrypt(env, nil)
	assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
}

func TestAESGCM_NonceNonRepetition(t *testing.T) {
	cipher, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	plaintext := []byte("same plaintext every time")
	nonces := make(map[string]bool)
	envelopes := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		env, err := cipher.Encrypt(plaintext, nil)
		require.NoError(t, err)

		nonce := string(env.Nonce)
		require.False(t, nonces[nonce], "nonce repeated after %d encryptions", i)
		nonces[nonce] = true

		encoded := env.Encode()
		require.False(t, envelopes[encoded], "envelope repeated after %d encryptions", i)
		envelopes[encoded] = true
	}
}
