package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

func TestNewChaCha20Poly1305_InvalidKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33} {
		_, err := NewChaCha20Poly1305(make([]byte, size))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize, "key size %d", size)
	}
}

func TestChaCha20Poly1305_RoundTrip(t *testing.T) {
	cipher, err := NewChaCha20Poly1305(randomKey(t))
	require.NoError(t, err)

	for _, plaintext := range [][]byte{nil, []byte("x"), []byte("api-token-!@#$%")} {
		env, err := cipher.Encrypt(plaintext, nil)
		require.NoError(t, err)
		assert.Len(t, env.Nonce, cryptoDomain.NonceSize)
		assert.Len(t, env.Tag, cryptoDomain.TagSize)

		decrypted, err := cipher.Decrypt(env, nil)
		require.NoError(t, err)
		assert.Equal(t, plaintext, []byte(decrypted))
	}
}

func TestChaCha20Poly1305_TamperDetection(t *testing.T) {
	cipher, err := NewChaCha20Poly1305(randomKey(t))
	require.NoError(t, err)

	env, err := cipher.Encrypt([]byte("sensitive value"), nil)
	require.NoError(t, err)

	env.Ciphertext[0] ^= 0x01
	_, err = cipher.Decrypt(env, nil)
	assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	env.Ciphertext[0] ^= 0x01

	env.Tag[cryptoDomain.TagSize-1] ^= 0x80
	_, err = cipher.Decrypt(env, nil)
	assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
}

func TestChaCha20Poly1305_NonceNonRepetition(t *testing.T) {
	cipher, err := NewChaCha20Poly1305(randomKey(t))
	require.NoError(t, err)

	nonces := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		env, err := cipher.Encrypt([]byte("same plaintext"), nil)
		require.NoError(t, err)
		require.False(t, nonces[string(env.Nonce)], "nonce repeated after %d encryptions", i)
		nonces[string(env.Nonce)] = true
	}
}

func TestAEADManager_CreateCipher(t *testing.T) {
	manager := NewAEADManager()

	t.Run("aes-gcm", func(t *testing.T) {
		cipher, err := manager.CreateCipher(randomKey(t), cryptoDomain.AESGCM)
		require.NoError(t, err)
		assert.IsType(t, &AESGCMCipher{}, cipher)
	})

	t.Run("chacha20-poly1305", func(t *testing.T) {
		cipher, err := manager.CreateCipher(randomKey(t), cryptoDomain.ChaCha20)
		require.NoError(t, err)
		assert.IsType(t, &ChaCha20Poly1305Cipher{}, cipher)
	})

	t.Run("invalid key size", func(t *testing.T) {
		_, err := manager.CreateCipher(make([]byte, 16), cryptoDomain.AESGCM)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		_, err := manager.CreateCipher(randomKey(t), cryptoDomain.Algorithm("des"))
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
	})

	t.Run("ciphers are interchangeable through the envelope format", func(t *testing.T) {
		key := randomKey(t)
		for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
			cipher, err := manager.CreateCipher(key, alg)
			require.NoError(t, err)

			env, err := cipher.Encrypt([]byte("payload"), nil)
			require.NoError(t, err)

			parsed, err := cryptoDomain.ParseEnvelope(env.Encode())
			require.NoError(t, err)

			decrypted, err := cipher.Decrypt(parsed, nil)
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), decrypted)
		}
	})
}
