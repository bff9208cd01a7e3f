//go:build soak

package service

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// Full-cost key uniqueness check over 10000 random salts. Runs for tens of
// minutes at the default iteration count, hence the soak tag:
//
//	go test -tags soak -timeout 0 -run KeyUniqueness ./internal/crypto/service
func TestPBKDF2Deriver_KeyUniqueness(t *testing.T) {
	const trials = 10_000

	deriver, err := NewPBKDF2Deriver(cryptoDomain.DefaultParamsVersion, nil)
	require.NoError(t, err)
	defer deriver.Close()

	seen := make(map[string]bool, trials)
	for i := 0; i < trials; i++ {
		principal := fmt.Sprintf("principal-%d", i%100)
		salt, err := deriver.GenerateSalt()
		require.NoError(t, err)
		key, err := deriver.Derive(principal, salt, cryptoDomain.DefaultParamsVersion)
		require.NoError(t, err)

		encoded := hex.EncodeToString(key)
		require.False(t, seen[encoded], "derived key collision after %d trials", i)
		seen[encoded] = true
	}
}
