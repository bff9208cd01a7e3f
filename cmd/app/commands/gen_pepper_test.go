package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/localsecrets"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

const testKeeperURI = "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="

func TestRunGenPepper(t *testing.T) {
	ctx := context.Background()

	t.Run("plaintext-mode", func(t *testing.T) {
		var out bytes.Buffer
		err := RunGenPepper(ctx, &out, "")
		require.NoError(t, err)

		matches := regexp.MustCompile(`PEPPER_BASE64="([^"]+)"`).FindStringSubmatch(out.String())
		require.Len(t, matches, 2)

		pepper, err := base64.StdEncoding.DecodeString(matches[1])
		require.NoError(t, err)
		require.Len(t, pepper, cryptoDomain.KeySize)
	})

	t.Run("keeper-mode", func(t *testing.T) {
		var out bytes.Buffer
		err := RunGenPepper(ctx, &out, testKeeperURI)
		require.NoError(t, err)
		require.Contains(t, out.String(), `PEPPER_KEEPER_URI="`+testKeeperURI+`"`)

		matches := regexp.MustCompile(`PEPPER_CIPHERTEXT_BASE64="([^"]+)"`).FindStringSubmatch(out.String())
		require.Len(t, matches, 2)

		ciphertext, err := base64.StdEncoding.DecodeString(matches[1])
		require.NoError(t, err)

		// The ciphertext round-trips through the same keeper to a 32-byte pepper
		keeper, err := secrets.OpenKeeper(ctx, testKeeperURI)
		require.NoError(t, err)
		defer func() { require.NoError(t, keeper.Close()) }()

		pepper, err := keeper.Decrypt(ctx, ciphertext)
		require.NoError(t, err)
		require.Len(t, pepper, cryptoDomain.KeySize)
	})

	t.Run("invalid-keeper-uri", func(t *testing.T) {
		var out bytes.Buffer
		err := RunGenPepper(ctx, &out, "unknown-scheme://nope")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to open keeper")
	})

	t.Run("distinct-peppers", func(t *testing.T) {
		var first, second bytes.Buffer
		require.NoError(t, RunGenPepper(ctx, &first, ""))
		require.NoError(t, RunGenPepper(ctx, &second, ""))
		require.NotEqual(t, first.String(), second.String())
	})
}
