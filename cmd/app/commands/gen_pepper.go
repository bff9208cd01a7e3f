package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"
)

// RunGenPepper generates a cryptographically secure 32-byte derivation pepper.
// With a keeper URI the pepper is encrypted through a gocloud.dev secrets
// keeper before output, so only the ciphertext lands in configuration; without
// one the raw pepper is printed base64 encoded. Pepper material is zeroed from
// memory after encoding.
//
// Security: prefer a cloud KMS keeper (gcpkms://, awskms://, azurekeyvault://,
// hashivault://) in production. base64key:// is for local development only.
func RunGenPepper(ctx context.Context, writer io.Writer, keeperURI string) error {
	pepper := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(pepper); err != nil {
		return fmt.Errorf("failed to generate pepper: %w", err)
	}
	defer cryptoDomain.Zero(pepper)

	if keeperURI == "" {
		_, _ = fmt.Fprintln(writer, "# Plaintext mode: store this value in a secret manager, not in source control")
		_, _ = fmt.Fprintf(writer, "PEPPER_BASE64=%q\n", base64.StdEncoding.EncodeToString(pepper))
		return nil
	}

	keeper, err := secrets.OpenKeeper(ctx, keeperURI)
	if err != nil {
		return fmt.Errorf("failed to open keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(writer, "# Warning: failed to close keeper: %v\n", closeErr)
		}
	}()

	ciphertext, err := keeper.Encrypt(ctx, pepper)
	if err != nil {
		return fmt.Errorf("failed to encrypt pepper: %w", err)
	}

	_, _ = fmt.Fprintln(writer, "# KMS mode: pepper encrypted with keeper")
	_, _ = fmt.Fprintf(writer, "PEPPER_KEEPER_URI=%q\n", keeperURI)
	_, _ = fmt.Fprintf(writer, "PEPPER_CIPHERTEXT_BASE64=%q\n", base64.StdEncoding.EncodeToString(ciphertext))
	return nil
}
