package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/keyfold/keyfold/internal/crypto/domain"

	// Register KMS provider drivers for keeper URIs
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// PepperConfig selects where the optional site-wide derivation pepper comes from.
//
// A base64 pepper in the environment takes precedence; otherwise, when a keeper
// URI is configured, the encrypted pepper blob is decrypted through a
// gocloud.dev secrets keeper (gcpkms://, awskms://, azurekeyvault://,
// hashivault://, base64key://). With neither set, derivation runs unpeppered.
type PepperConfig struct {
	Base64           string
	KeeperURI        string
	CiphertextBase64 string
}

// LoadPepper resolves the derivation pepper from configuration.
//
// Returns nil with no error when no pepper is configured. A configured pepper
// that is malformed or not exactly 32 bytes is ErrConfiguration; fail fast at
// startup rather than deriving under a truncated pepper. The caller owns the
// returned bytes and should zero them after handing them to the deriver.
func LoadPepper(ctx context.Context, cfg PepperConfig) ([]byte, error) {
	if cfg.Base64 != "" {
		pepper, err := base64.StdEncoding.DecodeString(cfg.Base64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pepper base64: %v", cryptoDomain.ErrConfiguration, err)
		}
		return checkPepper(pepper)
	}

	if cfg.KeeperURI == "" {
		return nil, nil
	}

	if cfg.CiphertextBase64 == "" {
		return nil, fmt.Errorf("%w: pepper keeper URI set without ciphertext", cryptoDomain.ErrConfiguration)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cfg.CiphertextBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pepper ciphertext base64: %v", cryptoDomain.ErrConfiguration, err)
	}

	keeper, err := secrets.OpenKeeper(ctx, cfg.KeeperURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open pepper keeper: %w", err)
	}
	defer func() { _ = keeper.Close() }()

	pepper, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt pepper: %w", err)
	}

	return checkPepper(pepper)
}

// checkPepper enforces the fixed pepper length.
func checkPepper(pepper []byte) ([]byte, error) {
	if len(pepper) != cryptoDomain.KeySize {
		cryptoDomain.Zero(pepper)
		return nil, fmt.Errorf("%w: pepper must be %d bytes, got %d",
			cryptoDomain.ErrConfiguration, cryptoDomain.KeySize, len(pepper))
	}
	return pepper, nil
}
