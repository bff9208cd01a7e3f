package domain

import "github.com/keyfold/keyfold/internal/errors"

var (
	// ErrSecretNotFound covers absent, deleted and expired secrets alike so a
	// caller cannot distinguish "never existed" from "no longer readable".
	ErrSecretNotFound = errors.Wrap(errors.ErrNotFound, "secret not found")
	// ErrSecretAlreadyExists rejects a store for a (principal, type) that
	// already has an active version; rotation is the explicit path.
	ErrSecretAlreadyExists = errors.Wrap(errors.ErrConflict, "an active secret already exists for this principal and type")
	// ErrConcurrentModification reports a lost compare-and-swap on the active
	// version pointer after the single internal retry.
	ErrConcurrentModification = errors.Wrap(errors.ErrConflict, "secret was modified concurrently")
	// ErrThrottled blocks reads for a principal that accumulated too many
	// consecutive decryption failures.
	ErrThrottled = errors.Wrap(errors.ErrConflict, "too many failed attempts, retry later")
)
