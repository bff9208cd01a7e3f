package domain

// DerivationParams is a versioned key-derivation configuration record.
//
// Every stored secret records the parameter version that produced its key, and
// decryption resolves parameters strictly from the registry below, never from
// live configuration, so future upgrades cannot silently change behavior for
// already-derived keys.
type DerivationParams struct {
	// Version identifies this parameter record. Monotonic, never reused.
	Version uint
	// Iterations is the PBKDF2 iteration count. Chosen to cost an attacker
	// meaningfully per guess while staying sub-second for a single legitimate call.
	Iterations int
	// SaltSize is the derivation salt length in bytes.
	SaltSize int
	// KeySize is the derived key length in bytes.
	KeySize int
}

// Registered derivation parameter records. Existing versions are immutable;
// upgrades add a new version.
var derivationParamsRegistry = map[uint]DerivationParams{
	1: {Version: 1, Iterations: 600_000, SaltSize: SaltSize, KeySize: KeySize},
	2: {Version: 2, Iterations: 1_000_000, SaltSize: SaltSize, KeySize: KeySize},
}

// DefaultParamsVersion is the parameter version used for newly created secrets
// unless configuration selects another registered version.
const DefaultParamsVersion uint = 1

// ParamsForVersion resolves a registered derivation parameter record.
// Returns ErrUnknownParamsVersion for versions that were never registered.
func ParamsForVersion(version uint) (DerivationParams, error) {
	params, ok := derivationParamsRegistry[version]
	if !ok {
		return DerivationParams{}, ErrUnknownParamsVersion
	}
	return params, nil
}
