// Package domain defines security alert events raised by the secrets core.
package domain

import "time"

// Severity ranks how urgently an event needs operator attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Kind identifies the class of security event.
type Kind string

const (
	// KindDecryptFailed fires on an authentication failure during decryption,
	// which indicates tampering or a wrong credential.
	KindDecryptFailed Kind = "decrypt-failed"
	// KindThrottled fires when a principal is locked out after repeated
	// decryption failures.
	KindThrottled Kind = "principal-throttled"
	// KindChainBroken fires when audit chain verification finds violations.
	KindChainBroken Kind = "audit-chain-broken"
)

// Event is a single security alert.
type Event struct {
	Kind      Kind
	Severity  Severity
	Principal string
	Detail    string
	CreatedAt time.Time
}
