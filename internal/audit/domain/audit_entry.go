// Package domain defines the tamper-evident audit log domain model.
//
// Audit entries form a singly-linked, content-addressed hash chain: each
// entry's hash covers its fields plus the previous entry's hash, so modifying
// any historical entry breaks every subsequent link. Chain integrity can be
// re-verified end-to-end at any time by a linear walk.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Action identifies the operation an audit entry records.
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionRotate       Action = "rotate"
	ActionDelete       Action = "delete"
	ActionExpire       Action = "expire"
	ActionPurge        Action = "purge"
	ActionConfigUpdate Action = "config-update"
)

// NoDigest is the fixed token recorded when an entry has no before or after
// value (creation has no before, deletion has no after).
const NoDigest = "-"

// AuditEntry is one append-only record in the hash chain.
type AuditEntry struct {
	// SequenceIndex is the zero-based position in the chain.
	SequenceIndex uint64
	// Actor is the authenticated identity that triggered the operation.
	Actor string
	// Action is the recorded operation.
	Action Action
	// SubjectKey identifies what was touched: "principal/type" for secret
	// operations, the bare configuration key for protected-field mutations.
	SubjectKey string
	// BeforeDigest and AfterDigest are SHA-256 hex digests of the subject
	// value before and after the operation, or NoDigest when absent.
	BeforeDigest string
	AfterDigest  string
	// Reason is free-form justification text. Required (non-empty) for
	// mutations of protected configuration keys.
	Reason string
	// CreatedAt is the UTC timestamp of the entry.
	CreatedAt time.Time
	// EntryHash is the SHA-256 hash over this entry's canonical encoding,
	// which includes PrevEntryHash.
	EntryHash []byte
	// PrevEntryHash is the EntryHash of entry SequenceIndex-1, or the genesis
	// constant for entry 0.
	PrevEntryHash []byte
}

// genesisSeed is hashed once to produce the fixed genesis constant. Changing
// it invalidates every existing chain.
const genesisSeed = "keyfold-audit-genesis"

// GenesisHash returns the fixed previous-hash constant for entry 0.
func GenesisHash() []byte {
	h := sha256.Sum256([]byte(genesisSeed))
	return h[:]
}

// Digest returns the SHA-256 hex digest used for before/after fields.
func Digest(value []byte) string {
	h := sha256.Sum256(value)
	return hex.EncodeToString(h[:])
}

// Violation describes one detected break in the chain. Verification collects
// every violation, not just the first, so an operator can assess blast radius.
type Violation struct {
	SequenceIndex uint64
	Reason        string
	Expected      string
	Found         string
}

// IntegrityReport is the result of a chain verification walk.
type IntegrityReport struct {
	From         uint64
	To           uint64
	TotalChecked int
	Violations   []Violation
}

// OK reports whether the walk found no violations.
func (r *IntegrityReport) OK() bool {
	return len(r.Violations) == 0
}
