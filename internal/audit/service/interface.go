// Package service implements the audit chain hashing primitives.
package service

import (
	"github.com/keyfold/keyfold/internal/audit/domain"
)

// ChainHasher computes and checks the content hash that links audit entries.
type ChainHasher interface {
	// EntryHash returns the hash over the entry's canonical encoding. The
	// encoding covers every field including PrevEntryHash, so the result
	// changes if any linked predecessor changes.
	EntryHash(entry *domain.AuditEntry) []byte
	// Equal compares two hashes in constant time.
	Equal(a, b []byte) bool
}
