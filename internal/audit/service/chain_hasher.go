package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/keyfold/keyfold/internal/audit/domain"
)

type chainHasher struct{}

// NewChainHasher creates a SHA-256 based hasher for the audit chain.
func NewChainHasher() ChainHasher {
	return &chainHasher{}
}

// canonicalize converts an entry to its canonical byte representation.
// Format: sequence_index || actor || action || subject_key || before_digest ||
// after_digest || reason || created_at || prev_entry_hash
// Uses length-prefixed encoding for variable-length fields to prevent ambiguity.
func (c *chainHasher) canonicalize(entry *domain.AuditEntry) []byte {
	// Typical entry is well under 512 bytes
	buf := make([]byte, 0, 512)

	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, entry.SequenceIndex)
	buf = append(buf, seq...)

	buf = appendLengthPrefixed(buf, []byte(entry.Actor))
	buf = appendLengthPrefixed(buf, []byte(string(entry.Action)))
	buf = appendLengthPrefixed(buf, []byte(entry.SubjectKey))
	buf = appendLengthPrefixed(buf, []byte(entry.BeforeDigest))
	buf = appendLengthPrefixed(buf, []byte(entry.AfterDigest))
	buf = appendLengthPrefixed(buf, []byte(entry.Reason))

	// Timestamps are canonicalized as UTC Unix nanoseconds so the encoding is
	// independent of the wall-clock location the entry was created in.
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(entry.CreatedAt.UTC().UnixNano()))
	buf = append(buf, ts...)

	buf = appendLengthPrefixed(buf, entry.PrevEntryHash)

	return buf
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
// Panics if data length exceeds uint32 max to prevent integer overflow.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	dataLen := len(data)
	if dataLen > 0xFFFFFFFF {
		panic("data length exceeds uint32 max")
	}
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(dataLen))
	buf = append(buf, length...)
	buf = append(buf, data...)
	return buf
}

// EntryHash computes the SHA-256 hash over the entry's canonical encoding.
func (c *chainHasher) EntryHash(entry *domain.AuditEntry) []byte {
	sum := sha256.Sum256(c.canonicalize(entry))
	return sum[:]
}

// Equal compares two hashes in constant time.
func (c *chainHasher) Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}
