package domain

import (
	"encoding/hex"
	"strings"
)

// envelopeDelimiter separates the three hex-encoded envelope components.
const envelopeDelimiter = ":"

// Envelope is the self-describing output of one encryption:
// a fresh random nonce, the encrypted bytes, and the integrity tag.
// Decryption requires no side channel; everything travels with the envelope.
type Envelope struct {
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Encode serializes the envelope into its stable persisted form:
// three hex-encoded components joined by ":" (nonce:ciphertext:tag).
func (e Envelope) Encode() string {
	var b strings.Builder
	b.Grow(hex.EncodedLen(len(e.Nonce)+len(e.Ciphertext)+len(e.Tag)) + 2)
	b.WriteString(hex.EncodeToString(e.Nonce))
	b.WriteString(envelopeDelimiter)
	b.WriteString(hex.EncodeToString(e.Ciphertext))
	b.WriteString(envelopeDelimiter)
	b.WriteString(hex.EncodeToString(e.Tag))
	return b.String()
}

// ParseEnvelope parses the persisted envelope form, rejecting malformed
// structure before any cryptographic work: wrong field count, non-hex
// components, or a nonce/tag of the wrong decoded byte length all return
// ErrMalformedEnvelope. The ciphertext component may be empty (an empty
// plaintext still carries a tag).
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, envelopeDelimiter)
	if len(parts) != 3 {
		return Envelope{}, ErrMalformedEnvelope
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return Envelope{}, ErrMalformedEnvelope
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return Envelope{}, ErrMalformedEnvelope
	}

	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != TagSize {
		return Envelope{}, ErrMalformedEnvelope
	}

	return Envelope{Nonce: nonce, Ciphertext: ciphertext, Tag: tag}, nil
}
