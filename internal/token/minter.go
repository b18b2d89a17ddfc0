package token

import (
	"strings"

	"github.com/google/uuid"
)

// PayloadPrefix is the deep-link scheme and namespace recognised at the
// door. Generation produces it and validation requires it; anything not
// starting with this prefix is foreign.
const PayloadPrefix = "qrm://t/"

// TokenLength is the number of separator-free hex characters kept from the
// underlying UUID.
const TokenLength = 24

// Minter mints opaque ticket tokens and their deep-link payloads. Uniqueness
// relies on token entropy (96 bits kept from a v4 UUID), not on a store
// lookup.
type Minter struct{}

func NewMinter() *Minter {
	return &Minter{}
}

// Mint returns a 24-character token drawn from a random UUID with the
// separators stripped.
func (m *Minter) Mint() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:TokenLength]
}

// BuildPayload builds the deep-link string encoded into QR images.
func (m *Minter) BuildPayload(token string) string {
	return PayloadPrefix + token
}

// MintReference returns a short human-readable ticket label: the last 8
// characters of a random UUID. References are display-only and independent
// of tokens.
func (m *Minter) MintReference() string {
	s := uuid.New().String()
	return s[len(s)-8:]
}

// HasPayloadPrefix reports whether raw looks like a payload minted by this
// system.
func HasPayloadPrefix(raw string) bool {
	return strings.HasPrefix(raw, PayloadPrefix)
}
