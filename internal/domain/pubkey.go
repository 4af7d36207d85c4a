package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length of an account address or identity in bytes.
const PubkeySize = 32

// Pubkey is a 32-byte account address or caller identity.
// Text form is base58 (Bitcoin alphabet), as used across Solana tooling.
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(decoded) != PubkeySize {
		return pk, fmt.Errorf("decode pubkey %q: got %d bytes, want %d", s, len(decoded), PubkeySize)
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for constants. Panics on invalid input.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 representation.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether p is the all-zero key.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Bytes returns a copy of the key bytes.
func (p Pubkey) Bytes() []byte {
	b := make([]byte, PubkeySize)
	copy(b, p[:])
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
