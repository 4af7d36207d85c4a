// Package address derives deterministic account addresses (program derived
// addresses) for markets, bets and escrow vaults.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"memecoin-prediction-market/internal/domain"
)

const (
	// MaxSeeds is the maximum number of seeds per derivation, bump included.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed in bytes.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedLengthExceeded is returned when a seed is longer than MaxSeedLen.
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	// ErrTooManySeeds is returned when more than MaxSeeds seeds are given.
	ErrTooManySeeds = errors.New("too many seeds")
	// ErrOnCurve is returned when the derived hash is a valid ed25519 point.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when no bump in [0, 255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// CreateProgramAddress computes SHA256(seed_1 | ... | seed_n | programID | "ProgramDerivedAddress").
// Returns ErrOnCurve if the result could have a private key.
func CreateProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return domain.Pubkey{}, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return domain.Pubkey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk domain.Pubkey
	copy(pk[:], h.Sum(nil))

	if IsOnCurve(pk) {
		return domain.Pubkey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return domain.Pubkey{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.Pubkey{}, 0, err
		}
	}
	return domain.Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether pk decodes to a point on edwards25519.
func IsOnCurve(pk domain.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// DefaultProgramID is the program id markets are derived under unless configured otherwise.
var DefaultProgramID = domain.MustParsePubkey("AJrErLEJXotf5ECiEHXqr89Qyn6huDzawT9PW6TmpW9e")

// Seed prefixes.
const (
	SeedMarket = "market"
	SeedBet    = "bet"
	SeedEscrow = "escrow"
)

// ValidateMarketName checks that name can be used as a seed.
func ValidateMarketName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", domain.ErrInvalidName)
	}
	if len(name) > MaxSeedLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrInvalidName, len(name), MaxSeedLen)
	}
	return nil
}

// MarketAddress derives the market account address. Seeds: ["market", name].
func MarketAddress(programID domain.Pubkey, name string) (domain.Pubkey, uint8, error) {
	if err := ValidateMarketName(name); err != nil {
		return domain.Pubkey{}, 0, err
	}
	return FindProgramAddress([][]byte{[]byte(SeedMarket), []byte(name)}, programID)
}

// BetAddress derives the bet account address. Seeds: ["bet", market, user].
func BetAddress(programID, market, user domain.Pubkey) (domain.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedBet), market[:], user[:]}, programID)
}

// EscrowAddress derives the escrow vault address of a market. Seeds: ["escrow", market].
func EscrowAddress(programID, market domain.Pubkey) (domain.Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedEscrow), market[:]}, programID)
}
