// Package account encodes market and bet records in the on-chain account layout:
// an 8-byte discriminator followed by little-endian fields.
//
// Market layout: disc(8) | name(u32 len + bytes) | creator(32) | expiry(i64) |
// yes(u64) | no(u64) | settled(u8) | outcome(u8) | bump(u8) | created_at(i64)
//
// Bet layout: disc(8) | market(32) | user(32) | amount(u64) | prediction(u8) |
// claimed(u8) | bump(u8) | placed_at(i64) | claimed_at(i64)
//
// Token account layout: disc(8) | kind(u8) | amount(u64)
package account

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"memecoin-prediction-market/internal/domain"
)

// ErrInvalidAccountData is returned when bytes do not decode to the expected account.
var ErrInvalidAccountData = errors.New("invalid account data")

// DiscriminatorSize is the length of the account type prefix.
const DiscriminatorSize = 8

// maxNameLen bounds the decoded name length; names are address seeds.
const maxNameLen = 32

var (
	// MarketDiscriminator prefixes every encoded market.
	MarketDiscriminator = discriminator("Market")
	// BetDiscriminator prefixes every encoded bet.
	BetDiscriminator = discriminator("Bet")
	// TokenAccountDiscriminator prefixes every encoded token balance.
	TokenAccountDiscriminator = discriminator("TokenAccount")
)

// discriminator returns sha256("account:<name>")[:8].
func discriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// EncodeMarket serializes m.
func EncodeMarket(m *domain.Market) ([]byte, error) {
	if len(m.Name) > maxNameLen {
		return nil, fmt.Errorf("encode market: %w", domain.ErrInvalidName)
	}

	buf := make([]byte, 0, DiscriminatorSize+4+len(m.Name)+domain.PubkeySize+8*4+3)
	buf = append(buf, MarketDiscriminator[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Name)))
	buf = append(buf, m.Name...)
	buf = append(buf, m.Creator[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.ExpiryTimestamp))
	buf = binary.LittleEndian.AppendUint64(buf, m.YesAmount)
	buf = binary.LittleEndian.AppendUint64(buf, m.NoAmount)
	buf = append(buf, boolByte(m.Settled), boolByte(m.Outcome), m.Bump)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.CreatedAt))
	return buf, nil
}

// DecodeMarket parses data produced by EncodeMarket. The address is not part
// of the account data; callers set it from the key.
func DecodeMarket(data []byte) (*domain.Market, error) {
	r := reader{data: data}
	if err := r.expectDiscriminator(MarketDiscriminator); err != nil {
		return nil, err
	}

	var m domain.Market
	nameLen := r.u32()
	if nameLen > maxNameLen {
		return nil, fmt.Errorf("%w: name length %d", ErrInvalidAccountData, nameLen)
	}
	m.Name = string(r.bytes(int(nameLen)))
	m.Creator = r.pubkey()
	m.ExpiryTimestamp = int64(r.u64())
	m.YesAmount = r.u64()
	m.NoAmount = r.u64()
	m.Settled = r.bool()
	m.Outcome = r.bool()
	m.Bump = r.u8()
	m.CreatedAt = int64(r.u64())

	if err := r.finish(); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeBet serializes b.
func EncodeBet(b *domain.Bet) []byte {
	buf := make([]byte, 0, DiscriminatorSize+2*domain.PubkeySize+8*3+3)
	buf = append(buf, BetDiscriminator[:]...)
	buf = append(buf, b.Market[:]...)
	buf = append(buf, b.User[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, b.Amount)
	buf = append(buf, boolByte(b.Prediction), boolByte(b.Claimed), b.Bump)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.PlacedAt))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.ClaimedAt))
	return buf
}

// DecodeBet parses data produced by EncodeBet.
func DecodeBet(data []byte) (*domain.Bet, error) {
	r := reader{data: data}
	if err := r.expectDiscriminator(BetDiscriminator); err != nil {
		return nil, err
	}

	var b domain.Bet
	b.Market = r.pubkey()
	b.User = r.pubkey()
	b.Amount = r.u64()
	b.Prediction = r.bool()
	b.Claimed = r.bool()
	b.Bump = r.u8()
	b.PlacedAt = int64(r.u64())
	b.ClaimedAt = int64(r.u64())

	if err := r.finish(); err != nil {
		return nil, err
	}
	return &b, nil
}

// EncodeTokenAccount serializes a.
func EncodeTokenAccount(a *domain.TokenAccount) []byte {
	buf := make([]byte, 0, DiscriminatorSize+1+8)
	buf = append(buf, TokenAccountDiscriminator[:]...)
	buf = append(buf, byte(a.Kind))
	return binary.LittleEndian.AppendUint64(buf, a.Amount)
}

// DecodeTokenAccount parses data produced by EncodeTokenAccount.
func DecodeTokenAccount(data []byte) (*domain.TokenAccount, error) {
	r := reader{data: data}
	if err := r.expectDiscriminator(TokenAccountDiscriminator); err != nil {
		return nil, err
	}

	var a domain.TokenAccount
	a.Kind = domain.AccountKind(r.u8())
	a.Amount = r.u64()

	if err := r.finish(); err != nil {
		return nil, err
	}
	if !a.Kind.IsValid() {
		return nil, fmt.Errorf("%w: account kind %d", ErrInvalidAccountData, a.Kind)
	}
	return &a, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// reader is a sticky-error cursor over account bytes.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) expectDiscriminator(want [DiscriminatorSize]byte) error {
	got := r.bytes(DiscriminatorSize)
	if r.err != nil {
		return r.err
	}
	if !bytes.Equal(got, want[:]) {
		return fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccountData)
	}
	return nil
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated at offset %d", ErrInvalidAccountData, r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	v := r.u8()
	if r.err == nil && v > 1 {
		r.err = fmt.Errorf("%w: invalid bool byte %d at offset %d", ErrInvalidAccountData, v, r.off-1)
	}
	return v == 1
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) pubkey() domain.Pubkey {
	var pk domain.Pubkey
	copy(pk[:], r.bytes(domain.PubkeySize))
	return pk
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidAccountData, len(r.data)-r.off)
	}
	return nil
}
