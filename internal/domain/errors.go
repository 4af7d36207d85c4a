package domain

import "errors"

// Ledger rule violations. Every request fails with exactly one of these (possibly wrapped).
var (
	ErrDuplicateMarket      = errors.New("market already exists")
	ErrInvalidExpiry        = errors.New("expiry must be in the future")
	ErrAmountOverflow       = errors.New("amount overflow")
	ErrMarketExpired        = errors.New("market expired")
	ErrMarketAlreadySettled = errors.New("market already settled")
	ErrZeroAmount           = errors.New("amount must be greater than zero")
	ErrDuplicateBet         = errors.New("bet already placed on this market")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotYetExpired        = errors.New("market has not expired yet")
	ErrAlreadySettled       = errors.New("already settled")
	ErrMarketNotSettled     = errors.New("market not settled")
	ErrAlreadyClaimed       = errors.New("winnings already claimed")
	ErrNotAWinner           = errors.New("not a winner")
	ErrNoWinningPool        = errors.New("no stake on the winning side")

	// ErrTransfer wraps failed token movements between wallets and escrow.
	ErrTransfer = errors.New("token transfer failed")

	// ErrInvalidName is returned for names that cannot seed an address (empty or > 32 bytes).
	ErrInvalidName = errors.New("invalid market name")

	ErrMarketNotFound = errors.New("market not found")
	ErrBetNotFound    = errors.New("bet not found")
)

// ErrorCode is the stable numeric identifier of a ledger error, numbered like
// Anchor custom program errors.
type ErrorCode uint32

const (
	CodeUnknown ErrorCode = 0

	CodeDuplicateMarket      ErrorCode = 6000
	CodeInvalidExpiry        ErrorCode = 6001
	CodeAmountOverflow       ErrorCode = 6002
	CodeMarketExpired        ErrorCode = 6003
	CodeMarketAlreadySettled ErrorCode = 6004
	CodeZeroAmount           ErrorCode = 6005
	CodeDuplicateBet         ErrorCode = 6006
	CodeUnauthorized         ErrorCode = 6007
	CodeNotYetExpired        ErrorCode = 6008
	CodeAlreadySettled       ErrorCode = 6009
	CodeMarketNotSettled     ErrorCode = 6010
	CodeAlreadyClaimed       ErrorCode = 6011
	CodeNotAWinner           ErrorCode = 6012
	CodeNoWinningPool        ErrorCode = 6013
	CodeTransfer             ErrorCode = 6014
	CodeInvalidName          ErrorCode = 6015
	CodeMarketNotFound       ErrorCode = 6016
	CodeBetNotFound          ErrorCode = 6017
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrDuplicateMarket, CodeDuplicateMarket},
	{ErrInvalidExpiry, CodeInvalidExpiry},
	{ErrAmountOverflow, CodeAmountOverflow},
	{ErrMarketExpired, CodeMarketExpired},
	{ErrMarketAlreadySettled, CodeMarketAlreadySettled},
	{ErrZeroAmount, CodeZeroAmount},
	{ErrDuplicateBet, CodeDuplicateBet},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrNotYetExpired, CodeNotYetExpired},
	{ErrAlreadySettled, CodeAlreadySettled},
	{ErrMarketNotSettled, CodeMarketNotSettled},
	{ErrAlreadyClaimed, CodeAlreadyClaimed},
	{ErrNotAWinner, CodeNotAWinner},
	{ErrNoWinningPool, CodeNoWinningPool},
	{ErrTransfer, CodeTransfer},
	{ErrInvalidName, CodeInvalidName},
	{ErrMarketNotFound, CodeMarketNotFound},
	{ErrBetNotFound, CodeBetNotFound},
}

// CodeOf returns the code of the first ledger error found in err's chain,
// or CodeUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// Name returns the short identifier of the code (e.g. "MarketExpired").
func (c ErrorCode) Name() string {
	switch c {
	case CodeDuplicateMarket:
		return "DuplicateMarket"
	case CodeInvalidExpiry:
		return "InvalidExpiry"
	case CodeAmountOverflow:
		return "AmountOverflow"
	case CodeMarketExpired:
		return "MarketExpired"
	case CodeMarketAlreadySettled:
		return "MarketAlreadySettled"
	case CodeZeroAmount:
		return "ZeroAmount"
	case CodeDuplicateBet:
		return "DuplicateBet"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeNotYetExpired:
		return "NotYetExpired"
	case CodeAlreadySettled:
		return "AlreadySettled"
	case CodeMarketNotSettled:
		return "MarketNotSettled"
	case CodeAlreadyClaimed:
		return "AlreadyClaimed"
	case CodeNotAWinner:
		return "NotAWinner"
	case CodeNoWinningPool:
		return "NoWinningPool"
	case CodeTransfer:
		return "TransferError"
	case CodeInvalidName:
		return "InvalidName"
	case CodeMarketNotFound:
		return "MarketNotFound"
	case CodeBetNotFound:
		return "BetNotFound"
	default:
		return "Unknown"
	}
}
