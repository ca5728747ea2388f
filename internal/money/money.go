package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountTooLarge = errors.New("amount exceeds atomic range")
	ErrBadAmount      = errors.New("amount is not a valid decimal")
)

type Asset struct {
	Symbol   string
	Decimals int32
	Mint     string
}

const (
	USDCDevnetMint = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
)

var assets = map[string]Asset{
	"USDC": {Symbol: "USDC", Decimals: 6, Mint: USDCDevnetMint},
	"SOL":  {Symbol: "SOL", Decimals: 9, Mint: WrappedSOLMint},
}

// Lookup returns the asset for a symbol, falling back to a 6-decimal
// USDC-shaped asset for anything unknown.
func Lookup(symbol string) Asset {
	if asset, ok := assets[symbol]; ok {
		return asset
	}
	return Asset{Symbol: symbol, Decimals: 6, Mint: USDCDevnetMint}
}

// ToAtomic converts a display amount to the asset's smallest unit, flooring
// any fraction below one atomic unit. The whole path is decimal; a value
// like 0.10 at 6 decimals is exactly 100000.
func ToAtomic(amount decimal.Decimal, asset Asset) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	atomic := amount.Shift(asset.Decimals).Floor().BigInt()
	if !atomic.IsInt64() {
		return 0, ErrAmountTooLarge
	}
	return atomic.Int64(), nil
}

// ParseDisplayAmount accepts plain decimals and "$"-prefixed currency
// strings, the two shapes challenge terms and clients produce.
func ParseDisplayAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return decimal.Zero, ErrBadAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrBadAmount
	}
	return d, nil
}

// FormatPrice renders a display price the way challenge payloads carry it:
// a dollar-prefixed decimal string with two minimum places.
func FormatPrice(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
