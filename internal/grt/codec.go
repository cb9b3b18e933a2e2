// Package grt converts between integer GRT wei and human-scale decimal GRT
// without floating-point error.
package grt

import (
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional decimal places of the GRT token.
const Decimals = 18

// divisionPrecision is the number of fractional digits carried by codec
// divisions. 78 digits fit the whole 256-bit integer range.
const divisionPrecision = 78

// weiFactor = 10^18.
var weiFactor = decimal.New(1, Decimals)

// Rounding selects the rule used when quantizing to wei resolution.
type Rounding int

const (
	// RoundHalfEven is banker's rounding and the codec default.
	RoundHalfEven Rounding = iota
	// RoundDown truncates toward zero.
	RoundDown
	// RoundUp rounds away from zero.
	RoundUp
	// RoundHalfUp rounds half away from zero.
	RoundHalfUp
)

// precMu serializes access to shopspring's package-global DivisionPrecision
// so concurrent or nested codec calls never observe a foreign precision.
var precMu sync.Mutex

// withPrecision runs f with DivisionPrecision set to divisionPrecision and
// restores the prior value on every exit path, including panics.
func withPrecision(f func()) {
	precMu.Lock()
	prev := decimal.DivisionPrecision
	decimal.DivisionPrecision = divisionPrecision
	defer func() {
		decimal.DivisionPrecision = prev
		precMu.Unlock()
	}()
	f()
}

// FromWei converts an integer wei value to decimal GRT (wei / 10^18).
//
// The sign of the input passes through untouched; rejecting negative token
// amounts is the caller's responsibility.
func FromWei(wei *big.Int) decimal.Decimal {
	var out decimal.Decimal
	withPrecision(func() {
		out = decimal.NewFromBigInt(wei, 0).Div(weiFactor)
	})
	return out
}

// ToWei converts a decimal GRT value to integer wei, quantizing to wei
// resolution (10^-18) under the given rounding rule before scaling.
func ToWei(amount decimal.Decimal, rounding Rounding) *big.Int {
	var out *big.Int
	withPrecision(func() {
		out = quantize(amount, rounding).Shift(Decimals).BigInt()
	})
	return out
}

// ToWeiFloat converts a float64 GRT value to integer wei. Prefer ToWei with
// a decimal input where the caller has one; this exists for engine output,
// which is float64.
func ToWeiFloat(amount float64, rounding Rounding) *big.Int {
	return ToWei(decimal.NewFromFloat(amount), rounding)
}

func quantize(d decimal.Decimal, rounding Rounding) decimal.Decimal {
	switch rounding {
	case RoundDown:
		return d.RoundDown(Decimals)
	case RoundUp:
		return d.RoundUp(Decimals)
	case RoundHalfUp:
		return d.Round(Decimals)
	default:
		return d.RoundBank(Decimals)
	}
}
