// Package amount converts between raw base-unit integers and their decimal
// renderings.
package amount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest number of fractional digits a token may declare.
const MaxDecimals = 18

// ErrInvalid is returned for strings that are not a non-negative amount that
// fits in 256 bits.
var ErrInvalid = errors.New("invalid amount")

// ParseBase parses a base-unit integer string such as "1500".
func ParseBase(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return v, nil
}

// Parse converts a human decimal such as "1.25" into base units for a token
// with the given decimals. Fractions finer than the token allows are rejected.
func Parse(raw string, decimals uint8) (*uint256.Int, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d decimals", ErrInvalid, decimals)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative", ErrInvalid)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d fractional digits", ErrInvalid, decimals)
	}
	v, err := uint256.FromDecimal(scaled.BigInt().String())
	if err != nil {
		return nil, fmt.Errorf("%w: out of range", ErrInvalid)
	}
	return v, nil
}

// Format renders base units as a decimal string, dropping trailing zeros.
func Format(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.RequireFromString(v.Dec()).Shift(-int32(decimals)).String()
}
