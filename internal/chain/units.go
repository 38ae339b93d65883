package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the fixed-point scale of JPYC and of every native currency we support.
const TokenDecimals = 18

var (
	ErrEmptyAmount     = errors.New("amount is empty")
	ErrMalformedAmount = errors.New("amount is not a decimal number")
	ErrTooPrecise      = errors.New("amount has more fractional digits than the token supports")
)

// ParseUnits converts a decimal string such as "12.5" into the token's smallest unit.
// Only plain non-negative decimals are accepted; no signs, exponents or separators.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") {
		return nil, ErrMalformedAmount
	}
	if whole == "" && frac == "" {
		return nil, ErrMalformedAmount
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, ErrMalformedAmount
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooPrecise, len(frac), decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(big.Int), nil
	}

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, ErrMalformedAmount
	}
	return v, nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatUnits renders a raw integer amount with the given decimals, rounded half-up to
// precision fractional digits. Integer arithmetic only, so large balances keep every digit.
func FormatUnits(value *big.Int, decimals uint8, precision int) string {
	if value == nil {
		value = new(big.Int)
	}
	if precision < 0 {
		precision = 0
	}
	if precision > int(decimals) {
		precision = int(decimals)
	}

	neg := value.Sign() < 0
	abs := new(big.Int).Abs(value)

	// Drop the digits below the displayed precision, rounding half-up.
	drop := int64(decimals) - int64(precision)
	if drop > 0 {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(drop), nil)
		half := new(big.Int).Rsh(div, 1)
		abs.Add(abs, half)
		abs.Quo(abs, div)
	}

	s := abs.String()
	if precision > 0 {
		if len(s) <= precision {
			s = strings.Repeat("0", precision-len(s)+1) + s
		}
		s = s[:len(s)-precision] + "." + s[len(s)-precision:]
	}
	if neg && strings.Trim(s, "0.") != "" {
		s = "-" + s
	}
	return s
}
