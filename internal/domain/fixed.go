package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// FormatFixed renders v as a decimal with the given number of fractional
// digits, trimming trailing zeros: FormatFixed(1904761904, 9) = "1.904761904".
func FormatFixed(v *uint256.Int, decimals int) string {
	s := v.Dec()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ParseFixed is the inverse of FormatFixed. Extra fractional digits are
// rejected rather than rounded.
func ParseFixed(s string, decimals int) (*uint256.Int, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("parse fixed %q: empty", s)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("parse fixed %q: more than %d decimals", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("parse fixed %q: %w", s, err)
	}
	return v, nil
}
