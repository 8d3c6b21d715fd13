// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer minor units (two decimal places) so that every
// balance delta is exact.
package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units.
type Money struct {
	Minor int64
}

// MinorUnits is the number of decimal places carried by Money.
const MinorUnits = 2

var maxMinor = decimal.NewFromInt(math.MaxInt64)

func NewMoney(minor int64) Money {
	return Money{Minor: minor}
}

func (m Money) Add(o Money) Money { return Money{Minor: m.Minor + o.Minor} }

// AddChecked is Add that fails instead of wrapping past math.MaxInt64 minor units.
func (m Money) AddChecked(o Money) (Money, error) {
	if o.Minor > 0 && m.Minor > math.MaxInt64-o.Minor {
		return Money{}, Errorf(KindInvalidAmount, "adding %s to %s overflows", o, m)
	}
	if o.Minor < 0 && m.Minor < math.MinInt64-o.Minor {
		return Money{}, Errorf(KindInvalidAmount, "adding %s to %s overflows", o, m)
	}
	return Money{Minor: m.Minor + o.Minor}, nil
}

func (m Money) Sub(o Money) Money { return Money{Minor: m.Minor - o.Minor} }
func (m Money) Less(o Money) bool { return m.Minor < o.Minor }
func (m Money) IsZero() bool { return m.Minor == 0 }
func (m Money) IsNegative() bool { return m.Minor < 0 }
func (m Money) IsPositive() bool { return m.Minor > 0 }
func (m Money) Max(o Money) Money {
	if m.Minor >= o.Minor {
		return m
	}
	return o
}

// Validate rejects non-positive amounts.
func (m Money) Validate() error {
	if m.Minor <= 0 {
		return Errorf(KindInvalidAmount, "amount must be positive")
	}
	return nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Minor, -MinorUnits)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MinorUnits)
}

// MarshalJSON encodes Money as its integer minor-unit count.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Minor)
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &m.Minor)
}

// ParseAmount converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. The
// result is always positive; signs, zero and malformed input are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("12,34")  -> 1234
//	ParseAmount("1.005")  -> 101
func ParseAmount(s string) (Money, error) {
	m, err := parseMinor(s)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// ParseOptionalAmount is ParseAmount that also accepts an empty string or
// zero, both yielding zero.
func ParseOptionalAmount(s string) (Money, error) {
	if strings.TrimSpace(s) == "" {
		return Money{}, nil
	}
	return parseMinor(s)
}

func parseMinor(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, Errorf(KindInvalidAmount, "amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, Errorf(KindInvalidAmount, "amount must be an unsigned number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, Errorf(KindInvalidAmount, "invalid amount %q", s)
	}
	minor := d.Round(MinorUnits).Shift(MinorUnits)
	if minor.GreaterThan(maxMinor) {
		return Money{}, Errorf(KindInvalidAmount, "amount %q is too large", s)
	}
	return Money{Minor: minor.IntPart()}, nil
}
