package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an optional decimal amount. The zero value is unset, which is
// distinct from an amount explicitly set to zero.
type Amount struct {
	value decimal.Decimal
	set   bool
}

// Some returns a set amount
func Some(d decimal.Decimal) Amount {
	return Amount{value: d, set: true}
}

// None returns an unset amount
func None() Amount {
	return Amount{}
}

// ParseAmount parses a decimal string. Empty input yields an unset amount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return None(), fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Some(d), nil
}

// MustAmount is ParseAmount that panics on malformed input
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) IsSet() bool {
	return a.set
}

// Value returns the amount and whether it was set
func (a Amount) Value() (decimal.Decimal, bool) {
	return a.value, a.set
}

// OrZero returns the amount, or zero when unset
func (a Amount) OrZero() decimal.Decimal {
	if !a.set {
		return decimal.Zero
	}
	return a.value
}

// IsPositive reports whether the amount is set and greater than zero
func (a Amount) IsPositive() bool {
	return a.set && a.value.IsPositive()
}

// String renders the amount, or "" when unset
func (a Amount) String() string {
	if !a.set {
		return ""
	}
	return a.value.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
