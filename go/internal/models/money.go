package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is a fixed-point amount with two fraction digits.
type Cents int64

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseCents parses a non-negative decimal string such as "0.01" or "12".
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	// plain digits only: no sign, exponent or dangling point
	if strings.ContainsAny(s, "+-eE") || strings.HasSuffix(s, ".") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("invalid amount %q: expected at most 2 fraction digits", s)
	}
	cents := d.Shift(2)
	if cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("invalid amount %q: out of range", s)
	}
	return Cents(cents.IntPart()), nil
}

// MustParseCents is ParseCents for constants and tests.
func MustParseCents(s string) Cents {
	c, err := ParseCents(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Add returns c + n*step.
func (c Cents) Add(step Cents, n int) Cents {
	return c + step*Cents(n)
}

// Decimal returns the amount in whole currency units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Cents) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// accept bare numbers too
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid amount: %s", data)
		}
		s = n.String()
	}
	v, err := ParseCents(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
