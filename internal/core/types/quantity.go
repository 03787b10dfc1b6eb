// Package types provides common value types.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
//
// Stored as BIGINT (scaled integer) so batch arithmetic never drifts:
// the sum of debits always equals the requested out-quantity exactly.
type Quantity int64

const (
	QuantityScale    int64 = 10_000
	quantityDecimals int32 = 4
)

// NewQuantityFromInt64Scaled wraps an already scaled value.
func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

// NewQuantity creates a Quantity from a whole number of units.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// ErrQuantityOutOfRange is returned when a value does not fit the scaled int64 range.
var ErrQuantityOutOfRange = errors.New("quantity out of range")

var (
	minScaled = decimal.NewFromInt(math.MinInt64)
	maxScaled = decimal.NewFromInt(math.MaxInt64)
)

// NewQuantityFromDecimal rounds d to 4 decimal places.
// Values outside the representable range yield ErrQuantityOutOfRange.
func NewQuantityFromDecimal(d decimal.Decimal) (Quantity, error) {
	scaled := d.Shift(quantityDecimals).Round(0)
	if scaled.Cmp(minScaled) < 0 || scaled.Cmp(maxScaled) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrQuantityOutOfRange, d.String())
	}
	return Quantity(scaled.IntPart()), nil
}

// ParseQuantity parses a decimal string ("12", "0.25", "-3.1415").
// Digits beyond the 4th fractional place are rounded half away from zero.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return NewQuantityFromDecimal(d)
}

// MustQuantity parses s and panics on error. Use only for constants and tests.
func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -quantityDecimals) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

// Add returns q+o and false when the sum overflows.
func (q Quantity) Add(o Quantity) (Quantity, bool) {
	sum := q + o
	if (o > 0 && sum < q) || (o < 0 && sum > q) {
		return 0, false
	}
	return sum, true
}

// Min returns the smaller of q and o.
func (q Quantity) Min(o Quantity) Quantity {
	if o < q {
		return o
	}
	return q
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityDecimals)
}

// MarshalJSON encodes Quantity as JSON number (not string), preserving 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	s := string(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}

	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
