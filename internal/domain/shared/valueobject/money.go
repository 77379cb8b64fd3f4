package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of decimal digits of the minor unit (cents).
const MinorDigits = 2

// Money is an immutable amount held in integer minor units.
// All arithmetic happens on the int64; decimal is used only to parse and
// format at the boundary (HTTP, logs, receipts).
type Money struct {
	minor int64
}

// Zero is the zero amount
var Zero = Money{}

// Cents creates Money from minor units
func Cents(minor int64) Money {
	return Money{minor: minor}
}

// NewMoneyFromDecimal converts a major-unit decimal into Money.
// Returns an error when the value carries sub-cent precision.
func NewMoneyFromDecimal(d decimal.Decimal) (Money, error) {
	shifted := d.Shift(MinorDigits)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Money{}, fmt.Errorf("amount %s has more than %d decimal places", d.String(), MinorDigits)
	}
	return Money{minor: shifted.IntPart()}, nil
}

// ParseMoney parses a major-unit string such as "4.20"
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoneyFromDecimal(d)
}

// MustParseMoney is ParseMoney for constants and tests
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return m.minor
}

// Decimal returns the amount in major units
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -MinorDigits)
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.minor < 0
}

// Add returns m + other
func (m Money) Add(other Money) Money {
	return Money{minor: m.minor + other.minor}
}

// Sub returns m - other
func (m Money) Sub(other Money) Money {
	return Money{minor: m.minor - other.minor}
}

// Times returns m multiplied by a quantity
func (m Money) Times(qty int) Money {
	return Money{minor: m.minor * int64(qty)}
}

// Negate returns -m
func (m Money) Negate() Money {
	return Money{minor: -m.minor}
}

// Abs returns |m|
func (m Money) Abs() Money {
	if m.minor < 0 {
		return m.Negate()
	}
	return m
}

// Equals reports whether both amounts are equal
func (m Money) Equals(other Money) bool {
	return m.minor == other.minor
}

// LessThan reports m < other
func (m Money) LessThan(other Money) bool {
	return m.minor < other.minor
}

// GreaterThan reports m > other
func (m Money) GreaterThan(other Money) bool {
	return m.minor > other.minor
}

// Within reports whether |m - other| <= tolerance
func (m Money) Within(other, tolerance Money) bool {
	return m.Sub(other).Abs().minor <= tolerance.Abs().minor
}

// Max returns the larger of two amounts
func Max(a, b Money) Money {
	if a.minor >= b.minor {
		return a
	}
	return b
}

// Sum adds all amounts
func Sum(amounts ...Money) Money {
	var total int64
	for _, a := range amounts {
		total += a.minor
	}
	return Money{minor: total}
}

// String formats the amount in major units with two decimals
func (m Money) String() string {
	return m.Decimal().StringFixed(MinorDigits)
}

// MarshalJSON encodes the amount as a major-unit string ("4.20")
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a major-unit string or number
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Not a string: accept a bare JSON number
		var d decimal.Decimal
		if err := d.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("invalid money value: %w", err)
		}
		parsed, err := NewMoneyFromDecimal(d)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as minor units
func (m Money) Value() (driver.Value, error) {
	return m.minor, nil
}

// Scan reads minor units from the database
func (m *Money) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = Zero
	case int64:
		*m = Money{minor: v}
	case int32:
		*m = Money{minor: int64(v)}
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("cannot scan money from %q: %w", string(v), err)
		}
		*m = Money{minor: d.IntPart()}
	default:
		return errors.New("unsupported type for money scan")
	}
	return nil
}
