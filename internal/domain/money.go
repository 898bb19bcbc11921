package domain

import (
	"github.com/shopspring/decimal"
)

// Money is a decimal amount that travels as a JSON number, matching the
// numeric columns of the remote store. It accepts quoted input as well.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money { return Money{Decimal: d} }

// MoneyFromInt is shorthand for whole amounts.
func MoneyFromInt(v int64) Money { return Money{Decimal: decimal.NewFromInt(v)} }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Decimal.UnmarshalJSON(b)
}
