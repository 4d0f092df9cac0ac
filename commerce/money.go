package commerce

import (
	"github.com/shopspring/decimal"
)

// Money is an amount in the store currency. It always renders with two
// fractional digits, e.g. "40.00".
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d.Round(2)}
}

func (m Money) String() string {
	return m.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(2) + `"`), nil
}
