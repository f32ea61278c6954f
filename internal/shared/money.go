package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of minor-unit digits kept for amounts.
const MoneyScale int32 = 2

// RoundMoney rounds half-to-even to the currency minor unit.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyScale)
}
