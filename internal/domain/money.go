package domain

import "github.com/shopspring/decimal"

const MoneyPlaces = 2

// RoundMoney rounds to the fixed two decimal places balances are kept in.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func Money(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(RoundMoney(d))
}
