package gateway

import "github.com/shopspring/decimal"

var minorFactor = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit decimal amount to the gateway's integer
// minor unit (e.g. 1000.50 NGN -> 100050 kobo).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorFactor).Round(0).IntPart()
}

// FromMinorUnits converts the gateway's integer minor unit back to a
// major-unit decimal (e.g. 100050 kobo -> 1000.50 NGN).
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorFactor)
}
