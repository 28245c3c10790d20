package pricecalc

import (
	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ApplyMargin adds the retail margin to a wholesale price.
// Prices at or below zero stay at zero.
func ApplyMargin(price decimal.Decimal, policy domain.MarginPolicy) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}

	switch policy.Type {
	case domain.MarginTypeFixed:
		return price.Add(policy.Value)
	default:
		return price.Add(price.Mul(policy.Value).Div(hundred))
	}
}

// ApplyRounding rounds a price to the policy increment
func ApplyRounding(price decimal.Decimal, policy domain.RoundingPolicy) decimal.Decimal {
	n := policy.Increment
	if !n.IsPositive() {
		return price
	}

	switch policy.Type {
	case domain.RoundingUpTo:
		return price.Div(n).Ceil().Mul(n)
	case domain.RoundingNearestTo:
		// Round is half away from zero
		return price.Div(n).Round(0).Mul(n)
	default:
		return price
	}
}

// Price runs a normalized wholesale price through margin and then rounding
func Price(base decimal.Decimal, policy domain.PricingPolicy) decimal.Decimal {
	return ApplyRounding(ApplyMargin(base, policy.Margin), policy.Rounding)
}
