package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MarginType represents how the retail margin is added on top of the wholesale price
type MarginType string

const (
	MarginTypePercentage MarginType = "percentage"
	MarginTypeFixed      MarginType = "fixed"
)

// RoundingType represents the rounding applied after the margin
type RoundingType string

const (
	RoundingNone      RoundingType = "none"
	RoundingUpTo      RoundingType = "up_to"
	RoundingNearestTo RoundingType = "nearest_to"
)

// Rounding rule presets accepted from configuration
const (
	RoundingRuleNone        = "none"
	RoundingRuleUp1000      = "up_1000"
	RoundingRuleUp5000      = "up_5000"
	RoundingRuleNearest1000 = "nearest_1000"
	RoundingRuleCustom      = "custom"
)

// MarginPolicy represents the margin applied to every wholesale price.
// The sign of Value is not validated.
type MarginPolicy struct {
	Type  MarginType
	Value decimal.Decimal
}

// RoundingPolicy represents the rounding applied to a price after the margin.
// An Increment that is zero or negative leaves prices untouched.
type RoundingPolicy struct {
	Type      RoundingType
	Increment decimal.Decimal
}

// PricingPolicy bundles the explicit settings the derivation pipeline needs
type PricingPolicy struct {
	Margin   MarginPolicy
	Rounding RoundingPolicy
}

// Validate ensures the policy types are known
func (p PricingPolicy) Validate() error {
	switch p.Margin.Type {
	case MarginTypePercentage, MarginTypeFixed:
	default:
		return errors.New("margin type must be percentage or fixed")
	}

	switch p.Rounding.Type {
	case RoundingNone, RoundingUpTo, RoundingNearestTo:
	default:
		return errors.New("rounding type must be none, up_to or nearest_to")
	}

	return nil
}

// ParseMarginType maps a configured margin type to MarginType.
// Unknown values fall back to percentage and are reported as a ConfigError.
func ParseMarginType(raw string) (MarginType, error) {
	switch MarginType(strings.ToLower(strings.TrimSpace(raw))) {
	case MarginTypePercentage, "":
		return MarginTypePercentage, nil
	case MarginTypeFixed:
		return MarginTypeFixed, nil
	}
	return MarginTypePercentage, &ConfigError{Field: "margin type", Value: raw, Reason: "expected percentage or fixed"}
}

// ParseRoundingRule maps a configured rounding preset to a RoundingPolicy.
// Besides the named presets it accepts "up_<n>" and "nearest_<n>" with any positive n.
// Unknown rules fall back to no rounding and are reported as a ConfigError.
func ParseRoundingRule(rule string, custom decimal.Decimal) (RoundingPolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(rule))

	switch normalized {
	case RoundingRuleNone, "":
		return RoundingPolicy{Type: RoundingNone}, nil
	case RoundingRuleCustom:
		if !custom.IsPositive() {
			return RoundingPolicy{Type: RoundingNone}, &ConfigError{Field: "custom rounding", Value: custom.String(), Reason: "must be greater than zero"}
		}
		return RoundingPolicy{Type: RoundingUpTo, Increment: custom}, nil
	}

	if n, ok := strings.CutPrefix(normalized, "up_"); ok {
		if inc, err := decimal.NewFromString(n); err == nil && inc.IsPositive() {
			return RoundingPolicy{Type: RoundingUpTo, Increment: inc}, nil
		}
	}
	if n, ok := strings.CutPrefix(normalized, "nearest_"); ok {
		if inc, err := decimal.NewFromString(n); err == nil && inc.IsPositive() {
			return RoundingPolicy{Type: RoundingNearestTo, Increment: inc}, nil
		}
	}

	return RoundingPolicy{Type: RoundingNone}, &ConfigError{Field: "rounding rule", Value: rule, Reason: "unknown preset"}
}
