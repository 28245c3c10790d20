package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromoGroupLabel is the group label written while a promo is active
const PromoGroupLabel = "Promo"

// PriceComponent is one derived retail price with its provenance
type PriceComponent struct {
	Base          decimal.Decimal `json:"base"`
	MarginApplied decimal.Decimal `json:"margin_amount"`
	Final         decimal.Decimal `json:"final"`
	Currency      string          `json:"currency"`
}

// PromoPrice is the derived price of an active promo
type PromoPrice struct {
	TermYears       int                 `json:"term_years"`
	BasePrice       decimal.Decimal     `json:"base_price"`
	FinalPrice      decimal.Decimal     `json:"final_price"`
	RenewBasePrice  decimal.NullDecimal `json:"renew_base_price"`
	RenewFinalPrice decimal.NullDecimal `json:"renew_final_price"`
	StartDate       time.Time           `json:"start_date"`
	EndDate         time.Time           `json:"end_date"`
}

// DerivedPriceSet represents the retail prices computed for one catalog key
type DerivedPriceSet struct {
	Extension   string          `json:"extension"`
	Register    PriceComponent  `json:"register"`
	Renew       PriceComponent  `json:"renew"`
	Transfer    PriceComponent  `json:"transfer"`
	Redemption  *PriceComponent `json:"redemption,omitempty"`
	Promo       *PromoPrice     `json:"promo,omitempty"`
	PromoActive bool            `json:"promo_active"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// Component returns the derived price of the given type
func (d *DerivedPriceSet) Component(priceType PriceType) PriceComponent {
	switch priceType {
	case PriceTypeRenew:
		return d.Renew
	case PriceTypeTransfer:
		return d.Transfer
	default:
		return d.Register
	}
}

// EffectiveRegister returns the promo price when a promo is active, otherwise the register price
func (d *DerivedPriceSet) EffectiveRegister() decimal.Decimal {
	if d.PromoActive && d.Promo != nil {
		return d.Promo.FinalPrice
	}
	return d.Register.Final
}

// EffectiveTerm returns the term the register price is written at
func (d *DerivedPriceSet) EffectiveTerm() Term {
	if d.PromoActive && d.Promo != nil {
		return ClampTerm(d.Promo.TermYears)
	}
	return MinTerm
}

// GroupLabel returns the label every stored row of the key should carry
func (d *DerivedPriceSet) GroupLabel() string {
	if d.PromoActive {
		return PromoGroupLabel
	}
	return ""
}

// CachedPriceSet is a derived set as read back from the cache
type CachedPriceSet struct {
	Set      DerivedPriceSet `json:"set"`
	CachedAt time.Time       `json:"cached_at"`
}
