package derivation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricecalc"
	"github.com/simaogato/tldpricing-backend/internal/usecase/promo"
)

// EntryError reports a catalog entry that could not be derived
type EntryError struct {
	Index     int
	Extension string
	Err       error
}

func (e EntryError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("entry %d (%s): %v", e.Index, e.Extension, e.Err)
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// Pipeline turns upstream catalog entries into derived retail prices
type Pipeline struct {
	Evaluator promo.Evaluator
}

// NewPipeline creates a new Pipeline reading zoneless promo dates in loc
func NewPipeline(loc *time.Location) *Pipeline {
	return &Pipeline{Evaluator: promo.NewEvaluator(loc)}
}

// Derive computes the retail prices of one entry with a UTC promo evaluator
func Derive(entry domain.CatalogEntry, policy domain.PricingPolicy, at time.Time) (*domain.DerivedPriceSet, error) {
	return (&Pipeline{}).Derive(entry, policy, at)
}

// Derive computes the retail prices of one entry under the given policy at the given instant
func (p *Pipeline) Derive(entry domain.CatalogEntry, policy domain.PricingPolicy, at time.Time) (*domain.DerivedPriceSet, error) {
	key := entry.Key()
	if key == "" {
		return nil, domain.ErrMissingExtension
	}

	currency := entry.CurrencyCode()
	set := &domain.DerivedPriceSet{
		Extension:  key,
		Register:   component(entry.Registration, currency, policy),
		Renew:      component(entry.Renewal, currency, policy),
		Transfer:   component(entry.Transfer, currency, policy),
		ComputedAt: at,
	}

	if !entry.Redemption.IsEmpty() {
		redemption := component(entry.Redemption, currency, policy)
		set.Redemption = &redemption
	}

	eval := p.Evaluator.Evaluate(entry, at)
	if eval.Active {
		promoPrice := &domain.PromoPrice{
			TermYears:  eval.TermYears,
			BasePrice:  eval.BasePrice,
			FinalPrice: storePrecision(pricecalc.Price(eval.BasePrice, policy)),
			StartDate:  eval.StartDate,
			EndDate:    eval.EndDate,
		}
		if eval.RenewBasePrice.Valid {
			promoPrice.RenewBasePrice = eval.RenewBasePrice
			promoPrice.RenewFinalPrice = decimal.NewNullDecimal(storePrecision(pricecalc.Price(eval.RenewBasePrice.Decimal, policy)))
		}
		set.Promo = promoPrice
		set.PromoActive = true
	}

	return set, nil
}

// DeriveBatch derives every entry. A failing entry is reported and skipped, it never aborts the batch.
// The returned sets keep the order of the successful entries.
func (p *Pipeline) DeriveBatch(entries []domain.CatalogEntry, policy domain.PricingPolicy, at time.Time) ([]*domain.DerivedPriceSet, []EntryError) {
	sets := make([]*domain.DerivedPriceSet, 0, len(entries))
	var failures []EntryError

	for i, entry := range entries {
		set, err := p.deriveSafely(entry, policy, at)
		if err != nil {
			failures = append(failures, EntryError{Index: i, Extension: entry.Key(), Err: err})
			continue
		}
		sets = append(sets, set)
	}

	return sets, failures
}

func (p *Pipeline) deriveSafely(entry domain.CatalogEntry, policy domain.PricingPolicy, at time.Time) (set *domain.DerivedPriceSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			set = nil
			err = fmt.Errorf("derive panicked: %v", r)
		}
	}()
	return p.Derive(entry, policy, at)
}

func component(raw domain.FlexString, currency string, policy domain.PricingPolicy) domain.PriceComponent {
	base := pricecalc.Normalize(raw.String())
	withMargin := pricecalc.ApplyMargin(base, policy.Margin)

	return domain.PriceComponent{
		Base:          base,
		MarginApplied: withMargin.Sub(base),
		Final:         storePrecision(pricecalc.ApplyRounding(withMargin, policy.Rounding)),
		Currency:      currency,
	}
}

// storePrecision quantizes a final price to what a price cell can hold,
// so a reconciled price reads back equal to the derived one.
func storePrecision(price decimal.Decimal) decimal.Decimal {
	return price.Round(domain.PriceScale)
}
