package promo

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricecalc"
)

// zonedLayouts carry their own offset, localLayouts are read in the evaluator location
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}
)

// Evaluation is the outcome of checking a promo offer at a point in time
type Evaluation struct {
	Active         bool
	TermYears      int
	BasePrice      decimal.Decimal
	RenewBasePrice decimal.NullDecimal
	StartDate      time.Time
	EndDate        time.Time
}

// Evaluator decides whether a catalog entry's promo is in effect
type Evaluator struct {
	// Location is used for promo dates that carry no zone. Nil means UTC.
	Location *time.Location
}

// NewEvaluator creates a new Evaluator reading zoneless dates in loc
func NewEvaluator(loc *time.Location) Evaluator {
	return Evaluator{Location: loc}
}

// Evaluate checks the entry's promo at the given instant, reading zoneless dates as UTC
func Evaluate(entry domain.CatalogEntry, at time.Time) Evaluation {
	return Evaluator{}.Evaluate(entry, at)
}

// Evaluate checks the entry's promo at the given instant.
// The promo is active only when it has a registration price, both dates parse
// and start <= at <= end. The result depends on nothing but its arguments.
func (e Evaluator) Evaluate(entry domain.CatalogEntry, at time.Time) Evaluation {
	inactive := Evaluation{TermYears: 1}

	offer := entry.Promo
	if offer == nil || offer.Registration.IsEmpty() {
		return inactive
	}

	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}

	start, ok := parseDate(offer.StartDate, loc)
	if !ok {
		return inactive
	}
	end, ok := parseDate(offer.EndDate, loc)
	if !ok {
		return inactive
	}

	if at.Before(start) || at.After(end) {
		return inactive
	}

	eval := Evaluation{
		Active:    true,
		TermYears: parseTerms(offer.Terms),
		BasePrice: pricecalc.Normalize(offer.Registration.String()),
		StartDate: start,
		EndDate:   end,
	}
	if !offer.Renewal.IsEmpty() {
		eval.RenewBasePrice = decimal.NewNullDecimal(pricecalc.Normalize(offer.Renewal.String()))
	}
	return eval
}

func parseDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseTerms reads the promo contract length; unset, non-numeric or < 1 means one year
func parseTerms(raw domain.FlexString) int {
	s := strings.TrimSpace(raw.String())
	if s == "" {
		return 1
	}

	years, err := strconv.Atoi(s)
	if err != nil {
		d, derr := decimal.NewFromString(s)
		if derr != nil {
			return 1
		}
		years = int(d.IntPart())
	}

	if years < 1 {
		return 1
	}
	return years
}
