package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceType represents one of the reconciled price kinds
type PriceType string

const (
	PriceTypeRegister PriceType = "register"
	PriceTypeRenew    PriceType = "renew"
	PriceTypeTransfer PriceType = "transfer"
)

// PriceTypes lists the price kinds in the order they are reconciled
var PriceTypes = []PriceType{PriceTypeRegister, PriceTypeRenew, PriceTypeTransfer}

// Term is a contract length in years
type Term int

const (
	MinTerm Term = 1
	MaxTerm Term = 10
)

// PriceScale is the number of decimals a stored price cell keeps
const PriceScale int32 = 2

// ClampTerm forces a year count into the 1..10 range the store can address
func ClampTerm(years int) Term {
	if years < int(MinTerm) {
		return MinTerm
	}
	if years > int(MaxTerm) {
		return MaxTerm
	}
	return Term(years)
}

// Index returns the zero-based position of the term inside TermPrices
func (t Term) Index() int {
	return int(t) - 1
}

// TermPrices holds one nullable price per term year
type TermPrices [MaxTerm]decimal.NullDecimal

// Get returns the price for a term and whether the cell is populated
func (tp *TermPrices) Get(term Term) (decimal.Decimal, bool) {
	if tp == nil || term < MinTerm || term > MaxTerm {
		return decimal.Zero, false
	}
	cell := tp[term.Index()]
	return cell.Decimal, cell.Valid
}

// Set populates the price for a term
func (tp *TermPrices) Set(term Term, price decimal.Decimal) {
	if term < MinTerm || term > MaxTerm {
		return
	}
	tp[term.Index()] = decimal.NullDecimal{Decimal: price, Valid: true}
}

// PricingRow represents a stored pricing record for one catalog key.
// Several rows may share an extension; only one of them normally carries price cells.
type PricingRow struct {
	ID         uuid.UUID
	Extension  string
	Group      string
	CurrencyID int
	Prices     map[PriceType]*TermPrices
}

// HasPriceCells reports whether the row is joined to register pricing
func (r *PricingRow) HasPriceCells() bool {
	if r == nil || r.Prices == nil {
		return false
	}
	return r.Prices[PriceTypeRegister] != nil
}

// Cell returns the stored price for a type and term
func (r *PricingRow) Cell(priceType PriceType, term Term) (decimal.Decimal, bool) {
	if r == nil || r.Prices == nil {
		return decimal.Zero, false
	}
	return r.Prices[priceType].Get(term)
}

// RowResolutionKind tags the outcome of canonical row resolution
type RowResolutionKind int

const (
	RowAbsent RowResolutionKind = iota
	RowCanonical
	RowUncanonical
)

func (k RowResolutionKind) String() string {
	switch k {
	case RowCanonical:
		return "canonical"
	case RowUncanonical:
		return "uncanonical"
	default:
		return "absent"
	}
}

// RowResolution is the row chosen to receive price writes for a key
type RowResolution struct {
	Kind RowResolutionKind
	Row  *PricingRow
}

// ResolveCanonicalRow picks the row that owns the prices of a key.
// The first row with register price cells wins; otherwise the first row is used
// and the result is tagged RowUncanonical. No rows yields RowAbsent.
func ResolveCanonicalRow(rows []*PricingRow) RowResolution {
	var first *PricingRow
	for _, row := range rows {
		if row == nil {
			continue
		}
		if first == nil {
			first = row
		}
		if row.HasPriceCells() {
			return RowResolution{Kind: RowCanonical, Row: row}
		}
	}

	if first == nil {
		return RowResolution{Kind: RowAbsent}
	}
	return RowResolution{Kind: RowUncanonical, Row: first}
}
