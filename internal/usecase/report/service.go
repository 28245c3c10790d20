package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/derivation"
)

// ComparisonTerm selects which stored register cell the derived price is compared with
type ComparisonTerm string

const (
	// ComparisonTermEffective compares with the cell the derived price is written to
	ComparisonTermEffective ComparisonTerm = "effective"
	// ComparisonTermDefault always compares with the year-1 cell
	ComparisonTermDefault ComparisonTerm = "default"
)

// ParseComparisonTerm maps a configured value to a ComparisonTerm
func ParseComparisonTerm(raw string) (ComparisonTerm, error) {
	switch ComparisonTerm(strings.ToLower(strings.TrimSpace(raw))) {
	case ComparisonTermEffective, "":
		return ComparisonTermEffective, nil
	case ComparisonTermDefault:
		return ComparisonTermDefault, nil
	}
	return ComparisonTermEffective, &domain.ConfigError{Field: "comparison term", Value: raw, Reason: "expected effective or default"}
}

// ComparisonRow represents the stored and derived prices of one extension side by side
type ComparisonRow struct {
	Extension       string
	RowID           uuid.UUID
	Resolution      domain.RowResolutionKind
	RowCount        int
	Group           string
	ComparedTerm    domain.Term
	CurrentRegister decimal.NullDecimal
	CurrentRenew    decimal.NullDecimal
	CurrentTransfer decimal.NullDecimal
	Derived         *domain.DerivedPriceSet
	RegisterDiff    decimal.NullDecimal
}

// Statistics represents counts over the stored catalog
type Statistics struct {
	TotalExtensions     int
	PricedExtensions    int
	UnpricedExtensions  int
	PromoExtensions     int
	DuplicateExtensions int
}

// ExtensionDetail represents everything known about one extension
type ExtensionDetail struct {
	Extension  string
	Rows       []*domain.PricingRow
	Resolution domain.RowResolution
	Cached     *domain.CachedPriceSet
}

// ReportService handles pricing report operations
type ReportService struct {
	Store    domain.PricingStore
	Cache    domain.DerivedPriceCache
	Source   domain.CatalogSource
	Pipeline *derivation.Pipeline
	Clock    clockwork.Clock
	Term     ComparisonTerm
	Logger   zerolog.Logger
}

// NewReportService creates a new ReportService instance
func NewReportService(
	store domain.PricingStore,
	cache domain.DerivedPriceCache,
	source domain.CatalogSource,
	pipeline *derivation.Pipeline,
	clock clockwork.Clock,
	term ComparisonTerm,
	logger zerolog.Logger,
) *ReportService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if term == "" {
		term = ComparisonTermEffective
	}
	return &ReportService{
		Store:    store,
		Cache:    cache,
		Source:   source,
		Pipeline: pipeline,
		Clock:    clock,
		Term:     term,
		Logger:   logger,
	}
}

// Compare fetches the upstream snapshot, derives it under policy and lines it up with the store
func (s *ReportService) Compare(ctx context.Context, policy domain.PricingPolicy) ([]ComparisonRow, error) {
	if s.Source == nil || s.Pipeline == nil {
		return nil, errors.New("live comparison needs an upstream source")
	}

	entries, err := s.Source.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	derived, failures := s.Pipeline.DeriveBatch(entries, policy, s.Clock.Now())
	for _, failure := range failures {
		s.Logger.Warn().Err(failure).Msg("catalog entry left out of comparison")
	}
	byKey := make(map[string]*domain.DerivedPriceSet, len(derived))
	for _, set := range derived {
		byKey[set.Extension] = set
	}

	return s.compare(ctx, func(ext string) (*domain.DerivedPriceSet, error) {
		return byKey[ext], nil
	})
}

// CompareCached lines the store up with the last derived set cached per extension
func (s *ReportService) CompareCached(ctx context.Context) ([]ComparisonRow, error) {
	return s.compare(ctx, func(ext string) (*domain.DerivedPriceSet, error) {
		cached, err := s.Cache.Get(ctx, ext)
		if err != nil || cached == nil {
			return nil, err
		}
		return &cached.Set, nil
	})
}

func (s *ReportService) compare(ctx context.Context, lookup func(ext string) (*domain.DerivedPriceSet, error)) ([]ComparisonRow, error) {
	rows, err := s.Store.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing rows: %w", err)
	}

	grouped, keys := groupByExtension(rows)
	result := make([]ComparisonRow, 0, len(keys))

	for _, ext := range keys {
		derived, err := lookup(ext)
		if err != nil {
			return nil, fmt.Errorf("failed to load derived prices for %s: %w", ext, err)
		}
		result = append(result, s.compareRow(ext, grouped[ext], derived))
	}

	return result, nil
}

// compareRow builds one line. The register diff is effective register minus the compared stored cell.
func (s *ReportService) compareRow(ext string, rows []*domain.PricingRow, derived *domain.DerivedPriceSet) ComparisonRow {
	resolution := domain.ResolveCanonicalRow(rows)
	row := ComparisonRow{
		Extension:    ext,
		Resolution:   resolution.Kind,
		RowCount:     len(rows),
		ComparedTerm: domain.MinTerm,
		Derived:      derived,
	}

	if derived != nil && s.Term == ComparisonTermEffective {
		row.ComparedTerm = derived.EffectiveTerm()
	}

	if resolution.Row != nil {
		row.RowID = resolution.Row.ID
		row.Group = resolution.Row.Group
		row.CurrentRegister = cell(resolution.Row, domain.PriceTypeRegister, row.ComparedTerm)
		row.CurrentRenew = cell(resolution.Row, domain.PriceTypeRenew, domain.MinTerm)
		row.CurrentTransfer = cell(resolution.Row, domain.PriceTypeTransfer, domain.MinTerm)
	}

	if derived != nil {
		current := decimal.Zero
		if row.CurrentRegister.Valid {
			current = row.CurrentRegister.Decimal
		}
		row.RegisterDiff = decimal.NewNullDecimal(derived.EffectiveRegister().Sub(current))
	}

	return row
}

// Show returns the stored rows of an extension with its last cached derived set
func (s *ReportService) Show(ctx context.Context, extension string) (*ExtensionDetail, error) {
	ext := strings.TrimSpace(extension)
	if ext == "" {
		return nil, domain.ErrMissingExtension
	}

	rows, err := s.Store.Lookup(ctx, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", ext, err)
	}

	detail := &ExtensionDetail{
		Extension:  ext,
		Rows:       rows,
		Resolution: domain.ResolveCanonicalRow(rows),
	}

	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, ext)
		if err != nil {
			return nil, fmt.Errorf("failed to read cached prices for %s: %w", ext, err)
		}
		detail.Cached = cached
	}

	return detail, nil
}

// Statistics counts extensions by pricing state
func (s *ReportService) Statistics(ctx context.Context) (*Statistics, error) {
	rows, err := s.Store.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing rows: %w", err)
	}

	grouped, keys := groupByExtension(rows)
	stats := &Statistics{TotalExtensions: len(keys)}

	for _, ext := range keys {
		extRows := grouped[ext]
		if domain.ResolveCanonicalRow(extRows).Kind == domain.RowCanonical {
			stats.PricedExtensions++
		} else {
			stats.UnpricedExtensions++
		}
		if len(extRows) > 1 {
			stats.DuplicateExtensions++
		}
		for _, r := range extRows {
			if r.Group == domain.PromoGroupLabel {
				stats.PromoExtensions++
				break
			}
		}
	}

	return stats, nil
}

func groupByExtension(rows []*domain.PricingRow) (map[string][]*domain.PricingRow, []string) {
	grouped := make(map[string][]*domain.PricingRow)
	var keys []string
	for _, row := range rows {
		if row == nil {
			continue
		}
		if _, ok := grouped[row.Extension]; !ok {
			keys = append(keys, row.Extension)
		}
		grouped[row.Extension] = append(grouped[row.Extension], row)
	}
	sort.Strings(keys)
	return grouped, keys
}

func cell(row *domain.PricingRow, priceType domain.PriceType, term domain.Term) decimal.NullDecimal {
	price, ok := row.Cell(priceType, term)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(price)
}
