// Package presenter converts usecase results into the JSON views served by the transports.
package presenter

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/importer"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

// SyncView is the outcome of one sync run
type SyncView struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed_count"`
	Updated    int       `json:"updated_count"`
	Created    int       `json:"created_count"`
	Promo      int       `json:"promo_count"`
	Errors     []string  `json:"errors"`
	Cancelled  bool      `json:"cancelled"`
}

// Sync converts a batch result
func Sync(result *pricesync.BatchResult) SyncView {
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	return SyncView{
		RunID:      result.RunID.String(),
		Mode:       string(result.Mode),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Processed:  result.ProcessedCount,
		Updated:    result.UpdatedCount,
		Created:    result.CreatedCount,
		Promo:      result.PromoCount,
		Errors:     errs,
		Cancelled:  result.Cancelled,
	}
}

// ImportView lists what an import created and skipped
type ImportView struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Import converts an import result
func Import(result *importer.ImportResult) ImportView {
	return ImportView{
		Imported: nonNil(result.Imported),
		Skipped:  nonNil(result.Skipped),
		Errors:   nonNil(result.Errors),
	}
}

// ComparisonView is one line of the pricing comparison
type ComparisonView struct {
	Extension       string                  `json:"extension"`
	RowID           string                  `json:"row_id,omitempty"`
	Resolution      string                  `json:"resolution"`
	RowCount        int                     `json:"row_count"`
	Group           string                  `json:"group"`
	ComparedTerm    int                     `json:"compared_term"`
	CurrentRegister decimal.NullDecimal     `json:"current_register"`
	CurrentRenew    decimal.NullDecimal     `json:"current_renew"`
	CurrentTransfer decimal.NullDecimal     `json:"current_transfer"`
	RegisterDiff    decimal.NullDecimal     `json:"register_diff"`
	Derived         *domain.DerivedPriceSet `json:"derived,omitempty"`
}

// Comparison converts comparison rows
func Comparison(rows []report.ComparisonRow) []ComparisonView {
	views := make([]ComparisonView, 0, len(rows))
	for _, r := range rows {
		view := ComparisonView{
			Extension:       r.Extension,
			Resolution:      r.Resolution.String(),
			RowCount:        r.RowCount,
			Group:           r.Group,
			ComparedTerm:    int(r.ComparedTerm),
			CurrentRegister: r.CurrentRegister,
			CurrentRenew:    r.CurrentRenew,
			CurrentTransfer: r.CurrentTransfer,
			RegisterDiff:    r.RegisterDiff,
			Derived:         r.Derived,
		}
		if r.Resolution != domain.RowAbsent {
			view.RowID = r.RowID.String()
		}
		views = append(views, view)
	}
	return views
}

// StatisticsView counts extensions by pricing state
type StatisticsView struct {
	Total     int `json:"total_extensions"`
	Priced    int `json:"priced_extensions"`
	Unpriced  int `json:"unpriced_extensions"`
	Promo     int `json:"promo_extensions"`
	Duplicate int `json:"duplicate_extensions"`
}

// Statistics converts report statistics
func Statistics(stats *report.Statistics) StatisticsView {
	return StatisticsView{
		Total:     stats.TotalExtensions,
		Priced:    stats.PricedExtensions,
		Unpriced:  stats.UnpricedExtensions,
		Promo:     stats.PromoExtensions,
		Duplicate: stats.DuplicateExtensions,
	}
}

// RowView is one stored row with its cells keyed by price type, one entry per term year
type RowView struct {
	ID         string                           `json:"id"`
	Group      string                           `json:"group"`
	CurrencyID int                              `json:"currency_id"`
	Canonical  bool                             `json:"canonical"`
	Prices     map[string][]decimal.NullDecimal `json:"prices"`
}

// DetailView is an extension with its rows and last cached derived set
type DetailView struct {
	Extension  string                  `json:"extension"`
	Resolution string                  `json:"resolution"`
	Rows       []RowView               `json:"rows"`
	Cached     *domain.DerivedPriceSet `json:"cached,omitempty"`
	CachedAt   *time.Time              `json:"cached_at,omitempty"`
}

// Detail converts an extension detail
func Detail(detail *report.ExtensionDetail) DetailView {
	view := DetailView{
		Extension:  detail.Extension,
		Resolution: detail.Resolution.Kind.String(),
		Rows:       make([]RowView, 0, len(detail.Rows)),
	}

	for _, row := range detail.Rows {
		rv := RowView{
			ID:         row.ID.String(),
			Group:      row.Group,
			CurrencyID: row.CurrencyID,
			Canonical:  detail.Resolution.Row != nil && detail.Resolution.Row.ID == row.ID,
			Prices:     make(map[string][]decimal.NullDecimal, len(row.Prices)),
		}
		for priceType, cells := range row.Prices {
			if cells == nil {
				continue
			}
			rv.Prices[string(priceType)] = cells[:]
		}
		view.Rows = append(view.Rows, rv)
	}

	if detail.Cached != nil {
		set := detail.Cached.Set
		cachedAt := detail.Cached.CachedAt
		view.Cached = &set
		view.CachedAt = &cachedAt
	}

	return view
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
