package reconcile

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// Result summarizes what reconciliation did for one catalog key
type Result struct {
	Extension    string
	Resolution   domain.RowResolutionKind
	RowID        uuid.UUID
	Created      bool
	Updated      bool
	GroupChanged bool
	Changes      []domain.CellChange
	Errors       []string
}

// cellWrite is one price cell the derived set wants in the store
type cellWrite struct {
	priceType domain.PriceType
	term      domain.Term
	price     decimal.Decimal
}

// ReconcileService writes derived prices into the pricing store
type ReconcileService struct {
	Store     domain.PricingStore
	Cache     domain.DerivedPriceCache
	Publisher domain.EventPublisher
	Clock     clockwork.Clock
	Logger    zerolog.Logger

	locks *keyLocks
}

// NewReconcileService creates a new ReconcileService instance.
// publisher may be nil when price change events are not wanted.
func NewReconcileService(
	store domain.PricingStore,
	cache domain.DerivedPriceCache,
	publisher domain.EventPublisher,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *ReconcileService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReconcileService{
		Store:     store,
		Cache:     cache,
		Publisher: publisher,
		Clock:     clock,
		Logger:    logger,
		locks:     newKeyLocks(),
	}
}

// Reconcile brings the stored rows of key in line with the derived set.
// Logic:
//  1. Lookup every row of the key and resolve the canonical one, creating a row when absent
//  2. Plan cells: renew and transfer at year 1, register at year 1 or at the promo term with the promo price
//  3. Write only the cells that are missing or differ, a failed cell does not block its siblings
//  4. Fan the group label out to every row of the key when any of them differs
//  5. Cache the derived set whether or not anything changed
//
// Running it twice with the same derived set issues no writes the second time.
func (s *ReconcileService) Reconcile(ctx context.Context, key string, derived *domain.DerivedPriceSet) *Result {
	key = strings.TrimSpace(key)
	result := &Result{Extension: key}
	logger := s.Logger.With().Str("extension", key).Logger()

	if key == "" || derived == nil {
		result.Errors = append(result.Errors, domain.ErrMissingExtension.Error())
		return result
	}

	unlock := s.locks.lock(key)
	var errs error
	func() {
		defer unlock()
		errs = s.reconcileRows(ctx, key, derived, result, logger)
	}()

	if s.Cache != nil {
		if err := s.Cache.Put(ctx, key, derived); err != nil {
			logger.Warn().Err(err).Msg("failed to cache derived prices")
			errs = multierr.Append(errs, &domain.StoreWriteError{Extension: key, Op: "cache put", Err: err})
		}
	}

	for _, err := range multierr.Errors(errs) {
		result.Errors = append(result.Errors, err.Error())
	}

	if result.Updated {
		s.publish(ctx, derived, result, logger)
	}

	return result
}

func (s *ReconcileService) reconcileRows(
	ctx context.Context,
	key string,
	derived *domain.DerivedPriceSet,
	result *Result,
	logger zerolog.Logger,
) error {
	rows, err := s.Store.Lookup(ctx, key)
	if err != nil {
		logger.Error().Err(err).Msg("failed to look up stored pricing")
		return &domain.StoreWriteError{Extension: key, Op: "lookup", Err: err}
	}

	resolution := domain.ResolveCanonicalRow(rows)
	result.Resolution = resolution.Kind

	target := resolution.Row
	if resolution.Kind == domain.RowAbsent {
		rowID, err := s.Store.CreateRow(ctx, key)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create pricing row")
			return &domain.StoreWriteError{Extension: key, Op: "create row", Err: err}
		}
		target = &domain.PricingRow{ID: rowID, Extension: key}
		result.Created = true
		result.Updated = true
		logger.Info().Str("row_id", rowID.String()).Msg("created pricing row")
	}
	result.RowID = target.ID

	var errs error
	for _, cell := range planCells(derived) {
		current, ok := target.Cell(cell.priceType, cell.term)
		if ok && current.Round(domain.PriceScale).Equal(cell.price) {
			continue
		}

		if err := s.Store.WriteCell(ctx, target.ID, cell.priceType, cell.term, cell.price); err != nil {
			logger.Error().Err(err).
				Str("type", string(cell.priceType)).
				Int("term", int(cell.term)).
				Msg("failed to write price cell")
			errs = multierr.Append(errs, &domain.StoreWriteError{
				Extension: key,
				Op:        "write cell",
				Type:      cell.priceType,
				Term:      cell.term,
				Err:       err,
			})
			continue
		}

		change := domain.CellChange{Type: cell.priceType, Term: cell.term, Current: cell.price}
		if ok {
			change.Previous = decimal.NewNullDecimal(current)
		}
		result.Changes = append(result.Changes, change)
		result.Updated = true
	}

	label := derived.GroupLabel()
	if groupNeedsWrite(rows, result.Created, label) {
		if err := s.Store.WriteGroup(ctx, key, label); err != nil {
			logger.Error().Err(err).Str("group", label).Msg("failed to write group label")
			errs = multierr.Append(errs, &domain.StoreWriteError{Extension: key, Op: "write group", Err: err})
		} else {
			result.GroupChanged = true
			result.Updated = true
		}
	}

	if result.Updated {
		logger.Debug().
			Int("changes", len(result.Changes)).
			Bool("group_changed", result.GroupChanged).
			Str("resolution", resolution.Kind.String()).
			Msg("reconciled pricing")
	}

	return errs
}

// planCells lists the cells a derived set owns in the store, at the store's precision
func planCells(derived *domain.DerivedPriceSet) []cellWrite {
	return []cellWrite{
		{priceType: domain.PriceTypeRegister, term: derived.EffectiveTerm(), price: derived.EffectiveRegister().Round(domain.PriceScale)},
		{priceType: domain.PriceTypeRenew, term: domain.MinTerm, price: derived.Renew.Final.Round(domain.PriceScale)},
		{priceType: domain.PriceTypeTransfer, term: domain.MinTerm, price: derived.Transfer.Final.Round(domain.PriceScale)},
	}
}

// groupNeedsWrite reports whether any row of the key carries a different label.
// A freshly created row starts with an empty label.
func groupNeedsWrite(rows []*domain.PricingRow, created bool, label string) bool {
	if created && label != "" {
		return true
	}
	for _, row := range rows {
		if row != nil && row.Group != label {
			return true
		}
	}
	return false
}

func (s *ReconcileService) publish(ctx context.Context, derived *domain.DerivedPriceSet, result *Result, logger zerolog.Logger) {
	if s.Publisher == nil {
		return
	}

	event := domain.PriceChangeEvent{
		ID:          uuid.New(),
		Extension:   result.Extension,
		RowID:       result.RowID,
		Created:     result.Created,
		PromoActive: derived.PromoActive,
		GroupLabel:  derived.GroupLabel(),
		Changes:     result.Changes,
		OccurredAt:  s.Clock.Now(),
	}

	if err := s.Publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to publish price change event")
	}
}
