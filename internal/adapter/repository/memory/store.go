// Package memory provides in-process implementations of the pricing store and
// derived-price cache. They back dry runs and transport tests; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// PricingStore implements domain.PricingStore on a slice of rows kept in insertion order
type PricingStore struct {
	mu         sync.RWMutex
	rows       []*domain.PricingRow
	currencyID int
}

// NewPricingStore creates a store seeded with copies of rows
func NewPricingStore(currencyID int, rows ...*domain.PricingRow) *PricingStore {
	s := &PricingStore{currencyID: currencyID}
	for _, row := range rows {
		s.rows = append(s.rows, cloneRow(row))
	}
	return s
}

// Lookup retrieves every row sharing the extension, oldest first
func (s *PricingStore) Lookup(_ context.Context, extension string) ([]*domain.PricingRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PricingRow
	for _, row := range s.rows {
		if row.Extension == extension {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

// CreateRow appends an empty row for the extension
func (s *PricingStore) CreateRow(_ context.Context, extension string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := &domain.PricingRow{ID: uuid.New(), Extension: extension, CurrencyID: s.currencyID}
	s.rows = append(s.rows, row)
	return row.ID, nil
}

// WriteCell sets one price cell on a row
func (s *PricingStore) WriteCell(_ context.Context, rowID uuid.UUID, priceType domain.PriceType, term domain.Term, price decimal.Decimal) error {
	if term < domain.MinTerm || term > domain.MaxTerm {
		return fmt.Errorf("term %d out of range", term)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if row.ID != rowID {
			continue
		}
		if row.Prices == nil {
			row.Prices = make(map[domain.PriceType]*domain.TermPrices)
		}
		if row.Prices[priceType] == nil {
			row.Prices[priceType] = &domain.TermPrices{}
		}
		row.Prices[priceType].Set(term, price)
		return nil
	}
	return fmt.Errorf("pricing row not found: %s", rowID)
}

// WriteGroup sets the label on every row of the extension
func (s *PricingStore) WriteGroup(_ context.Context, extension, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, row := range s.rows {
		if row.Extension == extension {
			row.Group = label
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no pricing rows for %s", extension)
	}
	return nil
}

// ListExtensions returns the distinct extensions, sorted
func (s *PricingStore) ListExtensions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, row := range s.rows {
		if !seen[row.Extension] {
			seen[row.Extension] = true
			out = append(out, row.Extension)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListRows returns copies of every row
func (s *PricingStore) ListRows(_ context.Context) ([]*domain.PricingRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.PricingRow, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, cloneRow(row))
	}
	return out, nil
}

func cloneRow(row *domain.PricingRow) *domain.PricingRow {
	cp := *row
	if row.Prices != nil {
		cp.Prices = make(map[domain.PriceType]*domain.TermPrices, len(row.Prices))
		for priceType, cells := range row.Prices {
			if cells == nil {
				continue
			}
			c := *cells
			cp.Prices[priceType] = &c
		}
	}
	return &cp
}

// PriceCache implements domain.DerivedPriceCache with a map
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]domain.CachedPriceSet
	clock   clockwork.Clock
}

// NewPriceCache creates an empty cache. A nil clock uses the real clock.
func NewPriceCache(clock clockwork.Clock) *PriceCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PriceCache{entries: make(map[string]domain.CachedPriceSet), clock: clock}
}

// Put stores the derived set, replacing any previous value
func (c *PriceCache) Put(_ context.Context, extension string, set *domain.DerivedPriceSet) error {
	if set == nil {
		return fmt.Errorf("nil derived set for %s", extension)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[extension] = domain.CachedPriceSet{Set: *set, CachedAt: c.clock.Now().UTC().Truncate(time.Second)}
	return nil
}

// Get returns nil when nothing is cached for the extension
func (c *PriceCache) Get(_ context.Context, extension string) (*domain.CachedPriceSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.entries[extension]
	if !ok {
		return nil, nil
	}
	return &cached, nil
}

var (
	_ domain.PricingStore      = (*PricingStore)(nil)
	_ domain.DerivedPriceCache = (*PriceCache)(nil)
)
