package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingStore defines the interface for stored pricing persistence operations
type PricingStore interface {
	// Lookup retrieves every row sharing the extension, oldest first
	Lookup(ctx context.Context, extension string) ([]*PricingRow, error)

	// CreateRow creates an empty row for the extension
	CreateRow(ctx context.Context, extension string) (uuid.UUID, error)

	// WriteCell upserts the price of one type and term on a row
	WriteCell(ctx context.Context, rowID uuid.UUID, priceType PriceType, term Term, price decimal.Decimal) error

	// WriteGroup sets the group label on every row with the extension
	WriteGroup(ctx context.Context, extension, label string) error

	// ListExtensions returns the distinct extensions present in the store
	ListExtensions(ctx context.Context) ([]string, error)

	// ListRows retrieves every row with its price cells
	ListRows(ctx context.Context) ([]*PricingRow, error)
}

// DerivedPriceCache defines the interface for the last derived snapshot per key
type DerivedPriceCache interface {
	// Put stores the derived set, replacing any previous value
	Put(ctx context.Context, extension string, set *DerivedPriceSet) error

	// Get returns nil without error when nothing is cached for the extension
	Get(ctx context.Context, extension string) (*CachedPriceSet, error)
}

// CatalogSource provides the upstream wholesale snapshot
type CatalogSource interface {
	FetchSnapshot(ctx context.Context) ([]CatalogEntry, error)
}

// EventPublisher publishes price change notifications
type EventPublisher interface {
	Publish(ctx context.Context, event PriceChangeEvent) error
}
