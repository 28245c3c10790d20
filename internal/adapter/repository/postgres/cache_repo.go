package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// priceCacheRepository implements domain.DerivedPriceCache on the derived_price_cache table
type priceCacheRepository struct {
	db *DB
}

// NewPriceCacheRepository creates a new derived price cache repository
func NewPriceCacheRepository(db *DB) domain.DerivedPriceCache {
	return &priceCacheRepository{db: db}
}

// Put stores the derived set, replacing any previous value
func (r *priceCacheRepository) Put(ctx context.Context, extension string, set *domain.DerivedPriceSet) error {
	if set == nil {
		return fmt.Errorf("nil derived set for %s", extension)
	}

	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode derived prices: %w", err)
	}

	query := `
		INSERT INTO derived_price_cache (extension, api_data, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (extension) DO UPDATE SET api_data = EXCLUDED.api_data, last_updated = now()
	`

	if _, err := r.db.ExecContext(ctx, query, extension, string(payload)); err != nil {
		return fmt.Errorf("failed to cache derived prices: %w", err)
	}
	return nil
}

// Get returns nil without error when nothing is cached for the extension
func (r *priceCacheRepository) Get(ctx context.Context, extension string) (*domain.CachedPriceSet, error) {
	query := `
		SELECT api_data, last_updated
		FROM derived_price_cache
		WHERE extension = $1
	`

	var (
		payload  []byte
		cachedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, query, extension).Scan(&payload, &cachedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached prices: %w", err)
	}

	cached := &domain.CachedPriceSet{CachedAt: cachedAt}
	if err := json.Unmarshal(payload, &cached.Set); err != nil {
		return nil, fmt.Errorf("failed to decode cached prices: %w", err)
	}
	return cached, nil
}
