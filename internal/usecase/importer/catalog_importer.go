package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// ErrNothingToImport is returned for an empty import list
var ErrNothingToImport = errors.New("no extensions to import")

// ImportResult summarizes an import run
type ImportResult struct {
	Imported []string
	Skipped  []string
	Errors   []string
}

// CatalogImporter registers new catalog keys in the pricing store without prices.
// Prices arrive on the next sync.
type CatalogImporter struct {
	Store  domain.PricingStore
	Logger zerolog.Logger
}

// NewCatalogImporter creates a new CatalogImporter instance
func NewCatalogImporter(store domain.PricingStore, logger zerolog.Logger) *CatalogImporter {
	return &CatalogImporter{
		Store:  store,
		Logger: logger,
	}
}

// Import ensures every extension has at least one stored row.
// If an extension already exists it is skipped, otherwise an empty row is created.
func (i *CatalogImporter) Import(ctx context.Context, extensions []string) (*ImportResult, error) {
	if len(extensions) == 0 {
		return nil, ErrNothingToImport
	}

	result := &ImportResult{}
	seen := make(map[string]bool, len(extensions))

	for _, raw := range extensions {
		ext := domain.NormalizeExtension(raw)
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true

		rows, err := i.Store.Lookup(ctx, ext)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: lookup: %v", ext, err))
			continue
		}
		if len(rows) > 0 {
			result.Skipped = append(result.Skipped, ext)
			continue
		}

		if _, err := i.Store.CreateRow(ctx, ext); err != nil {
			i.Logger.Error().Err(err).Str("extension", ext).Msg("failed to import extension")
			result.Errors = append(result.Errors, (&domain.StoreWriteError{Extension: ext, Op: "create row", Err: err}).Error())
			continue
		}
		result.Imported = append(result.Imported, ext)
	}

	i.Logger.Info().
		Int("imported", len(result.Imported)).
		Int("skipped", len(result.Skipped)).
		Int("errors", len(result.Errors)).
		Msg("catalog import finished")

	return result, nil
}
