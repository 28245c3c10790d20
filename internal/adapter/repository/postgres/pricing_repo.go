package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// termColumns maps term years 1..10 to their pricing column
var termColumns = [domain.MaxTerm]string{
	"msetupfee",
	"qsetupfee",
	"ssetupfee",
	"asetupfee",
	"bsetupfee",
	"monthly",
	"quarterly",
	"semiannually",
	"annually",
	"biennially",
}

// pricingTypes maps price kinds to the stored pricing type
var pricingTypes = map[domain.PriceType]string{
	domain.PriceTypeRegister: "domainregister",
	domain.PriceTypeRenew:    "domainrenew",
	domain.PriceTypeTransfer: "domaintransfer",
}

// pricingRepository implements domain.PricingStore
type pricingRepository struct {
	db         *DB
	currencyID int
}

// NewPricingRepository creates a new pricing repository writing cells for currencyID
func NewPricingRepository(db *DB, currencyID int) domain.PricingStore {
	if currencyID <= 0 {
		currencyID = 1
	}
	return &pricingRepository{db: db, currencyID: currencyID}
}

// Lookup retrieves every row sharing the extension, oldest first
func (r *pricingRepository) Lookup(ctx context.Context, extension string) ([]*domain.PricingRow, error) {
	query := `
		SELECT id, extension, "group"
		FROM domain_pricing
		WHERE extension = $1
		ORDER BY created_at, id
	`

	rows, err := r.queryRows(ctx, query, extension)
	if err != nil {
		return nil, fmt.Errorf("failed to look up extension %s: %w", extension, err)
	}
	if err := r.attachCells(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateRow creates an empty row for the extension
func (r *pricingRepository) CreateRow(ctx context.Context, extension string) (uuid.UUID, error) {
	query := `
		INSERT INTO domain_pricing (id, extension, "group")
		VALUES ($1, $2, '')
	`

	id := uuid.New()
	if _, err := r.db.ExecContext(ctx, query, id, extension); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create pricing row: %w", err)
	}
	return id, nil
}

// WriteCell upserts the price of one type and term on a row
func (r *pricingRepository) WriteCell(ctx context.Context, rowID uuid.UUID, priceType domain.PriceType, term domain.Term, price decimal.Decimal) error {
	pricingType, ok := pricingTypes[priceType]
	if !ok {
		return fmt.Errorf("unknown price type %q", priceType)
	}
	if term < domain.MinTerm || term > domain.MaxTerm {
		return fmt.Errorf("term %d outside 1..%d", term, domain.MaxTerm)
	}
	column := termColumns[term.Index()]

	query := fmt.Sprintf(`
		INSERT INTO pricing (id, type, currency, relid, %[1]s)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (type, currency, relid) DO UPDATE SET %[1]s = EXCLUDED.%[1]s
	`, column)

	_, err := r.db.ExecContext(ctx, query, uuid.New(), pricingType, r.currencyID, rowID, price.String())
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", pricingType, column, err)
	}
	return nil
}

// WriteGroup sets the group label on every row with the extension
func (r *pricingRepository) WriteGroup(ctx context.Context, extension, label string) error {
	query := `
		UPDATE domain_pricing
		SET "group" = $1
		WHERE extension = $2
	`

	res, err := r.db.ExecContext(ctx, query, label, extension)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("extension %s not found", extension)
	}
	return nil
}

// ListExtensions returns the distinct extensions present in the store
func (r *pricingRepository) ListExtensions(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT extension
		FROM domain_pricing
		ORDER BY extension
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	defer rows.Close()

	var extensions []string
	for rows.Next() {
		var ext string
		if err := rows.Scan(&ext); err != nil {
			return nil, fmt.Errorf("failed to scan extension: %w", err)
		}
		extensions = append(extensions, ext)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extensions: %w", err)
	}

	return extensions, nil
}

// ListRows retrieves every row with its price cells
func (r *pricingRepository) ListRows(ctx context.Context) ([]*domain.PricingRow, error) {
	query := `
		SELECT id, extension, "group"
		FROM domain_pricing
		ORDER BY extension, created_at, id
	`

	rows, err := r.queryRows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing rows: %w", err)
	}
	if err := r.attachCells(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *pricingRepository) queryRows(ctx context.Context, query string, args ...interface{}) ([]*domain.PricingRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.PricingRow
	for rows.Next() {
		row := &domain.PricingRow{CurrencyID: r.currencyID}
		if err := rows.Scan(&row.ID, &row.Extension, &row.Group); err != nil {
			return nil, fmt.Errorf("failed to scan pricing row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pricing rows: %w", err)
	}

	return result, nil
}

// attachCells loads the price cells of the given rows in one query
func (r *pricingRepository) attachCells(ctx context.Context, rows []*domain.PricingRow) error {
	if len(rows) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.PricingRow, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
		ids = append(ids, row.ID.String())
	}

	query := fmt.Sprintf(`
		SELECT relid, type, %s
		FROM pricing
		WHERE relid = ANY($1::uuid[]) AND currency = $2
	`, strings.Join(termColumns[:], ", "))

	cells, err := r.db.QueryContext(ctx, query, pq.Array(ids), r.currencyID)
	if err != nil {
		return fmt.Errorf("failed to load price cells: %w", err)
	}
	defer cells.Close()

	for cells.Next() {
		var (
			relID       uuid.UUID
			pricingType string
			prices      domain.TermPrices
		)

		dest := make([]interface{}, 0, 2+len(prices))
		dest = append(dest, &relID, &pricingType)
		for i := range prices {
			dest = append(dest, &prices[i])
		}
		if err := cells.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan price cells: %w", err)
		}

		row, ok := byID[relID]
		if !ok {
			continue
		}
		priceType, ok := priceTypeOf(pricingType)
		if !ok {
			continue
		}
		if row.Prices == nil {
			row.Prices = make(map[domain.PriceType]*domain.TermPrices, len(pricingTypes))
		}
		row.Prices[priceType] = &prices
	}
	if err := cells.Err(); err != nil {
		return fmt.Errorf("error iterating price cells: %w", err)
	}

	return nil
}

func priceTypeOf(pricingType string) (domain.PriceType, bool) {
	for priceType, stored := range pricingTypes {
		if stored == pricingType {
			return priceType, true
		}
	}
	return "", false
}
