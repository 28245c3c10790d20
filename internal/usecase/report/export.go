package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

var csvHeader = []string{"Extension", "Register", "Renew", "Transfer", "Group"}

// ExportCSV writes the year-1 prices of every extension's canonical row
func (s *ReportService) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.Store.ListRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pricing rows: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	grouped, keys := groupByExtension(rows)
	for _, ext := range keys {
		resolution := domain.ResolveCanonicalRow(grouped[ext])
		record := []string{ext, "", "", "", ""}
		if resolution.Row != nil {
			record[1] = cellString(resolution.Row, domain.PriceTypeRegister)
			record[2] = cellString(resolution.Row, domain.PriceTypeRenew)
			record[3] = cellString(resolution.Row, domain.PriceTypeTransfer)
			record[4] = resolution.Row.Group
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", ext, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func cellString(row *domain.PricingRow, priceType domain.PriceType) string {
	price, ok := row.Cell(priceType, domain.MinTerm)
	if !ok {
		return ""
	}
	return price.StringFixed(2)
}

// FormatCurrency renders an amount for operators, e.g. "Rp 45.000" or "$1,234.50"
func FormatCurrency(amount decimal.Decimal, currency string) string {
	value := amount.InexactFloat64()

	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "IDR", "":
		return "Rp " + humanize.FormatFloat("#.###,", value)
	case "USD":
		return "$" + humanize.FormatFloat("#,###.##", value)
	default:
		return humanize.FormatFloat("#,###.##", value) + " " + strings.ToUpper(currency)
	}
}
