package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CellChange records one price cell rewritten by reconciliation
type CellChange struct {
	Type     PriceType           `json:"type"`
	Term     Term                `json:"term"`
	Previous decimal.NullDecimal `json:"previous"`
	Current  decimal.Decimal     `json:"current"`
}

// PriceChangeEvent is emitted after reconciliation materially changed a key
type PriceChangeEvent struct {
	ID          uuid.UUID    `json:"id"`
	Extension   string       `json:"extension"`
	RowID       uuid.UUID    `json:"row_id"`
	Created     bool         `json:"created"`
	PromoActive bool         `json:"promo_active"`
	GroupLabel  string       `json:"group_label"`
	Changes     []CellChange `json:"changes"`
	OccurredAt  time.Time    `json:"occurred_at"`
}
