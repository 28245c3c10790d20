package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultCurrency is used when an upstream entry carries no currency code
const DefaultCurrency = "IDR"

// FlexString holds a JSON scalar that upstream may send as a string, a number or null.
// Numbers are kept verbatim so the price normalizer sees exactly what was sent.
type FlexString string

// UnmarshalJSON accepts strings, numbers, booleans and null
func (s *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}

	if trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}

	*s = FlexString(trimmed)
	return nil
}

// String returns the raw value
func (s FlexString) String() string {
	return string(s)
}

// IsEmpty reports whether the value is missing or blank
func (s FlexString) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// CatalogEntry represents one TLD as published by the upstream wholesale price list.
// It lives for a single sync cycle only.
type CatalogEntry struct {
	Extension    string      `json:"extension"`
	Registration FlexString  `json:"registration"`
	Renewal      FlexString  `json:"renewal"`
	Transfer     FlexString  `json:"transfer"`
	Redemption   FlexString  `json:"redemption,omitempty"`
	Currency     string      `json:"currency,omitempty"`
	Promo        *PromoOffer `json:"promo,omitempty"`
}

// PromoOffer is a time-boxed discounted registration price for a given contract term
type PromoOffer struct {
	Registration FlexString `json:"registration"`
	Renewal      FlexString `json:"renewal,omitempty"`
	StartDate    string     `json:"start_date"`
	EndDate      string     `json:"end_date"`
	Terms        FlexString `json:"terms,omitempty"`
}

// Key returns the catalog key used to correlate upstream and stored pricing.
// It is the normalized extension, the same form import and selection use.
func (e CatalogEntry) Key() string {
	return NormalizeExtension(e.Extension)
}

// CurrencyCode returns the entry currency, falling back to DefaultCurrency
func (e CatalogEntry) CurrencyCode() string {
	if c := strings.TrimSpace(e.Currency); c != "" {
		return c
	}
	return DefaultCurrency
}

// NormalizeExtension turns operator input such as "ID" or " .id" into ".id"
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
