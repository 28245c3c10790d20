package pricecalc

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize converts a locale-formatted wholesale price such as "Rp45.000" or
// "1.234,50" into a decimal. It never fails: anything it cannot read becomes zero.
//
// A value containing only dots treats them as thousands separators. A value
// containing a comma treats dots as thousands separators and the comma as the
// decimal point.
func Normalize(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}

	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	} else {
		clean = strings.ReplaceAll(clean, ".", "")
	}

	if clean == "" {
		return decimal.Zero
	}

	value, err := decimal.NewFromString(clean)
	if err != nil || value.IsNegative() {
		return decimal.Zero
	}
	return value
}
