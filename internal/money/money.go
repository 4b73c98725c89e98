// Package money converts integer cent amounts at the edges of the system.
// Amounts are int64 cents everywhere else.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FromCents returns the decimal value of an amount in minor units.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// GatewayValue renders cents the way payment APIs expect: "80.00".
func GatewayValue(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// ParseGatewayValue turns a gateway amount string back into cents.
func ParseGatewayValue(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// EUR formats cents in es-ES style: "1.234,56 €".
func EUR(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	fixed := FromCents(cents).StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	b.WriteString(" €")
	return b.String()
}
