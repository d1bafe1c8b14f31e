// Package ledger settles bets against graded outcomes and applies the pnl to
// each expert's seasonal bankroll. Every settlement path is idempotent.
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"council/internal/reason"
)

const (
	OddsAmerican   = "american"
	OddsDecimal    = "decimal"
	OddsFractional = "fractional"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ProfitMultiplier converts odds in any supported format into the profit per
// unit staked on a winning bet. Decimal odds of 2.5 and american odds of +150
// both yield 1.5; fractional "3/2" likewise.
func ProfitMultiplier(format, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	switch format {
	case OddsAmerican:
		return americanMultiplier(value)
	case OddsDecimal:
		return decimalMultiplier(value)
	case OddsFractional:
		return fractionalMultiplier(value)
	default:
		return decimal.Zero, reason.Validation("unknown odds format %q", format)
	}
}

func americanMultiplier(value string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimPrefix(value, "+"))
	if err != nil {
		return decimal.Zero, reason.Validation("bad american odds %q", value)
	}
	if v.Abs().LessThan(hundred) {
		return decimal.Zero, reason.Validation("american odds %q inside +-100", value)
	}
	if v.IsPositive() {
		// +150 pays 1.5x the stake.
		return v.Div(hundred), nil
	}
	// -120 pays 100/120 of the stake.
	return hundred.Div(v.Neg()), nil
}

func decimalMultiplier(value string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, reason.Validation("bad decimal odds %q", value)
	}
	if v.LessThan(one) {
		return decimal.Zero, reason.Validation("decimal odds %q below 1.0", value)
	}
	return v.Sub(one), nil
}

func fractionalMultiplier(value string) (decimal.Decimal, error) {
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return decimal.Zero, reason.Validation("bad fractional odds %q", value)
	}
	num, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return decimal.Zero, reason.Validation("bad fractional odds %q", value)
	}
	den, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil || den.IsZero() {
		return decimal.Zero, reason.Validation("bad fractional odds %q", value)
	}
	if num.IsNegative() || den.IsNegative() {
		return decimal.Zero, reason.Validation("negative fractional odds %q", value)
	}
	return num.Div(den), nil
}
