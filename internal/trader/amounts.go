package trader

import (
	"headless-trader/internal/config"
	"headless-trader/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateAmounts derives per-level trade amounts from cash. Level 1 is
// cash*initial, level 2 is level 1*first rebound, and every further level
// is the previous one times the n-th rebound. Each amount is rounded to
// cents and the next level is computed from the rounded value. Percent
// fields are percentages. Non-positive cash yields nil.
func CalculateAmounts(cash float64, s config.AmountStrategy) []float64 {
	if cash <= 0 {
		return nil
	}
	levels := s.Levels
	if levels < 1 {
		levels = 1
	}
	if levels > models.MaxLevel {
		levels = models.MaxLevel
	}

	initial := decimal.NewFromFloat(s.InitialPercent).Div(hundred)
	first := decimal.NewFromFloat(s.FirstReboundPercent).Div(hundred)
	next := decimal.NewFromFloat(s.NReboundPercent).Div(hundred)

	amounts := make([]float64, 0, levels)
	prev := decimal.NewFromFloat(cash).Mul(initial).Round(2)
	amounts = append(amounts, prev.InexactFloat64())
	for k := 2; k <= levels; k++ {
		factor := next
		if k == 2 {
			factor = first
		}
		prev = prev.Mul(factor).Round(2)
		amounts = append(amounts, prev.InexactFloat64())
	}
	return amounts
}

// ApplyAmounts writes amounts[k-1] into both sides of level k.
func ApplyAmounts(tiers *models.TierTable, amounts []float64) {
	for i, a := range amounts {
		tiers.SetAmount(models.Level(i+1), a)
	}
}
