package trader

import (
	"math"
	"testing"

	"headless-trader/internal/config"
	"headless-trader/internal/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func defaultStrategy() config.AmountStrategy {
	return config.DefaultDocument().AmountStrategy
}

func TestCalculateAmounts_Geometric(t *testing.T) {
	amounts := CalculateAmounts(100, defaultStrategy())
	assert.Equal(t, []float64{0.40, 0.50, 0.64, 0.81, 1.03}, amounts)
}

func TestCalculateAmounts_ClampsLevels(t *testing.T) {
	s := defaultStrategy()

	s.Levels = 9
	assert.Len(t, CalculateAmounts(100, s), models.MaxLevel)

	s.Levels = 0
	assert.Equal(t, []float64{0.40}, CalculateAmounts(100, s))

	s.Levels = 2
	assert.Equal(t, []float64{0.40, 0.50}, CalculateAmounts(100, s))
}

func TestCalculateAmounts_NonPositiveCashIsNoop(t *testing.T) {
	assert.Nil(t, CalculateAmounts(0, defaultStrategy()))
	assert.Nil(t, CalculateAmounts(-5, defaultStrategy()))

	tiers := config.DefaultDocument().Tiers
	before := tiers
	ApplyAmounts(&tiers, CalculateAmounts(0, defaultStrategy()))
	assert.Equal(t, before, tiers)
}

func TestApplyAmounts_WritesBothSides(t *testing.T) {
	tiers := config.DefaultDocument().Tiers
	ApplyAmounts(&tiers, []float64{0.4, 0.5})

	for _, side := range models.Sides {
		got := tiers.OnSide(side)
		assert.Equal(t, 0.4, got[0].Amount)
		assert.Equal(t, 0.5, got[1].Amount)
		assert.Equal(t, 4.0, got[2].Amount) // untouched default
	}
}

func TestCalculateAmounts_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	round2 := func(v float64) float64 { return math.Round(v*100) / 100 }
	within := func(a, b float64) bool { return math.Abs(a-b) <= 0.0100001 }

	properties.Property("each level is the rounded predecessor times its factor", prop.ForAll(
		func(cash float64, levels int) bool {
			s := defaultStrategy()
			s.Levels = levels
			amounts := CalculateAmounts(cash, s)
			if len(amounts) != levels {
				return false
			}
			if !within(amounts[0], round2(cash*0.004)) {
				return false
			}
			for k := 1; k < len(amounts); k++ {
				factor := 1.27
				if k == 1 {
					factor = 1.24
				}
				if !within(amounts[k], round2(amounts[k-1]*factor)) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(1, 1_000_000),
		gen.IntRange(1, models.MaxLevel),
	))

	properties.Property("amounts carry at most two decimals", prop.ForAll(
		func(cash float64) bool {
			for _, a := range CalculateAmounts(cash, defaultStrategy()) {
				if math.Abs(a*100-math.Round(a*100)) > 1e-6 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0.01, 1_000_000),
	))

	properties.TestingRun(t)
}
