package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"headless-trader/internal/market"
	"headless-trader/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sourceTier   = "tier"
	sourceManual = "manual"
)

// Executor places the buy for a decision, unwinds the opposite side and
// books the result. Callers serialize access to the surface.
type Executor struct {
	surface   market.Surface
	state     *State
	db        *gorm.DB // optional ledger
	logger    *zap.Logger
	simulated bool
	now       func() time.Time
}

// NewExecutor creates an executor. db may be nil.
func NewExecutor(surface market.Surface, state *State, db *gorm.DB, simulated bool, logger *zap.Logger) *Executor {
	return &Executor{
		surface:   surface,
		state:     state,
		db:        db,
		logger:    logger.Named("executor"),
		simulated: simulated,
		now:       time.Now,
	}
}

// Execute runs a fired tier. It returns false if the buy failed, in which
// case the tier stays enabled. On success the tier is disabled and saved.
func (x *Executor) Execute(ctx context.Context, sessionID string, d models.Decision) bool {
	l := x.logger.With(
		zap.String("tier", d.Key.String()),
		zap.Float64("price", d.Price),
		zap.Float64("target", d.TargetPrice),
		zap.Float64("amount", d.Amount),
	)
	l.Info("Tier fired, executing trade...")

	unwind, err := x.buyAndUnwind(ctx, d.Key.Side, d.Amount)
	if err != nil {
		l.Error("Buy failed, tier stays armed", zap.Error(err))
		return false
	}

	x.state.RecordTrade(x.now())
	if err := x.state.ConsumeTier(d.Key); err != nil {
		l.Error("Failed to persist consumed tier", zap.Error(err))
	}

	x.book(sessionID, d.Key.Side, int(d.Key.Level), sourceTier, d.Amount, d.Price, unwind)
	return true
}

// ManualBuy buys amount on side outside the tier rules and safety guards.
// No tier is consumed.
func (x *Executor) ManualBuy(ctx context.Context, sessionID string, side models.Side, amount float64) error {
	x.logger.Info("Manual buy", zap.String("side", string(side)), zap.Float64("amount", amount))
	unwind, err := x.buyAndUnwind(ctx, side, amount)
	if err != nil {
		return err
	}
	x.state.RecordTrade(x.now())

	var price float64
	if p := x.state.Sample().Price(side); p != nil {
		price = *p
	}
	x.book(sessionID, side, 0, sourceManual, amount, price, unwind)
	return nil
}

// buyAndUnwind places the buy, then sells the opposite side. The sell
// outcome never fails the buy.
func (x *Executor) buyAndUnwind(ctx context.Context, side models.Side, amount float64) (market.SellResult, error) {
	if err := x.surface.SubmitBuy(ctx, side, amount); err != nil {
		mtxBuyFailures.WithLabelValues(string(side)).Inc()
		return market.SellFailed, fmt.Errorf("buy %s $%.2f: %w", side, amount, err)
	}

	opposite := side.Opposite()
	result, err := x.surface.SubmitSell(ctx, opposite)
	switch {
	case result == market.NothingToSell || errors.Is(err, market.ErrNoPosition):
		result = market.NothingToSell
		x.logger.Debug("Nothing to sell on opposite side", zap.String("side", string(opposite)))
	case err != nil || result == market.SellFailed:
		result = market.SellFailed
		x.logger.Warn("Compensating sell failed", zap.String("side", string(opposite)), zap.Error(err))
	default:
		x.logger.Info("Sold opposite side", zap.String("side", string(opposite)))
	}
	mtxUnwinds.WithLabelValues(result.String()).Inc()
	return result, nil
}

func (x *Executor) book(sessionID string, side models.Side, level int, source string, amount, price float64, unwind market.SellResult) {
	now := x.now()
	mtxTrades.WithLabelValues(string(side), source).Inc()

	if x.db != nil {
		trade := models.Trade{
			TradeID:      uuid.NewString(),
			SessionID:    sessionID,
			Side:         string(side),
			Level:        level,
			Source:       source,
			Amount:       amount,
			Price:        price,
			Unwind:       unwind.String(),
			Timestamp:    now.Unix(),
			IsSimulation: x.simulated,
		}
		if err := x.db.Create(&trade).Error; err != nil {
			// The trade happened; a ledger failure does not undo it.
			x.logger.Error("Failed to save trade record to database", zap.Error(err))
		}
	}

	// Stats aggregation keys on this exact message.
	x.logger.Info(fmt.Sprintf("trade verified: Bought %s $%.2f", side, amount),
		zap.String("source", source),
		zap.String("unwind", unwind.String()),
	)
}
