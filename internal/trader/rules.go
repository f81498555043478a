package trader

import (
	"time"

	"headless-trader/internal/config"
	"headless-trader/internal/models"
)

// SkipReason explains why no tier was evaluated.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipOutsideHours  SkipReason = "outside_trading_hours"
	SkipMinInterval   SkipReason = "min_trade_interval"
	SkipTradeCap      SkipReason = "max_daily_trades"
	SkipNoPrice       SkipReason = "no_price"
	SkipStalePrice    SkipReason = "stale_price"
	SkipNoTierMatched SkipReason = "no_tier_matched"
)

// Counters is the safety bookkeeping the rule engine reads.
type Counters struct {
	TradeCount    int
	LastTradeTime time.Time // zero if no trade yet
}

// Evaluate selects at most one firing tier for sample. Guards apply in
// order: trading hours, trade spacing and cap, then price availability
// and freshness. UP tiers are scanned in level order before DOWN, and the
// first enabled tier whose target is at or above the price wins.
func Evaluate(sample models.PriceSample, doc *config.Document, c Counters, now time.Time) (*models.Decision, SkipReason) {
	if !withinHours(now, doc.Safety.TradingHours) {
		return nil, SkipOutsideHours
	}
	if !c.LastTradeTime.IsZero() && now.Sub(c.LastTradeTime) < config.Seconds(doc.Safety.MinTradeInterval) {
		return nil, SkipMinInterval
	}
	if c.TradeCount >= doc.Safety.MaxDailyTrades {
		return nil, SkipTradeCap
	}
	if !sample.Complete() {
		return nil, SkipNoPrice
	}
	if !sample.Fresh(now, config.Seconds(doc.Monitoring.MaxPriceAge)) {
		return nil, SkipStalePrice
	}

	for _, side := range models.Sides {
		price := *sample.Price(side)
		for _, tier := range doc.Tiers.OnSide(side) {
			if tier.Enabled && price <= tier.TargetPrice {
				return &models.Decision{
					Key:         tier.Key,
					Amount:      tier.Amount,
					TargetPrice: tier.TargetPrice,
					Price:       price,
				}, SkipNone
			}
		}
	}
	return nil, SkipNoTierMatched
}

// withinHours compares HH:MM strings inclusively. Overnight windows
// (start > end) never match.
func withinHours(now time.Time, h config.TradingHours) bool {
	current := now.Format("15:04")
	return h.Start <= current && current <= h.End
}
