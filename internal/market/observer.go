package market

import (
	"context"
	"fmt"
	"time"

	"headless-trader/internal/models"

	"go.uber.org/zap"
)

// Observer samples the price pair from a Surface with bounded retries.
type Observer struct {
	surface Surface
	logger  *zap.Logger
	now     func() time.Time
}

// NewObserver creates an observer over surface.
func NewObserver(surface Surface, logger *zap.Logger) *Observer {
	return &Observer{surface: surface, logger: logger.Named("observer"), now: time.Now}
}

// Sample reads the price pair, making up to attempts tries each bounded by
// timeout. A side missing from the primary read is looked up through the
// surface's LabelSource, when it has one. If no attempt yields a price the
// sample has both sides nil. The error is non-nil only when every attempt
// failed at the transport level.
func (o *Observer) Sample(ctx context.Context, attempts int, timeout time.Duration) (models.PriceSample, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	failures := 0
	for i := 0; i < attempts; i++ {
		prices, err := o.attempt(ctx, timeout)
		if err != nil {
			failures++
			lastErr = err
			o.logger.Debug("Price read failed", zap.Int("attempt", i+1), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !prices.Empty() {
			return models.PriceSample{Up: prices.Up, Down: prices.Down, ObservedAt: o.now()}, nil
		}
		o.logger.Debug("No prices found on page", zap.Int("attempt", i+1))
	}

	sample := models.PriceSample{ObservedAt: o.now()}
	if failures == attempts {
		return sample, fmt.Errorf("price read failed after %d attempts: %w", attempts, lastErr)
	}
	o.logger.Warn("Prices unavailable", zap.Int("attempts", attempts))
	return sample, nil
}

func (o *Observer) attempt(ctx context.Context, timeout time.Duration) (Prices, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prices, err := o.surface.QueryPrices(actx)
	if err != nil {
		return Prices{}, err
	}
	if prices.Up != nil && prices.Down != nil {
		return prices, nil
	}

	labels, ok := o.surface.(LabelSource)
	if !ok {
		return prices, nil
	}
	secondary, err := labels.QueryLabels(actx)
	if err != nil {
		o.logger.Debug("Label read failed", zap.Error(err))
		return prices, nil
	}
	if prices.Up == nil {
		prices.Up = secondary.Up
	}
	if prices.Down == nil {
		prices.Down = secondary.Down
	}
	return prices, nil
}
