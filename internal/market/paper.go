package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"headless-trader/internal/models"

	"go.uber.org/zap"
)

// PaperSurface is an in-process simulated market. Prices follow a bounded
// random walk with DOWN mirroring UP, and buys accumulate into positions.
type PaperSurface struct {
	logger *zap.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	open      bool
	up        float64
	cash      float64
	positions map[models.Side]float64
}

var _ Surface = (*PaperSurface)(nil)

// NewPaperSurface creates a simulated surface holding cash.
func NewPaperSurface(cash float64, seed int64, logger *zap.Logger) *PaperSurface {
	return &PaperSurface{
		logger:    logger.Named("paper"),
		rng:       rand.New(rand.NewSource(seed)),
		up:        50,
		cash:      cash,
		positions: make(map[models.Side]float64),
	}
}

func (p *PaperSurface) Connect(_ context.Context, endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	p.logger.Info("Simulated session opened", zap.String("endpoint", endpoint))
	return nil
}

func (p *PaperSurface) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

func (p *PaperSurface) RestartSession(ctx context.Context, endpoint string) error {
	_ = p.Close(ctx)
	return p.Connect(ctx, endpoint)
}

// QueryPrices advances the walk by one step and returns the new pair.
func (p *PaperSurface) QueryPrices(context.Context) (Prices, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return Prices{}, ErrSessionClosed
	}
	p.up = math.Max(1, math.Min(99, p.up+p.rng.NormFloat64()*2))
	up := math.Round(p.up)
	down := 100 - up
	return Prices{Up: &up, Down: &down}, nil
}

func (p *PaperSurface) QueryBalance(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return 0, ErrSessionClosed
	}
	return p.cash, nil
}

func (p *PaperSurface) SubmitBuy(_ context.Context, side models.Side, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ErrSessionClosed
	}
	p.cash -= amount
	p.positions[side] += amount
	p.logger.Info("Simulated buy", zap.String("side", string(side)), zap.Float64("amount", amount))
	return nil
}

func (p *PaperSurface) SubmitSell(_ context.Context, side models.Side) (SellResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return SellFailed, ErrSessionClosed
	}
	held := p.positions[side]
	if held == 0 {
		return NothingToSell, ErrNoPosition
	}
	p.cash += held
	delete(p.positions, side)
	p.logger.Info("Simulated sell", zap.String("side", string(side)), zap.Float64("amount", held))
	return Sold, nil
}

// DefaultPaperSeed seeds a simulation from the clock.
func DefaultPaperSeed() int64 {
	return time.Now().UnixNano()
}
