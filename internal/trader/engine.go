package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"headless-trader/internal/config"
	"headless-trader/internal/market"
	"headless-trader/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotRunning        = errors.New("trader is not running")
	ErrAlreadyRunning    = errors.New("trader is already running")
	ErrNoEndpoint        = errors.New("no market URL configured")
	ErrMarketUnavailable = errors.New("market unavailable")
)

// Engine drives the poll loop and supervises its failures. All market
// interactions, from the loop and from commands, are serialized.
type Engine struct {
	logger   *zap.Logger
	surface  market.Surface
	observer *market.Observer
	executor *Executor
	state    *State

	marketMu sync.Mutex

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewEngine creates a stopped engine.
func NewEngine(logger *zap.Logger, surface market.Surface, state *State, db *gorm.DB, simulated bool) *Engine {
	return &Engine{
		logger:   logger.Named("engine"),
		surface:  surface,
		observer: market.NewObserver(surface, logger),
		executor: NewExecutor(surface, state, db, simulated, logger),
		state:    state,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// State exposes the shared trading state.
func (e *Engine) State() *State {
	return e.state
}

// Start acquires a session and begins polling. A non-empty url replaces
// the stored market URL.
func (e *Engine) Start(ctx context.Context, url string) error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.state.Running() {
		return ErrAlreadyRunning
	}
	if e.done != nil {
		// A loop that stopped itself has already exited; wait for it anyway.
		<-e.done
	}
	if url != "" {
		if err := e.state.SetURL(url); err != nil {
			e.logger.Error("Failed to persist market URL", zap.Error(err))
		}
	}
	doc := e.state.Document()
	if doc.Website.URL == "" {
		return ErrNoEndpoint
	}

	e.marketMu.Lock()
	err := e.surface.Connect(ctx, doc.Website.URL)
	if err == nil {
		e.applyAutoAmounts(ctx, doc.AmountStrategy)
	}
	e.marketMu.Unlock()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	sessionID := uuid.NewString()
	e.state.setRunning(sessionID, e.now())

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx, e.done)

	e.logger.Info("Trader started", zap.String("url", doc.Website.URL), zap.String("session_id", sessionID))
	return nil
}

// Stop halts the loop and closes the session.
func (e *Engine) Stop(ctx context.Context) error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if !e.state.Running() {
		return ErrNotRunning
	}
	e.state.setStopped()
	e.cancel()
	<-e.done

	e.marketMu.Lock()
	defer e.marketMu.Unlock()
	if err := e.surface.Close(ctx); err != nil {
		e.logger.Warn("Failed to close session", zap.Error(err))
	}
	e.logger.Info("Trader stopped")
	return nil
}

// RestartSession restarts the market session on demand.
func (e *Engine) RestartSession(ctx context.Context) error {
	if !e.state.Running() {
		return ErrNotRunning
	}
	e.marketMu.Lock()
	defer e.marketMu.Unlock()
	return e.restartSession(ctx)
}

// ResetTiers re-arms every tier.
func (e *Engine) ResetTiers() error {
	if err := e.state.ResetTiers(); err != nil {
		return err
	}
	e.logger.Info("All tiers re-armed")
	return nil
}

// ManualBuy buys amount on side immediately, bypassing tier rules and safety guards.
func (e *Engine) ManualBuy(ctx context.Context, side models.Side, amount float64) error {
	if !side.Valid() {
		return fmt.Errorf("invalid side %q", side)
	}
	if amount <= 0 {
		return errors.New("amount must be positive")
	}
	if !e.state.Running() {
		return ErrNotRunning
	}
	e.marketMu.Lock()
	defer e.marketMu.Unlock()
	return e.executor.ManualBuy(ctx, e.state.Status().SessionID, side, amount)
}

// run is the supervised poll loop. It exits when ctx is cancelled or a
// session restart fails.
func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := config.Seconds(e.state.Document().Monitoring.PriceCheckInterval)
	e.logger.Info("Starting poll loop", zap.Duration("interval", interval))

	for e.cycle(ctx) {
	}
	e.logger.Info("Poll loop exited")
}

// cycle runs one tick and the follow-up wait. It returns false when the
// loop must end.
func (e *Engine) cycle(ctx context.Context) bool {
	mon := e.state.Document().Monitoring

	err := e.tick(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err == nil {
		e.state.resetFailures()
		return e.sleep(ctx, config.Seconds(mon.PriceCheckInterval))
	}

	mtxTickFailures.Inc()
	failures := e.state.failure()
	e.logger.Error("Poll cycle failed", zap.Int("consecutive_failures", failures), zap.Error(err))

	if failures < mon.BrowserRestartThreshold {
		return e.sleep(ctx, config.Seconds(mon.FailureBackoff))
	}

	e.logger.Warn("Failure threshold reached, restarting session",
		zap.Int("consecutive_failures", failures),
		zap.Int("threshold", mon.BrowserRestartThreshold),
	)
	e.marketMu.Lock()
	err = e.restartSession(ctx)
	e.marketMu.Unlock()
	if ctx.Err() != nil {
		// Stopped during the restart.
		return false
	}
	if err != nil {
		e.logger.Error("Session restart failed, stopping trader", zap.Error(err))
		e.state.setStopped()
		return false
	}
	e.state.resetFailures()
	return e.sleep(ctx, config.Seconds(mon.PriceCheckInterval))
}

// tick observes, evaluates and executes once. A panic is reported as an error.
func (e *Engine) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	e.marketMu.Lock()
	defer e.marketMu.Unlock()
	mtxTicks.Inc()

	doc := e.state.Document()
	sample, err := e.observer.Sample(ctx, doc.Monitoring.RetryCount, config.Seconds(doc.Headless.ElementWaitTimeout))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarketUnavailable, err)
	}
	if sample.Complete() {
		e.state.SetSample(sample)
	}

	decision, reason := Evaluate(sample, &doc, e.state.Counters(), e.now())
	if decision == nil {
		mtxSkips.WithLabelValues(string(reason)).Inc()
		e.logger.Debug("No tier fired", zap.String("reason", string(reason)))
		return nil
	}

	e.executor.Execute(ctx, e.state.Status().SessionID, *decision)
	return nil
}

// restartSession tears down and re-acquires the session. Callers hold marketMu.
func (e *Engine) restartSession(ctx context.Context) error {
	doc := e.state.Document()
	if doc.Website.URL == "" {
		return ErrNoEndpoint
	}
	if err := e.surface.Close(ctx); err != nil {
		e.logger.Warn("Failed to close session before restart", zap.Error(err))
	}
	if !e.sleep(ctx, config.Seconds(doc.Monitoring.RestartDelay)) {
		return ctx.Err()
	}
	if err := e.surface.RestartSession(ctx, doc.Website.URL); err != nil {
		mtxRestarts.WithLabelValues("failed").Inc()
		return fmt.Errorf("restart session: %w", err)
	}
	mtxRestarts.WithLabelValues("ok").Inc()
	e.state.setSessionID(uuid.NewString())
	e.logger.Info("Session restarted")
	return nil
}

// applyAutoAmounts derives tier amounts from the cash balance when the
// amount strategy is enabled. Failures leave the amounts unchanged.
func (e *Engine) applyAutoAmounts(ctx context.Context, s config.AmountStrategy) {
	if !s.Enabled {
		return
	}
	cash, err := e.surface.QueryBalance(ctx)
	if err != nil {
		e.logger.Warn("Could not read balance, keeping configured amounts", zap.Error(err))
		return
	}
	amounts := CalculateAmounts(cash, s)
	if amounts == nil {
		e.logger.Warn("Non-positive balance, keeping configured amounts", zap.Float64("cash", cash))
		return
	}
	if err := e.state.SetAmounts(amounts); err != nil {
		e.logger.Error("Failed to persist calculated amounts", zap.Error(err))
		return
	}
	e.logger.Info("Tier amounts set from balance", zap.Float64("cash", cash), zap.Float64s("amounts", amounts))
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
