package trader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"headless-trader/internal/config"
	"headless-trader/internal/models"
)

// Persister saves the trading document.
type Persister interface {
	Save(doc config.Document) error
}

// ErrInvalidConfig is returned for a config edit that fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// State is the shared, lock-guarded trading state: the document, safety
// counters, the last price sample and the session state.
type State struct {
	mu    sync.RWMutex
	doc   config.Document
	store Persister

	tradeCount    int
	lastTradeTime time.Time
	sample        models.PriceSample

	running   bool
	sessionID string
	startedAt time.Time
	failures  int
}

// NewState wraps doc. Every mutation of doc is saved through store.
func NewState(doc config.Document, store Persister) *State {
	return &State{doc: doc, store: store}
}

// Document returns a copy of the current document.
func (s *State) Document() config.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Counters returns the safety counters.
func (s *State) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counters{TradeCount: s.tradeCount, LastTradeTime: s.lastTradeTime}
}

// RecordTrade counts one executed trade. The count is never reset.
func (s *State) RecordTrade(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeCount++
	s.lastTradeTime = now
}

// ConsumeTier disables key and saves the document. The tier stays disabled
// in memory even if the save fails.
func (s *State) ConsumeTier(key models.TierKey) error {
	return s.mutate(func(doc *config.Document) error {
		if !doc.Tiers.SetEnabled(key, false) {
			return fmt.Errorf("unknown tier %s", key)
		}
		return nil
	})
}

// ResetTiers re-arms every tier.
func (s *State) ResetTiers() error {
	return s.mutate(func(doc *config.Document) error {
		doc.Tiers.EnableAll()
		return nil
	})
}

// SetAmounts writes calculated amounts into both sides.
func (s *State) SetAmounts(amounts []float64) error {
	return s.mutate(func(doc *config.Document) error {
		ApplyAmounts(&doc.Tiers, amounts)
		return nil
	})
}

// SetURL stores the market endpoint.
func (s *State) SetURL(url string) error {
	return s.mutate(func(doc *config.Document) error {
		doc.Website.URL = url
		return nil
	})
}

// ConfigEdit is a partial update of the document. Nil fields are unchanged.
type ConfigEdit struct {
	WebsiteURL *string             `json:"website_url"`
	Tiers      map[string]TierEdit `json:"tiers"`
	Safety     *SafetyEdit         `json:"safety"`
}

// TierEdit is a partial update of one tier.
type TierEdit struct {
	TargetPrice *float64 `json:"target_price"`
	Amount      *float64 `json:"amount"`
	Enabled     *bool    `json:"enabled"`
}

// SafetyEdit is a partial update of the safety guards.
type SafetyEdit struct {
	MinTradeInterval *float64             `json:"min_trade_interval"`
	MaxDailyTrades   *int                 `json:"max_daily_trades"`
	TradingHours     *config.TradingHours `json:"trading_hours"`
}

// ApplyEdit validates and applies edit atomically.
func (s *State) ApplyEdit(edit ConfigEdit) error {
	return s.mutate(func(doc *config.Document) error {
		if err := applyEdit(doc, edit); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return nil
	})
}

func applyEdit(doc *config.Document, edit ConfigEdit) error {
	next := *doc
	if edit.WebsiteURL != nil {
		url := strings.TrimSpace(*edit.WebsiteURL)
		if url == "" {
			return errors.New("website_url must not be empty")
		}
		next.Website.URL = url
	}
	for name, te := range edit.Tiers {
		key, err := models.ParseTierKey(name)
		if err != nil {
			return err
		}
		tier, _ := next.Tiers.Get(key)
		if te.TargetPrice != nil {
			if *te.TargetPrice <= 0 || *te.TargetPrice > 100 {
				return fmt.Errorf("tier %s: target price must be in (0, 100]", key)
			}
			tier.TargetPrice = *te.TargetPrice
		}
		if te.Amount != nil {
			if *te.Amount <= 0 {
				return fmt.Errorf("tier %s: amount must be positive", key)
			}
			tier.Amount = *te.Amount
		}
		if te.Enabled != nil {
			tier.Enabled = *te.Enabled
		}
		next.Tiers.Set(tier)
	}
	if se := edit.Safety; se != nil {
		if se.MinTradeInterval != nil {
			if *se.MinTradeInterval < 0 {
				return errors.New("min_trade_interval must not be negative")
			}
			next.Safety.MinTradeInterval = *se.MinTradeInterval
		}
		if se.MaxDailyTrades != nil {
			if *se.MaxDailyTrades < 0 {
				return errors.New("max_daily_trades must not be negative")
			}
			next.Safety.MaxDailyTrades = *se.MaxDailyTrades
		}
		if h := se.TradingHours; h != nil {
			if !config.ValidClock(h.Start) || !config.ValidClock(h.End) {
				return errors.New("trading hours must be HH:MM")
			}
			next.Safety.TradingHours = *h
		}
	}
	*doc = next
	return nil
}

// mutate applies fn under the write lock and saves the result. When fn
// fails nothing is changed or saved.
func (s *State) mutate(fn func(doc *config.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	if err := fn(&doc); err != nil {
		return err
	}
	s.doc = doc
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(doc); err != nil {
		return fmt.Errorf("persist trading config: %w", err)
	}
	return nil
}

// SetSample records the latest observation.
func (s *State) SetSample(sample models.PriceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
}

// Sample returns the latest observation.
func (s *State) Sample() models.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sample
}

func (s *State) setRunning(sessionID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.sessionID = sessionID
	s.startedAt = now
	s.failures = 0
	mtxRunning.Set(1)
	mtxConsecutiveFailures.Set(0)
}

func (s *State) setStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	mtxRunning.Set(0)
}

func (s *State) setSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// Running reports whether the poll loop is in the Running state.
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *State) failure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	mtxConsecutiveFailures.Set(float64(s.failures))
	return s.failures
}

func (s *State) resetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	mtxConsecutiveFailures.Set(0)
}

// ConsecutiveFailures returns the current run of failed cycles.
func (s *State) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Status is a point-in-time view for the command surface.
type Status struct {
	Running             bool          `json:"running"`
	SessionID           string        `json:"session_id,omitempty"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	URL                 string        `json:"url"`
	Prices              PricesView    `json:"prices"`
	TradeCount          int           `json:"trade_count"`
	LastTradeTime       *time.Time    `json:"last_trade_time"`
	Tiers               []models.Tier `json:"tiers"`
	Safety              config.Safety `json:"safety"`
}

// PricesView is the last observed price pair.
type PricesView struct {
	Up         *float64   `json:"up"`
	Down       *float64   `json:"down"`
	LastUpdate *time.Time `json:"last_update"`
}

// Status returns a consistent snapshot of the state.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:             s.running,
		SessionID:           s.sessionID,
		StartedAt:           timePtr(s.startedAt),
		ConsecutiveFailures: s.failures,
		URL:                 s.doc.Website.URL,
		Prices:              pricesView(s.sample),
		TradeCount:          s.tradeCount,
		LastTradeTime:       timePtr(s.lastTradeTime),
		Tiers:               s.doc.Tiers.All(),
		Safety:              s.doc.Safety,
	}
}

func pricesView(sample models.PriceSample) PricesView {
	return PricesView{Up: sample.Up, Down: sample.Down, LastUpdate: timePtr(sample.ObservedAt)}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
