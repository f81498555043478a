package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"headless-trader/internal/models"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Document is the durable trading configuration: tiers, safety guards,
// monitoring cadence and the amount strategy.
type Document struct {
	Website        Website
	Tiers          models.TierTable
	Headless       Headless
	Monitoring     Monitoring
	Safety         Safety
	AmountStrategy AmountStrategy
}

// Website holds the market page the session navigates to.
type Website struct {
	URL string `mapstructure:"url" json:"url"`
}

// Headless holds browser session options passed through to the gateway.
type Headless struct {
	Enabled            bool    `mapstructure:"enabled" json:"enabled"`
	WindowSize         string  `mapstructure:"window_size" json:"window_size"`
	UserAgent          string  `mapstructure:"user_agent" json:"user_agent"`
	PageLoadTimeout    float64 `mapstructure:"page_load_timeout" json:"page_load_timeout"`       // seconds
	ElementWaitTimeout float64 `mapstructure:"element_wait_timeout" json:"element_wait_timeout"` // seconds
}

// Monitoring holds the poll loop cadence and recovery thresholds.
type Monitoring struct {
	PriceCheckInterval      float64 `mapstructure:"price_check_interval" json:"price_check_interval"` // seconds
	MaxPriceAge             float64 `mapstructure:"max_price_age" json:"max_price_age"`               // seconds
	RetryCount              int     `mapstructure:"retry_count" json:"retry_count"`
	BrowserRestartThreshold int     `mapstructure:"browser_restart_threshold" json:"browser_restart_threshold"`
	FailureBackoff          float64 `mapstructure:"failure_backoff" json:"failure_backoff"` // seconds
	RestartDelay            float64 `mapstructure:"restart_delay" json:"restart_delay"`     // seconds
}

// Safety holds the execution guards.
type Safety struct {
	MinTradeInterval float64      `mapstructure:"min_trade_interval" json:"min_trade_interval"` // seconds
	MaxDailyTrades   int          `mapstructure:"max_daily_trades" json:"max_daily_trades"`
	TradingHours     TradingHours `mapstructure:"trading_hours" json:"trading_hours"`
}

// TradingHours is a same-day HH:MM window. Overnight windows are not supported.
type TradingHours struct {
	Start string `mapstructure:"start" json:"start"`
	End   string `mapstructure:"end" json:"end"`
}

// AmountStrategy derives tier amounts from the cash balance. Percent values
// are stored as percentages (0.4 means 0.4%).
type AmountStrategy struct {
	Enabled             bool    `mapstructure:"enabled" json:"enabled"`
	InitialPercent      float64 `mapstructure:"initial_percent" json:"initial_percent"`
	FirstReboundPercent float64 `mapstructure:"first_rebound_percent" json:"first_rebound_percent"`
	NReboundPercent     float64 `mapstructure:"n_rebound_percent" json:"n_rebound_percent"`
	Levels              int     `mapstructure:"levels" json:"levels"`
}

type tierConfig struct {
	TargetPrice float64 `mapstructure:"target_price" json:"target_price"`
	Amount      float64 `mapstructure:"amount" json:"amount"`
	Enabled     bool    `mapstructure:"enabled" json:"enabled"`
	Description string  `mapstructure:"description" json:"description,omitempty"`
}

// fileDocument is the on-disk layout, tiers keyed "Up1".."Down5".
type fileDocument struct {
	Website        Website               `json:"website"`
	Trading        map[string]tierConfig `json:"trading"`
	Headless       Headless              `json:"headless"`
	Monitoring     Monitoring            `json:"monitoring"`
	Safety         Safety                `json:"safety"`
	AmountStrategy AmountStrategy        `json:"amount_strategy"`
}

// Seconds converts a seconds value from the document into a Duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

var (
	defaultTargets = [models.MaxLevel]float64{45, 40, 35, 30, 25}
	defaultAmounts = [models.MaxLevel]float64{1, 2, 4, 8, 16}
	clockPattern   = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ValidClock reports whether v is a 24h HH:MM time.
func ValidClock(v string) bool {
	return clockPattern.MatchString(v)
}

// DefaultDocument returns the built-in trading document.
func DefaultDocument() Document {
	tiers := models.NewTierTable()
	for _, side := range models.Sides {
		for i := 0; i < models.MaxLevel; i++ {
			key := models.TierKey{Side: side, Level: models.Level(i + 1)}
			tiers.Set(models.Tier{
				Key:         key,
				TargetPrice: defaultTargets[i],
				Amount:      defaultAmounts[i],
				Enabled:     i == 0,
				Description: fmt.Sprintf("level %d %s: buy $%g when %s <= %g¢", i+1, side, defaultAmounts[i], side, defaultTargets[i]),
			})
		}
	}

	return Document{
		Tiers: tiers,
		Headless: Headless{
			Enabled:            true,
			WindowSize:         "1920,1080",
			UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			PageLoadTimeout:    30,
			ElementWaitTimeout: 5,
		},
		Monitoring: Monitoring{
			PriceCheckInterval:      2,
			MaxPriceAge:             10,
			RetryCount:              3,
			BrowserRestartThreshold: 10,
			FailureBackoff:          5,
			RestartDelay:            3,
		},
		Safety: Safety{
			MinTradeInterval: 30,
			MaxDailyTrades:   50,
			TradingHours:     TradingHours{Start: "00:00", End: "23:59"},
		},
		AmountStrategy: AmountStrategy{
			Enabled:             true,
			InitialPercent:      0.4,
			FirstReboundPercent: 124,
			NReboundPercent:     127,
			Levels:              5,
		},
	}
}

// TradingStore loads and saves the trading document as JSON.
type TradingStore struct {
	path   string
	logger *zap.Logger
}

// NewTradingStore creates a store backed by path.
func NewTradingStore(path string, logger *zap.Logger) *TradingStore {
	return &TradingStore{path: path, logger: logger.Named("trading-config")}
}

// Path returns the backing file path.
func (s *TradingStore) Path() string {
	return s.path
}

// Load reads the document, filling missing keys from defaults. A missing
// file is created from defaults. A malformed file, or a malformed section
// within it, falls back to defaults for that scope and is not an error.
func (s *TradingStore) Load() (Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Trading config not found, writing defaults", zap.String("path", s.path))
		doc := DefaultDocument()
		return doc, s.Save(doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read trading config: %w", err)
	}
	return s.decode(raw), nil
}

func (s *TradingStore) decode(raw []byte) Document {
	def := DefaultDocument()

	v := viper.New()
	v.SetConfigType("json")
	setDocumentDefaults(v, def)
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		s.logger.Error("Trading config is malformed, using defaults", zap.String("path", s.path), zap.Error(err))
		return def
	}

	// AllSettings merges file values over leaf defaults; re-reading the merged
	// tree lets each section decode independently.
	merged := viper.New()
	if err := merged.MergeConfigMap(v.AllSettings()); err != nil {
		s.logger.Error("Failed to merge trading config, using defaults", zap.Error(err))
		return def
	}

	doc := def
	doc.Website = decodeSection(s.logger, merged, "website", def.Website)
	doc.Headless = decodeSection(s.logger, merged, "headless", def.Headless)
	doc.Monitoring = decodeSection(s.logger, merged, "monitoring", def.Monitoring)
	doc.Safety = decodeSection(s.logger, merged, "safety", def.Safety)
	doc.AmountStrategy = decodeSection(s.logger, merged, "amount_strategy", def.AmountStrategy)

	for _, tier := range def.Tiers.All() {
		var tc tierConfig
		name := "trading." + strings.ToLower(tier.Key.String())
		if err := merged.UnmarshalKey(name, &tc); err != nil {
			s.logger.Warn("Malformed tier, using default", zap.String("tier", tier.Key.String()), zap.Error(err))
			continue
		}
		doc.Tiers.Set(models.Tier{
			Key:         tier.Key,
			TargetPrice: tc.TargetPrice,
			Amount:      tc.Amount,
			Enabled:     tc.Enabled,
			Description: tc.Description,
		})
	}

	if !ValidClock(doc.Safety.TradingHours.Start) || !ValidClock(doc.Safety.TradingHours.End) {
		s.logger.Warn("Malformed trading hours, using defaults",
			zap.String("start", doc.Safety.TradingHours.Start), zap.String("end", doc.Safety.TradingHours.End))
		doc.Safety.TradingHours = def.Safety.TradingHours
	}
	if doc.Monitoring.RetryCount < 1 {
		doc.Monitoring.RetryCount = 1
	}
	if doc.Monitoring.BrowserRestartThreshold < 1 {
		doc.Monitoring.BrowserRestartThreshold = def.Monitoring.BrowserRestartThreshold
	}
	return doc
}

func decodeSection[T any](logger *zap.Logger, v *viper.Viper, key string, fallback T) T {
	var out T
	if err := v.UnmarshalKey(key, &out); err != nil {
		logger.Warn("Malformed config section, using defaults", zap.String("section", key), zap.Error(err))
		return fallback
	}
	return out
}

// Save writes the whole document, replacing the file atomically.
func (s *TradingStore) Save(doc Document) error {
	fd := fileDocument{
		Website:        doc.Website,
		Trading:        make(map[string]tierConfig, 2*models.MaxLevel),
		Headless:       doc.Headless,
		Monitoring:     doc.Monitoring,
		Safety:         doc.Safety,
		AmountStrategy: doc.AmountStrategy,
	}
	for _, t := range doc.Tiers.All() {
		fd.Trading[t.Key.String()] = tierConfig{
			TargetPrice: t.TargetPrice,
			Amount:      t.Amount,
			Enabled:     t.Enabled,
			Description: t.Description,
		}
	}

	b, err := json.MarshalIndent(fd, "", "    ")
	if err != nil {
		return fmt.Errorf("encode trading config: %w", err)
	}
	if err := writeFileAtomic(s.path, append(b, '\n')); err != nil {
		s.logger.Error("Failed to save trading config", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("save trading config: %w", err)
	}
	s.logger.Debug("Trading config saved", zap.String("path", s.path))
	return nil
}

func setDocumentDefaults(v *viper.Viper, d Document) {
	v.SetDefault("website.url", d.Website.URL)
	for _, t := range d.Tiers.All() {
		prefix := "trading." + strings.ToLower(t.Key.String()) + "."
		v.SetDefault(prefix+"target_price", t.TargetPrice)
		v.SetDefault(prefix+"amount", t.Amount)
		v.SetDefault(prefix+"enabled", t.Enabled)
		v.SetDefault(prefix+"description", t.Description)
	}
	v.SetDefault("headless.enabled", d.Headless.Enabled)
	v.SetDefault("headless.window_size", d.Headless.WindowSize)
	v.SetDefault("headless.user_agent", d.Headless.UserAgent)
	v.SetDefault("headless.page_load_timeout", d.Headless.PageLoadTimeout)
	v.SetDefault("headless.element_wait_timeout", d.Headless.ElementWaitTimeout)
	v.SetDefault("monitoring.price_check_interval", d.Monitoring.PriceCheckInterval)
	v.SetDefault("monitoring.max_price_age", d.Monitoring.MaxPriceAge)
	v.SetDefault("monitoring.retry_count", d.Monitoring.RetryCount)
	v.SetDefault("monitoring.browser_restart_threshold", d.Monitoring.BrowserRestartThreshold)
	v.SetDefault("monitoring.failure_backoff", d.Monitoring.FailureBackoff)
	v.SetDefault("monitoring.restart_delay", d.Monitoring.RestartDelay)
	v.SetDefault("safety.min_trade_interval", d.Safety.MinTradeInterval)
	v.SetDefault("safety.max_daily_trades", d.Safety.MaxDailyTrades)
	v.SetDefault("safety.trading_hours.start", d.Safety.TradingHours.Start)
	v.SetDefault("safety.trading_hours.end", d.Safety.TradingHours.End)
	v.SetDefault("amount_strategy.enabled", d.AmountStrategy.Enabled)
	v.SetDefault("amount_strategy.initial_percent", d.AmountStrategy.InitialPercent)
	v.SetDefault("amount_strategy.first_rebound_percent", d.AmountStrategy.FirstReboundPercent)
	v.SetDefault("amount_strategy.n_rebound_percent", d.AmountStrategy.NReboundPercent)
	v.SetDefault("amount_strategy.levels", d.AmountStrategy.Levels)
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
