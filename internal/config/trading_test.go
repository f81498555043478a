package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"headless-trader/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, content string) *TradingStore {
	path := filepath.Join(t.TempDir(), "headless_config.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return NewTradingStore(path, zap.NewNop())
}

func key(t *testing.T, v string) models.TierKey {
	k, err := models.ParseTierKey(v)
	require.NoError(t, err)
	return k
}

func TestDefaultDocument(t *testing.T) {
	doc := DefaultDocument()

	for _, side := range models.Sides {
		tiers := doc.Tiers.OnSide(side)
		assert.Equal(t, []float64{45, 40, 35, 30, 25}, []float64{tiers[0].TargetPrice, tiers[1].TargetPrice, tiers[2].TargetPrice, tiers[3].TargetPrice, tiers[4].TargetPrice})
		assert.Equal(t, []float64{1, 2, 4, 8, 16}, []float64{tiers[0].Amount, tiers[1].Amount, tiers[2].Amount, tiers[3].Amount, tiers[4].Amount})
		assert.True(t, tiers[0].Enabled)
		for _, tr := range tiers[1:] {
			assert.False(t, tr.Enabled)
		}
	}
	assert.Equal(t, 3, doc.Monitoring.RetryCount)
	assert.Equal(t, 10, doc.Monitoring.BrowserRestartThreshold)
	assert.Equal(t, "00:00", doc.Safety.TradingHours.Start)
	assert.Equal(t, "23:59", doc.Safety.TradingHours.End)
}

func TestTradingStore_MissingFileWritesDefaults(t *testing.T) {
	// Arrange
	store := newTestStore(t, "")

	// Act
	doc, err := store.Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, DefaultDocument(), doc)
	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestTradingStore_MergesMissingKeys(t *testing.T) {
	// Arrange: only a handful of keys are present.
	store := newTestStore(t, `{
		"website": {"url": "https://example.com/market"},
		"trading": {"Up2": {"enabled": true}, "Down1": {"target_price": 33, "amount": 7, "enabled": false}},
		"safety": {"max_daily_trades": 5}
	}`)

	// Act
	doc, err := store.Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/market", doc.Website.URL)

	up2, _ := doc.Tiers.Get(key(t, "Up2"))
	assert.True(t, up2.Enabled)
	assert.Equal(t, 40.0, up2.TargetPrice)
	assert.Equal(t, 2.0, up2.Amount)

	down1, _ := doc.Tiers.Get(key(t, "Down1"))
	assert.Equal(t, 33.0, down1.TargetPrice)
	assert.Equal(t, 7.0, down1.Amount)
	assert.False(t, down1.Enabled)

	assert.Equal(t, 5, doc.Safety.MaxDailyTrades)
	assert.Equal(t, 30.0, doc.Safety.MinTradeInterval)
	assert.Equal(t, "00:00", doc.Safety.TradingHours.Start)
	assert.Equal(t, DefaultDocument().Monitoring, doc.Monitoring)
}

func TestTradingStore_MalformedJSONFallsBack(t *testing.T) {
	store := newTestStore(t, `{"trading": {`)

	doc, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultDocument(), doc)
	b, _ := os.ReadFile(store.Path())
	assert.Equal(t, `{"trading": {`, string(b), "malformed file is left untouched")
}

func TestTradingStore_MalformedScopeFallsBack(t *testing.T) {
	store := newTestStore(t, `{
		"monitoring": {"retry_count": "many", "price_check_interval": 5},
		"safety": {"trading_hours": {"start": "9am", "end": "17:00"}},
		"trading": {"Up1": {"target_price": "cheap"}, "Up3": {"enabled": true}}
	}`)

	doc, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultDocument().Monitoring, doc.Monitoring)
	assert.Equal(t, DefaultDocument().Safety.TradingHours, doc.Safety.TradingHours)
	up1, _ := doc.Tiers.Get(key(t, "Up1"))
	assert.Equal(t, 45.0, up1.TargetPrice)
	up3, _ := doc.Tiers.Get(key(t, "Up3"))
	assert.True(t, up3.Enabled)
}

func TestTradingStore_SaveRoundTrip(t *testing.T) {
	// Arrange
	store := newTestStore(t, "")
	doc := DefaultDocument()
	doc.Website.URL = "https://example.com/round"
	doc.Tiers.SetEnabled(key(t, "Up1"), false)
	doc.Tiers.SetAmount(3, 9.5)
	doc.Safety.TradingHours = TradingHours{Start: "08:00", End: "18:30"}

	// Act
	require.NoError(t, store.Save(doc))
	loaded, err := store.Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)

	var raw map[string]map[string]any
	b, _ := os.ReadFile(store.Path())
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw["trading"], "Up1")
	assert.Contains(t, raw["trading"], "Down5")
	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, "2.5s", Seconds(2.5).String())
}
