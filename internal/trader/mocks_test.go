package trader

import (
	"context"
	"path/filepath"
	"testing"

	"headless-trader/internal/config"
	"headless-trader/internal/database"
	"headless-trader/internal/market"
	"headless-trader/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockSurface is a mock implementation of market.Surface.
type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) Connect(ctx context.Context, endpoint string) error {
	return m.Called(endpoint).Error(0)
}

func (m *MockSurface) Close(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockSurface) RestartSession(ctx context.Context, endpoint string) error {
	return m.Called(endpoint).Error(0)
}

func (m *MockSurface) QueryPrices(ctx context.Context) (market.Prices, error) {
	args := m.Called()
	return args.Get(0).(market.Prices), args.Error(1)
}

func (m *MockSurface) SubmitBuy(ctx context.Context, side models.Side, amount float64) error {
	return m.Called(side, amount).Error(0)
}

func (m *MockSurface) SubmitSell(ctx context.Context, side models.Side) (market.SellResult, error) {
	args := m.Called(side)
	return args.Get(0).(market.SellResult), args.Error(1)
}

func (m *MockSurface) QueryBalance(ctx context.Context) (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

// MockPersister records saved documents.
type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Save(doc config.Document) error {
	return m.Called(doc).Error(0)
}

func prices(up, down float64) market.Prices {
	return market.Prices{Up: &up, Down: &down}
}

// setupLedger opens a throwaway sqlite ledger.
func setupLedger(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "trades.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// testDocument is the default document with a market URL and no trade spacing.
func testDocument() config.Document {
	doc := config.DefaultDocument()
	doc.Website.URL = "https://example.com/market"
	doc.Safety.MinTradeInterval = 0
	doc.AmountStrategy.Enabled = false
	doc.Monitoring.RetryCount = 1
	return doc
}

func tier(t *testing.T, doc config.Document, key string) models.Tier {
	k, err := models.ParseTierKey(key)
	require.NoError(t, err)
	tr, ok := doc.Tiers.Get(k)
	require.True(t, ok)
	return tr
}
