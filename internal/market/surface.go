package market

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"headless-trader/internal/models"
)

var (
	// ErrNoPosition is returned when a sell finds nothing to sell.
	ErrNoPosition = errors.New("no position to sell")
	// ErrSessionClosed is returned when no market session is open.
	ErrSessionClosed = errors.New("market session is not open")
)

// SellResult is the outcome of a compensating sell.
type SellResult int

const (
	SellFailed SellResult = iota
	Sold
	NothingToSell
)

func (r SellResult) String() string {
	switch r {
	case Sold:
		return "sold"
	case NothingToSell:
		return "nothing_to_sell"
	default:
		return "failed"
	}
}

// Prices is a raw price read. A nil side was not found on the page.
type Prices struct {
	Up   *float64 `json:"up"`
	Down *float64 `json:"down"`
}

// Empty reports whether neither side was read.
func (p Prices) Empty() bool {
	return p.Up == nil && p.Down == nil
}

// Surface is the external market session the trader drives.
// Implementations are not required to be safe for concurrent use.
type Surface interface {
	Connect(ctx context.Context, endpoint string) error
	Close(ctx context.Context) error
	RestartSession(ctx context.Context, endpoint string) error
	QueryPrices(ctx context.Context) (Prices, error)
	SubmitBuy(ctx context.Context, side models.Side, amount float64) error
	SubmitSell(ctx context.Context, side models.Side) (SellResult, error)
	QueryBalance(ctx context.Context) (float64, error)
}

// LabelSource is an optional secondary price extraction that reads the
// outcome button labels instead of the price elements.
type LabelSource interface {
	QueryLabels(ctx context.Context) (Prices, error)
}

var (
	centsPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)¢`)
	cashPattern  = regexp.MustCompile(`\$?([\d,]+\.?\d*)`)
)

// ParseCents extracts a cents price from a label such as "Up 45¢".
func ParseCents(label string) *float64 {
	m := centsPattern.FindStringSubmatch(label)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseCash extracts a currency amount from text such as "$1,234.56".
func ParseCash(text string) (float64, bool) {
	m := cashPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
