package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"headless-trader/internal/config"
	"headless-trader/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	readRetries  = 3
	orderRetries = 1 // orders are not idempotent

	statusNoPosition = "no_position"
)

// StatusError is a non-retryable gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Body)
}

// RestClient talks to the local gateway that fronts the browser session.
// It implements Surface and LabelSource.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration

	mu   sync.Mutex
	open bool
}

// ensure RestClient implements the interfaces
var (
	_ Surface     = (*RestClient)(nil)
	_ LabelSource = (*RestClient)(nil)
)

// NewRestClient creates a gateway client from the market configuration.
func NewRestClient(cfg *config.Market, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetHeader("Content-Type", "application/json")

	logger.Info("Using market gateway", zap.String("url", cfg.GatewayURL))

	return &RestClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("gateway"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		backoff: exponentialBackoff,
	}
}

func exponentialBackoff(attempt int) time.Duration {
	// 1s, 2s, 4s
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

type sessionRequest struct {
	URL string `json:"url"`
}

type pricesResponse struct {
	Up   *float64 `json:"up"`
	Down *float64 `json:"down"`
}

type labelsResponse struct {
	Up   string `json:"up"`
	Down string `json:"down"`
}

type balanceResponse struct {
	Cash string `json:"cash"`
}

type orderRequest struct {
	Side   models.Side `json:"side"`
	Amount float64     `json:"amount,omitempty"`
}

type orderResponse struct {
	Status string `json:"status"`
}

// Connect opens a browser session on endpoint.
func (c *RestClient) Connect(ctx context.Context, endpoint string) error {
	req := c.client.R().SetBody(sessionRequest{URL: endpoint})
	if _, err := c.doRequest(ctx, http.MethodPost, "/session/open", req, readRetries); err != nil {
		c.logger.Error("Failed to open session", zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("failed to open session: %w", err)
	}
	c.setOpen(true)
	c.logger.Info("Session opened", zap.String("endpoint", endpoint))
	return nil
}

// Close tears down the session. Closing a closed session is a no-op.
func (c *RestClient) Close(ctx context.Context) error {
	if !c.isOpen() {
		return nil
	}
	c.setOpen(false)
	if _, err := c.doRequest(ctx, http.MethodPost, "/session/close", c.client.R(), 1); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RestartSession tears down and re-acquires the session, navigating to endpoint.
func (c *RestClient) RestartSession(ctx context.Context, endpoint string) error {
	c.setOpen(false)
	req := c.client.R().SetBody(sessionRequest{URL: endpoint})
	if _, err := c.doRequest(ctx, http.MethodPost, "/session/restart", req, 1); err != nil {
		return fmt.Errorf("failed to restart session: %w", err)
	}
	c.setOpen(true)
	c.logger.Info("Session restarted", zap.String("endpoint", endpoint))
	return nil
}

// QueryPrices reads the UP/DOWN price elements.
func (c *RestClient) QueryPrices(ctx context.Context) (Prices, error) {
	if !c.isOpen() {
		return Prices{}, ErrSessionClosed
	}
	req := c.client.R().SetResult(&pricesResponse{})
	resp, err := c.doRequest(ctx, http.MethodGet, "/prices", req, 1)
	if err != nil {
		return Prices{}, fmt.Errorf("failed to query prices: %w", err)
	}
	result := resp.Result().(*pricesResponse)
	return Prices{Up: result.Up, Down: result.Down}, nil
}

// QueryLabels reads the outcome button labels and parses the cents value from each.
func (c *RestClient) QueryLabels(ctx context.Context) (Prices, error) {
	if !c.isOpen() {
		return Prices{}, ErrSessionClosed
	}
	req := c.client.R().SetResult(&labelsResponse{})
	resp, err := c.doRequest(ctx, http.MethodGet, "/labels", req, 1)
	if err != nil {
		return Prices{}, fmt.Errorf("failed to query labels: %w", err)
	}
	result := resp.Result().(*labelsResponse)
	return Prices{Up: ParseCents(result.Up), Down: ParseCents(result.Down)}, nil
}

// QueryBalance reads the cash balance.
func (c *RestClient) QueryBalance(ctx context.Context) (float64, error) {
	if !c.isOpen() {
		return 0, ErrSessionClosed
	}
	req := c.client.R().SetResult(&balanceResponse{})
	resp, err := c.doRequest(ctx, http.MethodGet, "/balance", req, readRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	text := resp.Result().(*balanceResponse).Cash
	cash, ok := ParseCash(text)
	if !ok {
		return 0, fmt.Errorf("unrecognized balance %q", text)
	}
	return cash, nil
}

// SubmitBuy places a buy of amount on side.
func (c *RestClient) SubmitBuy(ctx context.Context, side models.Side, amount float64) error {
	if !c.isOpen() {
		return ErrSessionClosed
	}
	req := c.client.R().
		SetHeader("X-API-KEY", c.apiKey).
		SetBody(orderRequest{Side: side, Amount: amount}).
		SetResult(&orderResponse{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders/buy", req, orderRetries)
	if err != nil {
		c.logger.Error("Failed to submit buy",
			zap.Error(err),
			zap.String("side", string(side)),
			zap.Float64("amount", amount),
		)
		return fmt.Errorf("failed to submit buy: %w", err)
	}

	result := resp.Result().(*orderResponse)
	c.logger.Debug("Buy submitted", zap.String("side", string(side)), zap.String("status", result.Status))
	return nil
}

// SubmitSell sells the whole position on side. A missing position is
// reported as NothingToSell with ErrNoPosition.
func (c *RestClient) SubmitSell(ctx context.Context, side models.Side) (SellResult, error) {
	if !c.isOpen() {
		return SellFailed, ErrSessionClosed
	}
	req := c.client.R().
		SetHeader("X-API-KEY", c.apiKey).
		SetBody(orderRequest{Side: side}).
		SetResult(&orderResponse{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders/sell", req, orderRetries)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return NothingToSell, ErrNoPosition
		}
		return SellFailed, fmt.Errorf("failed to submit sell: %w", err)
	}
	if resp.Result().(*orderResponse).Status == statusNoPosition {
		return NothingToSell, ErrNoPosition
	}
	return Sold, nil
}

func (c *RestClient) setOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
}

func (c *RestClient) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request, maxAttempts int) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	req.SetContext(ctx)
	for i := 0; i < maxAttempts; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusConflict:
				return nil, ErrSessionClosed
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, &StatusError{Code: statusCode, Body: resp.String()}
			}
			err = &StatusError{Code: statusCode, Body: resp.String()}
		} else {
			// Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry || i == maxAttempts-1 {
			break
		}

		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, err)
}
