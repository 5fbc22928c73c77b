package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"autotrader/apps/autotrader/internal/model"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRPS     = 5
	DefaultBurst   = 5
)

// HTTPOracle reads token pairs from a DexScreener compatible API.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*HTTPOracle)

func WithHTTPClient(client *http.Client) Option {
	return func(o *HTTPOracle) {
		o.client = client
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *HTTPOracle) {
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *HTTPOracle) {
		o.now = now
	}
}

func NewHTTPOracle(baseURL string, logger *zap.Logger, opts ...Option) *HTTPOracle {
	o := &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type tokenPairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		H24 json.Number `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Observe returns the price of the most liquid pair for the token.
func (o *HTTPOracle) Observe(ctx context.Context, tokenAddress string) (model.Observation, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return model.Observation{}, fmt.Errorf("%w: rate limiter: %w", ErrOracleUnavailable, err)
	}

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", o.baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Observation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: read response: %w", ErrOracleUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Observation{}, fmt.Errorf("%w: unexpected status %d", ErrOracleUnavailable, resp.StatusCode)
	}

	var parsed tokenPairsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.Observation{}, fmt.Errorf("%w: unmarshal response: %w", ErrOracleUnavailable, err)
	}

	best := -1
	for i, p := range parsed.Pairs {
		if p.PriceUSD == "" {
			continue
		}
		if best < 0 || p.Liquidity.USD > parsed.Pairs[best].Liquidity.USD {
			best = i
		}
	}
	if best < 0 {
		return model.Observation{}, fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddress)
	}
	p := parsed.Pairs[best]

	price, err := decimal.NewFromString(p.PriceUSD)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: bad price %q", ErrOracleUnavailable, p.PriceUSD)
	}
	change := decimal.Zero
	if p.PriceChange.H24 != "" {
		if change, err = decimal.NewFromString(p.PriceChange.H24.String()); err != nil {
			return model.Observation{}, fmt.Errorf("%w: bad price change %q", ErrOracleUnavailable, p.PriceChange.H24)
		}
	}

	o.logger.Debug("Observed token price",
		zap.String("token_address", tokenAddress),
		zap.String("pair_address", p.PairAddress),
		zap.String("price", price.String()))

	return model.Observation{
		TokenAddress:  tokenAddress,
		Price:         price,
		PercentChange: change,
		AsOf:          o.now(),
	}, nil
}
