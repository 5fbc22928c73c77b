package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestObservePicksMostLiquidPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/TOKEN", r.URL.Path)
		w.Write([]byte(`{"pairs":[
			{"pairAddress":"p1","priceUsd":"4.90","priceChange":{"h24":1.5},"liquidity":{"usd":100}},
			{"pairAddress":"p2","priceUsd":"4.80","priceChange":{"h24":-12.25},"liquidity":{"usd":5000}}
		]}`))
	}))
	defer srv.Close()

	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := NewHTTPOracle(srv.URL+"/", zap.NewNop(), WithClock(func() time.Time { return asOf }), WithRateLimit(100, 10))

	obs, err := o.Observe(context.Background(), "TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "4.8", obs.Price.String())
	assert.Equal(t, "-12.25", obs.PercentChange.String())
	assert.Equal(t, asOf, obs.AsOf)
	assert.Equal(t, "TOKEN", obs.TokenAddress)
}

func TestObserveErrors(t *testing.T) {
	status := http.StatusOK
	body := `{"pairs":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, zap.NewNop(), WithRateLimit(100, 10))
	ctx := context.Background()

	_, err := o.Observe(ctx, "GHOST")
	assert.ErrorIs(t, err, ErrUnknownToken)

	body = `{"pairs":null}`
	_, err = o.Observe(ctx, "GHOST")
	assert.ErrorIs(t, err, ErrUnknownToken)

	status = http.StatusTooManyRequests
	_, err = o.Observe(ctx, "T")
	assert.ErrorIs(t, err, ErrOracleUnavailable)

	status = http.StatusOK
	body = `not json`
	_, err = o.Observe(ctx, "T")
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestObserveHonoursContext(t *testing.T) {
	o := NewHTTPOracle("http://127.0.0.1:1", zap.NewNop(), WithRateLimit(0.001, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Observe(ctx, "T")
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}
