package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autotrader/apps/autotrader/internal/metrics"
	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/oracle"
)

var errStaleObservation = errors.New("stale observation")

// observationCache memoizes one oracle call per token for the duration of a tick.
type observationCache struct {
	oracle       oracle.Oracle
	metrics      *metrics.Metrics
	maxStaleness time.Duration

	mu      sync.Mutex
	entries map[string]*observationEntry
}

type observationEntry struct {
	once sync.Once
	obs  model.Observation
	err  error
}

func newObservationCache(o oracle.Oracle, m *metrics.Metrics, maxStaleness time.Duration) *observationCache {
	return &observationCache{
		oracle:       o,
		metrics:      m,
		maxStaleness: maxStaleness,
		entries:      make(map[string]*observationEntry),
	}
}

func (c *observationCache) observe(ctx context.Context, token string, now time.Time) (model.Observation, error) {
	c.mu.Lock()
	e, ok := c.entries[token]
	if !ok {
		e = &observationEntry{}
		c.entries[token] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		start := time.Now()
		e.obs, e.err = c.oracle.Observe(ctx, token)
		c.metrics.OracleLatency.Observe(time.Since(start).Seconds())
	})
	if e.err != nil {
		return model.Observation{}, e.err
	}

	if c.maxStaleness > 0 && now.Sub(e.obs.AsOf) > c.maxStaleness {
		return model.Observation{}, fmt.Errorf("%w: as of %s", errStaleObservation, e.obs.AsOf.Format(time.RFC3339))
	}
	return e.obs, nil
}
