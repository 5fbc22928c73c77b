package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolatedPerRegistry(t *testing.T) {
	a := New(nil)
	b := New(nil)

	a.IntentsFired.WithLabelValues("snipe").Inc()
	a.IntentsFired.WithLabelValues("snipe").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.IntentsFired.WithLabelValues("snipe")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IntentsFired.WithLabelValues("snipe")))
}

func TestHandlerExposesNamespacedMetrics(t *testing.T) {
	m := New(nil)
	m.TicksTotal.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `autotrader_scheduler_ticks_total{result="ok"} 1`)
}
