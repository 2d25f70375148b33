package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/attention/internal/adapters/metrics"
	"github.com/alejandrodnm/attention/internal/domain"
)

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))

	m.TickCompleted(false, false, 20*time.Millisecond)
	m.TickCompleted(false, true, 5*time.Millisecond)
	m.TickCompleted(true, false, time.Millisecond)
	m.TickFailed()
	m.TradeAccepted(domain.SideUp, 10)
	m.TradeAccepted(domain.SideUp, 2.5)
	m.TradeRejected("conflict")
	m.EventProposed(domain.StatusOpen)
	m.EventResolved(domain.ResolutionDown)
	m.OpenEvents(3)

	n, err := testutil.GatherAndCount(reg, "attention_ticks_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	expected := `
# HELP attention_trade_volume_total Sum of accepted trade amounts by side.
# TYPE attention_trade_volume_total counter
attention_trade_volume_total{side="up"} 12.5
# HELP attention_open_events Open events tracked by the scheduler.
# TYPE attention_open_events gauge
attention_open_events 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"attention_trade_volume_total", "attention_open_events"))
}

func TestPrometheus_Handler(t *testing.T) {
	m := metrics.New(metrics.WithNamespace("demo"))
	m.EventResolved(domain.ResolutionUp)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `demo_resolutions_total{resolution="up"} 1`)
	// registro propio: sin métricas del runtime de Go
	assert.NotContains(t, string(body), "go_goroutines")
}
