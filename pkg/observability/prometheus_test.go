package observability_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/observability"
)

func TestMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	m := observability.NewMetrics()

	m.RecordRun("verify", 120*time.Millisecond, nil)
	m.RecordRun("verify", 80*time.Millisecond, nil)
	m.RecordRun("count", time.Second, errors.New("boom"))

	body := scrape(t, m)

	assert.Contains(t, body, `packfang_runs_total{op="verify",status="ok"} 2`)
	assert.Contains(t, body, `packfang_runs_total{op="count",status="error"} 1`)
	assert.Contains(t, body, `packfang_errors_total{op="count"} 1`)
	assert.Contains(t, body, `packfang_run_duration_seconds_count{op="verify"} 2`)
}

func TestMetrics_ObjectsCounter(t *testing.T) {
	t.Parallel()

	m := observability.NewMetrics()

	counter := m.ObjectsCounter("count")
	counter.Inc()
	counter.Add(5)

	assert.InDelta(t, 6.0, testutil.ToFloat64(counter), 0.0001)
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	t.Parallel()

	// Two instances register the same collectors without colliding.
	first := observability.NewMetrics()
	second := observability.NewMetrics()

	first.RecordRun("verify", time.Millisecond, nil)

	assert.Contains(t, scrape(t, first), `packfang_runs_total{op="verify",status="ok"} 1`)
	assert.NotContains(t, scrape(t, second), `packfang_runs_total`)
}

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	return string(body)
}
