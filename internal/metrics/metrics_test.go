package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	pr := NewPrometheusRecorder(prom.NewRegistry())
	pr.Command("START")
	pr.Command("START")
	pr.Command("STOP")
	pr.Tick()
	pr.SessionEnd("work")
	pr.PersistFailure()
	pr.BridgeDropped()
	pr.ListenerAttached(true)

	assert.InDelta(t, 2, testutil.ToFloat64(pr.commands.WithLabelValues("START")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.commands.WithLabelValues("STOP")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.ticks), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.sessionEnds.WithLabelValues("work")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.listener), 0.001)

	pr.ListenerAttached(false)
	assert.InDelta(t, 0, testutil.ToFloat64(pr.listener), 0.001)
}

func TestHandlerServesMetrics(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.Tick()

	rec := httptest.NewRecorder()
	pr.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pomotimer_ticks_total 1"))
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	r.Command("x")
	r.ListenerAttached(true)
}
