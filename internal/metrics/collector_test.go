package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

func TestCollectorCountsGatewayOutcomes(t *testing.T) {
	collector := metrics.NewCollector()
	collector.ObserveGatewayCall("list_table", 20*time.Millisecond, nil)
	collector.ObserveGatewayCall("list_table", 30*time.Millisecond, errors.New("boom"))
	collector.ObserveGatewayCall("toggle", time.Millisecond, nil)

	count, gatherErr := testutil.GatherAndCount(collector.Registry(), "cmsconsole_gateway_calls_total")
	require.NoError(t, gatherErr)
	require.Equal(t, 3, count)
}

func TestCollectorHandlerExposesMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	collector.ObserveHTTPRequest(http.MethodGet, "/app", http.StatusOK, time.Millisecond)
	collector.SetLiveViews(4)
	collector.ObserveRealtimeEvent("visit-update")

	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, `cmsconsole_http_requests_total{method="GET",route="/app",status_code="200"} 1`)
	require.Contains(t, body, "cmsconsole_live_views 4")
	require.Contains(t, body, `cmsconsole_realtime_events_total{event="visit-update"} 1`)
}

func TestNilCollectorIsInert(t *testing.T) {
	var collector *metrics.Collector
	require.NotPanics(t, func() {
		collector.ObserveGatewayCall("list_table", time.Millisecond, nil)
		collector.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		collector.SetLiveViews(1)
		collector.ObserveRealtimeEvent("visit-update")
	})
}
