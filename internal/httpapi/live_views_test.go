package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestViewRegistryScopesLookupToOwner(t *testing.T) {
	registry := NewViewRegistry(nil)
	view := newLiveView(ViewKindTable, "operator", RouteTablesPrefix+"banka_home_banner")
	registry.Add(view)

	found, exists := registry.Lookup("operator", view.ID)
	require.True(t, exists)
	require.Same(t, view, found)

	_, foreign := registry.Lookup("intruder", view.ID)
	require.False(t, foreign)
	require.Equal(t, RouteTablesPrefix+"banka_home_banner?view="+view.ID, view.PageURL())
}

func TestViewRegistryEvictsOnlyIdleViewsWithoutStreams(t *testing.T) {
	now := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	registry := NewViewRegistry(nil)
	registry.now = func() time.Time { return now }

	stale := newLiveView(ViewKindDashboard, "operator", RouteDashboard)
	stale.lastSeen = now.Add(-time.Hour)
	streaming := newLiveView(ViewKindDashboard, "operator", RouteDashboard)
	streaming.lastSeen = now.Add(-time.Hour)
	fresh := newLiveView(ViewKindCatalog, "operator", RouteCatalog)
	fresh.lastSeen = now
	for _, view := range []*LiveView{stale, streaming, fresh} {
		registry.Add(view)
	}
	listener := streaming.changes.subscribe()
	defer streaming.changes.unsubscribe(listener)

	require.Equal(t, 1, registry.EvictIdle(now.Add(-30*time.Minute)))
	require.Equal(t, 2, registry.Len())
	_, staleExists := registry.Lookup("operator", stale.ID)
	require.False(t, staleExists)
}

func TestChangeNotifierCoalescesPings(t *testing.T) {
	notifier := newChangeNotifier()
	listener := notifier.subscribe()
	notifier.broadcast()
	notifier.broadcast()
	require.Len(t, listener, 1)
	notifier.unsubscribe(listener)
	require.Zero(t, notifier.listenerCount())
}

func TestThrottleLimitsPerClientAndPrunes(t *testing.T) {
	now := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	throttle := NewThrottle(2)
	throttle.now = func() time.Time { return now }

	require.True(t, throttle.Allow("10.0.0.1"))
	require.True(t, throttle.Allow("10.0.0.1"))
	require.False(t, throttle.Allow("10.0.0.1"))
	require.True(t, throttle.Allow("10.0.0.2"))

	now = now.Add(time.Minute)
	require.True(t, throttle.Allow("10.0.0.1"))
	require.Equal(t, 1, throttle.Prune(now.Add(-time.Second)))
}

func TestThrottleMiddlewareAnswersTooManyRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	throttle := NewThrottle(1)
	router := gin.New()
	router.POST(RouteLogin, throttle.Middleware(), func(context *gin.Context) {
		context.Status(http.StatusOK)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, RouteLogin, nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, RouteLogin, nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, throttleMessage, second.Body.String())
}
