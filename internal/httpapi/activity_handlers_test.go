package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

type stubActivityReader struct {
	entries   []model.ActivityEntry
	err       error
	lastLimit int
}

func (reader *stubActivityReader) Recent(_ context.Context, limit int) ([]model.ActivityEntry, error) {
	reader.lastLimit = limit
	return reader.entries, reader.err
}

func serve(handler gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/probe", handler)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	return recorder
}

func TestActivityRecentClampsLimit(t *testing.T) {
	testCases := []struct {
		name          string
		query         string
		expectedLimit int
	}{
		{name: "default", query: "", expectedLimit: 50},
		{name: "explicit", query: "?limit=10", expectedLimit: 10},
		{name: "clamped", query: "?limit=5000", expectedLimit: 200},
		{name: "invalid", query: "?limit=abc", expectedLimit: 50},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(testingT *testing.T) {
			reader := &stubActivityReader{}
			handlers, handlersErr := httpapi.NewActivityHandlers(reader, nil)
			require.NoError(testingT, handlersErr)
			recorder := serve(handlers.Recent, "/probe"+testCase.query)
			require.Equal(testingT, http.StatusOK, recorder.Code)
			require.Equal(testingT, testCase.expectedLimit, reader.lastLimit)
			require.JSONEq(testingT, `{"entries":[]}`, recorder.Body.String())
		})
	}
}

func TestActivityRecentReportsReaderFailure(t *testing.T) {
	handlers, handlersErr := httpapi.NewActivityHandlers(&stubActivityReader{err: errors.New("locked")}, nil)
	require.NoError(t, handlersErr)
	recorder := serve(handlers.Recent, "/probe")
	require.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestNewActivityHandlersRequiresReader(t *testing.T) {
	_, handlersErr := httpapi.NewActivityHandlers(nil, nil)
	require.ErrorIs(t, handlersErr, httpapi.ErrMissingActivityReader)
}

func TestHealthReportsFailingChecks(t *testing.T) {
	healthy := httpapi.NewHealthHandlers(nil, httpapi.HealthCheck{Name: "database", Probe: func(context.Context) error { return nil }})
	recorder := serve(healthy.Health, "/probe")
	require.Equal(t, http.StatusOK, recorder.Code)

	degraded := httpapi.NewHealthHandlers(nil,
		httpapi.HealthCheck{Name: "database", Probe: func(context.Context) error { return nil }},
		httpapi.HealthCheck{Name: "realtime", Probe: func(context.Context) error { return errors.New("disconnected") }},
	)
	recorder = serve(degraded.Health, "/probe")
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	var payload struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, "degraded", payload.Status)
	require.Equal(t, "ok", payload.Checks["database"])
	require.Equal(t, "disconnected", payload.Checks["realtime"])
}
