package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/realtime"
)

const (
	patchElementsEvent = "event: datastar-patch-elements"
	streamReadTimeout  = 5 * time.Second
)

func TestConsolePagesRedirectAnonymousUsersToLogin(t *testing.T) {
	harness := newConsoleHarness(t)
	for _, target := range []string{httpapi.RouteDashboard, httpapi.RouteCatalog, httpapi.RouteTablesPrefix + testBannerTable} {
		recorder := harness.get(t, target)
		require.Equal(t, http.StatusFound, recorder.Code, target)
		require.Equal(t, httpapi.RouteLogin, recorder.Header().Get("Location"))
	}
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	harness := newConsoleHarness(t)
	recorder := harness.postForm(t, httpapi.RouteLogin, url.Values{"username": {testUsername}, "password": {"wrong"}}, false)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Contains(t, recorder.Body.String(), "Invalid username or password")
	require.Empty(t, recorder.Result().Cookies())
	require.Equal(t, []string{"login"}, harness.journal.actions())
}

func TestLoginOpensDashboardWithCharts(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, body := harness.openView(t, httpapi.RouteDashboard)
	require.NotEmpty(t, viewID)
	require.Contains(t, body, "Page Visits")
	require.Contains(t, body, "Total Visits")
	require.Contains(t, body, `id="sidebar"`)
	require.Equal(t, 1, harness.views.Len())

	reopened := harness.get(t, httpapi.RouteDashboard+"?view="+viewID)
	require.Equal(t, http.StatusOK, reopened.Code)
	require.Contains(t, reopened.Body.String(), viewID)
	require.Equal(t, 1, harness.views.Len())
}

func TestLogoutExpiresSession(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)
	recorder := harness.postForm(t, httpapi.RouteLogout, url.Values{}, false)
	require.Equal(t, http.StatusSeeOther, recorder.Code)
	require.Equal(t, httpapi.RouteLogin+"?signed_out=1", recorder.Header().Get("Location"))
	var expired bool
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == httpapi.SessionName && cookie.MaxAge < 0 {
			expired = true
		}
	}
	require.True(t, expired)
}

func TestTableSearchPatchesFragmentForDatastarRequests(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, body := harness.openView(t, httpapi.RouteTablesPrefix+testBannerTable)
	require.Contains(t, body, "Summer Sale")
	require.Contains(t, body, "Winter Launch")

	recorder := harness.postJSON(t, liveURL(viewID, "table", "search"), `{"search":"summer"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Header().Get("Content-Type"), "text/event-stream")
	patched := recorder.Body.String()
	require.Contains(t, patched, patchElementsEvent)
	require.Contains(t, patched, "Summer Sale")
	require.NotContains(t, patched, "Winter Launch")
	require.Contains(t, harness.backend.searches, "summer")
}

func TestTableToggleRedirectsPlainFormPosts(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, _ := harness.openView(t, httpapi.RouteTablesPrefix+testBannerTable)
	recorder := harness.postForm(t, liveURL(viewID, "table", "toggle/2/is_active/1"), url.Values{}, false)
	require.Equal(t, http.StatusSeeOther, recorder.Code)
	require.Equal(t, httpapi.RouteTablesPrefix+testBannerTable+"?view="+viewID, recorder.Header().Get("Location"))

	toggles := harness.backend.snapshotToggles()
	require.Len(t, toggles, 1)
	require.Equal(t, int64(2), toggles[0].Identifier)
	require.Equal(t, gateway.ToggleRequest{Table: testBannerTable, Field: "is_active", Value: 1}, toggles[0].Request)
}

func TestTableDeleteRequiresConfirmation(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, _ := harness.openView(t, httpapi.RouteTablesPrefix+testBannerTable)
	pending := harness.postForm(t, liveURL(viewID, "table", "delete/1"), url.Values{}, true)
	require.Equal(t, http.StatusOK, pending.Code)
	require.Contains(t, pending.Body.String(), "delete/1/confirm")
	require.Empty(t, harness.backend.deletedRecords)

	harness.postForm(t, liveURL(viewID, "table", "delete/cancel"), url.Values{}, true)
	harness.postForm(t, liveURL(viewID, "table", "delete/1/confirm"), url.Values{}, true)
	require.Empty(t, harness.backend.deletedRecords)

	harness.postForm(t, liveURL(viewID, "table", "delete/1"), url.Values{}, true)
	confirmed := harness.postForm(t, liveURL(viewID, "table", "delete/1/confirm"), url.Values{}, true)
	require.Equal(t, http.StatusOK, confirmed.Code)
	require.Equal(t, []int64{1}, harness.backend.deletedRecords)
	require.Contains(t, confirmed.Body.String(), "Record deleted.")
}

func TestUnknownLiveViewAnswersNotFound(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	recorder := harness.postForm(t, liveURL("missing", "table", "add"), url.Values{}, false)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Contains(t, recorder.Body.String(), "This page expired")
}

func TestLiveViewsAreScopedToTheirOwner(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)
	viewID, _ := harness.openView(t, httpapi.RouteTablesPrefix+testBannerTable)

	harness.backend.validCredentials["intruder"] = testPassword
	other := newSessionFor(t, harness, "intruder")
	request := httptest.NewRequest(http.MethodPost, liveURL(viewID, "table", "add"), nil)
	for _, cookie := range other {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func newSessionFor(testingT *testing.T, harness *consoleHarness, username string) []*http.Cookie {
	testingT.Helper()
	form := url.Values{"username": {username}, "password": {testPassword}}
	request := httptest.NewRequest(http.MethodPost, httpapi.RouteLogin, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	require.Equal(testingT, http.StatusSeeOther, recorder.Code)
	return recorder.Result().Cookies()
}

func TestOpeningUnreadInboxMarksItRead(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)
	harness.unread.Apply(model.UnreadCounts{CareerUnread: 3, ConnectUnread: 2})

	_, body := harness.openView(t, httpapi.RouteViewsPrefix+testCareerTable)
	require.Contains(t, body, "Ada")
	require.Equal(t, []string{gateway.UnreadKindCareer}, harness.backend.snapshotMarkedRead())
	require.Equal(t, model.UnreadCounts{CareerUnread: 0, ConnectUnread: 2}, harness.unread.Counts())
}

func TestMarkReadEndpoint(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)
	harness.unread.Apply(model.UnreadCounts{CareerUnread: 1, ConnectUnread: 4})

	recorder := harness.postForm(t, httpapi.RouteUnreadPrefix+gateway.UnreadKindConnect+"/mark-read", url.Values{}, false)
	require.Equal(t, http.StatusOK, recorder.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, gateway.UnreadKindConnect, payload["kind"])
	require.EqualValues(t, 0, payload["unread"])
	require.Equal(t, 1, harness.unread.Counts().CareerUnread)

	unknown := harness.postForm(t, httpapi.RouteUnreadPrefix+"events/mark-read", url.Values{}, false)
	require.Equal(t, http.StatusBadRequest, unknown.Code)
}

func TestExportTableServesCSVAttachment(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	recorder := harness.get(t, httpapi.RouteTablesPrefix+testBannerTable+"/export")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, `attachment; filename="`+testBannerTable+`.csv"`, recorder.Header().Get("Content-Disposition"))
	require.Equal(t, "id,title\n1,Summer Sale\n", recorder.Body.String())
	require.Contains(t, harness.journal.actions(), "table_export")

	missing := harness.get(t, httpapi.RouteTablesPrefix+"banka_unknown/export")
	require.Equal(t, http.StatusBadGateway, missing.Code)
	require.Equal(t, "unknown table", missing.Body.String())
}

func TestCatalogToggleSendsCategoryFlag(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, body := harness.openView(t, httpapi.RouteCatalog)
	require.Contains(t, body, "Rings")

	recorder := harness.postForm(t, liveURL(viewID, "catalog", "category/1/toggle/show_hide/0"), url.Values{}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, []categoryToggleCall{{Identifier: 1, Field: model.FieldShowHide, Enabled: false}}, harness.backend.categoryToggles)
}

func TestProductBoardListsProductsOfSubcategory(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, body := harness.openView(t, httpapi.RouteProductsPrefix+"11")
	require.Contains(t, body, "Classic Band")

	opened := harness.postForm(t, liveURL(viewID, "products", "add"), url.Values{}, true)
	require.Equal(t, http.StatusOK, opened.Code)
	require.Contains(t, opened.Body.String(), "Add Product")

	invalid := harness.get(t, httpapi.RouteProductsPrefix+"abc")
	require.Equal(t, http.StatusNotFound, invalid.Code)
}

func TestDashboardFiltersNarrowRecentVisits(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)

	viewID, _ := harness.openView(t, httpapi.RouteDashboard)
	harness.postForm(t, liveURL(viewID, "dashboard", "table/toggle"), url.Values{}, true)
	recorder := harness.postForm(t, liveURL(viewID, "dashboard", "filters"), url.Values{"country": {"France"}}, true)
	require.Equal(t, http.StatusOK, recorder.Code)
	patched := recorder.Body.String()
	require.Contains(t, patched, "/contact")
	require.NotContains(t, patched, "10.0.0.1")
}

func TestStreamPatchesOnConnectAndOnPushEvents(t *testing.T) {
	harness := newConsoleHarness(t)
	harness.signIn(t)
	viewID, _ := harness.openView(t, httpapi.RouteDashboard)

	server := httptest.NewServer(harness.router)
	defer server.Close()

	requestContext, cancel := context.WithCancel(context.Background())
	defer cancel()
	request, requestErr := http.NewRequestWithContext(requestContext, http.MethodGet, server.URL+httpapi.RouteLivePrefix+viewID+"/stream", nil)
	require.NoError(t, requestErr)
	request.Header.Set(datastarHeader, "true")
	for _, cookie := range harness.cookies {
		request.AddCookie(cookie)
	}
	response, responseErr := server.Client().Do(request)
	require.NoError(t, responseErr)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	lines := make(chan string, 256)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	require.True(t, waitForLine(lines, `id="dashboard"`), "initial patch missing")

	harness.unread.Apply(model.UnreadCounts{CareerUnread: 5})
	harness.events.Broadcast(realtime.Event{Name: realtime.EventUnreadCounts, Data: json.RawMessage(`{"careerUnread":5}`)})
	require.True(t, waitForLine(lines, `id="sidebar"`), "sidebar patch missing")
}

func waitForLine(lines <-chan string, fragment string) bool {
	deadline := time.After(streamReadTimeout)
	for {
		select {
		case line, open := <-lines:
			if !open {
				return false
			}
			if strings.Contains(line, fragment) {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
