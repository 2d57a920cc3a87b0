package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/password"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/realtime"
)

const (
	testSessionSecret = "0123456789abcdef0123456789abcdef"
	testUsername      = "operator"
	testPassword      = "Secret#123"
	testBannerTable   = "banka_home_banner"
	testCareerTable   = "banka_career_applications"
	datastarHeader    = "Datastar-Request"
)

var streamURLPattern = regexp.MustCompile(`/app/live/([0-9a-f-]+)/stream`)

type toggleCall struct {
	Identifier int64
	Request    gateway.ToggleRequest
}

type categoryToggleCall struct {
	Identifier int64
	Field      string
	Enabled    bool
}

type stubBackend struct {
	mutex            sync.Mutex
	tables           map[string][]model.TableRecord
	searches         []string
	toggles          []toggleCall
	categoryToggles  []categoryToggleCall
	deletedRecords   []int64
	createdPayloads  []*gateway.Payload
	markedRead       []string
	categories       []model.Category
	products         map[int64][]model.Product
	aggregates       []model.VisitAggregate
	recent           []model.RecentVisit
	exported         []byte
	listErr          error
	markReadErr      error
	sentOTPFor       []string
	validCredentials map[string]string
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		tables: map[string][]model.TableRecord{
			testBannerTable: {
				model.NewTableRecord([]string{"id", "title", "is_active"}, map[string]any{"id": 1, "title": "Summer Sale", "is_active": 1}),
				model.NewTableRecord([]string{"id", "title", "is_active"}, map[string]any{"id": 2, "title": "Winter Launch", "is_active": 0}),
			},
			testCareerTable: {
				model.NewTableRecord([]string{"id", "name", "resume"}, map[string]any{"id": 7, "name": "Ada", "resume": "ada.pdf"}),
			},
		},
		categories: []model.Category{
			{
				ID:       1,
				Name:     "Rings",
				ShowHide: true,
				Subcategories: []model.Subcategory{
					{ID: 11, CategoryID: 1, Name: "Solitaire", IsActive: true},
				},
			},
		},
		products: map[int64][]model.Product{
			11: {{ID: 101, SubcategoryID: 11, Name: "Classic Band", Sizes: model.StringList{"6"}}},
		},
		aggregates: []model.VisitAggregate{
			{PageURL: "/home", Month: "2026-09", Country: "India", Visits: 4},
		},
		recent: []model.RecentVisit{
			{PageURL: "/home", Country: "India", IPAddress: "10.0.0.1", VisitTime: "2026-09-30T10:00:00Z", Visits: 3},
			{PageURL: "/contact", Country: "France", IPAddress: "10.0.0.2", VisitTime: "2026-09-30T11:00:00Z", Visits: 1},
		},
		exported:         []byte("id,title\n1,Summer Sale\n"),
		validCredentials: map[string]string{testUsername: testPassword},
	}
}

func (backend *stubBackend) ListTable(_ context.Context, table string, _ int, search string) (gateway.TablePage, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.searches = append(backend.searches, search)
	if backend.listErr != nil {
		return gateway.TablePage{}, backend.listErr
	}
	rows := make([]model.TableRecord, 0)
	for _, row := range backend.tables[table] {
		if search != "" && !strings.Contains(strings.ToLower(row.Text("title")+row.Text("name")), strings.ToLower(search)) {
			continue
		}
		rows = append(rows, row)
	}
	return gateway.TablePage{Rows: rows, TotalRecords: len(rows)}, nil
}

func (backend *stubBackend) CreateRecord(_ context.Context, _ string, payload *gateway.Payload) (gateway.MessageResponse, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.createdPayloads = append(backend.createdPayloads, payload)
	return gateway.MessageResponse{Message: "created"}, nil
}

func (backend *stubBackend) UpdateRecord(_ context.Context, _ string, _ int64, payload *gateway.Payload) (gateway.MessageResponse, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.createdPayloads = append(backend.createdPayloads, payload)
	return gateway.MessageResponse{Message: "updated"}, nil
}

func (backend *stubBackend) DeleteRecord(_ context.Context, _ string, identifier int64) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.deletedRecords = append(backend.deletedRecords, identifier)
	return nil
}

func (backend *stubBackend) Toggle(_ context.Context, identifier int64, request gateway.ToggleRequest) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.toggles = append(backend.toggles, toggleCall{Identifier: identifier, Request: request})
	return nil
}

func (backend *stubBackend) ExportTable(_ context.Context, table string) ([]byte, error) {
	if _, known := backend.tables[table]; !known {
		return nil, &gateway.StatusError{StatusCode: http.StatusNotFound, Message: "unknown table"}
	}
	return backend.exported, nil
}

func (backend *stubBackend) MarkAllRead(_ context.Context, kind string) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	if kind != gateway.UnreadKindCareer && kind != gateway.UnreadKindConnect {
		return gateway.ErrUnknownUnreadKind
	}
	if backend.markReadErr != nil {
		return backend.markReadErr
	}
	backend.markedRead = append(backend.markedRead, kind)
	return nil
}

func (backend *stubBackend) Categories(context.Context) ([]model.Category, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return append([]model.Category(nil), backend.categories...), nil
}

func (backend *stubBackend) SaveCategory(context.Context, int64, *gateway.Payload) (gateway.MessageResponse, error) {
	return gateway.MessageResponse{Message: "saved"}, nil
}

func (backend *stubBackend) DeleteCategory(context.Context, int64) error {
	return nil
}

func (backend *stubBackend) ToggleCategory(_ context.Context, identifier int64, field string, enabled bool) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.categoryToggles = append(backend.categoryToggles, categoryToggleCall{Identifier: identifier, Field: field, Enabled: enabled})
	return nil
}

func (backend *stubBackend) SaveSubcategory(context.Context, int64, *gateway.Payload) (gateway.MessageResponse, error) {
	return gateway.MessageResponse{Message: "saved"}, nil
}

func (backend *stubBackend) DeleteSubcategory(context.Context, int64) error {
	return nil
}

func (backend *stubBackend) ToggleSubcategoryActive(context.Context, int64, bool) error {
	return nil
}

func (backend *stubBackend) Products(_ context.Context, subcategoryID int64) ([]model.Product, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return append([]model.Product(nil), backend.products[subcategoryID]...), nil
}

func (backend *stubBackend) Subcategory(_ context.Context, identifier int64) (model.TableRecord, bool, error) {
	if identifier != 11 {
		return model.TableRecord{}, false, nil
	}
	return model.NewTableRecord([]string{"id", "sub_category"}, map[string]any{"id": 11, "sub_category": "Solitaire"}), true, nil
}

func (backend *stubBackend) SaveProduct(context.Context, int64, *gateway.Payload) (gateway.MessageResponse, error) {
	return gateway.MessageResponse{Message: "saved"}, nil
}

func (backend *stubBackend) DeleteProduct(context.Context, int64) error {
	return nil
}

func (backend *stubBackend) AggregatedVisits(context.Context) ([]model.VisitAggregate, error) {
	return backend.aggregates, nil
}

func (backend *stubBackend) RecentVisits(context.Context, int) ([]model.RecentVisit, error) {
	return backend.recent, nil
}

func (backend *stubBackend) Login(_ context.Context, username string, secret string) error {
	if expected, known := backend.validCredentials[username]; known && expected == secret {
		return nil
	}
	return gateway.ErrInvalidCredentials
}

func (backend *stubBackend) SendOTP(_ context.Context, email string) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.sentOTPFor = append(backend.sentOTPFor, email)
	return nil
}

func (backend *stubBackend) ValidateOTP(context.Context, string, string) error {
	return nil
}

func (backend *stubBackend) ResetPassword(context.Context, string, string, string) error {
	return nil
}

func (backend *stubBackend) snapshotToggles() []toggleCall {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return append([]toggleCall(nil), backend.toggles...)
}

func (backend *stubBackend) snapshotMarkedRead() []string {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return append([]string(nil), backend.markedRead...)
}

type recordingJournal struct {
	mutex   sync.Mutex
	entries []model.ActivityInput
}

func (journal *recordingJournal) Record(_ context.Context, input model.ActivityInput) {
	journal.mutex.Lock()
	defer journal.mutex.Unlock()
	journal.entries = append(journal.entries, input)
}

func (journal *recordingJournal) actions() []string {
	journal.mutex.Lock()
	defer journal.mutex.Unlock()
	actions := make([]string, 0, len(journal.entries))
	for _, entry := range journal.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type consoleHarness struct {
	router  *gin.Engine
	backend *stubBackend
	journal *recordingJournal
	views   *httpapi.ViewRegistry
	events  *realtime.Broadcaster
	unread  *realtime.UnreadTracker
	cookies []*http.Cookie
}

func newConsoleHarness(testingT *testing.T) *consoleHarness {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	backend := newStubBackend()
	journal := &recordingJournal{}
	unread := realtime.NewUnreadTracker()
	events := realtime.NewBroadcaster()
	testingT.Cleanup(events.Close)
	console := httpapi.DefaultConsoleConfig()

	pages, pagesErr := httpapi.NewPages(httpapi.PagesConfig{
		Menu:   console.Menu(),
		Unread: unread,
		Logger: zap.NewNop(),
	})
	require.NoError(testingT, pagesErr)

	authManager, authErr := httpapi.NewAuthManager(httpapi.AuthConfig{Secret: testSessionSecret})
	require.NoError(testingT, authErr)

	wizard, wizardErr := password.NewWizard(backend, nil)
	require.NoError(testingT, wizardErr)

	views := httpapi.NewViewRegistry(nil)
	consoleHandlers, consoleErr := httpapi.NewConsoleHandlers(httpapi.ConsoleHandlersConfig{
		Backend:  backend,
		Pages:    pages,
		Views:    views,
		Console:  console,
		Unread:   unread,
		Events:   events,
		Recorder: journal,
	})
	require.NoError(testingT, consoleErr)

	authHandlers := httpapi.NewAuthHandlers(httpapi.AuthHandlersConfig{
		Pages:         pages,
		Auth:          authManager,
		Authenticator: backend,
		Wizard:        wizard,
		Recorder:      journal,
	})

	router := gin.New()
	router.GET(httpapi.RouteLogin, authHandlers.RenderLogin)
	router.POST(httpapi.RouteLogin, authHandlers.Login)
	router.POST(httpapi.RouteLogout, authHandlers.Logout)
	router.GET(httpapi.RouteForgot, authHandlers.RenderForgot)
	router.POST(httpapi.RouteForgot+"/send-otp", authHandlers.SendOTP)
	router.POST(httpapi.RouteForgot+"/validate-otp", authHandlers.ValidateOTP)
	router.POST(httpapi.RouteForgot+"/reset", authHandlers.ResetPassword)
	httpapi.RegisterConsoleRoutes(router.Group("", authManager.RequireAuthenticatedWeb()), consoleHandlers)

	return &consoleHarness{
		router:  router,
		backend: backend,
		journal: journal,
		views:   views,
		events:  events,
		unread:  unread,
	}
}

func (harness *consoleHarness) signIn(testingT *testing.T) {
	testingT.Helper()
	form := url.Values{"username": {testUsername}, "password": {testPassword}}
	recorder := harness.postForm(testingT, httpapi.RouteLogin, form, false)
	require.Equal(testingT, http.StatusSeeOther, recorder.Code)
	require.Equal(testingT, httpapi.RouteDashboard, recorder.Header().Get("Location"))
	harness.cookies = recorder.Result().Cookies()
	require.NotEmpty(testingT, harness.cookies)
}

func (harness *consoleHarness) get(testingT *testing.T, target string) *httptest.ResponseRecorder {
	testingT.Helper()
	request := httptest.NewRequest(http.MethodGet, target, nil)
	for _, cookie := range harness.cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func (harness *consoleHarness) postForm(testingT *testing.T, target string, form url.Values, datastar bool) *httptest.ResponseRecorder {
	testingT.Helper()
	request := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if datastar {
		request.Header.Set(datastarHeader, "true")
	}
	for _, cookie := range harness.cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func (harness *consoleHarness) postJSON(testingT *testing.T, target string, body string) *httptest.ResponseRecorder {
	testingT.Helper()
	request := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(datastarHeader, "true")
	for _, cookie := range harness.cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

// openView loads page and returns the live view identifier embedded in its stream URL.
func (harness *consoleHarness) openView(testingT *testing.T, page string) (string, string) {
	testingT.Helper()
	recorder := harness.get(testingT, page)
	require.Equal(testingT, http.StatusOK, recorder.Code, recorder.Body.String())
	body := recorder.Body.String()
	match := streamURLPattern.FindStringSubmatch(body)
	require.Len(testingT, match, 2, "stream url missing from page")
	return match[1], body
}

func liveURL(viewID string, kind string, action string) string {
	return httpapi.RouteLivePrefix + viewID + "/" + kind + "/" + action
}
