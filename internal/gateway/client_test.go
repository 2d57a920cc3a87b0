package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

const (
	testTableName      = "banka_home_banner"
	testBackendMessage = "Duplicate title"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	Form   map[string][]string
	Files  map[string][]string
}

type fakeBackend struct {
	mutex    sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

func newFakeBackend(testingT *testing.T, handler http.HandlerFunc) *fakeBackend {
	testingT.Helper()
	backend := &fakeBackend{}
	backend.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		recorded := recordedRequest{Method: request.Method, Path: request.URL.Path, Query: request.URL.RawQuery}
		if strings.HasPrefix(request.Header.Get("Content-Type"), "multipart/form-data") {
			if parseErr := request.ParseMultipartForm(32 << 20); parseErr == nil {
				recorded.Form = request.MultipartForm.Value
				recorded.Files = map[string][]string{}
				for field, headers := range request.MultipartForm.File {
					for _, header := range headers {
						recorded.Files[field] = append(recorded.Files[field], header.Filename)
					}
				}
			}
		} else {
			recorded.Body, _ = io.ReadAll(request.Body)
		}
		backend.mutex.Lock()
		backend.requests = append(backend.requests, recorded)
		backend.mutex.Unlock()
		handler(writer, request)
	}))
	testingT.Cleanup(backend.server.Close)
	return backend
}

func (backend *fakeBackend) lastRequest(testingT *testing.T) recordedRequest {
	testingT.Helper()
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	require.NotEmpty(testingT, backend.requests)
	return backend.requests[len(backend.requests)-1]
}

func newTestClient(testingT *testing.T, backend *fakeBackend) *gateway.Client {
	testingT.Helper()
	client, clientErr := gateway.New(gateway.Config{BaseURL: backend.server.URL, Metrics: metrics.NewCollector()})
	require.NoError(testingT, clientErr)
	return client
}

func writeJSON(writer http.ResponseWriter, status int, body string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, _ = io.WriteString(writer, body)
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, missingErr := gateway.New(gateway.Config{})
	require.ErrorIs(t, missingErr, gateway.ErrMissingBaseURL)

	_, invalidErr := gateway.New(gateway.Config{BaseURL: "not-a-url"})
	require.ErrorIs(t, invalidErr, gateway.ErrInvalidBaseURL)

	client, clientErr := gateway.New(gateway.Config{BaseURL: "https://cms.example.com/api"})
	require.NoError(t, clientErr)
	require.Equal(t, "https://cms.example.com/api/", client.BaseURL())
}

func TestListTableSendsPagingAndKeepsColumnOrder(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, `{"data":[{"id":1,"title":"seed"},{"id":2,"title":"Spring","image_banner":"b.png"}],"totalRecords":2}`)
	})
	client := newTestClient(t, backend)

	tablePage, listErr := client.ListTable(context.Background(), testTableName, 3, "spr ing")
	require.NoError(t, listErr)
	require.Len(t, tablePage.Rows, 2)
	require.Equal(t, 2, tablePage.TotalRecords)
	require.Equal(t, []string{"id", "title", "image_banner"}, tablePage.Rows[1].Keys())

	request := backend.lastRequest(t)
	require.Equal(t, http.MethodGet, request.Method)
	require.Equal(t, "/backend/table-data/"+testTableName, request.Path)
	require.Equal(t, "page=3&search=spr+ing", request.Query)
}

func TestListTableRejectsUnsafeTableNames(t *testing.T) {
	client, clientErr := gateway.New(gateway.Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, clientErr)

	for _, table := range []string{"", "a/b", "..", "x?y"} {
		_, listErr := client.ListTable(context.Background(), table, 1, "")
		require.ErrorIs(t, listErr, gateway.ErrInvalidTableName, table)
	}
}

func TestCreateRecordStreamsMultipartWithProgress(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusCreated, `{"message":"Record created"}`)
	})
	client := newTestClient(t, backend)

	var percents []int
	payload := gateway.NewPayload().
		AddField("title", "Spring").
		AddField("alt_text", "hero").
		AddFile(gateway.FilePart{Field: "image_banner", FileName: "hero.png", ContentType: "image/png", Content: []byte("png-bytes")}).
		AddFile(gateway.FilePart{Field: "video_intro", FileName: "empty.mp4"}).
		OnProgress(func(percent int) { percents = append(percents, percent) })

	acknowledgement, createErr := client.CreateRecord(context.Background(), testTableName, payload)
	require.NoError(t, createErr)
	require.Equal(t, "Record created", acknowledgement.Message)

	request := backend.lastRequest(t)
	require.Equal(t, http.MethodPost, request.Method)
	require.Equal(t, "/backend/table-data/"+testTableName, request.Path)
	require.Equal(t, []string{"Spring"}, request.Form["title"])
	require.Equal(t, []string{"hero"}, request.Form["alt_text"])
	require.Equal(t, []string{"hero.png"}, request.Files["image_banner"])
	require.NotContains(t, request.Files, "video_intro")

	require.NotEmpty(t, percents)
	require.Equal(t, 0, percents[0])
	require.Equal(t, 100, percents[len(percents)-1])
}

func TestUpdateAndDeleteRecordUseRowPath(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, `{}`)
	})
	client := newTestClient(t, backend)

	_, updateErr := client.UpdateRecord(context.Background(), testTableName, 9, gateway.NewPayload().AddField("title", "x"))
	require.NoError(t, updateErr)
	require.Equal(t, http.MethodPut, backend.lastRequest(t).Method)
	require.Equal(t, "/backend/table-data/"+testTableName+"/9", backend.lastRequest(t).Path)

	require.NoError(t, client.DeleteRecord(context.Background(), testTableName, 9))
	require.Equal(t, http.MethodDelete, backend.lastRequest(t).Method)
	require.Equal(t, "/backend/table-data/"+testTableName+"/9", backend.lastRequest(t).Path)
}

func TestToggleSendsZeroOrOne(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, backend)

	require.NoError(t, client.Toggle(context.Background(), 4, gateway.NewToggleRequest("banka_product", "show_in_collection", true)))
	request := backend.lastRequest(t)
	require.Equal(t, http.MethodPut, request.Method)
	require.Equal(t, "/cmsapi/toggle/4", request.Path)
	require.JSONEq(t, `{"table":"banka_product","field":"show_in_collection","value":1}`, string(request.Body))

	require.NoError(t, client.ToggleCategory(context.Background(), 2, "show_hide", false))
	require.Equal(t, "/cmsapi/categories/toggle/2", backend.lastRequest(t).Path)
	require.JSONEq(t, `{"field":"show_hide","value":0}`, string(backend.lastRequest(t).Body))

	require.NoError(t, client.ToggleSubcategoryActive(context.Background(), 8, true))
	require.Equal(t, "/cmsapi/activetoggle/8", backend.lastRequest(t).Path)
	require.JSONEq(t, `{"subcategory_id":8,"table":"banka_sub_category","field":"is_active","value":1}`, string(backend.lastRequest(t).Body))
}

func TestStatusErrorCarriesBackendMessage(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusUnprocessableEntity, `{"error":"`+testBackendMessage+`"}`)
	})
	client := newTestClient(t, backend)

	_, createErr := client.CreateRecord(context.Background(), testTableName, gateway.NewPayload())
	var statusError *gateway.StatusError
	require.True(t, errors.As(createErr, &statusError))
	require.Equal(t, http.StatusUnprocessableEntity, statusError.StatusCode)
	require.Equal(t, testBackendMessage, gateway.BackendMessage(createErr, "fallback"))
	require.Equal(t, "fallback", gateway.BackendMessage(errors.New("other"), "fallback"))
}

func TestTransportFailureIsWrapped(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {})
	client := newTestClient(t, backend)
	backend.server.Close()

	_, listErr := client.ListTable(context.Background(), testTableName, 1, "")
	require.ErrorIs(t, listErr, gateway.ErrTransport)
}

func TestDecodeFailureIsWrapped(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, `{"data":"nope"}`)
	})
	client := newTestClient(t, backend)

	_, listErr := client.ListTable(context.Background(), testTableName, 1, "")
	require.ErrorIs(t, listErr, gateway.ErrDecode)
}

func TestExportTableReturnsRawBody(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(writer, "id,title\n2,Spring\n")
	})
	client := newTestClient(t, backend)

	exported, exportErr := client.ExportTable(context.Background(), testTableName)
	require.NoError(t, exportErr)
	require.Equal(t, "id,title\n2,Spring\n", string(exported))
	require.Equal(t, "/backend/table-data/"+testTableName+"/export", backend.lastRequest(t).Path)
}

func TestLoginInterpretsSuccessFlag(t *testing.T) {
	var succeed atomic.Bool
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		encoded, _ := json.Marshal(map[string]bool{"success": succeed.Load()})
		writeJSON(writer, http.StatusOK, string(encoded))
	})
	client := newTestClient(t, backend)

	require.ErrorIs(t, client.Login(context.Background(), "admin", "wrong"), gateway.ErrInvalidCredentials)
	succeed.Store(true)
	require.NoError(t, client.Login(context.Background(), "admin", "secret"))
	require.Equal(t, "/backend/login", backend.lastRequest(t).Path)
	require.JSONEq(t, `{"username":"admin","password":"secret"}`, string(backend.lastRequest(t).Body))
}

func TestPasswordResetEndpoints(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, `{"message":"ok"}`)
	})
	client := newTestClient(t, backend)

	require.NoError(t, client.SendOTP(context.Background(), "a@b.co"))
	require.Equal(t, "/cmsapi/forget/send-otp", backend.lastRequest(t).Path)

	require.NoError(t, client.ValidateOTP(context.Background(), "a@b.co", "1234"))
	require.JSONEq(t, `{"email":"a@b.co","otp":"1234"}`, string(backend.lastRequest(t).Body))

	require.NoError(t, client.ResetPassword(context.Background(), "a@b.co", "1234", "Aa1@aaaa"))
	require.Equal(t, "/cmsapi/forget/reset", backend.lastRequest(t).Path)
	require.JSONEq(t, `{"email":"a@b.co","otp":"1234","newPassword":"Aa1@aaaa"}`, string(backend.lastRequest(t).Body))
}

func TestMarkAllReadValidatesKind(t *testing.T) {
	backend := newFakeBackend(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, backend)

	require.NoError(t, client.MarkAllRead(context.Background(), "Career"))
	require.Equal(t, "/backend/unread/career/mark-read", backend.lastRequest(t).Path)
	require.ErrorIs(t, client.MarkAllRead(context.Background(), "events"), gateway.ErrUnknownUnreadKind)
}
