package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBannerTable = "banka_home_banner"

func newTableBackend(testingT *testing.T, requests *[]string) *httptest.Server {
	testingT.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		*requests = append(*requests, request.URL.RequestURI())
		responseWriter.Header().Set("Content-Type", "application/json")
		if request.URL.Path != "/backend/table-data/"+testBannerTable {
			responseWriter.WriteHeader(http.StatusNotFound)
			_, _ = responseWriter.Write([]byte(`{"message":"Table not found","success":false}`))
			return
		}
		_, _ = responseWriter.Write([]byte(`{"data":[` +
			`{"id":1,"title":"Seed row","image_banner":"seed.png"},` +
			`{"id":2,"title":"Summer Sale","image_banner":"summer.png"}` +
			`],"totalRecords":2}`))
	}))
	testingT.Cleanup(server.Close)
	return server
}

func runTablesCommand(testingT *testing.T, arguments ...string) (string, string, error) {
	testingT.Helper()
	clearEnvironment(testingT)
	command, commandErr := NewServerApplication().Command()
	require.NoError(testingT, commandErr)
	standardOutput := &bytes.Buffer{}
	standardError := &bytes.Buffer{}
	command.SetOut(standardOutput)
	command.SetErr(standardError)
	command.SetArgs(arguments)
	executeErr := command.Execute()
	return standardOutput.String(), standardError.String(), executeErr
}

func TestTablesCommandPrintsRowsWithoutSeedRow(t *testing.T) {
	var requests []string
	backend := newTableBackend(t, &requests)

	output, _, executeErr := runTablesCommand(t,
		"tables", testBannerTable,
		"--"+flagNameBackendBaseURL, backend.URL,
		"--"+flagNameAssetBaseURL, "https://cdn.example.com/uploads",
		"--"+flagNameFormat, "md",
	)
	require.NoError(t, executeErr)
	require.Contains(t, output, "Summer Sale")
	require.Contains(t, output, "https://cdn.example.com/uploads/summer.png")
	require.NotContains(t, output, "Seed row")
	require.Equal(t, []string{"/backend/table-data/" + testBannerTable + "?page=1&search="}, requests)
}

func TestTablesCommandFetchesSearchPageOnce(t *testing.T) {
	var requests []string
	backend := newTableBackend(t, &requests)

	_, _, executeErr := runTablesCommand(t,
		"tables", testBannerTable,
		"--"+flagNameBackendBaseURL, backend.URL,
		"--"+flagNamePage, "3",
		"--"+flagNameSearch, "sale",
	)
	require.NoError(t, executeErr)
	require.Equal(t, []string{"/backend/table-data/" + testBannerTable + "?page=3&search=sale"}, requests)
}

func TestTablesCommandReportsBackendMessage(t *testing.T) {
	var requests []string
	backend := newTableBackend(t, &requests)

	_, errorOutput, executeErr := runTablesCommand(t,
		"tables", "banka_missing",
		"--"+flagNameBackendBaseURL, backend.URL,
	)
	require.Error(t, executeErr)
	require.Contains(t, errorOutput, "Table not found")
}

func TestTablesCommandRequiresTableArgument(t *testing.T) {
	_, _, executeErr := runTablesCommand(t, "tables", "--"+flagNameBackendBaseURL, "http://backend.example.com")
	require.Error(t, executeErr)
}
