package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	tableDataPathPrefix = "backend/table-data"
	togglePathPrefix    = "cmsapi/toggle"
	exportPathSuffix    = "export"

	queryParameterPage   = "page"
	queryParameterSearch = "search"

	operationListTable   = "list_table"
	operationCreateRow   = "create_record"
	operationUpdateRow   = "update_record"
	operationDeleteRow   = "delete_record"
	operationToggle      = "toggle_flag"
	operationExportTable = "export_table"
)

// ErrInvalidTableName indicates a table name that cannot be used as a path segment.
var ErrInvalidTableName = errors.New("gateway: invalid table name")

// TablePage is one page of a generic backend table.
type TablePage struct {
	Rows         []model.TableRecord `json:"data"`
	TotalRecords int                 `json:"totalRecords"`
}

// ToggleRequest flips a boolean column on one row of a table.
type ToggleRequest struct {
	Table string `json:"table"`
	Field string `json:"field"`
	Value int    `json:"value"`
}

// NewToggleRequest converts the desired state into the backend's 0/1 encoding.
func NewToggleRequest(table string, field string, enabled bool) ToggleRequest {
	value := 0
	if enabled {
		value = 1
	}
	return ToggleRequest{Table: table, Field: field, Value: value}
}

func validateTableName(table string) (string, error) {
	trimmed := strings.TrimSpace(table)
	if trimmed == "" || strings.ContainsAny(trimmed, "/?#\\ ") || trimmed == "." || trimmed == ".." {
		return "", ErrInvalidTableName
	}
	return trimmed, nil
}

func tablePath(table string, segments ...string) string {
	return path.Join(append([]string{tableDataPathPrefix, table}, segments...)...)
}

// ListTable fetches one page of rows. An empty search lists everything.
func (client *Client) ListTable(ctx context.Context, table string, page int, search string) (TablePage, error) {
	validTable, tableErr := validateTableName(table)
	if tableErr != nil {
		return TablePage{}, tableErr
	}
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set(queryParameterPage, strconv.Itoa(page))
	query.Set(queryParameterSearch, search)

	var tablePage TablePage
	listErr := client.executeJSON(ctx, requestSpec{
		operation: operationListTable,
		method:    http.MethodGet,
		path:      tablePath(validTable),
		query:     query,
	}, nil, &tablePage)
	if listErr != nil {
		return TablePage{}, listErr
	}
	if tablePage.Rows == nil {
		tablePage.Rows = []model.TableRecord{}
	}
	return tablePage, nil
}

// CreateRecord posts a new row as a multipart form.
func (client *Client) CreateRecord(ctx context.Context, table string, payload *Payload) (MessageResponse, error) {
	validTable, tableErr := validateTableName(table)
	if tableErr != nil {
		return MessageResponse{}, tableErr
	}
	var acknowledgement MessageResponse
	createErr := client.executeMultipart(ctx, requestSpec{
		operation: operationCreateRow,
		method:    http.MethodPost,
		path:      tablePath(validTable),
	}, payload, &acknowledgement)
	return acknowledgement, createErr
}

// UpdateRecord replaces an existing row with a multipart form.
func (client *Client) UpdateRecord(ctx context.Context, table string, identifier int64, payload *Payload) (MessageResponse, error) {
	validTable, tableErr := validateTableName(table)
	if tableErr != nil {
		return MessageResponse{}, tableErr
	}
	var acknowledgement MessageResponse
	updateErr := client.executeMultipart(ctx, requestSpec{
		operation: operationUpdateRow,
		method:    http.MethodPut,
		path:      tablePath(validTable, strconv.FormatInt(identifier, 10)),
	}, payload, &acknowledgement)
	return acknowledgement, updateErr
}

// DeleteRecord removes a row.
func (client *Client) DeleteRecord(ctx context.Context, table string, identifier int64) error {
	validTable, tableErr := validateTableName(table)
	if tableErr != nil {
		return tableErr
	}
	return client.executeJSON(ctx, requestSpec{
		operation: operationDeleteRow,
		method:    http.MethodDelete,
		path:      tablePath(validTable, strconv.FormatInt(identifier, 10)),
	}, nil, nil)
}

// Toggle sets a boolean column on the row identified by identifier.
func (client *Client) Toggle(ctx context.Context, identifier int64, request ToggleRequest) error {
	if _, tableErr := validateTableName(request.Table); tableErr != nil {
		return tableErr
	}
	return client.executeJSON(ctx, requestSpec{
		operation: operationToggle,
		method:    http.MethodPut,
		path:      path.Join(togglePathPrefix, strconv.FormatInt(identifier, 10)),
	}, request, nil)
}

// ExportTable downloads the backend's CSV export of a table.
func (client *Client) ExportTable(ctx context.Context, table string) ([]byte, error) {
	validTable, tableErr := validateTableName(table)
	if tableErr != nil {
		return nil, tableErr
	}
	return client.execute(ctx, requestSpec{
		operation: operationExportTable,
		method:    http.MethodGet,
		path:      tablePath(validTable, exportPathSuffix),
	})
}
