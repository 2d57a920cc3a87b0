package dyntable_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

func mediaRow() model.TableRecord {
	return model.NewTableRecord(
		[]string{"id", "title", "image_hero", "video_intro", "pdf_brochure"},
		map[string]any{"id": 2, "title": "<b>Summer</b>", "image_hero": "hero.png", "video_intro": "intro.mp4", "pdf_brochure": ""},
	)
}

func renderState(rows []model.TableRecord) dyntable.ListState {
	return dyntable.ListState{
		Table:     testTable,
		Page:      dyntable.Page{Rows: rows, TotalCount: 45, PageNumber: 2, PageSize: dyntable.PageSize},
		Schema:    dyntable.InferSchema(rows),
		PageCount: 3,
		Loaded:    true,
	}
}

func TestCellDispatchesOnKind(testingT *testing.T) {
	renderer := dyntable.NewRenderer(testAssetBaseURL + "/")
	record := mediaRow()
	schema := dyntable.InferSchema([]model.TableRecord{record})

	imageColumn, _ := schema.Column("image_hero")
	imageHTML, imageErr := renderer.Cell(imageColumn, record)
	require.NoError(testingT, imageErr)
	require.Contains(testingT, string(imageHTML), `<img src="`+testAssetBaseURL+`/hero.png"`)
	require.Contains(testingT, string(imageHTML), `width="100"`)

	videoColumn, _ := schema.Column("video_intro")
	videoHTML, videoErr := renderer.Cell(videoColumn, record)
	require.NoError(testingT, videoErr)
	require.Contains(testingT, string(videoHTML), `<video`)
	require.Contains(testingT, string(videoHTML), testAssetBaseURL+`/intro.mp4`)

	documentColumn, _ := schema.Column("pdf_brochure")
	documentHTML, documentErr := renderer.Cell(documentColumn, record)
	require.NoError(testingT, documentErr)
	require.Empty(testingT, string(documentHTML))

	record.Set("pdf_brochure", "brochure.pdf")
	documentHTML, documentErr = renderer.Cell(documentColumn, record)
	require.NoError(testingT, documentErr)
	require.Contains(testingT, string(documentHTML), "Download Document")

	textColumn, _ := schema.Column("title")
	textHTML, textErr := renderer.Cell(textColumn, record)
	require.NoError(testingT, textErr)
	require.Equal(testingT, "&lt;b&gt;Summer&lt;/b&gt;", string(textHTML))
}

func TestInputDispatchesOnKind(testingT *testing.T) {
	renderer := dyntable.NewRenderer(testAssetBaseURL)
	record := mediaRow()
	schema := dyntable.InferSchema([]model.TableRecord{record})

	imageColumn, _ := schema.Column("image_hero")
	imageInput, imageErr := renderer.Input(imageColumn, record)
	require.NoError(testingT, imageErr)
	require.Contains(testingT, string(imageInput), `type="file"`)
	require.Contains(testingT, string(imageInput), `accept="image/*"`)
	require.Contains(testingT, string(imageInput), "HERO (Upload Image)")
	require.Contains(testingT, string(imageInput), testAssetBaseURL+"/hero.png")

	documentColumn, _ := schema.Column("pdf_brochure")
	documentInput, documentErr := renderer.Input(documentColumn, record)
	require.NoError(testingT, documentErr)
	require.Contains(testingT, string(documentInput), `accept="application/pdf"`)
	require.NotContains(testingT, string(documentInput), "asset-preview")

	textColumn, _ := schema.Column("title")
	textInput, textErr := renderer.Input(textColumn, record)
	require.NoError(testingT, textErr)
	require.Contains(testingT, string(textInput), `type="text"`)
	require.Contains(testingT, string(textInput), `name="title"`)
}

func TestRenderTableLandscape(testingT *testing.T) {
	renderer := dyntable.NewRenderer(testAssetBaseURL)
	buffer := &bytes.Buffer{}
	renderErr := renderer.RenderTable(buffer, renderState([]model.TableRecord{mediaRow()}), dyntable.TableOptions{
		ElementID:  "table-view",
		ActionBase: "/tables/home-banner",
		Title:      "Home Banner",
		ExportURL:  "/tables/home-banner/export",
	})
	require.NoError(testingT, renderErr)
	rendered := buffer.String()
	require.Contains(testingT, rendered, `id="table-view"`)
	require.Contains(testingT, rendered, "Home Banner Data")
	require.Contains(testingT, rendered, "<th>HERO</th>")
	require.Contains(testingT, rendered, "<th>ACTIONS</th>")
	require.Contains(testingT, rendered, `data-record-id="2"`)
	require.Contains(testingT, rendered, "Add Record")
	require.Contains(testingT, rendered, "Export CSV")
	require.Equal(testingT, 3, strings.Count(rendered, `class="page-link"`))
	require.NotContains(testingT, rendered, "Are you sure")
}

func TestRenderTablePortraitAndReadOnly(testingT *testing.T) {
	renderer := dyntable.NewRenderer(testAssetBaseURL)
	buffer := &bytes.Buffer{}
	renderErr := renderer.RenderTable(buffer, renderState([]model.TableRecord{mediaRow(), bannerRow(3, "Winter")}), dyntable.TableOptions{
		ElementID:     "table-view",
		ActionBase:    "/tables/contact",
		Title:         "Contact",
		Layout:        dyntable.LayoutPortrait,
		ReadOnly:      true,
		HasPending:    true,
		PendingDelete: 3,
	})
	require.NoError(testingT, renderErr)
	rendered := buffer.String()
	require.Contains(testingT, rendered, "Record 1")
	require.Contains(testingT, rendered, "Record 2")
	require.NotContains(testingT, rendered, "Add Record")
	require.NotContains(testingT, rendered, ">Edit<")
	require.Contains(testingT, rendered, "Are you sure you want to delete this record?")
}

func TestRenderToggleRespectsCap(testingT *testing.T) {
	renderer := dyntable.NewRenderer(testAssetBaseURL)
	rows := productRows(6, 8)
	buffer := &bytes.Buffer{}
	renderErr := renderer.RenderTable(buffer, renderState(rows), dyntable.TableOptions{
		ElementID:    "products",
		ActionBase:   "/products/4",
		Title:        "Products",
		ToggleFields: []string{model.FieldShowInPopular},
		CappedFields: map[string]bool{model.FieldShowInPopular: true},
	})
	require.NoError(testingT, renderErr)
	rendered := buffer.String()
	require.Equal(testingT, 6, strings.Count(rendered, " checked"))
	require.Equal(testingT, 2, strings.Count(rendered, "Limit reached"))
}

func TestRenderFormModes(testingT *testing.T) {
	renderer := dyntable.NewRenderer(testAssetBaseURL)
	schema := dyntable.InferSchema([]model.TableRecord{mediaRow()})

	closed := &bytes.Buffer{}
	require.NoError(testingT, renderer.RenderForm(closed, schema, dyntable.Draft{}, false, dyntable.FormOptions{ElementID: "table-form"}))
	require.Equal(testingT, `<div id="table-form"></div>`, closed.String())

	addBuffer := &bytes.Buffer{}
	require.NoError(testingT, renderer.RenderForm(addBuffer, schema, dyntable.Draft{Mode: dyntable.DraftModeAdd, Values: model.NewTableRecord(nil, nil)}, true, dyntable.FormOptions{ElementID: "table-form", ActionBase: "/tables/home-banner"}))
	require.Contains(testingT, addBuffer.String(), "Add Record")
	require.NotContains(testingT, addBuffer.String(), `name="id"`)
	require.Contains(testingT, addBuffer.String(), `enctype="multipart/form-data"`)

	editBuffer := &bytes.Buffer{}
	require.NoError(testingT, renderer.RenderForm(editBuffer, schema, dyntable.Draft{Mode: dyntable.DraftModeEdit, RecordID: 2, Values: mediaRow()}, true, dyntable.FormOptions{ElementID: "table-form", ActionBase: "/tables/home-banner"}))
	require.Contains(testingT, editBuffer.String(), "Edit Record")
	require.Contains(testingT, editBuffer.String(), "Save Changes")
}

func TestTerminalRendererPrintsLabelsAndAssetURLs(testingT *testing.T) {
	terminal := dyntable.NewTerminalRenderer(dyntable.NewRenderer(testAssetBaseURL), dyntable.LayoutLandscape, "")
	buffer := &bytes.Buffer{}
	require.NoError(testingT, terminal.Render(buffer, renderState([]model.TableRecord{mediaRow()})))
	rendered := buffer.String()
	require.Contains(testingT, rendered, "HERO")
	require.Contains(testingT, rendered, "[image] "+testAssetBaseURL+"/hero.png")
	require.Contains(testingT, rendered, "(1 rows, page 2 of 3, 45 total)")

	empty := &bytes.Buffer{}
	require.NoError(testingT, terminal.Render(empty, renderState(nil)))
	require.Equal(testingT, "(0 rows)\n", empty.String())
}

type memoryTableBackend struct {
	mutex sync.Mutex
	rows  []model.TableRecord
}

func (backend *memoryTableBackend) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	writer.Header().Set("Content-Type", "application/json")
	switch request.Method {
	case http.MethodGet:
		_ = json.NewEncoder(writer).Encode(map[string]any{"data": backend.rows, "totalRecords": len(backend.rows)})
	case http.MethodPost:
		if parseErr := request.ParseMultipartForm(1 << 20); parseErr != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		keys := []string{"id"}
		values := map[string]any{"id": len(backend.rows) + 1}
		for name, fieldValues := range request.MultipartForm.Value {
			keys = append(keys, name)
			values[name] = fieldValues[0]
		}
		for name, headers := range request.MultipartForm.File {
			keys = append(keys, name)
			values[name] = "stored-" + headers[0].Filename
		}
		backend.rows = append(backend.rows, model.NewTableRecord(keys, values))
		_ = json.NewEncoder(writer).Encode(map[string]any{"message": "Record " + strconv.Itoa(len(backend.rows)) + " created", "success": true})
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestMultipartCreateRendersStoredAsset(testingT *testing.T) {
	backend := &memoryTableBackend{rows: []model.TableRecord{
		model.NewTableRecord([]string{"id", "title", "subtitle", "image_banner"}, map[string]any{"id": 1, "title": "Seed", "subtitle": "", "image_banner": "seed.png"}),
	}}
	server := httptest.NewServer(backend)
	testingT.Cleanup(server.Close)

	client, clientErr := gateway.New(gateway.Config{BaseURL: server.URL + "/api"})
	require.NoError(testingT, clientErr)
	controller := newController(testingT, client, nil)
	require.NoError(testingT, controller.Refresh(context.Background()))
	require.Empty(testingT, controller.State().Page.Rows)

	orchestrator := newOrchestrator(testingT, client, controller, nil, nil)
	var progressMutex sync.Mutex
	var progress []int
	orchestrator.OnUploadProgress(func(percent int) {
		progressMutex.Lock()
		defer progressMutex.Unlock()
		progress = append(progress, percent)
	})

	require.NoError(testingT, orchestrator.OpenAdd())
	require.NoError(testingT, orchestrator.SetDraftValue("title", "Summer Sale"))
	require.NoError(testingT, orchestrator.SetDraftValue("subtitle", "Up to 50%"))
	require.NoError(testingT, orchestrator.AttachFile(gateway.FilePart{Field: "image_banner", FileName: "summer.png", ContentType: "image/png", Content: []byte("png-bytes")}))

	acknowledgement, submitErr := orchestrator.Submit(context.Background())
	require.NoError(testingT, submitErr)
	require.True(testingT, acknowledgement.Success)
	progressMutex.Lock()
	defer progressMutex.Unlock()
	require.NotEmpty(testingT, progress)
	require.Equal(testingT, 0, progress[0])
	require.Equal(testingT, 100, progress[len(progress)-1])

	state := controller.State()
	require.Len(testingT, state.Page.Rows, 1)
	require.Equal(testingT, 1, state.Page.TotalCount)

	buffer := &bytes.Buffer{}
	require.NoError(testingT, dyntable.NewRenderer(testAssetBaseURL).RenderTable(buffer, state, dyntable.TableOptions{ElementID: "table-view", ActionBase: "/tables/home-banner", Title: "Home Banner"}))
	require.Contains(testingT, buffer.String(), testAssetBaseURL+"/stored-summer.png")
	require.Contains(testingT, buffer.String(), "Summer Sale")
}
