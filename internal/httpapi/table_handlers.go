package httpapi

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	paramTable      = "table"
	paramLayout     = "layout"
	paramRecordID   = "id"
	paramField      = "field"
	paramValue      = "value"
	paramPageNumber = "n"

	templateTableScreen = "table_screen"
	tableElementID      = "table-data"
	formElementID       = "table-form"
	csvContentType      = "text/csv; charset=utf-8"

	messageRecordSaved     = "Record saved successfully."
	messageRecordFailed    = "Failed to save record."
	messageRecordDeleted   = "Record deleted."
	messageDeleteFailed    = "Failed to delete record."
	messageToggleFailed    = "Failed to update. Please try again."
	messageFlagCapReached  = "Limit reached for this field."
	messageTableLoadFailed = "Failed to load data."
	messageExportFailed    = "Failed to export table."

	activityActionExport = "table_export"
	logEventTableFetch   = "table_fetch_failed"
	logEventTableExport  = "table_export_failed"
)

type tableScreenData struct {
	Table template.HTML
	Form  template.HTML
}

type searchSignals struct {
	Search string `json:"search"`
}

// RenderEditableTable serves /app/tables/:table[/:layout].
func (handlers *ConsoleHandlers) RenderEditableTable(context *gin.Context) {
	handlers.renderTablePage(context, false)
}

// RenderReadOnlyTable serves /app/views/:table[/:layout].
func (handlers *ConsoleHandlers) RenderReadOnlyTable(context *gin.Context) {
	handlers.renderTablePage(context, true)
}

func (handlers *ConsoleHandlers) renderTablePage(context *gin.Context, readOnly bool) {
	configuration := handlers.console.TableView(strings.TrimSpace(context.Param(paramTable)), readOnly)
	if nameErr := validTableName(configuration.Table); nameErr != nil {
		context.String(http.StatusNotFound, nameErr.Error())
		return
	}
	pagePath := context.Request.URL.Path
	view, reused := handlers.existingView(context, ViewKindTable, pagePath)
	if !reused {
		created, createErr := handlers.newTableView(context, configuration, pagePath)
		if createErr != nil {
			handlers.pages.fail(context, createErr)
			return
		}
		view = created
		if markErr := handlers.markRead(context.Request.Context(), configuration.UnreadKind); markErr == nil && configuration.UnreadKind != "" {
			handlers.broadcastSidebar()
		}
	}
	handlers.renderPage(context, view, view.table.config.DisplayTitle())
}

func validTableName(table string) error {
	if table == "" || strings.ContainsAny(table, "/?#") {
		return gateway.ErrInvalidTableName
	}
	return nil
}

func (handlers *ConsoleHandlers) newTableView(context *gin.Context, configuration TableView, pagePath string) (*LiveView, error) {
	owner := handlers.owner(context)
	layout := dyntable.ParseLayout(context.Param(paramLayout))
	if strings.TrimSpace(context.Param(paramLayout)) == "" {
		layout = dyntable.ParseLayout(configuration.Layout)
	}
	controller, controllerErr := dyntable.NewListController(dyntable.ControllerConfig{
		Table:             configuration.Table,
		Source:            handlers.backend,
		ExcludedIDs:       configuration.ExcludedIDs,
		ResetPageOnSearch: configuration.ResetPageOnSearch,
		Recorder:          handlers.recorder,
		Logger:            handlers.logger,
		Actor:             owner,
	})
	if controllerErr != nil {
		return nil, controllerErr
	}
	orchestrator, orchestratorErr := dyntable.NewOrchestrator(dyntable.OrchestratorConfig{
		Store:      handlers.backend,
		Controller: controller,
		Caps:       configuration.FlagCaps(),
		ReadOnly:   configuration.ReadOnly,
		Recorder:   handlers.recorder,
		Logger:     handlers.logger,
		Actor:      owner,
	})
	if orchestratorErr != nil {
		return nil, orchestratorErr
	}
	view := newLiveView(ViewKindTable, owner, pagePath)
	view.table = &tableScreen{
		config:       configuration,
		layout:       layout,
		controller:   controller,
		orchestrator: orchestrator,
	}
	orchestrator.OnUploadProgress(func(int) { view.Changed() })
	if refreshErr := controller.Refresh(context.Request.Context()); refreshErr != nil && !errors.Is(refreshErr, dyntable.ErrSuperseded) {
		handlers.logger.Warn(logEventTableFetch, zap.String("table", configuration.Table), zap.Error(refreshErr))
		view.table.setStatus(gateway.BackendMessage(refreshErr, messageTableLoadFailed), dyntable.StatusLevelDanger)
	}
	handlers.views.Add(view)
	return view, nil
}

func (handlers *ConsoleHandlers) renderTableScreen(view *LiveView) (string, error) {
	screen := view.table
	state := screen.controller.State()
	pending, hasPending := screen.orchestrator.PendingDelete()
	status, level := screen.currentStatus()
	capped := make(map[string]bool, len(screen.config.Caps))
	for field := range screen.config.Caps {
		capped[field] = screen.orchestrator.CapReached(field)
	}
	base := actionBase(view, ViewKindTable)

	tableBuffer := &bytes.Buffer{}
	if renderErr := handlers.pages.Renderer().RenderTable(tableBuffer, state, dyntable.TableOptions{
		ElementID:     tableElementID,
		ActionBase:    base,
		Title:         screen.config.DisplayTitle(),
		Layout:        screen.layout,
		ReadOnly:      screen.config.ReadOnly,
		ExportURL:     screen.config.Path() + "/export",
		ToggleFields:  screen.config.Toggles,
		CappedFields:  capped,
		PendingDelete: pending,
		HasPending:    hasPending,
		Status:        status,
		StatusLevel:   level,
	}); renderErr != nil {
		return "", renderErr
	}

	formBuffer := &bytes.Buffer{}
	draft, open := screen.orchestrator.Draft()
	if renderErr := handlers.pages.Renderer().RenderForm(formBuffer, state.Schema, draft, open, dyntable.FormOptions{
		ElementID:  formElementID,
		ActionBase: base,
	}); renderErr != nil {
		return "", renderErr
	}

	return handlers.pages.Fragment(templateTableScreen, tableScreenData{
		Table: template.HTML(tableBuffer.String()),
		Form:  template.HTML(formBuffer.String()),
	})
}

// TableSearch stores the search term and refetches.
func (handlers *ConsoleHandlers) TableSearch(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	search := context.PostForm("search")
	if isDatastarRequest(context.Request) {
		signals := searchSignals{}
		if readErr := datastar.ReadSignals(context.Request, &signals); readErr == nil {
			search = signals.Search
		}
	}
	handlers.tableFetch(view, "search", view.table.controller.SetSearch(context.Request.Context(), strings.TrimSpace(search)))
	handlers.respond(context, view)
}

// TablePage moves to page n.
func (handlers *ConsoleHandlers) TablePage(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	pageNumber, parseErr := strconv.Atoi(context.Param(paramPageNumber))
	if parseErr != nil || pageNumber < 1 {
		pageNumber = 1
	}
	handlers.tableFetch(view, "page", view.table.controller.SetPage(context.Request.Context(), pageNumber))
	handlers.respond(context, view)
}

func (handlers *ConsoleHandlers) tableFetch(view *LiveView, action string, fetchErr error) {
	if fetchErr == nil || errors.Is(fetchErr, dyntable.ErrSuperseded) {
		return
	}
	handlers.logActionError(view, action, fetchErr)
	view.table.setStatus(gateway.BackendMessage(fetchErr, messageTableLoadFailed), dyntable.StatusLevelDanger)
}

// TableAdd opens an empty draft.
func (handlers *ConsoleHandlers) TableAdd(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	handlers.logActionError(view, "add", view.table.orchestrator.OpenAdd())
	handlers.respond(context, view)
}

// TableEdit opens a draft of a loaded record.
func (handlers *ConsoleHandlers) TableEdit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	identifier, parseErr := dyntable.ParseIdentifier(context.Param(paramRecordID))
	if parseErr == nil {
		parseErr = view.table.orchestrator.OpenEdit(identifier)
	}
	handlers.logActionError(view, "edit", parseErr)
	handlers.respond(context, view)
}

// TableClose discards the open draft.
func (handlers *ConsoleHandlers) TableClose(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	view.table.orchestrator.CloseDraft()
	handlers.respond(context, view)
}

// TableSubmit copies the posted form into the draft and sends it.
func (handlers *ConsoleHandlers) TableSubmit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	screen := view.table
	if syncErr := handlers.syncTableDraft(context.Request, screen); syncErr != nil {
		handlers.logActionError(view, "submit", syncErr)
		screen.setStatus(messageRecordFailed, dyntable.StatusLevelDanger)
		handlers.respond(context, view)
		return
	}
	acknowledgement, submitErr := screen.orchestrator.Submit(context.Request.Context())
	if submitErr != nil {
		handlers.logActionError(view, "submit", submitErr)
		screen.setStatus(gateway.BackendMessage(submitErr, messageRecordFailed), dyntable.StatusLevelDanger)
		handlers.respond(context, view)
		return
	}
	message := acknowledgement.Message
	if message == "" {
		message = messageRecordSaved
	}
	screen.setStatus(message, dyntable.StatusLevelSuccess)
	handlers.respond(context, view)
}

func (handlers *ConsoleHandlers) syncTableDraft(request *http.Request, screen *tableScreen) error {
	if parseErr := parseSubmission(request); parseErr != nil {
		return parseErr
	}
	draft, open := screen.orchestrator.Draft()
	if !open {
		return dyntable.ErrNoDraft
	}
	schema := screen.controller.State().Schema
	for _, column := range schema.Editable() {
		if column.Kind.IsAsset() {
			part, chosen, fileErr := uploadedFile(request, column.Name)
			if fileErr != nil {
				return fileErr
			}
			if chosen {
				if attachErr := screen.orchestrator.AttachFile(part); attachErr != nil {
					return attachErr
				}
			}
			continue
		}
		if _, posted := request.PostForm[column.Name]; !posted && draft.Mode == dyntable.DraftModeEdit {
			continue
		}
		if setErr := screen.orchestrator.SetDraftValue(column.Name, request.PostFormValue(column.Name)); setErr != nil {
			return setErr
		}
	}
	return nil
}

// TableDelete asks for confirmation of a delete.
func (handlers *ConsoleHandlers) TableDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	identifier, parseErr := dyntable.ParseIdentifier(context.Param(paramRecordID))
	if parseErr != nil {
		handlers.logActionError(view, "delete", parseErr)
	} else {
		view.table.orchestrator.RequestDelete(identifier)
	}
	handlers.respond(context, view)
}

// TableCancelDelete clears the pending confirmation.
func (handlers *ConsoleHandlers) TableCancelDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	view.table.orchestrator.CancelDelete()
	handlers.respond(context, view)
}

// TableConfirmDelete deletes the confirmed record.
func (handlers *ConsoleHandlers) TableConfirmDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	identifier, parseErr := dyntable.ParseIdentifier(context.Param(paramRecordID))
	deleteErr := parseErr
	if parseErr == nil {
		deleteErr = view.table.orchestrator.ConfirmDelete(context.Request.Context(), identifier)
	}
	if deleteErr != nil {
		handlers.logActionError(view, "delete", deleteErr)
		view.table.setStatus(gateway.BackendMessage(deleteErr, messageDeleteFailed), dyntable.StatusLevelDanger)
	} else {
		view.table.setStatus(messageRecordDeleted, dyntable.StatusLevelSuccess)
	}
	handlers.respond(context, view)
}

// TableToggle flips a boolean column of one record.
func (handlers *ConsoleHandlers) TableToggle(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindTable)
	if !ok {
		return
	}
	identifier, parseErr := dyntable.ParseIdentifier(context.Param(paramRecordID))
	toggleErr := parseErr
	if parseErr == nil {
		enabled := context.Param(paramValue) == "1"
		toggleErr = view.table.orchestrator.Toggle(context.Request.Context(), identifier, context.Param(paramField), enabled)
	}
	switch {
	case toggleErr == nil:
		view.table.setStatus("", "")
	case errors.Is(toggleErr, dyntable.ErrFlagCapReached):
		view.table.setStatus(messageFlagCapReached, dyntable.StatusLevelInfo)
	default:
		handlers.logActionError(view, "toggle", toggleErr)
		view.table.setStatus(gateway.BackendMessage(toggleErr, messageToggleFailed), dyntable.StatusLevelDanger)
	}
	handlers.respond(context, view)
}

// ExportTable proxies the backend CSV export as an attachment.
func (handlers *ConsoleHandlers) ExportTable(context *gin.Context) {
	table := strings.TrimSpace(context.Param(paramTable))
	if nameErr := validTableName(table); nameErr != nil {
		context.String(http.StatusNotFound, nameErr.Error())
		return
	}
	content, exportErr := handlers.backend.ExportTable(context.Request.Context(), table)
	input := model.ActivityInput{Action: activityActionExport, Target: table, Actor: handlers.owner(context), Outcome: model.ActivityOutcomeSucceeded}
	if exportErr != nil {
		input.Outcome, input.Detail = model.ActivityOutcomeFailed, exportErr.Error()
	}
	if handlers.recorder != nil {
		handlers.recorder.Record(context.Request.Context(), input)
	}
	if exportErr != nil {
		handlers.logger.Warn(logEventTableExport, zap.String("table", table), zap.Error(exportErr))
		context.String(http.StatusBadGateway, gateway.BackendMessage(exportErr, messageExportFailed))
		return
	}
	context.Header("Content-Disposition", `attachment; filename="`+table+`.csv"`)
	context.Data(http.StatusOK, csvContentType, content)
}
