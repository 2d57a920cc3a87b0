package httpapi

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/catalog"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	catalogPageTitle       = "Product"
	templateCatalogBoard   = "catalog_board"
	paramKind              = "kind"
	formTitleCategoryAdd   = "Add Category"
	formTitleCategoryEdit  = "Edit Category"
	formTitleSubAdd        = "Add Subcategory"
	formTitleSubEdit       = "Edit Subcategory"
	submitLabelCreate      = "Save"
	submitLabelUpdate      = "Save Changes"
	logEventCatalogRefresh = "catalog_refresh_failed"
)

type catalogBoardData struct {
	ActionBase    string
	Categories    []categoryRow
	Form          *catalogFormData
	PendingDelete *catalog.DeleteTarget
	Status        statusData
}

type statusData struct {
	Message string
	Level   string
}

type categoryRow struct {
	ID            int64
	Name          string
	Thumbnail     string
	IsPopular     bool
	ShowHide      bool
	Expanded      bool
	Subcategories []subcategoryRow
}

type subcategoryRow struct {
	ID                 int64
	Name               string
	Thumbnail          string
	ShowInCollection   bool
	IsActive           bool
	CollectionDisabled bool
	ProductsURL        string
}

type catalogFormData struct {
	Title       string
	SubmitLabel string
	Texts       []formInput
	Files       []formInput
}

type formInput struct {
	Name       string
	Label      string
	Value      string
	PreviewURL string
}

// RenderCatalog serves the category and subcategory board.
func (handlers *ConsoleHandlers) RenderCatalog(context *gin.Context) {
	pagePath := context.Request.URL.Path
	view, reused := handlers.existingView(context, ViewKindCatalog, pagePath)
	if !reused {
		owner := handlers.owner(context)
		board, boardErr := catalog.NewCategoryBoard(catalog.CategoryBoardConfig{
			Store:    handlers.backend,
			Recorder: handlers.recorder,
			Logger:   handlers.logger,
			Actor:    owner,
		})
		if boardErr != nil {
			handlers.pages.fail(context, boardErr)
			return
		}
		if refreshErr := board.Refresh(context.Request.Context()); refreshErr != nil && !errors.Is(refreshErr, dyntable.ErrSuperseded) {
			handlers.logger.Warn(logEventCatalogRefresh, zap.Error(refreshErr))
		}
		view = newLiveView(ViewKindCatalog, owner, pagePath)
		view.catalog = board
		handlers.views.Add(view)
	}
	handlers.renderPage(context, view, catalogPageTitle)
}

func (handlers *ConsoleHandlers) renderCatalog(view *LiveView) (string, error) {
	state := view.catalog.State()
	renderer := handlers.pages.Renderer()
	data := catalogBoardData{
		ActionBase:    actionBase(view, ViewKindCatalog),
		Categories:    make([]categoryRow, 0, len(state.Categories)),
		PendingDelete: state.PendingDelete,
		Status:        statusData{Message: state.Status.Message, Level: state.Status.Level},
	}
	for _, category := range state.Categories {
		capReached := model.CountSubcategoryFlag(category.Subcategories, model.FieldShowInCollection) >= catalog.SubcategoryCollectionLimit
		row := categoryRow{
			ID:        int64(category.ID),
			Name:      category.Name,
			Thumbnail: optionalAssetURL(renderer, category.Thumbnail),
			IsPopular: bool(category.IsPopular),
			ShowHide:  bool(category.ShowHide),
			Expanded:  int64(category.ID) == state.ExpandedID,
		}
		for _, subcategory := range category.Subcategories {
			row.Subcategories = append(row.Subcategories, subcategoryRow{
				ID:                 int64(subcategory.ID),
				Name:               subcategory.Name,
				Thumbnail:          optionalAssetURL(renderer, subcategory.Thumbnail),
				ShowInCollection:   bool(subcategory.ShowInCollection),
				IsActive:           bool(subcategory.IsActive),
				CollectionDisabled: capReached && !bool(subcategory.ShowInCollection),
				ProductsURL:        RouteProductsPrefix + subcategory.ID.String(),
			})
		}
		data.Categories = append(data.Categories, row)
	}
	if state.Form != nil {
		data.Form = catalogForm(renderer, state.Form)
	}
	return handlers.pages.Fragment(templateCatalogBoard, data)
}

func catalogForm(renderer *dyntable.Renderer, form *catalog.FormDraft) *catalogFormData {
	fields := form.Fields()
	isSubcategory := len(fields.TextFields) > 0 && fields.TextFields[0] == catalog.SubcategoryFields.TextFields[0]
	data := &catalogFormData{Title: formTitleCategoryAdd, SubmitLabel: submitLabelCreate}
	switch {
	case isSubcategory && form.Mode == catalog.FormModeEdit:
		data.Title, data.SubmitLabel = formTitleSubEdit, submitLabelUpdate
	case isSubcategory:
		data.Title = formTitleSubAdd
	case form.Mode == catalog.FormModeEdit:
		data.Title, data.SubmitLabel = formTitleCategoryEdit, submitLabelUpdate
	}
	for _, field := range fields.TextFields {
		if isSubcategory && field == catalog.SubcategoryFields.TextFields[0] {
			continue
		}
		data.Texts = append(data.Texts, formInput{Name: field, Label: dyntable.FormatLabel(field), Value: form.Values[field]})
	}
	for _, field := range fields.FileFields {
		data.Files = append(data.Files, formInput{
			Name:       field,
			Label:      dyntable.FormatLabel(field),
			PreviewURL: optionalAssetURL(renderer, form.Previews[field]),
		})
	}
	return data
}

func optionalAssetURL(renderer *dyntable.Renderer, filename string) string {
	if filename == "" {
		return ""
	}
	return renderer.AssetURL(filename)
}

func pathIdentifier(context *gin.Context, name string) (int64, error) {
	return dyntable.ParseIdentifier(context.Param(name))
}

// CatalogExpand expands or collapses a category.
func (handlers *ConsoleHandlers) CatalogExpand(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, parseErr := pathIdentifier(context, paramRecordID)
	if parseErr == nil {
		view.catalog.ToggleExpanded(identifier)
	}
	handlers.logActionError(view, "expand", parseErr)
	handlers.respond(context, view)
}

// CatalogCategoryAdd opens an empty category form.
func (handlers *ConsoleHandlers) CatalogCategoryAdd(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	view.catalog.ClearStatus()
	view.catalog.OpenCategoryAdd()
	handlers.respond(context, view)
}

// CatalogCategoryEdit opens the form of a loaded category.
func (handlers *ConsoleHandlers) CatalogCategoryEdit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, parseErr := pathIdentifier(context, paramRecordID)
	if parseErr == nil {
		view.catalog.ClearStatus()
		parseErr = view.catalog.OpenCategoryEdit(identifier)
	}
	handlers.logActionError(view, "category_edit", parseErr)
	handlers.respond(context, view)
}

// CatalogSubcategoryAdd opens an empty subcategory form under a category.
func (handlers *ConsoleHandlers) CatalogSubcategoryAdd(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, parseErr := pathIdentifier(context, paramRecordID)
	if parseErr == nil {
		view.catalog.ClearStatus()
		parseErr = view.catalog.OpenSubcategoryAdd(identifier)
	}
	handlers.logActionError(view, "subcategory_add", parseErr)
	handlers.respond(context, view)
}

// CatalogSubcategoryEdit opens the form of a loaded subcategory.
func (handlers *ConsoleHandlers) CatalogSubcategoryEdit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, parseErr := pathIdentifier(context, paramRecordID)
	if parseErr == nil {
		view.catalog.ClearStatus()
		parseErr = view.catalog.OpenSubcategoryEdit(identifier)
	}
	handlers.logActionError(view, "subcategory_edit", parseErr)
	handlers.respond(context, view)
}

// CatalogCategoryToggle sets is_popular or show_hide.
func (handlers *ConsoleHandlers) CatalogCategoryToggle(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, toggleErr := pathIdentifier(context, paramRecordID)
	if toggleErr == nil {
		view.catalog.ClearStatus()
		toggleErr = view.catalog.ToggleCategory(context.Request.Context(), identifier, context.Param(paramField), context.Param(paramValue) == "1")
	}
	handlers.logActionError(view, "category_toggle", toggleErr)
	handlers.respond(context, view)
}

// CatalogSubcategoryToggle sets show_in_collection or is_active.
func (handlers *ConsoleHandlers) CatalogSubcategoryToggle(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, toggleErr := pathIdentifier(context, paramRecordID)
	if toggleErr == nil {
		view.catalog.ClearStatus()
		enabled := context.Param(paramValue) == "1"
		switch context.Param(paramField) {
		case model.FieldShowInCollection:
			toggleErr = view.catalog.ToggleSubcategoryCollection(context.Request.Context(), identifier, enabled)
		case model.FieldIsActive:
			toggleErr = view.catalog.ToggleSubcategoryActive(context.Request.Context(), identifier, enabled)
		default:
			toggleErr = catalog.ErrUnsupportedToggle
		}
	}
	if !errors.Is(toggleErr, dyntable.ErrFlagCapReached) {
		handlers.logActionError(view, "subcategory_toggle", toggleErr)
	}
	handlers.respond(context, view)
}

// CatalogFormClose discards the open form.
func (handlers *ConsoleHandlers) CatalogFormClose(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	view.catalog.CloseForm()
	handlers.respond(context, view)
}

// CatalogFormSubmit copies the posted fields and files into the form and saves it.
func (handlers *ConsoleHandlers) CatalogFormSubmit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	submitErr := handlers.syncCatalogForm(context, view.catalog)
	if submitErr == nil {
		submitErr = view.catalog.SubmitForm(context.Request.Context())
	}
	handlers.logActionError(view, "form_submit", submitErr)
	handlers.respond(context, view)
}

func (handlers *ConsoleHandlers) syncCatalogForm(context *gin.Context, board *catalog.CategoryBoard) error {
	if parseErr := parseSubmission(context.Request); parseErr != nil {
		return parseErr
	}
	form := board.State().Form
	if form == nil {
		return catalog.ErrNoForm
	}
	fields := form.Fields()
	for _, field := range fields.TextFields {
		values, posted := context.Request.PostForm[field]
		if !posted || len(values) == 0 {
			continue
		}
		if setErr := board.SetFormValue(field, values[0]); setErr != nil && !errors.Is(setErr, catalog.ErrUnknownField) {
			return setErr
		}
	}
	for _, field := range fields.FileFields {
		part, chosen, fileErr := uploadedFile(context.Request, field)
		if fileErr != nil {
			return fileErr
		}
		if !chosen {
			continue
		}
		if attachErr := board.AttachFormFile(part); attachErr != nil {
			return attachErr
		}
	}
	return nil
}

// CatalogDelete asks for confirmation of a category or subcategory delete.
func (handlers *ConsoleHandlers) CatalogDelete(kind catalog.DeleteKind) gin.HandlerFunc {
	return func(context *gin.Context) {
		view, ok := handlers.liveView(context, ViewKindCatalog)
		if !ok {
			return
		}
		identifier, parseErr := pathIdentifier(context, paramRecordID)
		if parseErr == nil {
			view.catalog.RequestDelete(catalog.DeleteTarget{Kind: kind, ID: identifier})
		}
		handlers.logActionError(view, "delete", parseErr)
		handlers.respond(context, view)
	}
}

// CatalogCancelDelete clears the pending confirmation.
func (handlers *ConsoleHandlers) CatalogCancelDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	view.catalog.CancelDelete()
	handlers.respond(context, view)
}

// CatalogConfirmDelete deletes the confirmed category or subcategory.
func (handlers *ConsoleHandlers) CatalogConfirmDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindCatalog)
	if !ok {
		return
	}
	identifier, deleteErr := pathIdentifier(context, paramRecordID)
	if deleteErr == nil {
		target := catalog.DeleteTarget{Kind: catalog.DeleteKind(context.Param(paramKind)), ID: identifier}
		deleteErr = view.catalog.ConfirmDelete(context.Request.Context(), target)
	}
	handlers.logActionError(view, "delete_confirm", deleteErr)
	handlers.respond(context, view)
}
