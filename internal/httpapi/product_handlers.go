package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/catalog"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	productsPageTitle      = "Products"
	templateProductBoard   = "product_board"
	paramSubcategoryID     = "subCategoryID"
	paramIndex             = "index"
	formTitleProductAdd    = "Add Product"
	formTitleProductEdit   = "Edit Product"
	formKeyProductName     = "product_name"
	formKeyProductDesc     = "product_description"
	formKeyImageAlt        = "image_alt"
	formKeyProductImage    = "product_image"
	formKeyProductVideo    = "product_video"
	formKeySize            = "size"
	formKeyColor           = "color"
	formKeyNewColor        = "new_color"
	formKeyAddColor        = "add_color"
	formKeyKeepImage       = "keep_image"
	formKeyGallery         = "multi_images[]"
	logEventProductRefresh = "product_refresh_failed"
)

type productBoardData struct {
	ActionBase    string
	Title         string
	Products      []productRow
	Form          *productFormData
	PendingDelete *catalog.DeleteTarget
	Status        statusData
	Uploading     bool
	UploadPercent int
}

type productRow struct {
	ID       int64
	Name     string
	Image    string
	ImageAlt string
	Toggles  []productToggle
}

type productToggle struct {
	Label    string
	Checked  bool
	Disabled bool
	Action   string
}

type productFormData struct {
	Title          string
	SubmitLabel    string
	Name           string
	Description    string
	ImageAlt       string
	ImagePreview   string
	VideoPreview   string
	Sizes          []sizeOption
	Colors         []string
	ExistingImages []galleryImage
	NewImages      []string
}

type sizeOption struct {
	Value   string
	Checked bool
}

type galleryImage struct {
	Filename string
	URL      string
}

var productToggleFields = []struct {
	field string
	label string
}{
	{field: model.FieldShowInCollection, label: "Show in collection"},
	{field: model.FieldShowInPopular, label: "Show in popular"},
	{field: model.FieldShowInSpectrum, label: "Show in spectrum"},
}

// RenderProducts serves the product board of one subcategory.
func (handlers *ConsoleHandlers) RenderProducts(context *gin.Context) {
	subcategoryID, parseErr := pathIdentifier(context, paramSubcategoryID)
	if parseErr != nil {
		context.String(http.StatusNotFound, parseErr.Error())
		return
	}
	pagePath := context.Request.URL.Path
	view, reused := handlers.existingView(context, ViewKindProducts, pagePath)
	if !reused {
		owner := handlers.owner(context)
		board, boardErr := catalog.NewProductBoard(catalog.ProductBoardConfig{
			Store:         handlers.backend,
			SubcategoryID: subcategoryID,
			Recorder:      handlers.recorder,
			Logger:        handlers.logger,
			Actor:         owner,
		})
		if boardErr != nil {
			handlers.pages.fail(context, boardErr)
			return
		}
		if refreshErr := board.Refresh(context.Request.Context()); refreshErr != nil && !errors.Is(refreshErr, dyntable.ErrSuperseded) {
			handlers.logger.Warn(logEventProductRefresh, zap.Int64("sub_category_id", subcategoryID), zap.Error(refreshErr))
		}
		view = newLiveView(ViewKindProducts, owner, pagePath)
		view.products = board
		board.OnUploadProgress(func(int) { view.Changed() })
		handlers.views.Add(view)
	}
	title := productsPageTitle
	if subcategoryTitle := view.products.State().SubcategoryTitle; subcategoryTitle != "" {
		title = subcategoryTitle
	}
	handlers.renderPage(context, view, title)
}

func (handlers *ConsoleHandlers) renderProducts(view *LiveView) (string, error) {
	state := view.products.State()
	renderer := handlers.pages.Renderer()
	base := actionBase(view, ViewKindProducts)
	capReached := model.CountProductFlag(state.Products, model.FieldShowInCollection) >= catalog.ProductCollectionLimit
	data := productBoardData{
		ActionBase:    base,
		Title:         state.SubcategoryTitle,
		Products:      make([]productRow, 0, len(state.Products)),
		PendingDelete: state.PendingDelete,
		Status:        statusData{Message: state.Status.Message, Level: state.Status.Level},
		Uploading:     state.Upload.Active,
		UploadPercent: state.Upload.Percent,
	}
	for _, product := range state.Products {
		row := productRow{
			ID:       int64(product.ID),
			Name:     product.Name,
			Image:    optionalAssetURL(renderer, product.Image),
			ImageAlt: product.ImageAlt,
		}
		for _, toggle := range productToggleFields {
			checked := product.FlagValue(toggle.field)
			next := "1"
			if checked {
				next = "0"
			}
			row.Toggles = append(row.Toggles, productToggle{
				Label:    toggle.label,
				Checked:  checked,
				Disabled: toggle.field == model.FieldShowInCollection && capReached && !checked,
				Action:   fmt.Sprintf("%s/%d/toggle/%s/%s", base, int64(product.ID), toggle.field, next),
			})
		}
		data.Products = append(data.Products, row)
	}
	if state.Draft != nil {
		data.Form = productForm(renderer, state.Draft)
	}
	return handlers.pages.Fragment(templateProductBoard, data)
}

func productForm(renderer *dyntable.Renderer, draft *catalog.ProductDraft) *productFormData {
	form := &productFormData{
		Title:        formTitleProductAdd,
		SubmitLabel:  submitLabelCreate,
		Name:         draft.Name,
		Description:  draft.Description,
		ImageAlt:     draft.ImageAlt,
		ImagePreview: optionalAssetURL(renderer, draft.ImagePreview),
		VideoPreview: optionalAssetURL(renderer, draft.VideoPreview),
		Colors:       draft.Colors,
	}
	if draft.Mode == catalog.FormModeEdit {
		form.Title, form.SubmitLabel = formTitleProductEdit, submitLabelUpdate
	}
	for _, size := range model.AvailableProductSizes {
		form.Sizes = append(form.Sizes, sizeOption{Value: size, Checked: draft.HasSize(size)})
	}
	for _, filename := range draft.ExistingImages {
		form.ExistingImages = append(form.ExistingImages, galleryImage{Filename: filename, URL: renderer.AssetURL(filename)})
	}
	for _, part := range draft.NewImages {
		form.NewImages = append(form.NewImages, part.FileName)
	}
	return form
}

// ProductAdd opens an empty product form.
func (handlers *ConsoleHandlers) ProductAdd(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	view.products.ClearStatus()
	view.products.OpenAdd()
	handlers.respond(context, view)
}

// ProductEdit opens the form of a loaded product.
func (handlers *ConsoleHandlers) ProductEdit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	identifier, editErr := pathIdentifier(context, paramRecordID)
	if editErr == nil {
		view.products.ClearStatus()
		editErr = view.products.OpenEdit(identifier)
	}
	handlers.logActionError(view, "product_edit", editErr)
	handlers.respond(context, view)
}

// ProductToggle sets a display flag on a product.
func (handlers *ConsoleHandlers) ProductToggle(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	identifier, toggleErr := pathIdentifier(context, paramRecordID)
	if toggleErr == nil {
		view.products.ClearStatus()
		toggleErr = view.products.Toggle(context.Request.Context(), identifier, context.Param(paramField), context.Param(paramValue) == "1")
	}
	if !errors.Is(toggleErr, dyntable.ErrFlagCapReached) {
		handlers.logActionError(view, "product_toggle", toggleErr)
	}
	handlers.respond(context, view)
}

// ProductFormClose discards the open form.
func (handlers *ConsoleHandlers) ProductFormClose(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	view.products.CloseDraft()
	handlers.respond(context, view)
}

// ProductRemoveNewImage drops a staged gallery image.
func (handlers *ConsoleHandlers) ProductRemoveNewImage(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	index, parseErr := strconv.Atoi(context.Param(paramIndex))
	if parseErr == nil {
		parseErr = view.products.RemoveNewImage(index)
	}
	handlers.logActionError(view, "remove_image", parseErr)
	handlers.respond(context, view)
}

// ProductFormSubmit copies the posted form into the draft and uploads it.
func (handlers *ConsoleHandlers) ProductFormSubmit(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	submitErr := syncProductDraft(context.Request, view.products)
	if submitErr == nil {
		_, submitErr = view.products.Submit(context.Request.Context())
	}
	handlers.logActionError(view, "product_submit", submitErr)
	handlers.respond(context, view)
}

func syncProductDraft(request *http.Request, board *catalog.ProductBoard) error {
	if parseErr := parseSubmission(request); parseErr != nil {
		return parseErr
	}
	draft := board.State().Draft
	if draft == nil {
		return catalog.ErrNoForm
	}
	for _, field := range []string{formKeyProductName, formKeyProductDesc, formKeyImageAlt} {
		if values, posted := request.PostForm[field]; posted && len(values) > 0 {
			if setErr := board.SetText(field, values[0]); setErr != nil {
				return setErr
			}
		}
	}
	for _, field := range []string{formKeyProductImage, formKeyProductVideo} {
		part, chosen, fileErr := uploadedFile(request, field)
		if fileErr != nil {
			return fileErr
		}
		if chosen {
			if attachErr := board.AttachMedia(part); attachErr != nil {
				return attachErr
			}
		}
	}

	selectedSizes := toSet(request.PostForm[formKeySize])
	for _, size := range model.AvailableProductSizes {
		if draft.HasSize(size) != selectedSizes[size] {
			if sizeErr := board.ToggleSize(size); sizeErr != nil {
				return sizeErr
			}
		}
	}

	keptColors := toSet(request.PostForm[formKeyColor])
	for _, color := range draft.Colors {
		if !keptColors[color] {
			if removeErr := board.RemoveColor(color); removeErr != nil {
				return removeErr
			}
		}
	}
	if request.PostFormValue(formKeyAddColor) != "" {
		if colorErr := board.AddColor(request.PostFormValue(formKeyNewColor)); colorErr != nil {
			return colorErr
		}
	}

	keptImages := toSet(request.PostForm[formKeyKeepImage])
	for index := len(draft.ExistingImages) - 1; index >= 0; index-- {
		if !keptImages[draft.ExistingImages[index]] {
			if removeErr := board.RemoveExistingImage(index); removeErr != nil {
				return removeErr
			}
		}
	}
	gallery, galleryErr := uploadedFiles(request, formKeyGallery)
	if galleryErr != nil {
		return galleryErr
	}
	return board.AddImages(gallery...)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[strings.TrimSpace(value)] = true
	}
	return set
}

// ProductDelete asks for confirmation of a product delete.
func (handlers *ConsoleHandlers) ProductDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	identifier, parseErr := pathIdentifier(context, paramRecordID)
	if parseErr == nil {
		view.products.RequestDelete(identifier)
	}
	handlers.logActionError(view, "product_delete", parseErr)
	handlers.respond(context, view)
}

// ProductCancelDelete clears the pending confirmation.
func (handlers *ConsoleHandlers) ProductCancelDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	view.products.CancelDelete()
	handlers.respond(context, view)
}

// ProductConfirmDelete deletes the confirmed product.
func (handlers *ConsoleHandlers) ProductConfirmDelete(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindProducts)
	if !ok {
		return
	}
	identifier, deleteErr := pathIdentifier(context, paramRecordID)
	if deleteErr == nil {
		deleteErr = view.products.ConfirmDelete(context.Request.Context(), identifier)
	}
	handlers.logActionError(view, "product_delete_confirm", deleteErr)
	handlers.respond(context, view)
}
