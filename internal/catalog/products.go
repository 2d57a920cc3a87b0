package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	// ProductCollectionLimit caps show_in_collection across the products of one subcategory.
	ProductCollectionLimit = 6

	fieldSubcategoryID     = "sub_category_id"
	fieldProductName       = "product_name"
	fieldProductDesc       = "product_description"
	fieldImageAlt          = "image_alt"
	fieldColor             = "color"
	fieldSize              = "size"
	fieldMultipleImages    = "multiple_images"
	fieldProductImage      = "product_image"
	fieldProductVideo      = "product_video"
	fieldNewMultipleImages = "multi_images[]"
	subcategoryNameField   = "sub_category"

	activityActionProductList   = "product_list"
	activityActionProductSave   = "product_save"
	activityActionProductDelete = "product_delete"
	activityActionProductToggle = "product_toggle"

	messageProductAdded    = "Product added successfully!"
	messageProductUpdated  = "Product updated successfully!"
	messageUploadFailed    = "Upload failed. Please try again."
	messageUploading       = "Uploading, please wait..."
	messageProductLimitHit = "Only six products can be shown in the collection."
)

var (
	ErrMissingProductStore = errors.New("catalog: missing product store")
	ErrInvalidSubcategory  = errors.New("catalog: invalid subcategory")
	ErrUnknownProduct      = errors.New("catalog: product not loaded")
	ErrUnknownSize         = errors.New("catalog: unknown size")
	ErrInvalidColor        = errors.New("catalog: invalid color")
	ErrUploadInProgress    = errors.New("catalog: upload in progress")
)

// ProductStore is the backend surface used by the product board.
type ProductStore interface {
	Products(ctx context.Context, subcategoryID int64) ([]model.Product, error)
	Subcategory(ctx context.Context, identifier int64) (model.TableRecord, bool, error)
	SaveProduct(ctx context.Context, identifier int64, payload *gateway.Payload) (gateway.MessageResponse, error)
	DeleteProduct(ctx context.Context, identifier int64) error
	Toggle(ctx context.Context, identifier int64, request gateway.ToggleRequest) error
}

// ProductDraft is the open product form.
type ProductDraft struct {
	Mode           FormMode
	ProductID      int64
	Name           string
	Description    string
	ImageAlt       string
	ImagePreview   string
	VideoPreview   string
	Image          *gateway.FilePart
	Video          *gateway.FilePart
	Colors         []string
	Sizes          []string
	ExistingImages []string
	NewImages      []gateway.FilePart
}

func (draft ProductDraft) clone() ProductDraft {
	copied := draft
	copied.Colors = append([]string(nil), draft.Colors...)
	copied.Sizes = append([]string(nil), draft.Sizes...)
	copied.ExistingImages = append([]string(nil), draft.ExistingImages...)
	copied.NewImages = append([]gateway.FilePart(nil), draft.NewImages...)
	if draft.Image != nil {
		image := *draft.Image
		copied.Image = &image
	}
	if draft.Video != nil {
		video := *draft.Video
		copied.Video = &video
	}
	return copied
}

// HasSize reports whether size is selected.
func (draft ProductDraft) HasSize(size string) bool {
	return containsString(draft.Sizes, size)
}

func (draft ProductDraft) payload(subcategoryID int64) *gateway.Payload {
	payload := gateway.NewPayload()
	payload.AddField(fieldSubcategoryID, formatIdentifier(subcategoryID))
	payload.AddField(fieldProductName, draft.Name)
	payload.AddField(fieldProductDesc, draft.Description)
	payload.AddField(fieldImageAlt, draft.ImageAlt)
	payload.AddField(fieldColor, model.StringList(nonNil(draft.Colors)).Encode())
	payload.AddField(fieldSize, model.StringList(nonNil(draft.Sizes)).Encode())
	payload.AddField(fieldMultipleImages, model.StringList(nonNil(draft.ExistingImages)).Encode())
	if draft.Image != nil {
		payload.AddFile(*draft.Image)
	}
	if draft.Video != nil {
		payload.AddFile(*draft.Video)
	}
	for _, part := range draft.NewImages {
		part.Field = fieldNewMultipleImages
		payload.AddFile(part)
	}
	return payload
}

// Upload is the in-flight multipart submit.
type Upload struct {
	Active  bool
	Percent int
}

// ProductBoardConfig configures a ProductBoard.
type ProductBoardConfig struct {
	Store         ProductStore
	SubcategoryID int64
	Recorder      dyntable.ActivityRecorder
	Logger        *zap.Logger
	Actor         string
}

// ProductBoardState is a consistent copy of the board.
type ProductBoardState struct {
	SubcategoryID    int64
	SubcategoryTitle string
	Products         []model.Product
	Draft            *ProductDraft
	PendingDelete    *DeleteTarget
	Upload           Upload
	Status           Status
	Loaded           bool
}

// ProductBoard owns the products of one subcategory and the open product form.
type ProductBoard struct {
	mutex sync.Mutex

	store         ProductStore
	subcategoryID int64
	recorder      dyntable.ActivityRecorder
	logger        *zap.Logger
	actor         string

	generation       uint64
	subcategoryTitle string
	products         []model.Product
	draft            *ProductDraft
	pendingDelete    *DeleteTarget
	upload           Upload
	status           Status
	loaded           bool
	progressListener gateway.ProgressFunc
}

// NewProductBoard validates configuration and returns an empty board.
func NewProductBoard(configuration ProductBoardConfig) (*ProductBoard, error) {
	if configuration.Store == nil {
		return nil, ErrMissingProductStore
	}
	if configuration.SubcategoryID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubcategory, configuration.SubcategoryID)
	}
	recorder := configuration.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductBoard{
		store:         configuration.Store,
		subcategoryID: configuration.SubcategoryID,
		recorder:      recorder,
		logger:        logger,
		actor:         configuration.Actor,
		products:      []model.Product{},
	}, nil
}

// OnUploadProgress registers a listener notified after every progress change.
func (board *ProductBoard) OnUploadProgress(listener gateway.ProgressFunc) {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.progressListener = listener
}

// Refresh reloads the products and the subcategory title in parallel. Each result is applied
// independently, so a failed title lookup keeps the previous title but still replaces the
// product list.
func (board *ProductBoard) Refresh(ctx context.Context) error {
	board.mutex.Lock()
	board.generation++
	generation := board.generation
	board.mutex.Unlock()

	var (
		products    []model.Product
		listErr     error
		subcategory model.TableRecord
		found       bool
		lookupErr   error
	)
	var group errgroup.Group
	group.Go(func() error {
		products, listErr = board.store.Products(ctx, board.subcategoryID)
		return nil
	})
	group.Go(func() error {
		subcategory, found, lookupErr = board.store.Subcategory(ctx, board.subcategoryID)
		return nil
	})
	_ = group.Wait()

	board.mutex.Lock()
	defer board.mutex.Unlock()
	if generation != board.generation {
		return dyntable.ErrSuperseded
	}
	if lookupErr != nil {
		board.logger.Warn("subcategory_lookup_failed", zap.Int64("sub_category_id", board.subcategoryID), zap.Error(lookupErr))
	} else if found {
		board.subcategoryTitle = subcategory.Text(subcategoryNameField)
	}
	if listErr != nil {
		board.recorder.Record(ctx, activityInput(activityActionProductList, formatIdentifier(board.subcategoryID), board.actor, listErr))
		return fmt.Errorf("catalog: list products: %w", listErr)
	}
	board.products = products
	board.loaded = true
	return nil
}

// State returns a copy of the board.
func (board *ProductBoard) State() ProductBoardState {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	products := make([]model.Product, len(board.products))
	copy(products, board.products)
	state := ProductBoardState{
		SubcategoryID:    board.subcategoryID,
		SubcategoryTitle: board.subcategoryTitle,
		Products:         products,
		Upload:           board.upload,
		Status:           board.status,
		Loaded:           board.loaded,
	}
	if board.draft != nil {
		draft := board.draft.clone()
		state.Draft = &draft
	}
	if board.pendingDelete != nil {
		pending := *board.pendingDelete
		state.PendingDelete = &pending
	}
	return state
}

// ClearStatus drops the transient message.
func (board *ProductBoard) ClearStatus() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.status = Status{}
}

// CollectionCapReached reports whether another product may be shown in the collection.
func (board *ProductBoard) CollectionCapReached() bool {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	return model.CountProductFlag(board.products, model.FieldShowInCollection) >= ProductCollectionLimit
}

// Toggle sets show_in_collection, show_in_popular or show_in_spectrum on a product.
// Enabling show_in_collection past the cap sends nothing.
func (board *ProductBoard) Toggle(ctx context.Context, productID int64, field string, enabled bool) error {
	switch field {
	case model.FieldShowInCollection, model.FieldShowInPopular, model.FieldShowInSpectrum:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedToggle, field)
	}
	board.mutex.Lock()
	product, found := board.productLocked(productID)
	capReached := model.CountProductFlag(board.products, model.FieldShowInCollection) >= ProductCollectionLimit
	board.mutex.Unlock()
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	if field == model.FieldShowInCollection && enabled && capReached && !bool(product.ShowInCollection) {
		board.recorder.Record(ctx, activityInput(activityActionProductToggle, field, board.actor, dyntable.ErrFlagCapReached))
		board.setStatus(messageProductLimitHit, dyntable.StatusLevelInfo)
		return dyntable.ErrFlagCapReached
	}
	toggleErr := board.store.Toggle(ctx, productID, gateway.NewToggleRequest(model.TableProduct, field, enabled))
	board.recorder.Record(ctx, activityInput(activityActionProductToggle, field, board.actor, toggleErr))
	if toggleErr != nil {
		board.setStatus(gateway.BackendMessage(toggleErr, messageToggleFailed), dyntable.StatusLevelDanger)
		return toggleErr
	}
	board.refreshQuietly(ctx)
	return nil
}

// OpenAdd opens an empty product form.
func (board *ProductBoard) OpenAdd() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.draft = &ProductDraft{Mode: FormModeAdd}
}

// OpenEdit opens the form filled with a loaded product.
func (board *ProductBoard) OpenEdit(productID int64) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	product, found := board.productLocked(productID)
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	board.draft = &ProductDraft{
		Mode:           FormModeEdit,
		ProductID:      productID,
		Name:           product.Name,
		Description:    product.Description,
		ImageAlt:       product.ImageAlt,
		ImagePreview:   product.Image,
		VideoPreview:   product.Video,
		Colors:         append([]string(nil), product.Colors...),
		Sizes:          append([]string(nil), product.Sizes...),
		ExistingImages: append([]string(nil), product.MultipleImages...),
	}
	return nil
}

// CloseDraft discards the open form.
func (board *ProductBoard) CloseDraft() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.draft = nil
}

// SetText stores product_name, product_description or image_alt.
func (board *ProductBoard) SetText(field string, value string) error {
	return board.withDraft(func(draft *ProductDraft) error {
		switch field {
		case fieldProductName:
			draft.Name = value
		case fieldProductDesc:
			draft.Description = value
		case fieldImageAlt:
			draft.ImageAlt = value
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		return nil
	})
}

// AttachMedia stages product_image or product_video.
func (board *ProductBoard) AttachMedia(part gateway.FilePart) error {
	return board.withDraft(func(draft *ProductDraft) error {
		if len(part.Content) == 0 {
			return nil
		}
		staged := part
		switch part.Field {
		case fieldProductImage:
			draft.Image = &staged
		case fieldProductVideo:
			draft.Video = &staged
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, part.Field)
		}
		return nil
	})
}

// AddImages stages new gallery images.
func (board *ProductBoard) AddImages(parts ...gateway.FilePart) error {
	return board.withDraft(func(draft *ProductDraft) error {
		for _, part := range parts {
			if len(part.Content) == 0 {
				continue
			}
			part.Field = fieldNewMultipleImages
			draft.NewImages = append(draft.NewImages, part)
		}
		return nil
	})
}

// RemoveExistingImage drops a stored gallery image by position.
func (board *ProductBoard) RemoveExistingImage(index int) error {
	return board.withDraft(func(draft *ProductDraft) error {
		if index < 0 || index >= len(draft.ExistingImages) {
			return nil
		}
		draft.ExistingImages = append(draft.ExistingImages[:index:index], draft.ExistingImages[index+1:]...)
		return nil
	})
}

// RemoveNewImage drops a staged gallery image by position.
func (board *ProductBoard) RemoveNewImage(index int) error {
	return board.withDraft(func(draft *ProductDraft) error {
		if index < 0 || index >= len(draft.NewImages) {
			return nil
		}
		draft.NewImages = append(draft.NewImages[:index:index], draft.NewImages[index+1:]...)
		return nil
	})
}

// ToggleSize selects or deselects one of the available sizes.
func (board *ProductBoard) ToggleSize(size string) error {
	if !containsString(model.AvailableProductSizes, size) {
		return fmt.Errorf("%w: %s", ErrUnknownSize, size)
	}
	return board.withDraft(func(draft *ProductDraft) error {
		if containsString(draft.Sizes, size) {
			draft.Sizes = removeString(draft.Sizes, size)
			return nil
		}
		draft.Sizes = append(draft.Sizes, size)
		return nil
	})
}

// AddColor adds a hex color, lower-cased. Colors already present are ignored.
func (board *ProductBoard) AddColor(hex string) error {
	normalized := strings.ToLower(strings.TrimSpace(hex))
	if !validHexColor(normalized) {
		return fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	return board.withDraft(func(draft *ProductDraft) error {
		if !containsString(draft.Colors, normalized) {
			draft.Colors = append(draft.Colors, normalized)
		}
		return nil
	})
}

// RemoveColor drops a color.
func (board *ProductBoard) RemoveColor(hex string) error {
	normalized := strings.ToLower(strings.TrimSpace(hex))
	return board.withDraft(func(draft *ProductDraft) error {
		draft.Colors = removeString(draft.Colors, normalized)
		return nil
	})
}

// Submit uploads the open form. Progress is published while the body streams.
// On success the form closes and the board refreshes; on failure the form stays open.
func (board *ProductBoard) Submit(ctx context.Context) (string, error) {
	board.mutex.Lock()
	if board.draft == nil {
		board.mutex.Unlock()
		return "", ErrNoForm
	}
	if board.upload.Active {
		board.mutex.Unlock()
		return "", ErrUploadInProgress
	}
	draft := board.draft.clone()
	board.upload = Upload{Active: true}
	board.status = Status{Message: messageUploading, Level: dyntable.StatusLevelInfo}
	board.mutex.Unlock()

	payload := draft.payload(board.subcategoryID)
	payload.OnProgress(board.publishProgress)

	identifier := int64(0)
	successMessage := messageProductAdded
	if draft.Mode == FormModeEdit {
		identifier = draft.ProductID
		successMessage = messageProductUpdated
	}
	acknowledgement, saveErr := board.store.SaveProduct(ctx, identifier, payload)
	board.recorder.Record(ctx, activityInput(activityActionProductSave, formatIdentifier(identifier), board.actor, saveErr))

	board.mutex.Lock()
	board.upload = Upload{}
	if saveErr != nil {
		board.status = Status{Message: gateway.BackendMessage(saveErr, messageUploadFailed), Level: dyntable.StatusLevelDanger}
		message := board.status.Message
		board.mutex.Unlock()
		return message, saveErr
	}
	if acknowledgement.Message != "" {
		successMessage = acknowledgement.Message
	}
	board.status = Status{Message: successMessage, Level: dyntable.StatusLevelSuccess}
	board.draft = nil
	board.mutex.Unlock()

	board.refreshQuietly(ctx)
	return successMessage, nil
}

func (board *ProductBoard) publishProgress(percent int) {
	board.mutex.Lock()
	board.upload.Percent = percent
	listener := board.progressListener
	board.mutex.Unlock()
	if listener != nil {
		listener(percent)
	}
}

// RequestDelete records a product delete awaiting confirmation.
func (board *ProductBoard) RequestDelete(productID int64) {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.pendingDelete = &DeleteTarget{Kind: DeleteKindProduct, ID: productID}
}

// CancelDelete clears the pending confirmation.
func (board *ProductBoard) CancelDelete() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.pendingDelete = nil
}

// ConfirmDelete deletes productID when it is the pending confirmation.
func (board *ProductBoard) ConfirmDelete(ctx context.Context, productID int64) error {
	board.mutex.Lock()
	pending := board.pendingDelete
	if pending == nil || pending.ID != productID {
		board.mutex.Unlock()
		board.recorder.Record(ctx, activityInput(activityActionProductDelete, formatIdentifier(productID), board.actor, dyntable.ErrDeleteNotConfirmed))
		return dyntable.ErrDeleteNotConfirmed
	}
	board.pendingDelete = nil
	board.mutex.Unlock()

	deleteErr := board.store.DeleteProduct(ctx, productID)
	board.recorder.Record(ctx, activityInput(activityActionProductDelete, formatIdentifier(productID), board.actor, deleteErr))
	if deleteErr != nil {
		board.setStatus(gateway.BackendMessage(deleteErr, messageDeleteFailed), dyntable.StatusLevelDanger)
		return deleteErr
	}
	board.refreshQuietly(ctx)
	return nil
}

func (board *ProductBoard) withDraft(mutate func(draft *ProductDraft) error) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	if board.draft == nil {
		return ErrNoForm
	}
	return mutate(board.draft)
}

func (board *ProductBoard) productLocked(productID int64) (model.Product, bool) {
	for _, product := range board.products {
		if int64(product.ID) == productID {
			return product, true
		}
	}
	return model.Product{}, false
}

func (board *ProductBoard) setStatus(message string, level string) {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.status = Status{Message: message, Level: level}
}

func (board *ProductBoard) refreshQuietly(ctx context.Context) {
	if refreshErr := board.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, dyntable.ErrSuperseded) {
		board.logger.Warn("product_refresh_failed", zap.Int64("sub_category_id", board.subcategoryID), zap.Error(refreshErr))
	}
}

func validHexColor(value string) bool {
	if len(value) != 7 {
		return false
	}
	if value[0] != '#' {
		return false
	}
	for _, character := range value[1:] {
		if !strings.ContainsRune("0123456789abcdef", character) {
			return false
		}
	}
	return true
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func removeString(values []string, target string) []string {
	remaining := make([]string, 0, len(values))
	for _, value := range values {
		if value != target {
			remaining = append(remaining, value)
		}
	}
	return remaining
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
