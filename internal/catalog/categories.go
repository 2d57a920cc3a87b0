package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	// SubcategoryCollectionLimit caps show_in_collection within one category.
	SubcategoryCollectionLimit = 2

	activityActionCategoryList   = "category_list"
	activityActionCategorySave   = "category_save"
	activityActionCategoryDelete = "category_delete"
	activityActionCategoryToggle = "category_toggle"
	activityActionSubcategory    = "subcategory_save"
	activityActionSubDelete      = "subcategory_delete"
	activityActionSubToggle      = "subcategory_toggle"

	messageCategorySaved       = "Category saved successfully."
	messageCategorySaveFailed  = "Failed to save category."
	messageSubcategorySaved    = "Subcategory saved successfully."
	messageSubcategoryFailed   = "Failed to save subcategory."
	messageDeleteFailed        = "Failed to delete. Please try again."
	messageToggleFailed        = "Failed to update. Please try again."
	messageCollectionLimitHint = "Only two subcategories per category can be shown in the collection."
)

var (
	ErrMissingCategoryStore = errors.New("catalog: missing category store")
	ErrUnknownCategory      = errors.New("catalog: category not loaded")
	ErrUnknownSubcategory   = errors.New("catalog: subcategory not loaded")
	ErrUnsupportedToggle    = errors.New("catalog: unsupported toggle field")
)

// CategoryStore is the backend surface used by the category board.
type CategoryStore interface {
	Categories(ctx context.Context) ([]model.Category, error)
	SaveCategory(ctx context.Context, identifier int64, payload *gateway.Payload) (gateway.MessageResponse, error)
	DeleteCategory(ctx context.Context, identifier int64) error
	ToggleCategory(ctx context.Context, identifier int64, field string, enabled bool) error
	SaveSubcategory(ctx context.Context, identifier int64, payload *gateway.Payload) (gateway.MessageResponse, error)
	DeleteSubcategory(ctx context.Context, identifier int64) error
	ToggleSubcategoryActive(ctx context.Context, identifier int64, enabled bool) error
	Toggle(ctx context.Context, identifier int64, request gateway.ToggleRequest) error
}

// DeleteKind names what a pending delete removes.
type DeleteKind string

const (
	DeleteKindCategory    DeleteKind = "category"
	DeleteKindSubcategory DeleteKind = "subcategory"
	DeleteKindProduct     DeleteKind = "product"
)

// DeleteTarget is a delete awaiting confirmation.
type DeleteTarget struct {
	Kind DeleteKind
	ID   int64
}

// Status is the transient message shown after an operation.
type Status struct {
	Message string
	Level   string
}

// CategoryBoardConfig configures a CategoryBoard.
type CategoryBoardConfig struct {
	Store    CategoryStore
	Recorder dyntable.ActivityRecorder
	Logger   *zap.Logger
	Actor    string
}

// CategoryBoardState is a consistent copy of the board.
type CategoryBoardState struct {
	Categories    []model.Category
	ExpandedID    int64
	Form          *FormDraft
	PendingDelete *DeleteTarget
	Status        Status
	Loaded        bool
}

// CategoryBoard owns the category listing, the expanded category and the open category or subcategory form.
type CategoryBoard struct {
	mutex sync.Mutex

	store    CategoryStore
	recorder dyntable.ActivityRecorder
	logger   *zap.Logger
	actor    string

	generation    uint64
	categories    []model.Category
	expandedID    int64
	form          *FormDraft
	pendingDelete *DeleteTarget
	status        Status
	loaded        bool
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, model.ActivityInput) {}

// NewCategoryBoard validates configuration and returns an empty board.
func NewCategoryBoard(configuration CategoryBoardConfig) (*CategoryBoard, error) {
	if configuration.Store == nil {
		return nil, ErrMissingCategoryStore
	}
	recorder := configuration.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryBoard{
		store:      configuration.Store,
		recorder:   recorder,
		logger:     logger,
		actor:      configuration.Actor,
		categories: []model.Category{},
	}, nil
}

// Refresh reloads every category. A result superseded by a newer refresh is discarded.
func (board *CategoryBoard) Refresh(ctx context.Context) error {
	board.mutex.Lock()
	board.generation++
	generation := board.generation
	board.mutex.Unlock()

	categories, listErr := board.store.Categories(ctx)

	board.mutex.Lock()
	defer board.mutex.Unlock()
	if generation != board.generation {
		return dyntable.ErrSuperseded
	}
	if listErr != nil {
		board.record(ctx, activityActionCategoryList, "categories", listErr)
		return fmt.Errorf("catalog: list categories: %w", listErr)
	}
	board.categories = categories
	board.loaded = true
	return nil
}

// State returns a copy of the board.
func (board *CategoryBoard) State() CategoryBoardState {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	categories := make([]model.Category, len(board.categories))
	copy(categories, board.categories)
	state := CategoryBoardState{
		Categories: categories,
		ExpandedID: board.expandedID,
		Status:     board.status,
		Loaded:     board.loaded,
	}
	if board.form != nil {
		form := board.form.clone()
		state.Form = &form
	}
	if board.pendingDelete != nil {
		pending := *board.pendingDelete
		state.PendingDelete = &pending
	}
	return state
}

// ToggleExpanded expands a category, collapsing any other. Expanding the open category collapses it.
func (board *CategoryBoard) ToggleExpanded(categoryID int64) {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	if board.expandedID == categoryID {
		board.expandedID = 0
		return
	}
	board.expandedID = categoryID
}

// ClearStatus drops the transient message.
func (board *CategoryBoard) ClearStatus() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.status = Status{}
}

// CollectionCapReached reports whether another subcategory of categoryID may be shown in the collection.
func (board *CategoryBoard) CollectionCapReached(categoryID int64) bool {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	category, found := board.categoryLocked(categoryID)
	if !found {
		return false
	}
	return model.CountSubcategoryFlag(category.Subcategories, model.FieldShowInCollection) >= SubcategoryCollectionLimit
}

// ToggleCategory sets is_popular or show_hide on a category.
func (board *CategoryBoard) ToggleCategory(ctx context.Context, categoryID int64, field string, enabled bool) error {
	if field != model.FieldIsPopular && field != model.FieldShowHide {
		return fmt.Errorf("%w: %s", ErrUnsupportedToggle, field)
	}
	toggleErr := board.store.ToggleCategory(ctx, categoryID, field, enabled)
	board.record(ctx, activityActionCategoryToggle, field, toggleErr)
	if toggleErr != nil {
		board.setStatus(gateway.BackendMessage(toggleErr, messageToggleFailed), dyntable.StatusLevelDanger)
		return toggleErr
	}
	board.refreshQuietly(ctx)
	return nil
}

// ToggleSubcategoryCollection sets show_in_collection on a subcategory.
// Enabling a third subcategory within one category is refused without a request.
func (board *CategoryBoard) ToggleSubcategoryCollection(ctx context.Context, subcategoryID int64, enabled bool) error {
	board.mutex.Lock()
	category, subcategory, found := board.subcategoryLocked(subcategoryID)
	board.mutex.Unlock()
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownSubcategory, subcategoryID)
	}
	if enabled && !bool(subcategory.ShowInCollection) &&
		model.CountSubcategoryFlag(category.Subcategories, model.FieldShowInCollection) >= SubcategoryCollectionLimit {
		board.record(ctx, activityActionSubToggle, model.FieldShowInCollection, dyntable.ErrFlagCapReached)
		board.setStatus(messageCollectionLimitHint, dyntable.StatusLevelInfo)
		return dyntable.ErrFlagCapReached
	}
	toggleErr := board.store.Toggle(ctx, subcategoryID, gateway.NewToggleRequest(model.TableSubcategory, model.FieldShowInCollection, enabled))
	board.record(ctx, activityActionSubToggle, model.FieldShowInCollection, toggleErr)
	if toggleErr != nil {
		board.setStatus(gateway.BackendMessage(toggleErr, messageToggleFailed), dyntable.StatusLevelDanger)
		return toggleErr
	}
	board.refreshQuietly(ctx)
	return nil
}

// ToggleSubcategoryActive sets is_active on a subcategory.
func (board *CategoryBoard) ToggleSubcategoryActive(ctx context.Context, subcategoryID int64, enabled bool) error {
	toggleErr := board.store.ToggleSubcategoryActive(ctx, subcategoryID, enabled)
	board.record(ctx, activityActionSubToggle, model.FieldIsActive, toggleErr)
	if toggleErr != nil {
		board.setStatus(gateway.BackendMessage(toggleErr, messageToggleFailed), dyntable.StatusLevelDanger)
		return toggleErr
	}
	board.refreshQuietly(ctx)
	return nil
}

// OpenCategoryAdd opens an empty category form.
func (board *CategoryBoard) OpenCategoryAdd() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.form = newFormDraft(CategoryFields, FormModeAdd, 0)
}

// OpenCategoryEdit opens the form filled with a loaded category. Stored images become previews.
func (board *CategoryBoard) OpenCategoryEdit(categoryID int64) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	category, found := board.categoryLocked(categoryID)
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, categoryID)
	}
	form := newFormDraft(CategoryFields, FormModeEdit, categoryID)
	form.Values["category"] = category.Name
	form.Values["category_heading"] = category.Heading
	form.Values["category_description"] = category.Description
	form.Values["category_seo_keywords"] = category.SEOKeywords
	form.Values["category_seo_description"] = category.SEODescription
	setPreview(form, "category_banner", category.Banner)
	setPreview(form, "category_mobile_banner", category.MobileBanner)
	setPreview(form, "category_thumbnail", category.Thumbnail)
	setPreview(form, "category_mobile_thumbnail", category.MobileThumbnail)
	setPreview(form, "category_popular_pick_banner", category.PopularPickBanner)
	setPreview(form, "category_mobile_popular_pick_banner", category.MobilePopularPickBanner)
	board.form = form
	return nil
}

// OpenSubcategoryAdd opens an empty subcategory form under categoryID.
func (board *CategoryBoard) OpenSubcategoryAdd(categoryID int64) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	if _, found := board.categoryLocked(categoryID); !found {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, categoryID)
	}
	form := newFormDraft(SubcategoryFields, FormModeAdd, 0)
	form.Values[fieldCategoryID] = formatIdentifier(categoryID)
	board.form = form
	return nil
}

// OpenSubcategoryEdit opens the form filled with a loaded subcategory.
func (board *CategoryBoard) OpenSubcategoryEdit(subcategoryID int64) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	category, subcategory, found := board.subcategoryLocked(subcategoryID)
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownSubcategory, subcategoryID)
	}
	form := newFormDraft(SubcategoryFields, FormModeEdit, subcategoryID)
	form.Values[fieldCategoryID] = category.ID.String()
	form.Values["sub_category"] = subcategory.Name
	form.Values["sub_category_heading"] = subcategory.Heading
	form.Values["sub_category_description"] = subcategory.Description
	form.Values["sub_category_seo_keywords"] = subcategory.SEOKeywords
	form.Values["sub_category_seo_description"] = subcategory.SEODescription
	setPreview(form, "sub_category_banner", subcategory.Banner)
	setPreview(form, "sub_category_thumbnail", subcategory.Thumbnail)
	setPreview(form, "plp_banner_mobile", subcategory.PLPBannerMobile)
	setPreview(form, "collection_banner_mobile", subcategory.CollectionBannerMobile)
	board.form = form
	return nil
}

func setPreview(form *FormDraft, field string, filename string) {
	if filename != "" {
		form.Previews[field] = filename
	}
}

// SetFormValue stores a text value in the open form.
func (board *CategoryBoard) SetFormValue(field string, value string) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	if board.form == nil {
		return ErrNoForm
	}
	return board.form.set(field, value)
}

// AttachFormFile stages a file for the open form. Empty files are ignored.
func (board *CategoryBoard) AttachFormFile(part gateway.FilePart) error {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	if board.form == nil {
		return ErrNoForm
	}
	return board.form.attach(part)
}

// CloseForm discards the open form.
func (board *CategoryBoard) CloseForm() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.form = nil
}

// SubmitForm saves the open form. The form closes and the board refreshes on success; on failure it stays open.
func (board *CategoryBoard) SubmitForm(ctx context.Context) error {
	board.mutex.Lock()
	if board.form == nil {
		board.mutex.Unlock()
		return ErrNoForm
	}
	form := board.form.clone()
	board.mutex.Unlock()

	payload := form.payload()
	var (
		acknowledgement gateway.MessageResponse
		saveErr         error
		action          string
		successMessage  string
		failureMessage  string
	)
	if form.fields.hasText(fieldCategoryID) {
		action, successMessage, failureMessage = activityActionSubcategory, messageSubcategorySaved, messageSubcategoryFailed
		acknowledgement, saveErr = board.store.SaveSubcategory(ctx, form.RecordID, payload)
	} else {
		action, successMessage, failureMessage = activityActionCategorySave, messageCategorySaved, messageCategorySaveFailed
		acknowledgement, saveErr = board.store.SaveCategory(ctx, form.RecordID, payload)
	}
	board.record(ctx, action, formatIdentifier(form.RecordID), saveErr)
	if saveErr != nil {
		board.setStatus(gateway.BackendMessage(saveErr, failureMessage), dyntable.StatusLevelDanger)
		return saveErr
	}
	if acknowledgement.Message != "" {
		successMessage = acknowledgement.Message
	}

	board.mutex.Lock()
	board.form = nil
	board.status = Status{Message: successMessage, Level: dyntable.StatusLevelSuccess}
	board.mutex.Unlock()
	board.refreshQuietly(ctx)
	return nil
}

// RequestDelete records a delete awaiting confirmation. No request is sent.
func (board *CategoryBoard) RequestDelete(target DeleteTarget) {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.pendingDelete = &target
}

// CancelDelete clears the pending confirmation.
func (board *CategoryBoard) CancelDelete() {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.pendingDelete = nil
}

// ConfirmDelete deletes target when it is the pending confirmation.
func (board *CategoryBoard) ConfirmDelete(ctx context.Context, target DeleteTarget) error {
	board.mutex.Lock()
	if board.pendingDelete == nil || *board.pendingDelete != target {
		board.mutex.Unlock()
		board.record(ctx, deleteAction(target.Kind), formatIdentifier(target.ID), dyntable.ErrDeleteNotConfirmed)
		return dyntable.ErrDeleteNotConfirmed
	}
	board.pendingDelete = nil
	board.mutex.Unlock()

	var deleteErr error
	switch target.Kind {
	case DeleteKindCategory:
		deleteErr = board.store.DeleteCategory(ctx, target.ID)
	case DeleteKindSubcategory:
		deleteErr = board.store.DeleteSubcategory(ctx, target.ID)
	default:
		return fmt.Errorf("%w: %s", dyntable.ErrDeleteNotConfirmed, target.Kind)
	}
	board.record(ctx, deleteAction(target.Kind), formatIdentifier(target.ID), deleteErr)
	if deleteErr != nil {
		board.setStatus(gateway.BackendMessage(deleteErr, messageDeleteFailed), dyntable.StatusLevelDanger)
		return deleteErr
	}
	board.refreshQuietly(ctx)
	return nil
}

func deleteAction(kind DeleteKind) string {
	if kind == DeleteKindSubcategory {
		return activityActionSubDelete
	}
	return activityActionCategoryDelete
}

func (board *CategoryBoard) categoryLocked(categoryID int64) (model.Category, bool) {
	for _, category := range board.categories {
		if int64(category.ID) == categoryID {
			return category, true
		}
	}
	return model.Category{}, false
}

func (board *CategoryBoard) subcategoryLocked(subcategoryID int64) (model.Category, model.Subcategory, bool) {
	for _, category := range board.categories {
		for _, subcategory := range category.Subcategories {
			if int64(subcategory.ID) == subcategoryID {
				return category, subcategory, true
			}
		}
	}
	return model.Category{}, model.Subcategory{}, false
}

func (board *CategoryBoard) setStatus(message string, level string) {
	board.mutex.Lock()
	defer board.mutex.Unlock()
	board.status = Status{Message: message, Level: level}
}

func (board *CategoryBoard) refreshQuietly(ctx context.Context) {
	if refreshErr := board.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, dyntable.ErrSuperseded) {
		board.logger.Warn("category_refresh_failed", zap.Error(refreshErr))
	}
}

func (board *CategoryBoard) record(ctx context.Context, action string, target string, operationErr error) {
	board.recorder.Record(ctx, activityInput(action, target, board.actor, operationErr))
}

func activityInput(action string, target string, actor string, operationErr error) model.ActivityInput {
	input := model.ActivityInput{Action: action, Target: target, Actor: actor, Outcome: model.ActivityOutcomeSucceeded}
	switch {
	case errors.Is(operationErr, dyntable.ErrFlagCapReached), errors.Is(operationErr, dyntable.ErrDeleteNotConfirmed):
		input.Outcome = model.ActivityOutcomeRefused
		input.Detail = operationErr.Error()
	case operationErr != nil:
		input.Outcome = model.ActivityOutcomeFailed
		input.Detail = operationErr.Error()
	}
	return input
}
