package dyntable

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	activityActionCreate = "table_create"
	activityActionUpdate = "table_update"
	activityActionDelete = "table_delete"
	activityActionToggle = "table_toggle"
)

var (
	ErrDeleteNotConfirmed = errors.New("dyntable: delete not confirmed")
	ErrFlagCapReached     = errors.New("dyntable: flag cap reached")
	ErrNoDraft            = errors.New("dyntable: no open draft")
	ErrImmutableField     = errors.New("dyntable: field is immutable")
	ErrRecordNotFound     = errors.New("dyntable: record not loaded")
	ErrReadOnlyView       = errors.New("dyntable: view is read-only")
	ErrMissingRecordStore = errors.New("dyntable: missing record store")
	ErrMissingController  = errors.New("dyntable: missing list controller")
)

// RecordStore performs row mutations against the backend.
type RecordStore interface {
	CreateRecord(ctx context.Context, table string, payload *gateway.Payload) (gateway.MessageResponse, error)
	UpdateRecord(ctx context.Context, table string, identifier int64, payload *gateway.Payload) (gateway.MessageResponse, error)
	DeleteRecord(ctx context.Context, table string, identifier int64) error
	Toggle(ctx context.Context, identifier int64, request gateway.ToggleRequest) error
}

// FlagCap limits how many loaded rows may hold a boolean field at once.
type FlagCap struct {
	Field string
	Limit int
}

// DraftMode distinguishes a new record from an edit of a loaded one.
type DraftMode int

const (
	DraftModeAdd DraftMode = iota + 1
	DraftModeEdit
)

func (mode DraftMode) String() string {
	switch mode {
	case DraftModeAdd:
		return "add"
	case DraftModeEdit:
		return "edit"
	default:
		return "none"
	}
}

// Draft is the form state of an open add or edit dialog.
type Draft struct {
	Mode     DraftMode
	RecordID int64
	Values   model.TableRecord
	Files    map[string]gateway.FilePart
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Store      RecordStore
	Controller *ListController
	Caps       []FlagCap
	ReadOnly   bool
	Recorder   ActivityRecorder
	Logger     *zap.Logger
	Actor      string
}

// Orchestrator owns the draft and the pending delete confirmation of one table view.
type Orchestrator struct {
	mutex sync.Mutex

	store      RecordStore
	controller *ListController
	caps       map[string]int
	readOnly   bool
	recorder   ActivityRecorder
	logger     *zap.Logger
	actor      string

	draft         *Draft
	pendingDelete *int64
	progress      gateway.ProgressFunc
}

// NewOrchestrator validates configuration and returns an Orchestrator with no open draft.
func NewOrchestrator(configuration OrchestratorConfig) (*Orchestrator, error) {
	if configuration.Store == nil {
		return nil, ErrMissingRecordStore
	}
	if configuration.Controller == nil {
		return nil, ErrMissingController
	}
	caps := make(map[string]int, len(configuration.Caps))
	for _, flagCap := range configuration.Caps {
		caps[flagCap.Field] = flagCap.Limit
	}
	recorder := configuration.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:      configuration.Store,
		controller: configuration.Controller,
		caps:       caps,
		readOnly:   configuration.ReadOnly,
		recorder:   recorder,
		logger:     logger,
		actor:      configuration.Actor,
	}, nil
}

// ReadOnly reports whether add and edit are disabled.
func (orchestrator *Orchestrator) ReadOnly() bool {
	return orchestrator.readOnly
}

// OnUploadProgress registers a callback for multipart upload progress.
func (orchestrator *Orchestrator) OnUploadProgress(progress gateway.ProgressFunc) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.progress = progress
}

// OpenAdd opens an empty draft.
func (orchestrator *Orchestrator) OpenAdd() error {
	if orchestrator.readOnly {
		return ErrReadOnlyView
	}
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.draft = &Draft{
		Mode:   DraftModeAdd,
		Values: model.NewTableRecord(nil, nil),
		Files:  map[string]gateway.FilePart{},
	}
	return nil
}

// OpenEdit opens a draft holding a copy of the loaded record with identifier.
func (orchestrator *Orchestrator) OpenEdit(identifier int64) error {
	if orchestrator.readOnly {
		return ErrReadOnlyView
	}
	row, found := orchestrator.controller.Row(identifier)
	if !found {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, identifier)
	}
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.draft = &Draft{
		Mode:     DraftModeEdit,
		RecordID: identifier,
		Values:   row,
		Files:    map[string]gateway.FilePart{},
	}
	return nil
}

// CloseDraft discards the open draft.
func (orchestrator *Orchestrator) CloseDraft() {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.draft = nil
}

// Draft returns a copy of the open draft.
func (orchestrator *Orchestrator) Draft() (Draft, bool) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if orchestrator.draft == nil {
		return Draft{}, false
	}
	files := make(map[string]gateway.FilePart, len(orchestrator.draft.Files))
	for field, part := range orchestrator.draft.Files {
		files[field] = part
	}
	return Draft{
		Mode:     orchestrator.draft.Mode,
		RecordID: orchestrator.draft.RecordID,
		Values:   orchestrator.draft.Values.Clone(),
		Files:    files,
	}, true
}

// SetDraftValue stores a text value in the open draft.
func (orchestrator *Orchestrator) SetDraftValue(field string, value string) error {
	if field == model.RecordIdentifierField {
		return ErrImmutableField
	}
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if orchestrator.draft == nil {
		return ErrNoDraft
	}
	orchestrator.draft.Values.Set(field, value)
	return nil
}

// AttachFile stages a pending upload for field in the open draft.
func (orchestrator *Orchestrator) AttachFile(part gateway.FilePart) error {
	if part.Field == model.RecordIdentifierField {
		return ErrImmutableField
	}
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if orchestrator.draft == nil {
		return ErrNoDraft
	}
	if len(part.Content) == 0 {
		return nil
	}
	if _, exists := orchestrator.draft.Values.Value(part.Field); !exists {
		orchestrator.draft.Values.Set(part.Field, nil)
	}
	orchestrator.draft.Files[part.Field] = part
	return nil
}

// Submit sends the open draft as a create or update, closes it on success and refetches.
// On failure the draft stays open.
func (orchestrator *Orchestrator) Submit(ctx context.Context) (gateway.MessageResponse, error) {
	if orchestrator.readOnly {
		return gateway.MessageResponse{}, ErrReadOnlyView
	}
	draft, open := orchestrator.Draft()
	if !open {
		return gateway.MessageResponse{}, ErrNoDraft
	}
	orchestrator.mutex.Lock()
	progress := orchestrator.progress
	orchestrator.mutex.Unlock()

	payload := buildPayload(draft)
	if progress != nil {
		payload.OnProgress(progress)
	}

	table := orchestrator.controller.Table()
	var (
		acknowledgement gateway.MessageResponse
		submitErr       error
		action          string
	)
	switch draft.Mode {
	case DraftModeEdit:
		action = activityActionUpdate
		acknowledgement, submitErr = orchestrator.store.UpdateRecord(ctx, table, draft.RecordID, payload)
	default:
		action = activityActionCreate
		acknowledgement, submitErr = orchestrator.store.CreateRecord(ctx, table, payload)
	}
	if submitErr != nil {
		orchestrator.report(ctx, action, table, submitErr)
		return gateway.MessageResponse{}, submitErr
	}
	orchestrator.report(ctx, action, table, nil)

	orchestrator.mutex.Lock()
	orchestrator.draft = nil
	orchestrator.mutex.Unlock()

	orchestrator.refresh(ctx)
	return acknowledgement, nil
}

// buildPayload writes every draft key in order. Keys with a staged file become file parts.
func buildPayload(draft Draft) *gateway.Payload {
	payload := gateway.NewPayload()
	for _, key := range draft.Values.Keys() {
		if part, staged := draft.Files[key]; staged {
			payload.AddFile(part)
			continue
		}
		payload.AddField(key, draft.Values.Text(key))
	}
	return payload
}

// RequestDelete records that the user asked to delete identifier. No request is sent.
func (orchestrator *Orchestrator) RequestDelete(identifier int64) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	pending := identifier
	orchestrator.pendingDelete = &pending
}

// CancelDelete clears the pending confirmation.
func (orchestrator *Orchestrator) CancelDelete() {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.pendingDelete = nil
}

// PendingDelete returns the identifier awaiting confirmation.
func (orchestrator *Orchestrator) PendingDelete() (int64, bool) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if orchestrator.pendingDelete == nil {
		return 0, false
	}
	return *orchestrator.pendingDelete, true
}

// ConfirmDelete deletes identifier when it is the pending confirmation, then removes the row locally and refetches.
func (orchestrator *Orchestrator) ConfirmDelete(ctx context.Context, identifier int64) error {
	orchestrator.mutex.Lock()
	if orchestrator.pendingDelete == nil || *orchestrator.pendingDelete != identifier {
		orchestrator.mutex.Unlock()
		orchestrator.report(ctx, activityActionDelete, orchestrator.controller.Table(), ErrDeleteNotConfirmed)
		return ErrDeleteNotConfirmed
	}
	orchestrator.pendingDelete = nil
	orchestrator.mutex.Unlock()

	table := orchestrator.controller.Table()
	if deleteErr := orchestrator.store.DeleteRecord(ctx, table, identifier); deleteErr != nil {
		orchestrator.report(ctx, activityActionDelete, table, deleteErr)
		return deleteErr
	}
	orchestrator.report(ctx, activityActionDelete, table, nil)
	orchestrator.controller.RemoveRow(identifier)
	orchestrator.refresh(ctx)
	return nil
}

// CapReached reports whether enabling field on another row would exceed its cap.
func (orchestrator *Orchestrator) CapReached(field string) bool {
	limit, capped := orchestrator.caps[field]
	if !capped {
		return false
	}
	return orchestrator.controller.CountTruthy(field) >= limit
}

// Toggle sets field on identifier. Enabling a capped field whose cap is reached sends nothing.
func (orchestrator *Orchestrator) Toggle(ctx context.Context, identifier int64, field string, enabled bool) error {
	table := orchestrator.controller.Table()
	if enabled && orchestrator.CapReached(field) {
		if row, found := orchestrator.controller.Row(identifier); !found || !row.IsTruthy(field) {
			orchestrator.report(ctx, activityActionToggle, table, ErrFlagCapReached)
			return ErrFlagCapReached
		}
	}
	toggleErr := orchestrator.store.Toggle(ctx, identifier, gateway.NewToggleRequest(table, field, enabled))
	if toggleErr != nil {
		orchestrator.report(ctx, activityActionToggle, table, toggleErr)
		return toggleErr
	}
	orchestrator.report(ctx, activityActionToggle, table, nil)
	orchestrator.refresh(ctx)
	return nil
}

func (orchestrator *Orchestrator) refresh(ctx context.Context) {
	if refreshErr := orchestrator.controller.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrSuperseded) {
		orchestrator.logger.Warn("table_refetch_failed", zap.String("table", orchestrator.controller.Table()), zap.Error(refreshErr))
	}
}

func (orchestrator *Orchestrator) report(ctx context.Context, action string, table string, operationErr error) {
	input := model.ActivityInput{
		Action:  action,
		Target:  table,
		Actor:   orchestrator.actor,
		Outcome: model.ActivityOutcomeSucceeded,
	}
	switch {
	case errors.Is(operationErr, ErrFlagCapReached), errors.Is(operationErr, ErrDeleteNotConfirmed):
		input.Outcome = model.ActivityOutcomeRefused
		input.Detail = operationErr.Error()
	case operationErr != nil:
		input.Outcome = model.ActivityOutcomeFailed
		input.Detail = operationErr.Error()
	}
	orchestrator.recorder.Record(ctx, input)
}

// ParseIdentifier parses a record identifier from a path segment.
func ParseIdentifier(raw string) (int64, error) {
	identifier, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil || identifier <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrRecordNotFound, raw)
	}
	return identifier, nil
}
