package dyntable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	activityActionList = "table_list"

	// DefaultExcludedID is the seed row hidden from every generic listing.
	DefaultExcludedID int64 = 1
)

var (
	// ErrSuperseded indicates a newer fetch was issued before this one completed; its result was discarded.
	ErrSuperseded = errors.New("dyntable: superseded fetch")
	// ErrMissingTableSource indicates a controller was built without a backend source.
	ErrMissingTableSource = errors.New("dyntable: missing table source")
	// ErrMissingTableName indicates a controller was built without a table name.
	ErrMissingTableName = errors.New("dyntable: missing table name")
)

// TableSource reads pages of a generic table.
type TableSource interface {
	ListTable(ctx context.Context, table string, page int, search string) (gateway.TablePage, error)
}

// ActivityRecorder receives the outcome of every backend operation.
type ActivityRecorder interface {
	Record(ctx context.Context, input model.ActivityInput)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, model.ActivityInput) {}

// ControllerConfig configures a ListController.
type ControllerConfig struct {
	Table  string
	Source TableSource
	// ExcludedIDs are hidden from every listing. Nil means the default seed row; pass an empty slice to hide nothing.
	ExcludedIDs       []int64
	ResetPageOnSearch bool
	Recorder          ActivityRecorder
	Logger            *zap.Logger
	Actor             string
}

// ListState is a consistent copy of the controller state.
type ListState struct {
	Table      string
	Search     string
	Page       Page
	Schema     Schema
	PageCount  int
	Generation uint64
	Loaded     bool
}

// ListController owns the page, search term and latest fetched rows of one table view.
type ListController struct {
	mutex sync.Mutex

	table             string
	source            TableSource
	excludedIDs       map[int64]struct{}
	resetPageOnSearch bool
	recorder          ActivityRecorder
	logger            *zap.Logger
	actor             string

	pageNumber int
	search     string
	generation uint64
	current    Page
	schema     Schema
	loaded     bool
}

// NewListController validates configuration and returns a controller positioned on page 1.
func NewListController(configuration ControllerConfig) (*ListController, error) {
	table := strings.TrimSpace(configuration.Table)
	if table == "" {
		return nil, ErrMissingTableName
	}
	if configuration.Source == nil {
		return nil, ErrMissingTableSource
	}
	excludedIDs := configuration.ExcludedIDs
	if excludedIDs == nil {
		excludedIDs = []int64{DefaultExcludedID}
	}
	excludedSet := make(map[int64]struct{}, len(excludedIDs))
	for _, identifier := range excludedIDs {
		excludedSet[identifier] = struct{}{}
	}
	recorder := configuration.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListController{
		table:             table,
		source:            configuration.Source,
		excludedIDs:       excludedSet,
		resetPageOnSearch: configuration.ResetPageOnSearch,
		recorder:          recorder,
		logger:            logger,
		actor:             configuration.Actor,
		pageNumber:        1,
		current:           Page{Rows: []model.TableRecord{}, PageNumber: 1, PageSize: PageSize},
		schema:            Schema{Columns: []Column{}},
	}, nil
}

// Table returns the backend table name.
func (controller *ListController) Table() string {
	return controller.table
}

// Refresh fetches the current page and search term.
func (controller *ListController) Refresh(ctx context.Context) error {
	controller.mutex.Lock()
	generation, pageNumber, search := controller.beginFetchLocked()
	controller.mutex.Unlock()
	return controller.fetch(ctx, generation, pageNumber, search)
}

// SetPage moves to pageNumber and fetches it.
func (controller *ListController) SetPage(ctx context.Context, pageNumber int) error {
	if pageNumber < 1 {
		pageNumber = 1
	}
	controller.mutex.Lock()
	controller.pageNumber = pageNumber
	generation, currentPage, search := controller.beginFetchLocked()
	controller.mutex.Unlock()
	return controller.fetch(ctx, generation, currentPage, search)
}

// SetSearch changes the search term and fetches. The page is kept unless ResetPageOnSearch was configured.
func (controller *ListController) SetSearch(ctx context.Context, search string) error {
	controller.mutex.Lock()
	controller.search = search
	if controller.resetPageOnSearch {
		controller.pageNumber = 1
	}
	generation, pageNumber, currentSearch := controller.beginFetchLocked()
	controller.mutex.Unlock()
	return controller.fetch(ctx, generation, pageNumber, currentSearch)
}

// SetQuery sets the page and the search term together and fetches once.
func (controller *ListController) SetQuery(ctx context.Context, pageNumber int, search string) error {
	if pageNumber < 1 {
		pageNumber = 1
	}
	controller.mutex.Lock()
	controller.pageNumber = pageNumber
	controller.search = search
	generation, currentPage, currentSearch := controller.beginFetchLocked()
	controller.mutex.Unlock()
	return controller.fetch(ctx, generation, currentPage, currentSearch)
}

func (controller *ListController) beginFetchLocked() (uint64, int, string) {
	controller.generation++
	return controller.generation, controller.pageNumber, controller.search
}

func (controller *ListController) fetch(ctx context.Context, generation uint64, pageNumber int, search string) error {
	tablePage, listErr := controller.source.ListTable(ctx, controller.table, pageNumber, search)

	controller.mutex.Lock()
	defer controller.mutex.Unlock()

	if generation != controller.generation {
		controller.logger.Debug("table_fetch_superseded",
			zap.String("table", controller.table),
			zap.Uint64("generation", generation),
			zap.Uint64("latest_generation", controller.generation))
		return ErrSuperseded
	}
	if listErr != nil {
		controller.recorder.Record(ctx, model.ActivityInput{
			Action:  activityActionList,
			Target:  controller.table,
			Actor:   controller.actor,
			Outcome: model.ActivityOutcomeFailed,
			Detail:  listErr.Error(),
		})
		return fmt.Errorf("dyntable: list %s: %w", controller.table, listErr)
	}

	visibleRows := make([]model.TableRecord, 0, len(tablePage.Rows))
	for _, row := range tablePage.Rows {
		if controller.isExcluded(row) {
			continue
		}
		visibleRows = append(visibleRows, row)
	}
	totalCount := tablePage.TotalRecords - len(controller.excludedIDs)
	if totalCount < 0 {
		totalCount = 0
	}

	controller.current = Page{
		Rows:       visibleRows,
		TotalCount: totalCount,
		PageNumber: pageNumber,
		PageSize:   PageSize,
	}
	controller.schema = InferSchema(visibleRows)
	controller.loaded = true
	return nil
}

func (controller *ListController) isExcluded(row model.TableRecord) bool {
	identifier, idErr := row.ID()
	if idErr != nil {
		return false
	}
	_, excluded := controller.excludedIDs[identifier]
	return excluded
}

// RemoveRow drops a row from the loaded page ahead of the refetch following a delete.
func (controller *ListController) RemoveRow(identifier int64) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	remaining := make([]model.TableRecord, 0, len(controller.current.Rows))
	for _, row := range controller.current.Rows {
		rowIdentifier, idErr := row.ID()
		if idErr == nil && rowIdentifier == identifier {
			continue
		}
		remaining = append(remaining, row)
	}
	controller.current.Rows = remaining
}

// Row returns a copy of the loaded row with identifier.
func (controller *ListController) Row(identifier int64) (model.TableRecord, bool) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	for _, row := range controller.current.Rows {
		rowIdentifier, idErr := row.ID()
		if idErr == nil && rowIdentifier == identifier {
			return row.Clone(), true
		}
	}
	return model.TableRecord{}, false
}

// CountTruthy counts loaded rows whose field holds an enabled flag.
func (controller *ListController) CountTruthy(field string) int {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	count := 0
	for _, row := range controller.current.Rows {
		if row.IsTruthy(field) {
			count++
		}
	}
	return count
}

// State returns a copy of the current state.
func (controller *ListController) State() ListState {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	rows := make([]model.TableRecord, len(controller.current.Rows))
	copy(rows, controller.current.Rows)
	page := controller.current
	page.Rows = rows
	page.PageNumber = controller.pageNumber
	return ListState{
		Table:      controller.table,
		Search:     controller.search,
		Page:       page,
		Schema:     controller.schema,
		PageCount:  page.PageCount(),
		Generation: controller.generation,
		Loaded:     controller.loaded,
	}
}
