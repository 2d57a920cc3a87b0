package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	activityActionDashboard = "dashboard_refresh"
	visitTimeLayout         = "2006-01-02 15:04:05"
	recentPageSize          = 20
)

var (
	// ErrSuperseded indicates a newer refresh was issued before this one completed.
	ErrSuperseded = errors.New("analytics: superseded refresh")
	// ErrMissingStatsSource indicates a dashboard was built without a backend source.
	ErrMissingStatsSource = errors.New("analytics: missing stats source")
)

// StatsSource reads visit statistics.
type StatsSource interface {
	AggregatedVisits(ctx context.Context) ([]model.VisitAggregate, error)
	RecentVisits(ctx context.Context, page int) ([]model.RecentVisit, error)
}

// ActivityRecorder receives the outcome of dashboard refreshes.
type ActivityRecorder interface {
	Record(ctx context.Context, input model.ActivityInput)
}

// Filters narrow the recent visits by substring. Empty filters match everything.
type Filters struct {
	PageURL   string `json:"page_url"`
	IPAddress string `json:"ip_address"`
	Country   string `json:"country"`
}

// Matches reports whether visit satisfies every non-empty filter.
func (filters Filters) Matches(visit model.RecentVisit) bool {
	if filters.PageURL != "" && !strings.Contains(visit.PageURL, filters.PageURL) {
		return false
	}
	if filters.IPAddress != "" && !strings.Contains(visit.IPAddress, filters.IPAddress) {
		return false
	}
	if filters.Country != "" && !strings.Contains(visit.Country, filters.Country) {
		return false
	}
	return true
}

// Apply returns the visits matching filters and the sum of their visits.
func (filters Filters) Apply(visits []model.RecentVisit) ([]model.RecentVisit, int64) {
	filtered := make([]model.RecentVisit, 0, len(visits))
	var total int64
	for _, visit := range visits {
		if !filters.Matches(visit) {
			continue
		}
		filtered = append(filtered, visit)
		total += visit.Visits
	}
	return filtered, total
}

// DashboardConfig configures a Dashboard.
type DashboardConfig struct {
	Source   StatsSource
	Recorder ActivityRecorder
	Logger   *zap.Logger
	Actor    string
}

// DashboardState is a consistent copy of the dashboard.
type DashboardState struct {
	Page         int
	Aggregates   []model.VisitAggregate
	Recent       []model.RecentVisit
	Filtered     []model.RecentVisit
	TotalVisits  int64
	Filters      Filters
	Charts       []Chart
	TableOpen    bool
	Generation   uint64
	Loaded       bool
	LastError    string
	RefreshedAt  time.Time
	HasMorePages bool
}

// Dashboard owns the visit statistics of one live view.
type Dashboard struct {
	mutex sync.Mutex

	source   StatsSource
	recorder ActivityRecorder
	logger   *zap.Logger
	actor    string

	page        int
	generation  uint64
	aggregates  []model.VisitAggregate
	recent      []model.RecentVisit
	filtered    []model.RecentVisit
	totalVisits int64
	filters     Filters
	tableOpen   bool
	loaded      bool
	lastError   string
	refreshedAt time.Time
}

// NewDashboard validates configuration and returns a dashboard on page 1.
func NewDashboard(configuration DashboardConfig) (*Dashboard, error) {
	if configuration.Source == nil {
		return nil, ErrMissingStatsSource
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		source:     configuration.Source,
		recorder:   configuration.Recorder,
		logger:     logger,
		actor:      configuration.Actor,
		page:       1,
		aggregates: []model.VisitAggregate{},
		recent:     []model.RecentVisit{},
		filtered:   []model.RecentVisit{},
	}, nil
}

// Refresh fetches aggregated and recent visits for the current page in parallel.
// Results of a refresh superseded by a newer one are discarded.
func (dashboard *Dashboard) Refresh(ctx context.Context) error {
	dashboard.mutex.Lock()
	dashboard.generation++
	generation, page := dashboard.generation, dashboard.page
	dashboard.mutex.Unlock()

	var (
		aggregates []model.VisitAggregate
		recent     []model.RecentVisit
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var aggregateErr error
		aggregates, aggregateErr = dashboard.source.AggregatedVisits(groupCtx)
		return aggregateErr
	})
	group.Go(func() error {
		var recentErr error
		recent, recentErr = dashboard.source.RecentVisits(groupCtx, page)
		return recentErr
	})
	fetchErr := group.Wait()

	dashboard.mutex.Lock()
	defer dashboard.mutex.Unlock()
	if generation != dashboard.generation {
		dashboard.logger.Debug("dashboard_refresh_superseded", zap.Uint64("generation", generation), zap.Uint64("latest_generation", dashboard.generation))
		return ErrSuperseded
	}
	if fetchErr != nil {
		dashboard.lastError = fetchErr.Error()
		dashboard.record(ctx, model.ActivityOutcomeFailed, fetchErr.Error())
		return fmt.Errorf("analytics: refresh: %w", fetchErr)
	}
	dashboard.aggregates = aggregates
	dashboard.recent = recent
	dashboard.filtered = recent
	dashboard.totalVisits = sumVisits(recent)
	dashboard.loaded = true
	dashboard.lastError = ""
	dashboard.refreshedAt = time.Now().UTC()
	return nil
}

// SetPage moves the recent visit log to page and refreshes.
func (dashboard *Dashboard) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	dashboard.mutex.Lock()
	dashboard.page = page
	dashboard.mutex.Unlock()
	return dashboard.Refresh(ctx)
}

// SetFilters stores filter values without applying them.
func (dashboard *Dashboard) SetFilters(filters Filters) {
	dashboard.mutex.Lock()
	defer dashboard.mutex.Unlock()
	dashboard.filters = filters
}

// ApplyFilters narrows the fetched page with the stored filters.
func (dashboard *Dashboard) ApplyFilters() {
	dashboard.mutex.Lock()
	defer dashboard.mutex.Unlock()
	dashboard.filtered, dashboard.totalVisits = dashboard.filters.Apply(dashboard.recent)
}

// ToggleTable opens or collapses the recent visit table.
func (dashboard *Dashboard) ToggleTable() {
	dashboard.mutex.Lock()
	defer dashboard.mutex.Unlock()
	dashboard.tableOpen = !dashboard.tableOpen
}

// State returns a copy of the dashboard with its chart datasets.
func (dashboard *Dashboard) State() DashboardState {
	dashboard.mutex.Lock()
	defer dashboard.mutex.Unlock()
	charts := make([]Chart, 0, len(ChartKeys))
	for _, key := range ChartKeys {
		charts = append(charts, BuildChart(key, dashboard.aggregates))
	}
	return DashboardState{
		Page:         dashboard.page,
		Aggregates:   append([]model.VisitAggregate(nil), dashboard.aggregates...),
		Recent:       append([]model.RecentVisit(nil), dashboard.recent...),
		Filtered:     append([]model.RecentVisit(nil), dashboard.filtered...),
		TotalVisits:  dashboard.totalVisits,
		Filters:      dashboard.filters,
		Charts:       charts,
		TableOpen:    dashboard.tableOpen,
		Generation:   dashboard.generation,
		Loaded:       dashboard.loaded,
		LastError:    dashboard.lastError,
		RefreshedAt:  dashboard.refreshedAt,
		HasMorePages: len(dashboard.recent) >= recentPageSize,
	}
}

func (dashboard *Dashboard) record(ctx context.Context, outcome string, detail string) {
	if dashboard.recorder == nil {
		return
	}
	dashboard.recorder.Record(ctx, model.ActivityInput{
		Action:  activityActionDashboard,
		Target:  "stats",
		Actor:   dashboard.actor,
		Outcome: outcome,
		Detail:  detail,
	})
}

func sumVisits(visits []model.RecentVisit) int64 {
	var total int64
	for _, visit := range visits {
		total += visit.Visits
	}
	return total
}

// FormatVisitTime renders a backend timestamp for the visit table. Unparseable values are returned as is.
func FormatVisitTime(raw string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, visitTimeLayout} {
		if parsed, parseErr := time.Parse(layout, raw); parseErr == nil {
			return parsed.Format(visitTimeLayout)
		}
	}
	return raw
}
