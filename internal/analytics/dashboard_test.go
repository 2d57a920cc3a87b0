package analytics_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/analytics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

type fakeStats struct {
	mutex       sync.Mutex
	aggregates  []model.VisitAggregate
	recent      map[int][]model.RecentVisit
	recentErr   error
	recentPages []int
	block       map[int]chan struct{}
	entered     map[int]chan struct{}
}

func (stats *fakeStats) AggregatedVisits(context.Context) ([]model.VisitAggregate, error) {
	stats.mutex.Lock()
	defer stats.mutex.Unlock()
	return stats.aggregates, nil
}

func (stats *fakeStats) RecentVisits(_ context.Context, page int) ([]model.RecentVisit, error) {
	stats.mutex.Lock()
	stats.recentPages = append(stats.recentPages, page)
	block, entered := stats.block[page], stats.entered[page]
	stats.mutex.Unlock()
	if block != nil {
		close(entered)
		<-block
	}
	stats.mutex.Lock()
	defer stats.mutex.Unlock()
	if stats.recentErr != nil {
		return nil, stats.recentErr
	}
	return stats.recent[page], nil
}

type capturingRecorder struct {
	mutex   sync.Mutex
	entries []model.ActivityInput
}

func (recorder *capturingRecorder) Record(_ context.Context, input model.ActivityInput) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.entries = append(recorder.entries, input)
}

func recentFixture() []model.RecentVisit {
	return []model.RecentVisit{
		{PageURL: "/collections/sarees", Country: "India", IPAddress: "10.0.0.1", Visits: 3},
		{PageURL: "/collections/kurtis", Country: "India", IPAddress: "10.0.0.2", Visits: 2},
		{PageURL: "/about", Country: "", IPAddress: "192.168.1.9", Referrer: "", Visits: 5},
	}
}

func newDashboard(testingT *testing.T, stats *fakeStats, recorder analytics.ActivityRecorder) *analytics.Dashboard {
	testingT.Helper()
	dashboard, dashboardErr := analytics.NewDashboard(analytics.DashboardConfig{Source: stats, Recorder: recorder})
	require.NoError(testingT, dashboardErr)
	return dashboard
}

func TestRefreshTotalsVisitsAndResetsFilters(testingT *testing.T) {
	stats := &fakeStats{recent: map[int][]model.RecentVisit{1: recentFixture()}}
	dashboard := newDashboard(testingT, stats, nil)
	require.NoError(testingT, dashboard.Refresh(context.Background()))

	state := dashboard.State()
	require.True(testingT, state.Loaded)
	require.Equal(testingT, int64(10), state.TotalVisits)
	require.Len(testingT, state.Filtered, 3)

	dashboard.SetFilters(analytics.Filters{PageURL: "collections", Country: "Ind"})
	require.Len(testingT, dashboard.State().Filtered, 3)
	dashboard.ApplyFilters()
	state = dashboard.State()
	require.Len(testingT, state.Filtered, 2)
	require.Equal(testingT, int64(5), state.TotalVisits)

	dashboard.SetFilters(analytics.Filters{IPAddress: "192.168"})
	dashboard.ApplyFilters()
	require.Equal(testingT, int64(5), dashboard.State().TotalVisits)

	require.NoError(testingT, dashboard.Refresh(context.Background()))
	state = dashboard.State()
	require.Len(testingT, state.Filtered, 3)
	require.Equal(testingT, int64(10), state.TotalVisits)
}

func TestSetPageRequestsRecentPage(testingT *testing.T) {
	stats := &fakeStats{recent: map[int][]model.RecentVisit{2: recentFixture()[:1]}}
	dashboard := newDashboard(testingT, stats, nil)
	require.NoError(testingT, dashboard.SetPage(context.Background(), 2))
	require.NoError(testingT, dashboard.SetPage(context.Background(), 0))
	require.Equal(testingT, []int{2, 1}, stats.recentPages)
	require.Equal(testingT, 1, dashboard.State().Page)
}

func TestSupersededRefreshIsDiscarded(testingT *testing.T) {
	stats := &fakeStats{
		recent:  map[int][]model.RecentVisit{1: recentFixture()[:1], 2: recentFixture()},
		block:   map[int]chan struct{}{1: make(chan struct{})},
		entered: map[int]chan struct{}{1: make(chan struct{})},
	}
	dashboard := newDashboard(testingT, stats, nil)

	slowResult := make(chan error, 1)
	go func() {
		slowResult <- dashboard.Refresh(context.Background())
	}()
	<-stats.entered[1]
	require.NoError(testingT, dashboard.SetPage(context.Background(), 2))
	close(stats.block[1])
	require.ErrorIs(testingT, <-slowResult, analytics.ErrSuperseded)
	require.Len(testingT, dashboard.State().Recent, 3)
}

func TestFailedRefreshKeepsPreviousData(testingT *testing.T) {
	stats := &fakeStats{recent: map[int][]model.RecentVisit{1: recentFixture()}}
	recorder := &capturingRecorder{}
	dashboard := newDashboard(testingT, stats, recorder)
	require.NoError(testingT, dashboard.Refresh(context.Background()))

	stats.mutex.Lock()
	stats.recentErr = errors.New("stats unavailable")
	stats.mutex.Unlock()
	require.Error(testingT, dashboard.Refresh(context.Background()))
	state := dashboard.State()
	require.Len(testingT, state.Recent, 3)
	require.NotEmpty(testingT, state.LastError)
	require.Len(testingT, recorder.entries, 1)
	require.Equal(testingT, model.ActivityOutcomeFailed, recorder.entries[0].Outcome)
}

func TestBuildChartGroupsInFirstSeenOrder(testingT *testing.T) {
	aggregates := []model.VisitAggregate{
		{PageURL: "https://shop.example.com/collections/sarees", Month: "2024-03", Country: "India", Visits: 4},
		{PageURL: "/about", Month: "2024-02", Country: "Nepal", Visits: 1},
		{PageURL: "/contact", Month: "2024-03", Country: "India", Visits: 2},
	}

	pages := analytics.BuildChart(analytics.ChartKeyPageURL, aggregates)
	require.Equal(testingT, "Page Visits", pages.Title)
	require.Equal(testingT, []string{"...m/collections/sarees", "/about", "/contact"}, pages.Labels)
	require.Equal(testingT, "https://shop.example.com/collections/sarees", pages.FullLabels[0])
	require.Equal(testingT, []int64{4, 1, 2}, pages.Values)

	months := analytics.BuildChart(analytics.ChartKeyMonth, aggregates)
	require.Equal(testingT, "Month Visits", months.Title)
	require.Equal(testingT, []string{"2024-03", "2024-02"}, months.Labels)
	require.Equal(testingT, []int64{6, 1}, months.Values)

	countries := analytics.BuildChart(analytics.ChartKeyCountry, aggregates)
	require.Equal(testingT, "Country Visits", countries.Title)
	require.Equal(testingT, []string{"India", "Nepal"}, countries.Labels)
	require.Equal(testingT, []int64{6, 1}, countries.Values)

	require.Empty(testingT, analytics.BuildChart(analytics.ChartKey("referrer"), aggregates).Labels)
}

func TestTruncateLabel(testingT *testing.T) {
	require.Equal(testingT, "exactly-twenty-chars", analytics.TruncateLabel("exactly-twenty-chars"))
	require.Equal(testingT, "...exactly-twenty-chars", analytics.TruncateLabel("eexactly-twenty-chars"))
}

func TestFormatVisitTime(testingT *testing.T) {
	require.Equal(testingT, "2024-03-05 10:04:00", analytics.FormatVisitTime("2024-03-05T10:04:00Z"))
	require.Equal(testingT, "not a time", analytics.FormatVisitTime("not a time"))
}

func TestVisitDisplayFallbacks(testingT *testing.T) {
	visit := recentFixture()[2]
	require.Equal(testingT, model.VisitReferrerDirect, visit.DisplayReferrer())
	require.Equal(testingT, model.VisitCountryUnknown, visit.DisplayCountry())
}
