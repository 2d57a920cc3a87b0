package httpapi

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/analytics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	dashboardPageTitle        = "Dashboard"
	templateDashboard         = "dashboard"
	formKeyFilterPageURL      = "page_url"
	formKeyFilterIPAddress    = "ip_address"
	formKeyFilterCountry      = "country"
	logEventDashboardRefresh  = "dashboard_refresh_failed"
	messageDashboardLoadError = "Failed to load visit statistics."
)

type dashboardData struct {
	ActionBase   string
	Charts       []chartData
	Visits       []model.RecentVisit
	TotalVisits  int64
	Filters      analytics.Filters
	TableOpen    bool
	Page         int
	PreviousPage int
	HasMorePages bool
	LastError    string
}

type chartData struct {
	Key   analytics.ChartKey
	Title string
	Bars  []chartBar
}

type chartBar struct {
	Label     string
	FullLabel string
	Value     int64
	Percent   int64
}

// RenderDashboard serves the visit analytics page.
func (handlers *ConsoleHandlers) RenderDashboard(context *gin.Context) {
	pagePath := context.Request.URL.Path
	view, reused := handlers.existingView(context, ViewKindDashboard, pagePath)
	if !reused {
		owner := handlers.owner(context)
		dashboard, dashboardErr := analytics.NewDashboard(analytics.DashboardConfig{
			Source:   handlers.backend,
			Recorder: handlers.recorder,
			Logger:   handlers.logger,
			Actor:    owner,
		})
		if dashboardErr != nil {
			handlers.pages.fail(context, dashboardErr)
			return
		}
		handlers.refreshDashboard(context, dashboard)
		view = newLiveView(ViewKindDashboard, owner, pagePath)
		view.dashboard = dashboard
		handlers.views.Add(view)
	}
	handlers.renderPage(context, view, dashboardPageTitle)
}

func (handlers *ConsoleHandlers) refreshDashboard(context *gin.Context, dashboard *analytics.Dashboard) {
	if refreshErr := dashboard.Refresh(context.Request.Context()); refreshErr != nil && !errors.Is(refreshErr, analytics.ErrSuperseded) {
		handlers.logger.Warn(logEventDashboardRefresh, zap.Error(refreshErr))
	}
}

func (handlers *ConsoleHandlers) renderDashboard(view *LiveView) (string, error) {
	state := view.dashboard.State()
	data := dashboardData{
		ActionBase:   actionBase(view, ViewKindDashboard),
		Visits:       state.Filtered,
		TotalVisits:  state.TotalVisits,
		Filters:      state.Filters,
		TableOpen:    state.TableOpen,
		Page:         state.Page,
		PreviousPage: state.Page - 1,
		HasMorePages: state.HasMorePages,
	}
	if data.PreviousPage < 1 {
		data.PreviousPage = 1
	}
	if state.LastError != "" {
		data.LastError = messageDashboardLoadError
	}
	for _, chart := range state.Charts {
		data.Charts = append(data.Charts, buildChartData(chart))
	}
	return handlers.pages.Fragment(templateDashboard, data)
}

func buildChartData(chart analytics.Chart) chartData {
	var maximum int64
	for _, value := range chart.Values {
		if value > maximum {
			maximum = value
		}
	}
	data := chartData{Key: chart.Key, Title: chart.Title, Bars: make([]chartBar, 0, len(chart.Values))}
	for index, value := range chart.Values {
		data.Bars = append(data.Bars, chartBar{
			Label:     chart.Labels[index],
			FullLabel: chart.FullLabels[index],
			Value:     value,
			Percent:   percentOf(value, maximum),
		})
	}
	return data
}

// DashboardRefresh refetches aggregated and recent visits at the current page.
func (handlers *ConsoleHandlers) DashboardRefresh(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindDashboard)
	if !ok {
		return
	}
	handlers.refreshDashboard(context, view.dashboard)
	handlers.respond(context, view)
}

// DashboardPage moves the recent visit log to page n.
func (handlers *ConsoleHandlers) DashboardPage(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindDashboard)
	if !ok {
		return
	}
	page, parseErr := strconv.Atoi(context.Param(paramPageNumber))
	if parseErr != nil {
		page = 1
	}
	if pageErr := view.dashboard.SetPage(context.Request.Context(), page); pageErr != nil && !errors.Is(pageErr, analytics.ErrSuperseded) {
		handlers.logActionError(view, "dashboard_page", pageErr)
	}
	handlers.respond(context, view)
}

// DashboardFilters stores and applies the posted filters.
func (handlers *ConsoleHandlers) DashboardFilters(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindDashboard)
	if !ok {
		return
	}
	if parseErr := parseSubmission(context.Request); parseErr != nil {
		handlers.logActionError(view, "dashboard_filters", parseErr)
	}
	view.dashboard.SetFilters(analytics.Filters{
		PageURL:   strings.TrimSpace(context.Request.PostFormValue(formKeyFilterPageURL)),
		IPAddress: strings.TrimSpace(context.Request.PostFormValue(formKeyFilterIPAddress)),
		Country:   strings.TrimSpace(context.Request.PostFormValue(formKeyFilterCountry)),
	})
	view.dashboard.ApplyFilters()
	handlers.respond(context, view)
}

// DashboardToggleTable opens or collapses the recent visit table.
func (handlers *ConsoleHandlers) DashboardToggleTable(context *gin.Context) {
	view, ok := handlers.liveView(context, ViewKindDashboard)
	if !ok {
		return
	}
	view.dashboard.ToggleTable()
	handlers.respond(context, view)
}
