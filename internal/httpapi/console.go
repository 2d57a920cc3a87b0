package httpapi

import (
	"net/url"
	"strings"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	RouteLogin           = "/login"
	RouteLogout          = "/logout"
	RouteForgot          = "/forgot"
	RouteDashboard       = "/app"
	RouteCatalog         = "/app/cms"
	RouteProductsPrefix  = "/app/products/"
	RouteTablesPrefix    = "/app/tables/"
	RouteViewsPrefix     = "/app/views/"
	RouteLivePrefix      = "/app/live/"
	RouteUnreadPrefix    = "/app/unread/"
	RouteActivity        = "/api/activity"
	RouteHealth          = "/healthz"
	RouteMetrics         = "/metrics"
	productCollectionCap = 6
)

// TableView configures one dynamic table screen.
type TableView struct {
	Table             string         `mapstructure:"table"`
	Title             string         `mapstructure:"title"`
	Layout            string         `mapstructure:"layout"`
	ReadOnly          bool           `mapstructure:"read_only"`
	ExcludedIDs       []int64        `mapstructure:"excluded_ids"`
	ResetPageOnSearch bool           `mapstructure:"reset_page_on_search"`
	Toggles           []string       `mapstructure:"toggles"`
	Caps              map[string]int `mapstructure:"caps"`
	UnreadKind        string         `mapstructure:"unread_kind"`
	Menu              bool           `mapstructure:"menu"`
}

// Path returns the console route of the view.
func (view TableView) Path() string {
	if view.ReadOnly {
		return RouteViewsPrefix + url.PathEscape(view.Table)
	}
	return RouteTablesPrefix + url.PathEscape(view.Table)
}

// DisplayTitle returns the configured title or one derived from the table name.
func (view TableView) DisplayTitle() string {
	if strings.TrimSpace(view.Title) != "" {
		return view.Title
	}
	return dyntable.FormatLabel(strings.TrimPrefix(view.Table, "banka_"))
}

// FlagCaps converts the configured caps.
func (view TableView) FlagCaps() []dyntable.FlagCap {
	caps := make([]dyntable.FlagCap, 0, len(view.Caps))
	for field, limit := range view.Caps {
		caps = append(caps, dyntable.FlagCap{Field: field, Limit: limit})
	}
	return caps
}

// ConsoleConfig lists the dynamic table screens and their sidebar entries.
type ConsoleConfig struct {
	Tables []TableView `mapstructure:"tables"`
}

// MenuItem is one sidebar entry.
type MenuItem struct {
	Label      string
	Path       string
	UnreadKind string
}

// DefaultConsoleConfig returns the screens of the shop console.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{Tables: []TableView{
		{Table: "banka_home_banner", Title: "Home Banner", Menu: true},
		{Table: "banka_popular_banner", Title: "Popular Banner", Menu: true},
		{Table: "banka_about_us", Title: "About Us", Layout: string(dyntable.LayoutPortrait), Menu: true},
		{Table: "banka_director", Title: "Director", Menu: true},
		{Table: "banka_event_data", Title: "Event Page Text", Menu: true},
		{Table: "banka_event_participation", Title: "Event Participation", Menu: true},
		{Table: "banka_event_snapshots", Title: "Event Snaps", Menu: true},
		{Table: "banka_career_applications", Title: "Career", ReadOnly: true, UnreadKind: gateway.UnreadKindCareer, Menu: true},
		{Table: "banka_connect_requests", Title: "Connect", ReadOnly: true, UnreadKind: gateway.UnreadKindConnect, Menu: true},
		{Table: model.TableProduct, Title: "Products", Toggles: []string{model.FieldShowInCollection, model.FieldShowInPopular, model.FieldShowInSpectrum}, Caps: map[string]int{model.FieldShowInCollection: productCollectionCap}},
	}}
}

// Menu returns the sidebar entries in display order.
func (configuration ConsoleConfig) Menu() []MenuItem {
	items := []MenuItem{
		{Label: "Dashboard", Path: RouteDashboard},
		{Label: "Product", Path: RouteCatalog},
	}
	for _, view := range configuration.Tables {
		if !view.Menu {
			continue
		}
		label := view.DisplayTitle()
		if view.ReadOnly {
			label += " Data"
		}
		items = append(items, MenuItem{Label: label, Path: view.Path(), UnreadKind: view.UnreadKind})
	}
	return items
}

// TableView returns the configured screen for table in the requested mode. Unconfigured tables get defaults.
func (configuration ConsoleConfig) TableView(table string, readOnly bool) TableView {
	for _, view := range configuration.Tables {
		if view.Table == table && view.ReadOnly == readOnly {
			return view
		}
	}
	return TableView{Table: table, ReadOnly: readOnly}
}
