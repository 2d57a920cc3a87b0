package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/analytics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/realtime"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

const (
	// DefaultDatastarScriptURL is the Datastar client bundle served to console pages.
	DefaultDatastarScriptURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

	htmlContentType        = "text/html; charset=utf-8"
	templateLayout         = "layout"
	templateAuthLayout     = "auth_layout"
	templateSidebar        = "sidebar"
	renderErrorMessage     = "Unable to render page."
	logEventRenderTemplate = "render_template"
)

// Pages renders console pages and fragments.
type Pages struct {
	templates         *template.Template
	menu              []MenuItem
	unread            *realtime.UnreadTracker
	renderer          *dyntable.Renderer
	datastarScriptURL string
	logger            *zap.Logger
}

// PagesConfig configures Pages.
type PagesConfig struct {
	Menu              []MenuItem
	Unread            *realtime.UnreadTracker
	Renderer          *dyntable.Renderer
	DatastarScriptURL string
	Logger            *zap.Logger
}

type pageData struct {
	Title             string
	Username          string
	StreamURL         string
	Sidebar           sidebarData
	Content           template.HTML
	DatastarScriptURL string
}

type sidebarData struct {
	Items []sidebarItem
}

type sidebarItem struct {
	Label      string
	Path       string
	Active     bool
	HasBadge   bool
	Badge      int
	UnreadKind string
}

// NewPages parses the embedded templates.
func NewPages(configuration PagesConfig) (*Pages, error) {
	renderer := configuration.Renderer
	if renderer == nil {
		renderer = dyntable.NewRenderer("")
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	unread := configuration.Unread
	if unread == nil {
		unread = realtime.NewUnreadTracker()
	}
	scriptURL := strings.TrimSpace(configuration.DatastarScriptURL)
	if scriptURL == "" {
		scriptURL = DefaultDatastarScriptURL
	}
	functions := template.FuncMap{
		"assetURL":        renderer.AssetURL,
		"formatVisitTime": analytics.FormatVisitTime,
		"add":             func(left int, right int) int { return left + right },
		"percentOf":       percentOf,
	}
	parsed, parseErr := template.New("httpapi").Funcs(functions).ParseFS(templateFiles, "templates/*.tmpl")
	if parseErr != nil {
		return nil, fmt.Errorf("httpapi: parse templates: %w", parseErr)
	}
	return &Pages{
		templates:         parsed,
		menu:              configuration.Menu,
		unread:            unread,
		renderer:          renderer,
		datastarScriptURL: scriptURL,
		logger:            logger,
	}, nil
}

// Renderer returns the dynamic table renderer shared by the pages.
func (pages *Pages) Renderer() *dyntable.Renderer {
	return pages.renderer
}

// Fragment renders a named template into a string.
func (pages *Pages) Fragment(name string, data any) (string, error) {
	buffer := &bytes.Buffer{}
	if executeErr := pages.templates.ExecuteTemplate(buffer, name, data); executeErr != nil {
		return "", fmt.Errorf("httpapi: render %s: %w", name, executeErr)
	}
	return buffer.String(), nil
}

// Sidebar renders the sidebar with current unread badges.
func (pages *Pages) Sidebar(activePath string) (string, error) {
	return pages.Fragment(templateSidebar, pages.sidebarData(activePath))
}

func (pages *Pages) sidebarData(activePath string) sidebarData {
	counts := pages.unread.Counts()
	items := make([]sidebarItem, 0, len(pages.menu))
	for _, item := range pages.menu {
		entry := sidebarItem{
			Label:      item.Label,
			Path:       item.Path,
			Active:     item.Path == activePath,
			UnreadKind: item.UnreadKind,
		}
		switch item.UnreadKind {
		case "":
		case gateway.UnreadKindCareer:
			entry.HasBadge, entry.Badge = true, counts.CareerUnread
		case gateway.UnreadKindConnect:
			entry.HasBadge, entry.Badge = true, counts.ConnectUnread
		}
		items = append(items, entry)
	}
	return sidebarData{Items: items}
}

// RenderConsole writes a signed-in page whose content is live-updated by streamURL.
func (pages *Pages) RenderConsole(context *gin.Context, title string, activePath string, streamURL string, content template.HTML) {
	username := ""
	if currentUser, ok := CurrentUserFromContext(context); ok {
		username = currentUser.Username
	}
	pages.write(context, http.StatusOK, templateLayout, pageData{
		Title:             title,
		Username:          username,
		StreamURL:         streamURL,
		Sidebar:           pages.sidebarData(activePath),
		Content:           content,
		DatastarScriptURL: pages.datastarScriptURL,
	})
}

// RenderStandalone writes a page outside the console chrome.
func (pages *Pages) RenderStandalone(context *gin.Context, status int, title string, contentTemplate string, data any) {
	content, contentErr := pages.Fragment(contentTemplate, data)
	if contentErr != nil {
		pages.fail(context, contentErr)
		return
	}
	pages.write(context, status, templateAuthLayout, pageData{
		Title:             title,
		Content:           template.HTML(content),
		DatastarScriptURL: pages.datastarScriptURL,
	})
}

func (pages *Pages) write(context *gin.Context, status int, name string, data pageData) {
	buffer := &bytes.Buffer{}
	if executeErr := pages.templates.ExecuteTemplate(buffer, name, data); executeErr != nil {
		pages.fail(context, executeErr)
		return
	}
	context.Data(status, htmlContentType, buffer.Bytes())
}

func (pages *Pages) fail(context *gin.Context, renderErr error) {
	pages.logger.Error(logEventRenderTemplate, zap.String("path", context.Request.URL.Path), zap.Error(renderErr))
	context.String(http.StatusInternalServerError, renderErrorMessage)
}

func percentOf(value int64, maximum int64) int64 {
	if maximum <= 0 {
		return 0
	}
	return value * 100 / maximum
}
