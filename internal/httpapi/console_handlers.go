package httpapi

import (
	"context"
	"errors"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/analytics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/catalog"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/realtime"
)

const (
	queryKeyView         = "view"
	paramViewID          = "viewID"
	datastarRequestKey   = "Datastar-Request"
	maxUploadBytes       = 64 << 20
	viewNotFoundMessage  = "This page expired. Reload to continue."
	logEventViewAction   = "live_view_action_failed"
	logEventViewRender   = "live_view_render_failed"
	logEventMarkReadFail = "mark_read_failed"
)

var (
	ErrMissingBackend = errors.New("httpapi: missing backend")
	ErrMissingPages   = errors.New("httpapi: missing pages")
	ErrMissingViews   = errors.New("httpapi: missing view registry")
)

// Backend is the CMS surface the console screens drive.
type Backend interface {
	dyntable.TableSource
	dyntable.RecordStore
	catalog.CategoryStore
	catalog.ProductStore
	analytics.StatsSource
	ExportTable(ctx context.Context, table string) ([]byte, error)
	MarkAllRead(ctx context.Context, kind string) error
}

// ConsoleHandlersConfig configures ConsoleHandlers.
type ConsoleHandlersConfig struct {
	Backend  Backend
	Pages    *Pages
	Views    *ViewRegistry
	Console  ConsoleConfig
	Unread   *realtime.UnreadTracker
	Events   *realtime.Broadcaster
	Recorder dyntable.ActivityRecorder
	Logger   *zap.Logger
}

// ConsoleHandlers serves the signed-in screens and their live actions.
type ConsoleHandlers struct {
	backend  Backend
	pages    *Pages
	views    *ViewRegistry
	console  ConsoleConfig
	unread   *realtime.UnreadTracker
	events   *realtime.Broadcaster
	recorder dyntable.ActivityRecorder
	logger   *zap.Logger
}

// NewConsoleHandlers validates configuration and constructs ConsoleHandlers.
func NewConsoleHandlers(configuration ConsoleHandlersConfig) (*ConsoleHandlers, error) {
	if configuration.Backend == nil {
		return nil, ErrMissingBackend
	}
	if configuration.Pages == nil {
		return nil, ErrMissingPages
	}
	if configuration.Views == nil {
		return nil, ErrMissingViews
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	unread := configuration.Unread
	if unread == nil {
		unread = realtime.NewUnreadTracker()
	}
	return &ConsoleHandlers{
		backend:  configuration.Backend,
		pages:    configuration.Pages,
		views:    configuration.Views,
		console:  configuration.Console,
		unread:   unread,
		events:   configuration.Events,
		recorder: configuration.Recorder,
		logger:   logger,
	}, nil
}

func streamURL(view *LiveView) string {
	return RouteLivePrefix + view.ID + "/stream"
}

func actionBase(view *LiveView, kind ViewKind) string {
	return RouteLivePrefix + view.ID + "/" + string(kind)
}

func (handlers *ConsoleHandlers) owner(context *gin.Context) string {
	if currentUser, ok := CurrentUserFromContext(context); ok {
		return currentUser.Username
	}
	return ""
}

// existingView returns the view named by the view query parameter when it backs pagePath.
func (handlers *ConsoleHandlers) existingView(context *gin.Context, kind ViewKind, pagePath string) (*LiveView, bool) {
	identifier := strings.TrimSpace(context.Query(queryKeyView))
	if identifier == "" {
		return nil, false
	}
	view, found := handlers.views.Lookup(handlers.owner(context), identifier)
	if !found || view.Kind != kind || view.PagePath != pagePath {
		return nil, false
	}
	return view, true
}

// liveView resolves the viewID path parameter for the signed-in user.
func (handlers *ConsoleHandlers) liveView(context *gin.Context, kind ViewKind) (*LiveView, bool) {
	view, found := handlers.views.Lookup(handlers.owner(context), context.Param(paramViewID))
	if !found || (kind != "" && view.Kind != kind) {
		if isDatastarRequest(context.Request) {
			sse := datastar.NewSSE(context.Writer, context.Request)
			_ = sse.ConsoleError(errors.New(viewNotFoundMessage))
			return nil, false
		}
		context.String(http.StatusNotFound, viewNotFoundMessage)
		return nil, false
	}
	return view, true
}

// respond finishes a live action. Datastar requests receive the re-rendered fragment;
// plain form posts are redirected back to the page.
func (handlers *ConsoleHandlers) respond(context *gin.Context, view *LiveView) {
	view.Changed()
	if !isDatastarRequest(context.Request) {
		context.Redirect(http.StatusSeeOther, view.PageURL())
		return
	}
	fragment, renderErr := handlers.renderView(view)
	sse := datastar.NewSSE(context.Writer, context.Request)
	if renderErr != nil {
		handlers.logger.Error(logEventViewRender, zap.String("view", view.ID), zap.Error(renderErr))
		_ = sse.ConsoleError(renderErr)
		return
	}
	if patchErr := sse.PatchElements(fragment); patchErr != nil {
		handlers.logger.Debug(logEventViewRender, zap.String("view", view.ID), zap.Error(patchErr))
	}
}

// renderView renders the main fragment of view.
func (handlers *ConsoleHandlers) renderView(view *LiveView) (string, error) {
	switch view.Kind {
	case ViewKindTable:
		return handlers.renderTableScreen(view)
	case ViewKindCatalog:
		return handlers.renderCatalog(view)
	case ViewKindProducts:
		return handlers.renderProducts(view)
	case ViewKindDashboard:
		return handlers.renderDashboard(view)
	default:
		return "", nil
	}
}

func (handlers *ConsoleHandlers) renderPage(context *gin.Context, view *LiveView, title string) {
	fragment, renderErr := handlers.renderView(view)
	if renderErr != nil {
		handlers.pages.fail(context, renderErr)
		return
	}
	handlers.pages.RenderConsole(context, title, view.PagePath, streamURL(view), template.HTML(fragment))
}

func (handlers *ConsoleHandlers) logActionError(view *LiveView, action string, actionErr error) {
	if actionErr == nil {
		return
	}
	handlers.logger.Info(logEventViewAction,
		zap.String("view", view.ID),
		zap.String("kind", string(view.Kind)),
		zap.String("action", action),
		zap.Error(actionErr),
	)
}

// markRead clears the unread badge of kind on the backend and locally.
func (handlers *ConsoleHandlers) markRead(ctx context.Context, kind string) error {
	if kind == "" {
		return nil
	}
	if markErr := handlers.backend.MarkAllRead(ctx, kind); markErr != nil {
		handlers.logger.Warn(logEventMarkReadFail, zap.String("kind", kind), zap.Error(markErr))
		return markErr
	}
	return handlers.unread.MarkRead(kind)
}

func isDatastarRequest(request *http.Request) bool {
	return strings.EqualFold(request.Header.Get(datastarRequestKey), "true")
}

// parseSubmission reads an urlencoded or multipart form body.
func parseSubmission(request *http.Request) error {
	contentType := request.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		if parseErr := request.ParseMultipartForm(maxUploadBytes); parseErr != nil && !errors.Is(parseErr, http.ErrNotMultipart) {
			return parseErr
		}
		return nil
	}
	return request.ParseForm()
}

// uploadedFile reads the file posted as field. A missing or empty file yields ok=false.
func uploadedFile(request *http.Request, field string) (gateway.FilePart, bool, error) {
	if request.MultipartForm == nil {
		return gateway.FilePart{}, false, nil
	}
	headers := request.MultipartForm.File[field]
	if len(headers) == 0 {
		return gateway.FilePart{}, false, nil
	}
	part, readErr := readFilePart(field, headers[0])
	if readErr != nil {
		return gateway.FilePart{}, false, readErr
	}
	return part, len(part.Content) > 0, nil
}

// uploadedFiles reads every file posted as field.
func uploadedFiles(request *http.Request, field string) ([]gateway.FilePart, error) {
	if request.MultipartForm == nil {
		return nil, nil
	}
	parts := make([]gateway.FilePart, 0, len(request.MultipartForm.File[field]))
	for _, header := range request.MultipartForm.File[field] {
		part, readErr := readFilePart(field, header)
		if readErr != nil {
			return nil, readErr
		}
		if len(part.Content) > 0 {
			parts = append(parts, part)
		}
	}
	return parts, nil
}

func readFilePart(field string, header *multipart.FileHeader) (gateway.FilePart, error) {
	file, openErr := header.Open()
	if openErr != nil {
		return gateway.FilePart{}, openErr
	}
	defer file.Close()
	content, readErr := io.ReadAll(file)
	if readErr != nil {
		return gateway.FilePart{}, readErr
	}
	return gateway.FilePart{
		Field:       field,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}
