package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/analytics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/realtime"
)

const (
	paramUnreadKind          = "kind"
	eventSidebarChanged      = "sidebar-changed"
	logEventStreamPatch      = "live_view_stream_patch_failed"
	logEventStreamRefresh    = "live_view_stream_refresh_failed"
	markReadUnknownMessage   = "unknown unread kind"
	markReadFailedMessage    = "failed to mark submissions as read"
	markReadResponseKeyKind  = "kind"
	markReadResponseKeyCount = "unread"
)

// Stream keeps a Datastar connection open for one live view. The current state is
// patched on connect, then again whenever the view changes or a push event concerns it.
func (handlers *ConsoleHandlers) Stream(context *gin.Context) {
	view, ok := handlers.liveView(context, "")
	if !ok {
		return
	}
	changes := view.changes.subscribe()
	defer view.changes.unsubscribe(changes)

	var events <-chan realtime.Event
	if handlers.events != nil {
		subscription := handlers.events.Subscribe()
		defer subscription.Close()
		events = subscription.Events()
	}

	sse := datastar.NewSSE(context.Writer, context.Request)
	if !handlers.patchView(sse, view) {
		return
	}
	requestContext := context.Request.Context()
	for {
		select {
		case <-requestContext.Done():
			return
		case <-changes:
			if !handlers.patchView(sse, view) {
				return
			}
		case event, open := <-events:
			if !open {
				events = nil
				continue
			}
			if !handlers.applyEvent(context, sse, view, event) {
				return
			}
		}
	}
}

func (handlers *ConsoleHandlers) patchView(sse *datastar.ServerSentEventGenerator, view *LiveView) bool {
	fragment, renderErr := handlers.renderView(view)
	if renderErr != nil {
		handlers.logger.Error(logEventViewRender, zap.String("view", view.ID), zap.Error(renderErr))
		return true
	}
	if patchErr := sse.PatchElements(fragment); patchErr != nil {
		handlers.logger.Debug(logEventStreamPatch, zap.String("view", view.ID), zap.Error(patchErr))
		return false
	}
	return true
}

func (handlers *ConsoleHandlers) patchSidebar(sse *datastar.ServerSentEventGenerator, view *LiveView) bool {
	sidebar, renderErr := handlers.pages.Sidebar(view.PagePath)
	if renderErr != nil {
		handlers.logger.Error(logEventViewRender, zap.String("view", view.ID), zap.Error(renderErr))
		return true
	}
	if patchErr := sse.PatchElements(sidebar); patchErr != nil {
		handlers.logger.Debug(logEventStreamPatch, zap.String("view", view.ID), zap.Error(patchErr))
		return false
	}
	return true
}

// applyEvent reacts to a push event. Unread counts repaint the sidebar and reload
// the inbox table they belong to; visit updates reload dashboards.
func (handlers *ConsoleHandlers) applyEvent(context *gin.Context, sse *datastar.ServerSentEventGenerator, view *LiveView, event realtime.Event) bool {
	switch event.Name {
	case eventSidebarChanged:
		return handlers.patchSidebar(sse, view)
	case realtime.EventUnreadCounts:
		if !handlers.patchSidebar(sse, view) {
			return false
		}
		if view.Kind != ViewKindTable || view.table.config.UnreadKind == "" {
			return true
		}
		if refreshErr := view.table.controller.Refresh(context.Request.Context()); refreshErr != nil {
			handlers.logger.Warn(logEventStreamRefresh, zap.String("view", view.ID), zap.Error(refreshErr))
			return true
		}
		return handlers.patchView(sse, view)
	case realtime.EventVisitUpdate:
		if view.Kind != ViewKindDashboard {
			return true
		}
		refreshErr := view.dashboard.Refresh(context.Request.Context())
		if refreshErr != nil {
			if !errors.Is(refreshErr, analytics.ErrSuperseded) {
				handlers.logger.Warn(logEventStreamRefresh, zap.String("view", view.ID), zap.Error(refreshErr))
			}
			return true
		}
		return handlers.patchView(sse, view)
	default:
		return true
	}
}

// broadcastSidebar asks every open stream to repaint its badges.
func (handlers *ConsoleHandlers) broadcastSidebar() {
	if handlers.events == nil {
		return
	}
	handlers.events.Broadcast(realtime.Event{Name: eventSidebarChanged})
}

// MarkRead clears the unread badge of one inbox.
func (handlers *ConsoleHandlers) MarkRead(context *gin.Context) {
	kind := context.Param(paramUnreadKind)
	if markErr := handlers.markRead(context.Request.Context(), kind); markErr != nil {
		if errors.Is(markErr, gateway.ErrUnknownUnreadKind) {
			context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: markReadUnknownMessage})
			return
		}
		context.JSON(http.StatusBadGateway, gin.H{jsonKeyError: markReadFailedMessage})
		return
	}
	handlers.broadcastSidebar()
	if isDatastarRequest(context.Request) {
		context.Status(http.StatusNoContent)
		return
	}
	counts := handlers.unread.Counts()
	unread := counts.CareerUnread
	if kind == gateway.UnreadKindConnect {
		unread = counts.ConnectUnread
	}
	context.JSON(http.StatusOK, gin.H{markReadResponseKeyKind: kind, markReadResponseKeyCount: unread})
}
