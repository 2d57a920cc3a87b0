package httpapi

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/analytics"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/catalog"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

// ViewKind names the screen a live view backs.
type ViewKind string

const (
	ViewKindTable     ViewKind = "table"
	ViewKindCatalog   ViewKind = "catalog"
	ViewKindProducts  ViewKind = "products"
	ViewKindDashboard ViewKind = "dashboard"
)

// changeNotifier pings stream listeners when a view's state changed.
type changeNotifier struct {
	mutex     sync.RWMutex
	listeners map[chan struct{}]struct{}
}

func newChangeNotifier() *changeNotifier {
	return &changeNotifier{listeners: make(map[chan struct{}]struct{})}
}

func (notifier *changeNotifier) subscribe() chan struct{} {
	channel := make(chan struct{}, 1)
	notifier.mutex.Lock()
	notifier.listeners[channel] = struct{}{}
	notifier.mutex.Unlock()
	return channel
}

func (notifier *changeNotifier) unsubscribe(channel chan struct{}) {
	notifier.mutex.Lock()
	delete(notifier.listeners, channel)
	notifier.mutex.Unlock()
}

func (notifier *changeNotifier) broadcast() {
	notifier.mutex.RLock()
	defer notifier.mutex.RUnlock()
	for channel := range notifier.listeners {
		select {
		case channel <- struct{}{}:
		default:
		}
	}
}

func (notifier *changeNotifier) listenerCount() int {
	notifier.mutex.RLock()
	defer notifier.mutex.RUnlock()
	return len(notifier.listeners)
}

// tableScreen is the state of one dynamic table screen.
type tableScreen struct {
	config       TableView
	layout       dyntable.Layout
	controller   *dyntable.ListController
	orchestrator *dyntable.Orchestrator

	mutex       sync.Mutex
	status      string
	statusLevel string
}

func (screen *tableScreen) setStatus(message string, level string) {
	screen.mutex.Lock()
	defer screen.mutex.Unlock()
	screen.status = message
	screen.statusLevel = level
}

func (screen *tableScreen) currentStatus() (string, string) {
	screen.mutex.Lock()
	defer screen.mutex.Unlock()
	return screen.status, screen.statusLevel
}

// LiveView is the server-side state of one open browser page.
type LiveView struct {
	ID       string
	Kind     ViewKind
	Owner    string
	PagePath string

	table     *tableScreen
	catalog   *catalog.CategoryBoard
	products  *catalog.ProductBoard
	dashboard *analytics.Dashboard

	changes  *changeNotifier
	mutex    sync.Mutex
	lastSeen time.Time
}

func newLiveView(kind ViewKind, owner string, pagePath string) *LiveView {
	return &LiveView{
		ID:       uuid.NewString(),
		Kind:     kind,
		Owner:    owner,
		PagePath: pagePath,
		changes:  newChangeNotifier(),
		lastSeen: time.Now().UTC(),
	}
}

// Changed wakes every stream attached to the view.
func (view *LiveView) Changed() {
	view.changes.broadcast()
}

func (view *LiveView) touch(now time.Time) {
	view.mutex.Lock()
	defer view.mutex.Unlock()
	view.lastSeen = now
}

// idleSince reports whether the view has no stream and was last used before cutoff.
func (view *LiveView) idleSince(cutoff time.Time) bool {
	view.mutex.Lock()
	lastSeen := view.lastSeen
	view.mutex.Unlock()
	return view.changes.listenerCount() == 0 && lastSeen.Before(cutoff)
}

// PageURL is the address that reopens the page bound to this view.
func (view *LiveView) PageURL() string {
	separator := "?"
	if strings.Contains(view.PagePath, "?") {
		separator = "&"
	}
	return view.PagePath + separator + queryKeyView + "=" + view.ID
}

// ViewRegistry holds the live views of every signed-in user.
type ViewRegistry struct {
	mutex   sync.Mutex
	views   map[string]*LiveView
	metrics *metrics.Collector
	now     func() time.Time
}

// NewViewRegistry constructs an empty registry.
func NewViewRegistry(collector *metrics.Collector) *ViewRegistry {
	return &ViewRegistry{
		views:   make(map[string]*LiveView),
		metrics: collector,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Add registers view.
func (registry *ViewRegistry) Add(view *LiveView) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.views[view.ID] = view
	registry.metrics.SetLiveViews(len(registry.views))
}

// Lookup returns the view with identifier when owner holds it.
func (registry *ViewRegistry) Lookup(owner string, identifier string) (*LiveView, bool) {
	registry.mutex.Lock()
	view, exists := registry.views[identifier]
	registry.mutex.Unlock()
	if !exists || view.Owner != owner {
		return nil, false
	}
	view.touch(registry.now())
	return view, true
}

// ForEach calls visit for every registered view.
func (registry *ViewRegistry) ForEach(visit func(view *LiveView)) {
	registry.mutex.Lock()
	snapshot := make([]*LiveView, 0, len(registry.views))
	for _, view := range registry.views {
		snapshot = append(snapshot, view)
	}
	registry.mutex.Unlock()
	for _, view := range snapshot {
		visit(view)
	}
}

// EvictIdle removes views without a stream that were last used before cutoff.
func (registry *ViewRegistry) EvictIdle(cutoff time.Time) int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	evicted := 0
	for identifier, view := range registry.views {
		if view.idleSince(cutoff) {
			delete(registry.views, identifier)
			evicted++
		}
	}
	registry.metrics.SetLiveViews(len(registry.views))
	return evicted
}

// Len reports the number of registered views.
func (registry *ViewRegistry) Len() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.views)
}
