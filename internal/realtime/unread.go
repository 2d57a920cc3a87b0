package realtime

import (
	"sync"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

// UnreadTracker holds the latest sidebar badge counts.
type UnreadTracker struct {
	mutex  sync.RWMutex
	counts model.UnreadCounts
}

// NewUnreadTracker returns a tracker with zero counts.
func NewUnreadTracker() *UnreadTracker {
	return &UnreadTracker{}
}

// Apply replaces the counts with the values of a push event.
func (tracker *UnreadTracker) Apply(counts model.UnreadCounts) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	if counts.CareerUnread < 0 {
		counts.CareerUnread = 0
	}
	if counts.ConnectUnread < 0 {
		counts.ConnectUnread = 0
	}
	tracker.counts = counts
}

// MarkRead resets the badge of kind.
func (tracker *UnreadTracker) MarkRead(kind string) error {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	switch kind {
	case gateway.UnreadKindCareer:
		tracker.counts.CareerUnread = 0
	case gateway.UnreadKindConnect:
		tracker.counts.ConnectUnread = 0
	default:
		return gateway.ErrUnknownUnreadKind
	}
	return nil
}

// Counts returns the current badge counts.
func (tracker *UnreadTracker) Counts() model.UnreadCounts {
	tracker.mutex.RLock()
	defer tracker.mutex.RUnlock()
	return tracker.counts
}
