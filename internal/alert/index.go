package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/socialeye/internal/models"
)

// ActiveIndex keeps unresolved alerts, plus recently resolved ones, in
// memory for dashboard queries.
type ActiveIndex struct {
	mutex  sync.RWMutex
	alerts map[string]*models.Alert
}

func NewActiveIndex() *ActiveIndex {
	return &ActiveIndex{alerts: make(map[string]*models.Alert)}
}

func (x *ActiveIndex) Put(alert *models.Alert) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.alerts[alert.ID] = alert.Clone()
}

// Get returns a copy of the indexed alert.
func (x *ActiveIndex) Get(id string) (*models.Alert, bool) {
	x.mutex.RLock()
	defer x.mutex.RUnlock()
	a, ok := x.alerts[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// MarkResolved flips an indexed, unresolved alert to resolved. It reports
// false when the alert is absent or already resolved.
func (x *ActiveIndex) MarkResolved(id string, at time.Time, resolvedBy string) bool {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	a, ok := x.alerts[id]
	if !ok || a.Resolved {
		return false
	}
	a.Resolved = true
	a.ResolvedAt = &at
	if resolvedBy != "" {
		if a.Metadata == nil {
			a.Metadata = make(map[string]any)
		}
		a.Metadata[models.MetaResolvedBy] = resolvedBy
	}
	return true
}

// Unresolved returns copies of all unresolved alerts, newest first.
func (x *ActiveIndex) Unresolved() []*models.Alert {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	out := make([]*models.Alert, 0, len(x.alerts))
	for _, a := range x.alerts {
		if !a.Resolved {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Prune drops alerts resolved before cutoff and reports how many went.
func (x *ActiveIndex) Prune(cutoff time.Time) int {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	removed := 0
	for id, a := range x.alerts {
		if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(x.alerts, id)
			removed++
		}
	}
	return removed
}

func (x *ActiveIndex) Len() int {
	x.mutex.RLock()
	defer x.mutex.RUnlock()
	return len(x.alerts)
}
