package tickets

import (
	"context"
	"sync"

	"qrm-ticketing/internal/models"
)

// StatsStore is the slice of the ticket store the aggregator needs.
type StatsStore interface {
	StatsByScope(ctx context.Context, name, date string) (total, scanned int, err error)
}

// EventStatsAggregator holds the door counters for the currently displayed
// event scope. It is a read-mostly cache: full re-queries on scope change,
// cheap in-place bumps on scope-matching first validations.
type EventStatsAggregator struct {
	Store StatsStore

	mu       sync.RWMutex
	scope    models.Scope
	stats    models.EventStats
	hasScope bool
}

func NewEventStatsAggregator(store StatsStore) *EventStatsAggregator {
	return &EventStatsAggregator{Store: store}
}

// Refresh re-queries the counters for the given scope and makes it the held
// scope. A blank date widens the scope to all dates of the event.
func (a *EventStatsAggregator) Refresh(ctx context.Context, name, date string) (models.EventStats, error) {
	total, scanned, err := a.Store.StatsByScope(ctx, name, date)
	if err != nil {
		return models.EventStats{}, err
	}

	a.mu.Lock()
	a.scope = models.Scope{Name: name, Date: date}
	a.stats = models.EventStats{Total: total, Scanned: scanned}
	a.hasScope = true
	a.mu.Unlock()

	return models.EventStats{Total: total, Scanned: scanned}, nil
}

// BumpScanned increments the held scanned counter when the ticket's scope
// matches the held scope, avoiding a full re-query. It returns false when
// the scopes differ; the caller must then Refresh for the ticket's own scope.
func (a *EventStatsAggregator) BumpScanned(ticket models.Scope) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasScope || !a.scope.Matches(ticket) {
		return false
	}
	a.stats.Scanned++
	return true
}

// Current returns the held scope and counters; ok is false before the first
// Refresh.
func (a *EventStatsAggregator) Current() (models.Scope, models.EventStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scope, a.stats, a.hasScope
}
