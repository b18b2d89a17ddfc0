package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qrm-ticketing/internal/logger"
	"qrm-ticketing/internal/models"
	tickets "qrm-ticketing/internal/tickets/service"
)

// State is the control panel's whole display state: the event scope under
// control, its counters and the last scan outcome. It is updated only by
// the panel's reducer loop; readers get copies.
type State struct {
	EventName string `json:"event_name"`
	EventDate string `json:"event_date"`

	Total     int `json:"total"`
	Scanned   int `json:"scanned"`
	Remaining int `json:"remaining"`

	LastKind         string    `json:"last_kind"`
	LastReference    string    `json:"last_reference"`
	LastCount        int       `json:"last_count"`
	LastMessage      string    `json:"last_message"`
	FirstValidatedAt time.Time `json:"first_validated_at,omitempty"`
}

// Panel owns the state and consumes validation results through a single
// update channel; there is no shared mutable state outside it.
type Panel struct {
	agg *tickets.EventStatsAggregator
	log *logger.Logger

	updates chan tickets.ValidationResult

	mu    sync.RWMutex
	state State
}

func NewPanel(agg *tickets.EventStatsAggregator, log *logger.Logger) *Panel {
	return &Panel{
		agg:     agg,
		log:     log,
		updates: make(chan tickets.ValidationResult, 32),
	}
}

// Run consumes updates until the context ends. Start it once.
func (p *Panel) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-p.updates:
			p.reduce(ctx, result)
		}
	}
}

// Submit queues a validation outcome for the reducer.
func (p *Panel) Submit(result tickets.ValidationResult) {
	p.updates <- result
}

// Snapshot returns a copy of the current display state.
func (p *Panel) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetScope switches the panel to a new event scope with freshly queried
// counters.
func (p *Panel) SetScope(scope models.Scope, stats models.EventStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.EventName = scope.Name
	p.state.EventDate = scope.Date
	p.applyStats(stats)
}

func (p *Panel) reduce(ctx context.Context, result tickets.ValidationResult) {
	p.mu.Lock()
	p.state.LastKind = string(result.Kind)
	p.state.LastReference = result.Reference
	p.state.LastCount = result.NewCount
	p.state.LastMessage = result.Message
	p.state.FirstValidatedAt = result.FirstValidatedAt
	p.mu.Unlock()

	// Counters move only on a first validation: bump in place when the
	// ticket belongs to the displayed scope, otherwise switch the display
	// to the ticket's own scope.
	if result.Kind != tickets.KindFirstValid {
		return
	}

	ticketScope := models.Scope{Name: result.EventName, Date: result.EventDate}
	if p.agg.BumpScanned(ticketScope) {
		_, stats, _ := p.agg.Current()
		p.mu.Lock()
		p.applyStats(stats)
		p.mu.Unlock()
		return
	}

	stats, err := p.agg.Refresh(ctx, ticketScope.Name, ticketScope.Date)
	if err != nil {
		if p.log != nil {
			p.log.Warn("SCAN", fmt.Sprintf("stats refresh failed for %q: %v", ticketScope.Name, err))
		}
		return
	}
	p.SetScope(ticketScope, stats)
}

// applyStats must run under p.mu.
func (p *Panel) applyStats(stats models.EventStats) {
	p.state.Total = stats.Total
	p.state.Scanned = stats.Scanned
	p.state.Remaining = stats.Remaining()
}
