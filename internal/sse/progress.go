package sse

import (
	"context"
	"sync"
)

// ProgressEvent is one tick of a long-running batch or export.
type ProgressEvent struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
	Message   string `json:"message,omitempty"`
}

// ProgressEmitter fans progress events out to SSE subscribers per run id.
type ProgressEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan ProgressEvent
}

func NewProgressEmitter() *ProgressEmitter {
	return &ProgressEmitter{
		clients: make(map[string][]chan ProgressEvent),
	}
}

// Subscribe adds a client to a run's progress stream. The channel closes
// when the context is done.
func (e *ProgressEmitter) Subscribe(ctx context.Context, runID string) chan ProgressEvent {
	clientChan := make(chan ProgressEvent, 16)

	e.mu.Lock()
	e.clients[runID] = append(e.clients[runID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(runID, clientChan)
	}()

	return clientChan
}

// Publish delivers an event to every subscriber of the run; slow clients
// drop ticks rather than block the batch.
func (e *ProgressEmitter) Publish(event ProgressEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[event.RunID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *ProgressEmitter) remove(runID string, clientChan chan ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[runID]
	for i, c := range clients {
		if c == clientChan {
			e.clients[runID] = append(clients[:i], clients[i+1:]...)
			close(c)
			break
		}
	}
	if len(e.clients[runID]) == 0 {
		delete(e.clients, runID)
	}
}
