package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"qrm-ticketing/internal/batch"
	"qrm-ticketing/internal/blob"
	"qrm-ticketing/internal/control"
	"qrm-ticketing/internal/kafka"
	"qrm-ticketing/internal/logger"
	"qrm-ticketing/internal/models"
	"qrm-ticketing/internal/pdfsheet"
	"qrm-ticketing/internal/sse"
	tickets "qrm-ticketing/internal/tickets/service"
)

// ScanJournal is the store slice behind the free-scan notebook.
type ScanJournal interface {
	SaveScannedCode(ctx context.Context, code string) error
}

// TicketLister is the store slice behind the per-event ticket list.
type TicketLister interface {
	TicketsByScope(ctx context.Context, name, date string) ([]models.Ticket, error)
}

type Handler struct {
	Validation *tickets.ValidationEngine
	Stats      *tickets.EventStatsAggregator
	Panel      *control.Panel
	Generator  *batch.Generator
	Journal    ScanJournal
	Tickets    TicketLister
	Blob       blob.Store
	Gallery    blob.Store
	Sheets     *pdfsheet.Engine
	Progress   *sse.ProgressEmitter
	Producer   *kafka.Producer
	Logger     *logger.Logger

	// One long-running batch operation at a time.
	batchMu sync.Mutex
	cancels sync.Map // runID -> context.CancelFunc
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/control", func(r chi.Router) {
		r.Post("/validate", h.ValidateTicket)
		r.Get("/stats", h.EventStats)
		r.Get("/state", h.PanelState)
		r.Get("/tickets", h.ScopeTickets)
	})
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/generate", h.GenerateTickets)
		r.Post("/import", h.ImportTickets)
	})
	r.Route("/export", func(r chi.Router) {
		r.Get("/folders", h.ExportFolders)
		r.Get("/folders/{folder}", h.ExportFolderItems)
		r.Post("/pdf", h.ExportPdf)
	})
	r.Get("/progress/{runID}", h.ProgressStream)
	r.Post("/batches/{runID}/cancel", h.CancelBatch)
	r.Post("/scans", h.SaveScan)
}

// ValidateTicket runs a scanned payload through the validation engine and
// feeds the outcome to the control panel.
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	result := h.Validation.Validate(r.Context(), requestBody.Code)
	h.Panel.Submit(result)

	if result.Kind == tickets.KindFirstValid && h.Producer != nil {
		event := kafka.TicketValidatedEvent{
			Payload:          requestBody.Code,
			Reference:        result.Reference,
			EventName:        result.EventName,
			EventDate:        result.EventDate,
			ControlCount:     result.NewCount,
			FirstValidatedAt: result.FirstValidatedAt,
		}
		// Best-effort: a broker outage never blocks the door.
		if err := h.Producer.PublishTicketValidated(r.Context(), event); err != nil {
			h.logKafka("ticket-validated", err)
		}
	}

	status := http.StatusOK
	if result.Kind == tickets.KindError {
		status = http.StatusBadGateway
	}
	h.respondJSON(w, status, map[string]any{
		"kind":               result.Kind,
		"reference":          result.Reference,
		"count":              result.NewCount,
		"message":            result.Message,
		"event_name":         result.EventName,
		"event_date":         result.EventDate,
		"first_validated_at": formatTime(result.FirstValidatedAt),
	})
}

// EventStats refreshes and returns the counters for an event scope, and
// switches the control panel display to it.
func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	date := r.URL.Query().Get("date")

	stats, err := h.Stats.Refresh(r.Context(), name, date)
	if err != nil {
		http.Error(w, "Stats query failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	scope, _, _ := h.Stats.Current()
	h.Panel.SetScope(scope, stats)

	h.respondJSON(w, http.StatusOK, map[string]any{
		"name":      name,
		"date":      date,
		"total":     stats.Total,
		"scanned":   stats.Scanned,
		"remaining": stats.Remaining(),
	})
}

func (h *Handler) PanelState(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.Panel.Snapshot())
}

// ScopeTickets lists an event scope's tickets in sequence order.
func (h *Handler) ScopeTickets(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	list, err := h.Tickets.TicketsByScope(r.Context(), name, r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "List failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, ticket := range list {
		out = append(out, map[string]any{
			"reference":       ticket.Reference,
			"sequence_number": ticket.SequenceNumber,
			"status":          ticket.Status,
			"control_count":   ticket.ControlCount,
			"place":           ticket.Place,
			"start":           ticket.Start,
			"end":             ticket.End,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"tickets": out})
}

// GenerateTickets starts a synthetic batch run in the background and
// returns its run id; progress streams over /progress/{runID}.
func (h *Handler) GenerateTickets(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		batch.EventForm
		Cloud bool `json:"cloud"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.Quantity <= 0 {
		http.Error(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	if !h.batchMu.TryLock() {
		http.Error(w, "another batch operation is running", http.StatusConflict)
		return
	}

	runID := uuid.New().String()
	sink := h.sinkFor(requestBody.Cloud)
	form := requestBody.EventForm

	go func() {
		defer h.batchMu.Unlock()
		ctx, cancel := context.WithCancel(context.Background())
		h.cancels.Store(runID, cancel)
		defer h.cancels.Delete(runID)
		defer cancel()

		count, err := h.Generator.Generate(ctx, form, sink, h.progressFunc(runID))
		h.finishBatch(runID, "generate", form.Name, count, err)
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID,
		"total":  requestBody.Quantity,
	})
}

// ImportTickets starts a roster import from the request body (CSV text).
func (h *Handler) ImportTickets(w http.ResponseWriter, r *http.Request) {
	cloud, _ := strconv.ParseBool(r.URL.Query().Get("cloud"))

	if !h.batchMu.TryLock() {
		http.Error(w, "another batch operation is running", http.StatusConflict)
		return
	}

	// The import runs synchronously, so a watcher can only follow
	// /progress/{runID} if the client picked the id up front.
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = uuid.New().String()
	}
	sink := h.sinkFor(cloud)

	// The roster streams straight off the request body, one line at a time;
	// a client disconnect cancels the run through the request context.
	count, err := h.Generator.Import(r.Context(), r.Body, sink, h.progressFunc(runID))
	h.finishBatch(runID, "import", "", count, err)
	h.batchMu.Unlock()

	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, batch.ErrCancelled) {
			status = http.StatusRequestTimeout
		}
		h.respondJSON(w, status, map[string]any{
			"run_id":   runID,
			"imported": count,
			"error":    err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"imported": count,
	})
}

func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	value, ok := h.cancels.Load(runID)
	if !ok {
		http.Error(w, "no such run", http.StatusNotFound)
		return
	}
	value.(context.CancelFunc)()
	w.WriteHeader(http.StatusAccepted)
}

// ExportFolders lists the generation-date folders available for export.
func (h *Handler) ExportFolders(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Blob.List(r.Context(), "qrcodes")
	if err != nil {
		http.Error(w, "List failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"folders": listing.Folders})
}

// ExportFolderItems lists one folder's QR images with their recovered
// reference and sequence number, in export order.
func (h *Handler) ExportFolderItems(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if !validFolder(folder) {
		http.Error(w, "invalid folder", http.StatusBadRequest)
		return
	}
	items, err := pdfsheet.ItemsFromStore(r.Context(), h.Blob, folder)
	if err != nil {
		http.Error(w, "List failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"name":      item.Name,
			"reference": item.Reference,
		}
		if item.Number != pdfsheet.UnknownNumber {
			entry["number"] = item.Number
		}
		out = append(out, entry)
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"items": out})
}

// ExportPdf renders a folder's QR images into the paginated sheet document
// and returns it as a download.
func (h *Handler) ExportPdf(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Folder        string `json:"folder"`
		SinglePerPage bool   `json:"single_per_page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !validFolder(requestBody.Folder) {
		http.Error(w, "invalid folder", http.StatusBadRequest)
		return
	}

	items, err := pdfsheet.ItemsFromStore(r.Context(), h.Blob, requestBody.Folder)
	if err != nil {
		http.Error(w, "List failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	cfg := pdfsheet.DefaultConfig()
	cfg.SinglePerPage = requestBody.SinglePerPage

	runID := "export-" + requestBody.Folder
	document, report, err := h.Sheets.Render(r.Context(), items, cfg, h.progressFunc(runID))
	if err != nil {
		if errors.Is(err, pdfsheet.ErrNothingExported) {
			http.Error(w, "No image could be exported", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "Export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	filename := pdfsheet.Filename(requestBody.Folder, time.Now())
	if h.Logger != nil {
		h.Logger.LogExport(requestBody.Folder, fmt.Sprintf("%s: %d pages", filename, report.Pages))
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(document)
}

// ProgressStream is the SSE feed of a run's progress ticks.
func (h *Handler) ProgressStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.Progress.Subscribe(r.Context(), runID)
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		if event.Done {
			return
		}
	}
}

// SaveScan appends a raw scanned code to the journal.
func (h *Handler) SaveScan(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	if err := h.Journal.SaveScannedCode(r.Context(), requestBody.Code); err != nil {
		http.Error(w, "Save failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// validFolder accepts only single path segments; anything else could escape
// the qrcodes/ prefix on a filesystem-backed store.
func validFolder(folder string) bool {
	if folder == "" || folder == "." || folder == ".." {
		return false
	}
	return !strings.ContainsAny(folder, `/\`)
}

func (h *Handler) sinkFor(cloud bool) batch.ImageSink {
	generationDate := time.Now().Format("2006-01-02")
	if cloud {
		return &batch.BlobSink{Store: h.Blob, GenerationDate: generationDate}
	}
	return &batch.GallerySink{Store: h.Gallery, GenerationDate: generationDate}
}

func (h *Handler) progressFunc(runID string) func(processed, total int) {
	return func(processed, total int) {
		h.Progress.Publish(sse.ProgressEvent{
			RunID:     runID,
			Processed: processed,
			Total:     total,
		})
	}
}

func (h *Handler) finishBatch(runID, mode, eventName string, count int, err error) {
	message := fmt.Sprintf("%s finished: %d tickets", mode, count)
	if err != nil {
		message = fmt.Sprintf("%s failed after %d tickets: %v", mode, count, err)
		h.logBatch(runID, message)
	} else {
		h.logBatch(runID, message)
		if h.Producer != nil {
			event := kafka.BatchCompletedEvent{
				RunID:      runID,
				Mode:       mode,
				EventName:  eventName,
				Count:      count,
				FinishedAt: time.Now().UTC(),
			}
			if pubErr := h.Producer.PublishBatchCompleted(context.Background(), event); pubErr != nil {
				h.logKafka("batch-completed", pubErr)
			}
		}
	}
	h.Progress.Publish(sse.ProgressEvent{
		RunID:     runID,
		Processed: count,
		Total:     count,
		Done:      true,
		Message:   message,
	})
}

func (h *Handler) logBatch(runID, message string) {
	if h.Logger != nil {
		h.Logger.LogBatch(runID, message)
	}
}

func (h *Handler) logKafka(topic string, err error) {
	if h.Logger != nil {
		h.Logger.LogKafka("PUBLISH", topic, "failed: "+err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
