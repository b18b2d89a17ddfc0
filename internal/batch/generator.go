package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"qrm-ticketing/internal/logger"
	"qrm-ticketing/internal/models"
	"qrm-ticketing/internal/render"
	"qrm-ticketing/internal/token"
)

var (
	// ErrCancelled: the run's context was cancelled between items.
	ErrCancelled = errors.New("batch cancelled")
	// ErrPersist: a ticket write failed; the batch stops at that item and
	// nothing after it was attempted.
	ErrPersist = errors.New("ticket persistence failed")
)

// EventForm is the synthetic-mode input: event metadata plus how many
// tickets to mint.
type EventForm struct {
	Name     string `json:"name"`
	Date     string `json:"date"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Place    string `json:"place"`
	Quantity int    `json:"quantity"`
}

// Progress is invoked after each completed item. total is 0 in roster mode,
// where the line count is unknown while streaming.
type Progress func(processed, total int)

// TicketWriter is the store slice the generator persists through.
type TicketWriter interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
}

// Generator drives bulk ticket creation. The pipeline runs strictly one
// ticket at a time: mint, persist (awaited), render, sink, release —  peak
// memory is bounded to a single ticket's image regardless of batch size.
type Generator struct {
	Store    TicketWriter
	Minter   *token.Minter
	Renderer *render.Renderer
	Logger   *logger.Logger

	// YieldEvery inserts a brief cooperative pause this often so long runs
	// do not starve the host.
	YieldEvery int
	YieldPause time.Duration
}

func NewGenerator(store TicketWriter, minter *token.Minter, renderer *render.Renderer, log *logger.Logger) *Generator {
	return &Generator{
		Store:      store,
		Minter:     minter,
		Renderer:   renderer,
		Logger:     log,
		YieldEvery: 50,
		YieldPause: 5 * time.Millisecond,
	}
}

// Generate mints form.Quantity tickets with synthetic references and
// sequence numbers 1..quantity. Returns how many tickets were fully
// processed; on error the batch stopped there.
func (g *Generator) Generate(ctx context.Context, form EventForm, sink ImageSink, progress Progress) (int, error) {
	processed := 0
	for n := 1; n <= form.Quantity; n++ {
		if err := ctx.Err(); err != nil {
			return processed, fmt.Errorf("%w after %d tickets", ErrCancelled, processed)
		}

		ref := g.Minter.MintReference()
		row := rosterRow{
			Reference: ref,
			Name:      form.Name,
			Date:      form.Date,
			Start:     form.Start,
			End:       form.End,
			Place:     form.Place,
		}
		if err := g.processItem(ctx, row, n, "ticket_"+ref+".png", sink); err != nil {
			return processed, err
		}

		processed++
		if progress != nil {
			progress(processed, form.Quantity)
		}
		g.maybeYield(processed)
	}

	g.logBatch(fmt.Sprintf("generated %d tickets for %q", processed, form.Name))
	return processed, nil
}

// Import reads a roster: one header line discarded, then one ticket per
// non-blank line in file order. Lines with fewer than six fields are skipped
// without aborting the rest.
func (g *Generator) Import(ctx context.Context, roster io.Reader, sink ImageSink, progress Progress) (int, error) {
	scanner := bufio.NewScanner(roster)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if scanner.Scan() {
		// header
	}

	processed := 0
	sequence := 1
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		row, ok := parseRosterLine(line)
		if !ok {
			continue
		}

		if err := ctx.Err(); err != nil {
			return processed, fmt.Errorf("%w after %d tickets", ErrCancelled, processed)
		}

		if err := g.processItem(ctx, row, sequence, "imported_"+row.Reference+".png", sink); err != nil {
			return processed, err
		}

		processed++
		sequence++
		if progress != nil {
			progress(processed, 0)
		}
		g.maybeYield(processed)
	}
	if err := scanner.Err(); err != nil {
		return processed, fmt.Errorf("read roster: %w", err)
	}

	g.logBatch(fmt.Sprintf("imported %d tickets", processed))
	return processed, nil
}

// processItem is the shared per-ticket pipeline. The store write is awaited
// before any image memory is allocated for this item, and the image is
// released before the next item starts.
func (g *Generator) processItem(ctx context.Context, row rosterRow, sequence int, filename string, sink ImageSink) error {
	tok := g.Minter.Mint()
	payload := g.Minter.BuildPayload(tok)

	ticket := &models.Ticket{
		Payload:        payload,
		Token:          tok,
		Reference:      row.Reference,
		EventName:      row.Name,
		EventDate:      row.Date,
		Start:          row.Start,
		End:            row.End,
		Place:          row.Place,
		SequenceNumber: sequence,
		Status:         models.StatusValid,
		CreatedAt:      time.Now().UTC(),
	}
	if err := g.Store.CreateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("%w: item %d: %v", ErrPersist, sequence, err)
	}

	png, err := g.Renderer.Render(payload, row.Reference, sequence)
	if err != nil {
		// render.ErrOutOfResources stays distinguishable from store errors.
		return fmt.Errorf("render item %d: %w", sequence, err)
	}

	if err := sink.Save(ctx, filename, png, row.Reference, sequence); err != nil {
		return fmt.Errorf("save item %d: %w", sequence, err)
	}
	return nil
}

func (g *Generator) maybeYield(processed int) {
	if g.YieldEvery > 0 && processed%g.YieldEvery == 0 {
		time.Sleep(g.YieldPause)
	}
}

func (g *Generator) logBatch(message string) {
	if g.Logger != nil {
		g.Logger.LogBatch("batch", message)
	}
}
