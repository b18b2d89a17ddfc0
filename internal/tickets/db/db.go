package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"qrm-ticketing/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateTables creates the schema at startup; sqlite deployments have no
// separate migration step.
func (d *DB) CreateTables(ctx context.Context) error {
	if _, err := d.Bun.NewCreateTable().
		Model((*models.Ticket)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	_, err := d.Bun.NewCreateTable().
		Model((*models.ScannedCode)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

// TicketByPayload returns the single ticket whose payload equals the input.
// Not-found surfaces as sql.ErrNoRows.
func (d *DB) TicketByPayload(ctx context.Context, payload string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("payload = ?", payload).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// TicketsByScope returns all tickets of an event scope. A blank date matches
// every date of the named event.
func (d *DB) TicketsByScope(ctx context.Context, name, date string) ([]models.Ticket, error) {
	var out []models.Ticket
	q := d.Bun.NewSelect().
		Model(&out).
		Where("event_name = ?", name)
	if date != "" {
		q = q.Where("event_date = ?", date)
	}
	err := q.Order("sequence_number").Scan(ctx)
	return out, err
}

// StatsByScope counts the scope's tickets and how many were controlled at
// least once.
func (d *DB) StatsByScope(ctx context.Context, name, date string) (total, scanned int, err error) {
	q := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_name = ?", name)
	if date != "" {
		q = q.Where("event_date = ?", date)
	}
	total, err = q.Count(ctx)
	if err != nil {
		return 0, 0, err
	}

	q = d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_name = ?", name).
		Where("control_count > 0")
	if date != "" {
		q = q.Where("event_date = ?", date)
	}
	scanned, err = q.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return total, scanned, nil
}

// RegisterControl applies one door control to the ticket with the given
// payload: controlCount goes up by exactly 1 and the first-validation
// timestamps are set only on the 0 -> 1 transition. The read and the write
// run in one transaction so two near-simultaneous scans serialize to
// 1-then-2 instead of both observing 0.
//
// The returned ticket reflects the state after this control; previous is the
// count before it.
func (d *DB) RegisterControl(ctx context.Context, payload string, clientNow time.Time) (ticket *models.Ticket, previous int, err error) {
	err = d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var t models.Ticket
		if err := tx.NewSelect().
			Model(&t).
			Where("payload = ?", payload).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}

		previous = t.ControlCount
		t.ControlCount = previous + 1
		t.Status = models.StatusControlled

		columns := []string{"control_count", "status"}
		if previous == 0 {
			// Server time is authoritative; the client clock is stored
			// alongside for offline review.
			t.FirstValidatedAt = time.Now().UTC()
			t.FirstValidatedAtClient = clientNow.UTC()
			columns = append(columns, "first_validated_at", "first_validated_at_client")
		}

		if _, err := tx.NewUpdate().
			Model(&t).
			Column(columns...).
			Where("id = ?", t.ID).
			Exec(ctx); err != nil {
			return err
		}

		ticket = &t
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ticket, previous, nil
}

// SaveScannedCode appends a raw scan to the journal.
func (d *DB) SaveScannedCode(ctx context.Context, code string) error {
	entry := models.ScannedCode{
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	_, err := d.Bun.NewInsert().Model(&entry).Exec(ctx)
	return err
}
