package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qrm-ticketing/internal/logger"
	"qrm-ticketing/internal/models"
	"qrm-ticketing/internal/token"
)

// Error kinds surfaced by the validation path.
var (
	// ErrMalformedScan: the scanned text is not a payload minted by this
	// system. The store is never contacted for these.
	ErrMalformedScan = errors.New("scanned code is not a ticket payload")
	// ErrUnknownTicket: a well-formed payload with no matching record.
	ErrUnknownTicket = errors.New("unknown ticket")
	// ErrStoreUnavailable: the store call failed; nothing is assumed
	// committed.
	ErrStoreUnavailable = errors.New("ticket store unavailable")
	// ErrScanContended: another device holds the scan lock for this payload.
	ErrScanContended = errors.New("ticket is being validated on another device")
)

type ResultKind string

const (
	KindMalformed  ResultKind = "malformed"
	KindUnknown    ResultKind = "unknown"
	KindFirstValid ResultKind = "first_valid"
	KindDuplicate  ResultKind = "duplicate"
	KindError      ResultKind = "error"
)

// ValidationResult carries everything the caller needs to update its display
// and decide whether to bump or refresh the event counters: the engine never
// touches the aggregator itself.
type ValidationResult struct {
	Kind             ResultKind
	Reference        string
	NewCount         int
	PreviousCount    int
	EventName        string
	EventDate        string
	FirstValidatedAt time.Time
	Message          string
}

// TicketStore is the document-store contract the engine validates against.
type TicketStore interface {
	TicketByPayload(ctx context.Context, payload string) (*models.Ticket, error)
	RegisterControl(ctx context.Context, payload string, clientNow time.Time) (ticket *models.Ticket, previous int, err error)
}

// ScanLock serializes concurrent door scans of the same payload across
// devices. Optional; the store transaction remains the correctness
// guarantee.
type ScanLock interface {
	Acquire(ctx context.Context, payload, owner string) (bool, error)
	Release(ctx context.Context, payload, owner string) error
}

type ValidationEngine struct {
	Store  TicketStore
	Lock   ScanLock
	Logger *logger.Logger
	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewValidationEngine(store TicketStore, lock ScanLock, log *logger.Logger) *ValidationEngine {
	return &ValidationEngine{Store: store, Lock: lock, Logger: log, Now: time.Now}
}

// Validate classifies a scanned payload as malformed, unknown, first-valid
// or duplicate, incrementing the ticket's control counter atomically.
func (e *ValidationEngine) Validate(ctx context.Context, raw string) ValidationResult {
	if !token.HasPayloadPrefix(raw) {
		return ValidationResult{
			Kind:    KindMalformed,
			Message: "could not read this code",
		}
	}

	if e.Lock != nil {
		owner := e.Mint()
		ok, err := e.Lock.Acquire(ctx, raw, owner)
		if err != nil {
			e.logf("LOCK", "scan lock unavailable: %v", err)
			// Degrade to the store transaction alone.
		} else if !ok {
			return ValidationResult{
				Kind:    KindError,
				Message: ErrScanContended.Error(),
			}
		} else {
			defer func() {
				if err := e.Lock.Release(ctx, raw, owner); err != nil {
					e.logf("LOCK", "scan lock release failed: %v", err)
				}
			}()
		}
	}

	if _, err := e.Store.TicketByPayload(ctx, raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ValidationResult{
				Kind:    KindUnknown,
				Message: "invalid / unknown ticket",
			}
		}
		return e.storeFailure(err)
	}

	clientNow := e.Now()
	ticket, previous, err := e.Store.RegisterControl(ctx, raw, clientNow)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ValidationResult{
				Kind:    KindUnknown,
				Message: "invalid / unknown ticket",
			}
		}
		return e.storeFailure(err)
	}

	result := ValidationResult{
		Reference:     ticket.Reference,
		NewCount:      previous + 1,
		PreviousCount: previous,
		EventName:     ticket.EventName,
		EventDate:     ticket.EventDate,
	}

	if previous == 0 {
		result.Kind = KindFirstValid
		result.Message = "valid"
		// Client-observed moment of the first validation.
		result.FirstValidatedAt = clientNow
	} else {
		result.Kind = KindDuplicate
		result.Message = fmt.Sprintf("already controlled (%d times)", previous)
		result.FirstValidatedAt = resolveFirstValidated(ticket)
	}

	e.logScan(result)
	return result
}

// Mint produces a lock owner id; separate from ticket tokens but reuses the
// same generator.
func (e *ValidationEngine) Mint() string {
	return token.NewMinter().Mint()
}

// resolveFirstValidated prefers the server timestamp, falls back to the
// client clock, and stays zero when neither was recorded.
func resolveFirstValidated(ticket *models.Ticket) time.Time {
	if !ticket.FirstValidatedAt.IsZero() {
		return ticket.FirstValidatedAt
	}
	return ticket.FirstValidatedAtClient
}

func (e *ValidationEngine) storeFailure(err error) ValidationResult {
	e.logf("STORE", "validation lookup failed: %v", err)
	return ValidationResult{
		Kind:    KindError,
		Message: fmt.Errorf("%w: %v", ErrStoreUnavailable, err).Error(),
	}
}

func (e *ValidationEngine) logScan(r ValidationResult) {
	if e.Logger == nil {
		return
	}
	e.Logger.LogScan(string(r.Kind), r.Reference, r.Message)
}

func (e *ValidationEngine) logf(category, format string, args ...any) {
	if e.Logger == nil {
		return
	}
	e.Logger.Warn(category, fmt.Sprintf(format, args...))
}
