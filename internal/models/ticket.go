package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket statuses. A ticket is created "valid" and flips to "OK" on its
// first successful door control.
const (
	StatusValid      = "valid"
	StatusControlled = "OK"
)

// Ticket is one admit-one credential. Payload is the sole lookup key used at
// the door; Reference is the short human-facing label used on printed sheets
// and is independent of the token.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Payload string `bun:"payload,unique,notnull"`
	Token   string `bun:"token,notnull"`

	Reference string `bun:"reference"`

	EventName string `bun:"event_name"`
	EventDate string `bun:"event_date"`
	Start     string `bun:"start"`
	End       string `bun:"end"`
	Place     string `bun:"place"`

	SequenceNumber int `bun:"sequence_number"`

	ControlCount int    `bun:"control_count,notnull,default:0"`
	Status       string `bun:"status"`

	// Set exactly once, on the 0 -> 1 control transition. The client-clock
	// value is written at the same moment in case server-time population lags.
	FirstValidatedAt       time.Time `bun:"first_validated_at,nullzero"`
	FirstValidatedAtClient time.Time `bun:"first_validated_at_client,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull"`
}

// Scope identifies an event implicitly by the (name, date) pair shared
// across its tickets. A blank date matches any date.
type Scope struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// Matches reports whether a ticket scope falls inside this scope.
func (s Scope) Matches(ticket Scope) bool {
	if s.Name == "" || s.Name != ticket.Name {
		return false
	}
	return s.Date == "" || s.Date == ticket.Date
}

// Scope returns the event scope the ticket belongs to.
func (t *Ticket) Scope() Scope {
	return Scope{Name: t.EventName, Date: t.EventDate}
}
