package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventStats are the door counters for one event scope. Remaining is always
// derived, never stored.
type EventStats struct {
	Total   int `json:"total"`
	Scanned int `json:"scanned"`
}

// Remaining never goes below zero even if scanned overshoots total.
func (s EventStats) Remaining() int {
	if r := s.Total - s.Scanned; r > 0 {
		return r
	}
	return 0
}

// ScannedCode is the free-scan journal: any raw code captured outside the
// control flow, kept with its capture time.
type ScannedCode struct {
	bun.BaseModel `bun:"table:scanned_codes"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Code      string    `bun:"code,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
