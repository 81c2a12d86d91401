package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ledger actions for authored pull request events
const (
	ActionMerged = "merged"
)

// AuthoredEvent is one admitted pull request event. The unique index on
// (contributor_id, request_number, action) is the admission gate: an
// insert that affects zero rows means the event was already processed.
type AuthoredEvent struct {
	bun.BaseModel `bun:"table:authored_ledger,alias:al"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	RequestNumber int64     `bun:"request_number,notnull"`
	Action        string    `bun:"action,notnull"`
	Labels        []string  `bun:"labels,type:jsonb"`
	Points        int64     `bun:"points,notnull,default:0"`
	OccurredAt    time.Time `bun:"occurred_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ReviewEvent is one admitted review submission, keyed by the platform's
// review ID so re-reviews of the same request each count once.
type ReviewEvent struct {
	bun.BaseModel `bun:"table:review_ledger,alias:rl"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	RequestNumber int64     `bun:"request_number,notnull"`
	ReviewID      int64     `bun:"review_id,notnull"`
	State         string    `bun:"state"`
	Points        int64     `bun:"points,notnull,default:0"`
	OccurredAt    time.Time `bun:"occurred_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
