package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reason tags on point history rows. Recompute derives authored and
// review counts from these, so they are part of the data contract.
const (
	ReasonMerged          = "PR merged"
	ReasonReview          = "Review submitted"
	ReasonChallengeReward = "Challenge reward"
	ReasonAdjustment      = "Manual adjustment"
)

// PointHistory is the append-only award trail. OccurredAt is the
// effective date of the underlying event and keys quarter attribution;
// CreatedAt is when the row was written. RequestNumber links a row back
// to its pull request; challenge rewards carry none.
type PointHistory struct {
	bun.BaseModel `bun:"table:point_history,alias:ph"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	Points        int64     `bun:"points,notnull"`
	Reason        string    `bun:"reason,notnull"`
	RequestNumber int64     `bun:"request_number,nullzero"`
	OccurredAt    time.Time `bun:"occurred_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
