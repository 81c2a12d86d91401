package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Challenge kinds determine which event dimension advances progress
const (
	ChallengeTypePoints   = "points"
	ChallengeTypeAuthored = "authored"
	ChallengeTypeReviews  = "reviews"
	ChallengeTypeStreak   = "streak"
	ChallengeTypeLabel    = "label"
)

type Challenge struct {
	bun.BaseModel `bun:"table:challenges,alias:ch"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	Type        string    `bun:"type,notnull"`
	Goal        int64     `bun:"goal,notnull"`
	Reward      int64     `bun:"reward,notnull,default:0"`
	Active      bool      `bun:"active,notnull,default:true"`
	StartsAt    time.Time `bun:"starts_at,notnull"`
	EndsAt      time.Time `bun:"ends_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`

	// LabelFilters only applies to label challenges: an authored event
	// advances progress when any of its labels matches a filter.
	LabelFilters []string `bun:"label_filters,type:jsonb"`
}

// ChallengeParticipant tracks one contributor's progress in a challenge.
// Completed is a one-way latch; progress keeps advancing past the goal.
type ChallengeParticipant struct {
	bun.BaseModel `bun:"table:challenge_participants,alias:cp"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ChallengeID   string    `bun:"challenge_id,notnull"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	Progress      int64     `bun:"progress,notnull,default:0"`
	Completed     bool      `bun:"completed,notnull,default:false"`
	JoinedAt      time.Time `bun:"joined_at,notnull,default:current_timestamp"`
	CompletedAt   time.Time `bun:"completed_at,nullzero"`
}

type CompletedChallenge struct {
	bun.BaseModel `bun:"table:completed_challenges,alias:cc"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ChallengeID   string    `bun:"challenge_id,notnull"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	ChallengeName string    `bun:"challenge_name,notnull"`
	Reward        int64     `bun:"reward,notnull,default:0"`
	CompletedAt   time.Time `bun:"completed_at,notnull,default:current_timestamp"`
}
