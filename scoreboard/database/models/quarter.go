package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Quarter schemes, named by the month Q1 begins in
const (
	SchemeCalendar = "calendar" // January
	SchemeAcademic = "academic" // September
	SchemeFiscal   = "fiscal"   // October
	SchemeCustom   = "custom"

	DefaultFirstQuarterMonth = 1
)

// QuarterSettings is a singleton row (id = 1). CurrentQuarter is the
// rollover marker: ingestion compares the label of an incoming event
// against it to detect a pending quarter transition.
type QuarterSettings struct {
	bun.BaseModel `bun:"table:quarter_settings,alias:qs"`

	ID                int64     `bun:"id,pk"`
	FirstQuarterMonth int       `bun:"first_quarter_month,notnull,default:1"`
	Scheme            string    `bun:"scheme,notnull"`
	CurrentQuarter    string    `bun:"current_quarter,notnull,default:''"`
	UpdatedAt         time.Time `bun:"updated_at,notnull"`
}

// QuarterStats is the authoritative per-quarter bucket. Late events
// update the bucket of the quarter they occurred in, not the current one.
type QuarterStats struct {
	bun.BaseModel `bun:"table:quarter_stats,alias:qst"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	Quarter       string    `bun:"quarter,notnull"`
	Points        int64     `bun:"points,notnull,default:0"`
	Authored      int64     `bun:"authored,notnull,default:0"`
	Reviews       int64     `bun:"reviews,notnull,default:0"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// QuarterlyWinner archives a closed quarter: the top scorer, the top
// three standings, and how many contributors took part. Empty quarters
// are skipped, so gaps in the sequence are expected.
type QuarterlyWinner struct {
	bun.BaseModel `bun:"table:quarterly_winners,alias:qw"`

	ID            int64     `bun:"id,pk,autoincrement"`
	Quarter       string    `bun:"quarter,notnull,unique"`
	ContributorID int64     `bun:"contributor_id,notnull"`
	Username      string    `bun:"username,notnull"`
	Points        int64     `bun:"points,notnull"`
	Authored      int64     `bun:"authored,notnull"`
	Reviews       int64     `bun:"reviews,notnull"`
	ArchivedAt    time.Time `bun:"archived_at,notnull,default:current_timestamp"`

	TopThree     []RankedStanding `bun:"top_three,type:jsonb"`
	Participants int64            `bun:"participants,notnull,default:0"`
}

// RankedStanding is one row of an archived quarter's top three.
type RankedStanding struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
	Authored int64  `json:"authored"`
	Reviews  int64  `json:"reviews"`
}
