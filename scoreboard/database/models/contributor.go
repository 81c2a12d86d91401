package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Contributor struct {
	bun.BaseModel `bun:"table:contributors,alias:c"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Username string `bun:"username,notnull,unique"`

	// Lifetime totals, never reset
	LifetimePoints int64 `bun:"lifetime_points,notnull,default:0"`
	AuthoredCount  int64 `bun:"authored_count,notnull,default:0"`
	ReviewCount    int64 `bun:"review_count,notnull,default:0"`

	// Currency. BillUnits is the running total of bill-units awarded;
	// a Vonette is worth five of them and lands in the same counter.
	BillUnits  int64          `bun:"bill_units,notnull,default:0"`
	Milestones MilestoneFlags `bun:"milestones,type:jsonb"`

	// Streaks
	Streak StreakInfo `bun:"streak,type:jsonb"`

	// Badges awarded, in award order
	Badges []Badge `bun:"badges,type:jsonb"`

	// Cached stats for the quarter named in quarter_settings. The
	// authoritative per-quarter buckets live in quarter_stats.
	CurrentQuarter QuarterSnapshot `bun:"current_quarter,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// StreakInfo tracks consecutive contribution days at day granularity.
// LastContribution is truncated to midnight UTC.
type StreakInfo struct {
	Current          int64     `json:"current"`
	Longest          int64     `json:"longest"`
	LastContribution time.Time `json:"last_contribution"`

	// Streak milestones already awarded; each fires once per contributor
	AwardedMilestones []int64 `json:"awarded_milestones"`
}

// MilestoneFlags are the one-shot currency milestones, keyed per kind.
// The Vonette can fire twice per contributor, once on each kind.
type MilestoneFlags struct {
	First10Authored  bool `json:"first_10_authored"`
	First10Reviews   bool `json:"first_10_reviews"`
	First500Authored bool `json:"first_500_authored"`
	First500Reviews  bool `json:"first_500_reviews"`
}

type Badge struct {
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}

// HasBadge reports whether the contributor already holds the named badge.
func (c *Contributor) HasBadge(name string) bool {
	for _, b := range c.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// HasStreakMilestone reports whether a streak milestone already fired.
func (s *StreakInfo) HasStreakMilestone(days int64) bool {
	for _, m := range s.AwardedMilestones {
		if m == days {
			return true
		}
	}
	return false
}

type QuarterSnapshot struct {
	Quarter  string `json:"quarter"`
	Points   int64  `json:"points"`
	Authored int64  `json:"authored"`
	Reviews  int64  `json:"reviews"`
}
