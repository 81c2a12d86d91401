package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/config"
	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
)

// labelAliases folds platform label variants onto the scored names
var labelAliases = map[string]string{
	"bugfix":        "bug",
	"docs":          "doc",
	"documentation": "doc",
	"improvement":   "improve",
	"enhance":       "enhancement",
}

// PointsService computes scores and applies currency and badge rules to
// a contributor already loaded by the caller. It never persists.
type PointsService struct{}

func NewPointsService() *PointsService {
	return &PointsService{}
}

// BasePoints returns the point value for a labeled pull request. The
// first match in priority order wins; unlabeled requests score the
// default value.
func (ps *PointsService) BasePoints(labels []string) int64 {
	normalized := make(map[string]bool, len(labels))
	for _, label := range labels {
		normalized[normalizeLabel(label)] = true
	}

	for _, name := range config.LabelPriority {
		if normalized[name] {
			return config.LabelPoints[name]
		}
	}
	return config.PointsDefault
}

// Score applies the streak multiplier to a base value, rounding to the
// nearest point. The streak passed in is the post-update streak.
func (ps *PointsService) Score(base int64, streak int64) int64 {
	return int64(math.Round(float64(base) * config.StreakMultiplier(streak)))
}

// ReviewPoints is the flat award for a submitted review.
func (ps *PointsService) ReviewPoints() int64 {
	return config.PointsReview
}

// EvaluateCurrency grants bill-units from the contributor's updated
// counts. The Vonette and first-Bill milestones are keyed per kind, so
// 500 authored and 500 reviewed each pay their own Vonette. At most one
// grant fires per pass; incremental bills wait when a milestone fires.
func (ps *PointsService) EvaluateCurrency(c *models.Contributor) (billsGranted, vonettesGranted int64) {
	vonetteAuthored := c.AuthoredCount >= config.VonetteThreshold && !c.Milestones.First500Authored
	vonetteReviews := c.ReviewCount >= config.VonetteThreshold && !c.Milestones.First500Reviews
	if vonetteAuthored || vonetteReviews {
		if c.AuthoredCount >= config.VonetteThreshold {
			c.Milestones.First500Authored = true
		}
		if c.ReviewCount >= config.VonetteThreshold {
			c.Milestones.First500Reviews = true
		}
		c.BillUnits += config.VonetteUnits
		return 0, config.VonetteUnits
	}

	firstAuthored := c.AuthoredCount >= config.BillFirstThreshold && !c.Milestones.First10Authored
	firstReviews := c.ReviewCount >= config.BillFirstThreshold && !c.Milestones.First10Reviews
	if (firstAuthored || firstReviews) && c.BillUnits == 0 {
		if c.AuthoredCount >= config.BillFirstThreshold {
			c.Milestones.First10Authored = true
		}
		if c.ReviewCount >= config.BillFirstThreshold {
			c.Milestones.First10Reviews = true
		}
		c.BillUnits = 1
		return 1, 0
	}

	units := (c.AuthoredCount + c.ReviewCount) / config.BillStepThreshold
	if units > c.BillUnits {
		granted := units - c.BillUnits
		c.BillUnits = units
		return granted, 0
	}
	return 0, 0
}

// badgeRung is one step of the milestone ladder
type badgeRung struct {
	count    int64
	authored bool
}

// badgeLadder interleaves authored and review milestones in award order
var badgeLadder = buildBadgeLadder()

func buildBadgeLadder() []badgeRung {
	rungs := make([]badgeRung, 0, len(config.AuthoredMilestones)+len(config.ReviewMilestones))
	for i := range config.AuthoredMilestones {
		rungs = append(rungs, badgeRung{count: config.AuthoredMilestones[i], authored: true})
		rungs = append(rungs, badgeRung{count: config.ReviewMilestones[i], authored: false})
	}
	return rungs
}

// EvaluateBadges walks the milestone ladder and awards the first rung
// the contributor has reached but not yet earned. At most one milestone
// badge is awarded per event; the next event picks up the next rung.
func (ps *PointsService) EvaluateBadges(c *models.Contributor, now time.Time) []string {
	for _, rung := range badgeLadder {
		reached := c.ReviewCount >= rung.count
		if rung.authored {
			reached = c.AuthoredCount >= rung.count
		}
		if !reached {
			continue
		}

		name := reviewBadgeName(rung.count)
		if rung.authored {
			name = authoredBadgeName(rung.count)
		}
		if c.HasBadge(name) {
			continue
		}

		c.Badges = append(c.Badges, models.Badge{Name: name, AwardedAt: now})
		return []string{name}
	}
	return nil
}

// AwardStreakBadges converts fired streak milestones into badges. These
// are independent of the milestone ladder and several can land at once.
func (ps *PointsService) AwardStreakBadges(c *models.Contributor, fired []int64, now time.Time) []string {
	var awarded []string
	for _, days := range fired {
		name := streakBadgeName(days)
		if c.HasBadge(name) {
			continue
		}
		c.Badges = append(c.Badges, models.Badge{Name: name, AwardedAt: now})
		awarded = append(awarded, name)
	}
	return awarded
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if canonical, ok := labelAliases[label]; ok {
		return canonical
	}
	return label
}

func authoredBadgeName(count int64) string {
	if count == 1 {
		return "First Pull Request"
	}
	return fmt.Sprintf("%d Pull Requests", count)
}

func reviewBadgeName(count int64) string {
	if count == 1 {
		return "First Review"
	}
	return fmt.Sprintf("%d Reviews", count)
}

func streakBadgeName(days int64) string {
	return fmt.Sprintf("%d-Day Streak", days)
}
