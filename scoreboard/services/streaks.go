package services

import (
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/config"
	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
)

// StreakOutcome describes what a contribution day did to the streak.
type StreakOutcome string

const (
	StreakStarted   StreakOutcome = "started"
	StreakSameDay   StreakOutcome = "same_day"
	StreakContinued StreakOutcome = "continued"
	StreakBroken    StreakOutcome = "broken"
)

// StreakService advances day-granularity contribution streaks. It is
// pure: callers persist the returned state after admission succeeds.
type StreakService struct{}

func NewStreakService() *StreakService {
	return &StreakService{}
}

// Advance applies one contribution on the given day and returns the new
// state, the outcome, and any streak milestones that fired. Multiple
// milestones can fire at once when a backfilled streak jumps tiers.
func (ss *StreakService) Advance(state models.StreakInfo, day time.Time) (models.StreakInfo, StreakOutcome, []int64) {
	day = truncateToDay(day)
	last := truncateToDay(state.LastContribution)

	var outcome StreakOutcome
	switch {
	case state.LastContribution.IsZero():
		state.Current = 1
		outcome = StreakStarted
	case day.Equal(last):
		outcome = StreakSameDay
	case daysBetween(last, day) == 1:
		state.Current++
		outcome = StreakContinued
	case day.Before(last):
		// Out-of-order delivery: the streak already covers this day
		outcome = StreakSameDay
	default:
		// Longest survives the break
		if state.Current > state.Longest {
			state.Longest = state.Current
		}
		state.Current = 1
		outcome = StreakBroken
	}

	if outcome != StreakSameDay {
		state.LastContribution = day
	}
	if state.Current > state.Longest {
		state.Longest = state.Current
	}

	var fired []int64
	for _, m := range config.StreakMilestones {
		if state.Current >= m && !state.HasStreakMilestone(m) {
			state.AwardedMilestones = append(state.AwardedMilestones, m)
			fired = append(fired, m)
		}
	}

	return state, outcome, fired
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int64 {
	return int64(to.Sub(from).Hours() / 24)
}
