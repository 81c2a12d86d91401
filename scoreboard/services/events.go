package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/CruGlobal/scoreboard/scoreboard/database/repositories"
	"github.com/CruGlobal/scoreboard/scoreboard/logger"
)

// MergedPullRequest is one merge event from the hosting platform.
type MergedPullRequest struct {
	Author   string
	Number   int64
	Labels   []string
	MergedAt time.Time
}

// SubmittedReview is one review submission. ReviewID is the platform's
// review identifier, so re-reviews on the same request count separately.
type SubmittedReview struct {
	Reviewer    string
	Number      int64
	ReviewID    int64
	State       string
	SubmittedAt time.Time
}

// EventResult reports what one event did. Admitted false means the
// event was a duplicate and nothing changed.
type EventResult struct {
	Admitted      bool
	Points        int64
	Streak        int64
	StreakOutcome StreakOutcome
	Badges        []string
	Completions   []*models.CompletedChallenge
}

// EventService is the ingestion pipeline: rollover check, admission
// through the ledger, then scoring side effects. The ledger insert is
// the only gate; everything after it runs exactly once per event.
type EventService struct {
	contributors repositories.ContributorRepository
	ledger       repositories.LedgerRepository
	quarters     repositories.QuarterRepository

	points     *PointsService
	streaks    *StreakService
	quarterSvc *QuarterService
	challenges *ChallengeService
	notifier   Notifier
}

func NewEventService(
	contributors repositories.ContributorRepository,
	ledger repositories.LedgerRepository,
	quarters repositories.QuarterRepository,
	points *PointsService,
	streaks *StreakService,
	quarterSvc *QuarterService,
	challenges *ChallengeService,
	notifier Notifier,
) *EventService {
	return &EventService{
		contributors: contributors,
		ledger:       ledger,
		quarters:     quarters,
		points:       points,
		streaks:      streaks,
		quarterSvc:   quarterSvc,
		challenges:   challenges,
		notifier:     notifier,
	}
}

// ProcessMergedPullRequest scores one merged pull request. The streak
// advances before points are computed, so today's merge benefits from
// the streak it extends.
func (es *EventService) ProcessMergedPullRequest(ctx context.Context, ev MergedPullRequest) (*EventResult, error) {
	start := time.Now()

	if err := es.quarterSvc.EnsureCurrent(ctx, time.Now()); err != nil {
		return nil, fmt.Errorf("rollover check failed: %w", err)
	}

	contributor, err := es.contributors.GetOrCreate(ctx, ev.Author)
	if err != nil {
		return nil, err
	}

	// Compute the prospective streak and score before admission; nothing
	// is persisted if the ledger rejects the event.
	priorStreak := contributor.Streak.Current
	newStreak, outcome, fired := es.streaks.Advance(contributor.Streak, ev.MergedAt)
	base := es.points.BasePoints(ev.Labels)
	score := es.points.Score(base, newStreak.Current)

	event := &models.AuthoredEvent{
		ContributorID: contributor.ID,
		RequestNumber: ev.Number,
		Action:        models.ActionMerged,
		Labels:        ev.Labels,
		Points:        score,
		OccurredAt:    ev.MergedAt,
	}
	admitted, err := es.ledger.AdmitAuthored(ctx, event)
	if err != nil {
		logger.LogEvent("merged", ev.Author, time.Since(start), err)
		return nil, err
	}
	if !admitted {
		return &EventResult{Admitted: false}, nil
	}

	contributor.Streak = newStreak
	contributor.AuthoredCount++
	contributor.LifetimePoints += score
	es.points.EvaluateCurrency(contributor)

	badges := es.points.EvaluateBadges(contributor, time.Now())
	badges = append(badges, es.points.AwardStreakBadges(contributor, fired, time.Now())...)

	// The ledger row is committed; everything from here is best effort.
	// A failed follow-on write is logged and left for the audit pass,
	// never surfaced to the producer.
	if err := es.attribute(ctx, contributor, score, 1, 0, ev.MergedAt); err != nil {
		logSideEffectFailure("quarter attribution", ev.Author, ev.Number, err)
	}

	completions, err := es.challenges.AdvanceForEvent(ctx, contributor, score, models.ReasonMerged, newStreak.Current, ev.MergedAt, ev.Labels)
	if err != nil {
		logSideEffectFailure("challenge progress", ev.Author, ev.Number, err)
	}

	entry := &models.PointHistory{
		ContributorID: contributor.ID,
		Points:        score,
		Reason:        models.ReasonMerged,
		RequestNumber: ev.Number,
		OccurredAt:    ev.MergedAt,
	}
	if err := es.contributors.SaveWithHistory(ctx, contributor, entry); err != nil {
		logSideEffectFailure("contributor save", ev.Author, ev.Number, err)
	}

	if es.notifier != nil {
		es.notifier.AnnouncePullRequestScored(contributor.Username, ev.Number, score)
		if outcome == StreakBroken {
			es.notifier.AnnounceStreakBroken(contributor.Username, priorStreak)
		}
	}
	es.announce(contributor.Username, badges)
	logger.LogEvent("merged", ev.Author, time.Since(start), nil)

	return &EventResult{
		Admitted:      true,
		Points:        score,
		Streak:        newStreak.Current,
		StreakOutcome: outcome,
		Badges:        badges,
		Completions:   completions,
	}, nil
}

// ProcessSubmittedReview scores one review at the flat review value.
// Reviews never touch the streak.
func (es *EventService) ProcessSubmittedReview(ctx context.Context, ev SubmittedReview) (*EventResult, error) {
	start := time.Now()

	if err := es.quarterSvc.EnsureCurrent(ctx, time.Now()); err != nil {
		return nil, fmt.Errorf("rollover check failed: %w", err)
	}

	contributor, err := es.contributors.GetOrCreate(ctx, ev.Reviewer)
	if err != nil {
		return nil, err
	}

	score := es.points.ReviewPoints()
	event := &models.ReviewEvent{
		ContributorID: contributor.ID,
		RequestNumber: ev.Number,
		ReviewID:      ev.ReviewID,
		State:         ev.State,
		Points:        score,
		OccurredAt:    ev.SubmittedAt,
	}
	admitted, err := es.ledger.AdmitReview(ctx, event)
	if err != nil {
		logger.LogEvent("review", ev.Reviewer, time.Since(start), err)
		return nil, err
	}
	if !admitted {
		return &EventResult{Admitted: false}, nil
	}

	contributor.ReviewCount++
	contributor.LifetimePoints += score
	es.points.EvaluateCurrency(contributor)
	badges := es.points.EvaluateBadges(contributor, time.Now())

	if err := es.attribute(ctx, contributor, score, 0, 1, ev.SubmittedAt); err != nil {
		logSideEffectFailure("quarter attribution", ev.Reviewer, ev.Number, err)
	}

	completions, err := es.challenges.AdvanceForEvent(ctx, contributor, score, models.ReasonReview, contributor.Streak.Current, ev.SubmittedAt, nil)
	if err != nil {
		logSideEffectFailure("challenge progress", ev.Reviewer, ev.Number, err)
	}

	entry := &models.PointHistory{
		ContributorID: contributor.ID,
		Points:        score,
		Reason:        models.ReasonReview,
		RequestNumber: ev.Number,
		OccurredAt:    ev.SubmittedAt,
	}
	if err := es.contributors.SaveWithHistory(ctx, contributor, entry); err != nil {
		logSideEffectFailure("contributor save", ev.Reviewer, ev.Number, err)
	}

	if es.notifier != nil {
		es.notifier.AnnounceReviewScored(contributor.Username, ev.Number, score)
	}
	es.announce(contributor.Username, badges)
	logger.LogEvent("review", ev.Reviewer, time.Since(start), nil)

	return &EventResult{
		Admitted:    true,
		Points:      score,
		Streak:      contributor.Streak.Current,
		Badges:      badges,
		Completions: completions,
	}, nil
}

// attribute books the event into its own quarter's bucket. Events from
// the current quarter also refresh the contributor's embedded snapshot;
// late events leave the snapshot alone.
func (es *EventService) attribute(ctx context.Context, contributor *models.Contributor, points, authored, reviews int64, occurredAt time.Time) error {
	settings, err := es.quarters.GetSettings(ctx)
	if err != nil {
		return err
	}

	label := Label(occurredAt, settings.FirstQuarterMonth)
	if err := es.quarters.AddToBucket(ctx, contributor.ID, label, points, authored, reviews); err != nil {
		return err
	}

	if label == settings.CurrentQuarter {
		contributor.CurrentQuarter.Quarter = label
		contributor.CurrentQuarter.Points += points
		contributor.CurrentQuarter.Authored += authored
		contributor.CurrentQuarter.Reviews += reviews
	}
	return nil
}

func (es *EventService) announce(username string, badges []string) {
	if es.notifier == nil {
		return
	}
	for _, badge := range badges {
		es.notifier.AnnounceBadge(username, badge)
	}
}

func logSideEffectFailure(what, username string, number int64, err error) {
	slog.Error("Post-admission side effect failed",
		slog.String("type", "error"),
		slog.String("what", what),
		slog.String("contributor", username),
		slog.Int64("request", number),
		slog.Any("error", err))
}
