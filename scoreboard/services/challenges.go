package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/CruGlobal/scoreboard/scoreboard/database/repositories"
	"github.com/google/uuid"
)

var (
	ErrChallengeInactive   = errors.New("challenge is not active")
	ErrAlreadyParticipant  = errors.New("contributor already joined this challenge")
	ErrInvalidChallengeDef = errors.New("invalid challenge definition")
)

// ChallengeService manages time-boxed challenges. Progress only moves
// for contributors who joined; events for non-participants are no-ops.
type ChallengeService struct {
	challenges   repositories.ChallengeRepository
	contributors repositories.ContributorRepository
	history      repositories.PointHistoryRepository
	quarters     repositories.QuarterRepository
	notifier     Notifier
}

func NewChallengeService(
	challenges repositories.ChallengeRepository,
	contributors repositories.ContributorRepository,
	history repositories.PointHistoryRepository,
	quarters repositories.QuarterRepository,
	notifier Notifier,
) *ChallengeService {
	return &ChallengeService{
		challenges:   challenges,
		contributors: contributors,
		history:      history,
		quarters:     quarters,
		notifier:     notifier,
	}
}

// Create validates and stores a new challenge.
func (cs *ChallengeService) Create(ctx context.Context, name, description, challengeType string, goal, reward int64, startsAt, endsAt time.Time, labelFilters []string) (*models.Challenge, error) {
	switch challengeType {
	case models.ChallengeTypePoints, models.ChallengeTypeAuthored, models.ChallengeTypeReviews, models.ChallengeTypeStreak:
	case models.ChallengeTypeLabel:
		if len(labelFilters) == 0 {
			return nil, fmt.Errorf("%w: label challenge needs at least one filter", ErrInvalidChallengeDef)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidChallengeDef, challengeType)
	}
	if goal <= 0 {
		return nil, fmt.Errorf("%w: goal must be positive", ErrInvalidChallengeDef)
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("%w: ends before it starts", ErrInvalidChallengeDef)
	}

	challenge := &models.Challenge{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		Type:         challengeType,
		Goal:         goal,
		Reward:       reward,
		LabelFilters: labelFilters,
		Active:       true,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
	}
	if err := cs.challenges.Create(ctx, challenge); err != nil {
		return nil, err
	}

	slog.Info("Challenge created",
		slog.String("type", "sys"),
		slog.String("challenge_id", challenge.ID),
		slog.String("name", name),
		slog.Int64("goal", goal))
	return challenge, nil
}

// Join registers a contributor. Joining surfaces its failures: unknown
// challenge, inactive challenge, and double joins are all errors.
func (cs *ChallengeService) Join(ctx context.Context, challengeID, username string) (*models.ChallengeParticipant, error) {
	challenge, err := cs.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !challenge.Active || time.Now().After(challenge.EndsAt) {
		return nil, ErrChallengeInactive
	}

	contributor, err := cs.contributors.GetOrCreate(ctx, username)
	if err != nil {
		return nil, err
	}

	participant := &models.ChallengeParticipant{
		ChallengeID:   challengeID,
		ContributorID: contributor.ID,
	}
	added, err := cs.challenges.AddParticipant(ctx, participant)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, ErrAlreadyParticipant
	}
	return participant, nil
}

// Deactivate closes a challenge early. Recorded progress and
// completions stay; the challenge just stops advancing.
func (cs *ChallengeService) Deactivate(ctx context.Context, challengeID string) error {
	if _, err := cs.challenges.GetByID(ctx, challengeID); err != nil {
		return err
	}
	if err := cs.challenges.Deactivate(ctx, challengeID); err != nil {
		return err
	}
	slog.Info("Challenge deactivated",
		slog.String("type", "sys"),
		slog.String("challenge", challengeID))
	return nil
}

// AdvanceForEvent moves progress on every active challenge the
// contributor participates in. Points challenges advance by the event's
// point delta, authored and review challenges by one per matching
// event, label challenges by one per authored event carrying a matching
// label, and streak challenges are raised to the current streak when it
// exceeds recorded progress. Completion latches once and pays the
// reward through point history.
func (cs *ChallengeService) AdvanceForEvent(ctx context.Context, contributor *models.Contributor, pointsDelta int64, eventKind string, currentStreak int64, occurredAt time.Time, labels []string) ([]*models.CompletedChallenge, error) {
	active, err := cs.challenges.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	var completions []*models.CompletedChallenge
	now := time.Now()
	for _, challenge := range active {
		if occurredAt.Before(challenge.StartsAt) || occurredAt.After(challenge.EndsAt) {
			continue
		}

		participant, err := cs.challenges.GetParticipant(ctx, challenge.ID, contributor.ID)
		if err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			return completions, err
		}

		advanced := false
		switch challenge.Type {
		case models.ChallengeTypePoints:
			if pointsDelta > 0 {
				participant.Progress += pointsDelta
				advanced = true
			}
		case models.ChallengeTypeAuthored:
			if eventKind == models.ReasonMerged {
				participant.Progress++
				advanced = true
			}
		case models.ChallengeTypeReviews:
			if eventKind == models.ReasonReview {
				participant.Progress++
				advanced = true
			}
		case models.ChallengeTypeStreak:
			if currentStreak > participant.Progress {
				participant.Progress = currentStreak
				advanced = true
			}
		case models.ChallengeTypeLabel:
			if eventKind == models.ReasonMerged && matchesLabelFilters(labels, challenge.LabelFilters) {
				participant.Progress++
				advanced = true
			}
		}
		if !advanced {
			continue
		}

		if !participant.Completed && participant.Progress >= challenge.Goal {
			participant.Completed = true
			participant.CompletedAt = now

			completed, err := cs.payCompletion(ctx, challenge, contributor, now)
			if err != nil {
				return completions, err
			}
			completions = append(completions, completed)
		}

		if err := cs.challenges.UpdateParticipant(ctx, participant); err != nil {
			return completions, err
		}
	}
	return completions, nil
}

// payCompletion records the completion and pays the reward in the same
// pass. The reward lands in point history so recompute preserves it.
func (cs *ChallengeService) payCompletion(ctx context.Context, challenge *models.Challenge, contributor *models.Contributor, now time.Time) (*models.CompletedChallenge, error) {
	completed := &models.CompletedChallenge{
		ChallengeID:   challenge.ID,
		ContributorID: contributor.ID,
		ChallengeName: challenge.Name,
		Reward:        challenge.Reward,
	}
	if err := cs.challenges.RecordCompletion(ctx, completed); err != nil {
		return nil, err
	}

	if challenge.Reward > 0 {
		entry := &models.PointHistory{
			ContributorID: contributor.ID,
			Points:        challenge.Reward,
			Reason:        models.ReasonChallengeReward,
			OccurredAt:    now,
		}
		if err := cs.history.Insert(ctx, entry); err != nil {
			return nil, err
		}
		contributor.LifetimePoints += challenge.Reward
	}

	if cs.notifier != nil {
		cs.notifier.AnnounceChallengeComplete(contributor.Username, challenge.Name, challenge.Reward)
	}
	return completed, nil
}

// ExpireSweep deactivates challenges past their end time. Runs on a
// schedule, not in the event path.
func (cs *ChallengeService) ExpireSweep(ctx context.Context, now time.Time) error {
	expired, err := cs.challenges.ExpireEnded(ctx, now)
	if err != nil {
		return err
	}
	for _, challenge := range expired {
		slog.Info("Challenge expired",
			slog.String("type", "sys"),
			slog.String("challenge_id", challenge.ID),
			slog.String("name", challenge.Name))
	}
	return nil
}

// ListActive returns the challenges currently open for joining.
func (cs *ChallengeService) ListActive(ctx context.Context) ([]*models.Challenge, error) {
	return cs.challenges.GetActive(ctx)
}

// ChallengesFor returns a contributor's in-flight participations and
// recorded completions.
func (cs *ChallengeService) ChallengesFor(ctx context.Context, username string) ([]*models.ChallengeParticipant, []*models.CompletedChallenge, error) {
	contributor, err := cs.contributors.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	active, err := cs.challenges.GetActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	var participating []*models.ChallengeParticipant
	for _, challenge := range active {
		participant, err := cs.challenges.GetParticipant(ctx, challenge.ID, contributor.ID)
		if err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		participating = append(participating, participant)
	}

	completed, err := cs.challenges.GetCompletionsByContributor(ctx, contributor.ID)
	if err != nil {
		return nil, nil, err
	}
	return participating, completed, nil
}

// Leaderboard returns participants ordered by progress.
func (cs *ChallengeService) Leaderboard(ctx context.Context, challengeID string) ([]*models.ChallengeParticipant, error) {
	if _, err := cs.challenges.GetByID(ctx, challengeID); err != nil {
		return nil, err
	}
	return cs.challenges.GetParticipants(ctx, challengeID)
}

// matchesLabelFilters reports whether any event label matches a filter
// after alias folding.
func matchesLabelFilters(labels, filters []string) bool {
	for _, filter := range filters {
		want := normalizeLabel(filter)
		for _, label := range labels {
			if normalizeLabel(label) == want {
				return true
			}
		}
	}
	return false
}
