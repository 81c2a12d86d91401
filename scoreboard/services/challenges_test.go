package services

import (
	"context"
	"testing"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeChallenge(t *testing.T, env *testEnv, challengeType string, goal, reward int64) *models.Challenge {
	t.Helper()
	challenge, err := env.challengeSvc.Create(context.Background(),
		"Spring Sprint", "push hard this month", challengeType, goal, reward,
		time.Now().Add(-time.Hour), time.Now().Add(30*24*time.Hour), nil)
	require.NoError(t, err)
	return challenge
}

func TestChallengeService_Create(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(1, time.Now())

	t.Run("valid definition", func(t *testing.T) {
		challenge, err := env.challengeSvc.Create(ctx, "Review Rush", "", models.ChallengeTypeReviews, 10, 50,
			time.Now(), time.Now().Add(7*24*time.Hour), nil)
		require.NoError(t, err)
		assert.NotEmpty(t, challenge.ID)
		assert.True(t, challenge.Active)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := env.challengeSvc.Create(ctx, "Bad", "", "commits", 10, 0, time.Now(), time.Now().Add(time.Hour), nil)
		assert.ErrorIs(t, err, ErrInvalidChallengeDef)
	})

	t.Run("non-positive goal rejected", func(t *testing.T) {
		_, err := env.challengeSvc.Create(ctx, "Bad", "", models.ChallengeTypePoints, 0, 0, time.Now(), time.Now().Add(time.Hour), nil)
		assert.ErrorIs(t, err, ErrInvalidChallengeDef)
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		_, err := env.challengeSvc.Create(ctx, "Bad", "", models.ChallengeTypePoints, 10, 0, time.Now(), time.Now().Add(-time.Hour), nil)
		assert.ErrorIs(t, err, ErrInvalidChallengeDef)
	})
}

func TestChallengeService_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("join registers once", func(t *testing.T) {
		env := newTestEnv(1, time.Now())
		challenge := activeChallenge(t, env, models.ChallengeTypePoints, 100, 0)

		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		_, err = env.challengeSvc.Join(ctx, challenge.ID, "alice")
		assert.ErrorIs(t, err, ErrAlreadyParticipant)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		env := newTestEnv(1, time.Now())
		_, err := env.challengeSvc.Join(ctx, "nope", "alice")
		assert.Error(t, err)
	})

	t.Run("inactive challenge", func(t *testing.T) {
		env := newTestEnv(1, time.Now())
		challenge := activeChallenge(t, env, models.ChallengeTypePoints, 100, 0)
		require.NoError(t, env.challenges.Deactivate(ctx, challenge.ID))

		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		assert.ErrorIs(t, err, ErrChallengeInactive)
	})
}

func TestChallengeService_AdvanceForEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("non-participant is a no-op", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge := activeChallenge(t, env, models.ChallengeTypePoints, 100, 0)

		alice, _ := env.contributors.GetOrCreate(ctx, "alice")
		completions, err := env.challengeSvc.AdvanceForEvent(ctx, alice, 50, models.ReasonMerged, 1, now, nil)
		require.NoError(t, err)
		assert.Empty(t, completions)

		_, err = env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Error(t, err)
	})

	t.Run("points challenge advances by delta", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge := activeChallenge(t, env, models.ChallengeTypePoints, 100, 0)
		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		alice, _ := env.contributors.GetByUsername(ctx, "alice")
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 60, models.ReasonMerged, 1, now, nil)
		require.NoError(t, err)

		participant, err := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(60), participant.Progress)
		assert.False(t, participant.Completed)
	})

	t.Run("authored challenge counts merges only", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge := activeChallenge(t, env, models.ChallengeTypeAuthored, 3, 0)
		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		alice, _ := env.contributors.GetByUsername(ctx, "alice")
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 15, models.ReasonReview, 0, now, nil)
		require.NoError(t, err)
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 40, models.ReasonMerged, 1, now, nil)
		require.NoError(t, err)

		participant, _ := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Equal(t, int64(1), participant.Progress)
	})

	t.Run("label challenge counts matching labels", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge, err := env.challengeSvc.Create(ctx,
			"Bug Bash", "", models.ChallengeTypeLabel, 3, 0,
			now.Add(-time.Hour), now.Add(30*24*time.Hour), []string{"bug"})
		require.NoError(t, err)
		_, err = env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		alice, _ := env.contributors.GetByUsername(ctx, "alice")
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 50, models.ReasonMerged, 1, now, []string{"feature"})
		require.NoError(t, err)
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 50, models.ReasonMerged, 1, now, []string{"Bugfix"})
		require.NoError(t, err)
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 15, models.ReasonReview, 0, now, []string{"bug"})
		require.NoError(t, err)

		// alias folding counts the merge, reviews never do
		participant, _ := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Equal(t, int64(1), participant.Progress)
	})

	t.Run("label challenge needs filters", func(t *testing.T) {
		env := newTestEnv(1, now)
		_, err := env.challengeSvc.Create(ctx, "Bad", "", models.ChallengeTypeLabel, 3, 0,
			now, now.Add(time.Hour), nil)
		assert.ErrorIs(t, err, ErrInvalidChallengeDef)
	})

	t.Run("streak challenge tracks the current streak", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge := activeChallenge(t, env, models.ChallengeTypeStreak, 30, 0)
		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		alice, _ := env.contributors.GetByUsername(ctx, "alice")
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 40, models.ReasonMerged, 12, now, nil)
		require.NoError(t, err)

		participant, _ := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Equal(t, int64(12), participant.Progress)

		// A lower streak never regresses progress
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 40, models.ReasonMerged, 5, now, nil)
		require.NoError(t, err)
		participant, _ = env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Equal(t, int64(12), participant.Progress)
	})

	t.Run("completion latches once and pays the reward", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge := activeChallenge(t, env, models.ChallengeTypePoints, 100, 25)
		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		alice, _ := env.contributors.GetByUsername(ctx, "alice")
		completions, err := env.challengeSvc.AdvanceForEvent(ctx, alice, 120, models.ReasonMerged, 1, now, nil)
		require.NoError(t, err)
		require.Len(t, completions, 1)
		assert.Equal(t, int64(25), completions[0].Reward)
		assert.Equal(t, int64(25), alice.LifetimePoints)

		entries, _ := env.history.GetByContributor(ctx, alice.ID, 0)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ReasonChallengeReward, entries[0].Reason)

		// Progress keeps moving past the goal without completing again
		completions, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 50, models.ReasonMerged, 1, now, nil)
		require.NoError(t, err)
		assert.Empty(t, completions)

		participant, _ := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Equal(t, int64(170), participant.Progress)
		assert.True(t, participant.Completed)

		entries, _ = env.history.GetByContributor(ctx, alice.ID, 0)
		assert.Len(t, entries, 1)
	})

	t.Run("events outside the window do not advance", func(t *testing.T) {
		env := newTestEnv(1, now)
		challenge := activeChallenge(t, env, models.ChallengeTypePoints, 100, 0)
		_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
		require.NoError(t, err)

		alice, _ := env.contributors.GetByUsername(ctx, "alice")
		_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 60, models.ReasonMerged, 1, now.AddDate(0, -2, 0), nil)
		require.NoError(t, err)

		participant, _ := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
		assert.Zero(t, participant.Progress)
	})
}

func TestChallengeService_ExpireSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	env := newTestEnv(1, now)

	challenge, err := env.challengeSvc.Create(ctx, "Over", "", models.ChallengeTypePoints, 10, 0,
		now.Add(-48*time.Hour), now.Add(-time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, env.challengeSvc.ExpireSweep(ctx, now))

	got, err := env.challenges.GetByID(ctx, challenge.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Joining after expiry fails even before the sweep would run again
	_, err = env.challengeSvc.Join(ctx, challenge.ID, "alice")
	assert.ErrorIs(t, err, ErrChallengeInactive)
}

func TestChallengeService_Leaderboard(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	env := newTestEnv(1, now)

	challenge := activeChallenge(t, env, models.ChallengeTypePoints, 1000, 0)
	_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
	require.NoError(t, err)
	_, err = env.challengeSvc.Join(ctx, challenge.ID, "bob")
	require.NoError(t, err)

	alice, _ := env.contributors.GetByUsername(ctx, "alice")
	_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 60, models.ReasonMerged, 1, now, nil)
	require.NoError(t, err)

	standings, err := env.challengeSvc.Leaderboard(ctx, challenge.ID)
	require.NoError(t, err)
	assert.Len(t, standings, 2)
}

func TestChallengeService_ChallengesFor(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	env := newTestEnv(1, now)

	points := activeChallenge(t, env, models.ChallengeTypePoints, 50, 10)
	reviews := activeChallenge(t, env, models.ChallengeTypeReviews, 5, 0)
	_, err := env.challengeSvc.Join(ctx, points.ID, "alice")
	require.NoError(t, err)
	_, err = env.challengeSvc.Join(ctx, reviews.ID, "alice")
	require.NoError(t, err)

	active, err := env.challengeSvc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	alice, _ := env.contributors.GetByUsername(ctx, "alice")
	_, err = env.challengeSvc.AdvanceForEvent(ctx, alice, 60, models.ReasonMerged, 1, now, nil)
	require.NoError(t, err)

	participating, completed, err := env.challengeSvc.ChallengesFor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, participating, 2)
	require.Len(t, completed, 1)
	assert.Equal(t, points.ID, completed[0].ChallengeID)

	_, _, err = env.challengeSvc.ChallengesFor(ctx, "stranger")
	assert.Error(t, err)
}

func TestChallengeService_Deactivate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	env := newTestEnv(1, now)

	challenge := activeChallenge(t, env, models.ChallengeTypeAuthored, 5, 100)
	_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, env.challengeSvc.Deactivate(ctx, challenge.ID))

	active, err := env.challengeSvc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// A closed challenge stops advancing
	alice, _ := env.contributors.GetByUsername(ctx, "alice")
	completions, err := env.challengeSvc.AdvanceForEvent(ctx, alice, 50, models.ReasonMerged, 1, now, nil)
	require.NoError(t, err)
	assert.Empty(t, completions)
	participant, err := env.challenges.GetParticipant(ctx, challenge.ID, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, participant.Progress)

	t.Run("unknown challenge", func(t *testing.T) {
		assert.Error(t, env.challengeSvc.Deactivate(ctx, "nope"))
	})
}

func TestChallengeService_RewardHistoryHasNoRequestNumber(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	env := newTestEnv(1, now)

	challenge := activeChallenge(t, env, models.ChallengeTypePoints, 50, 200)
	_, err := env.challengeSvc.Join(ctx, challenge.ID, "alice")
	require.NoError(t, err)

	alice, _ := env.contributors.GetByUsername(ctx, "alice")
	completions, err := env.challengeSvc.AdvanceForEvent(ctx, alice, 60, models.ReasonMerged, 1, now, nil)
	require.NoError(t, err)
	require.Len(t, completions, 1)

	entries, err := env.history.GetByContributor(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReasonChallengeReward, entries[0].Reason)
	assert.Zero(t, entries[0].RequestNumber)
}
