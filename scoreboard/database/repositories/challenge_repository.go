package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/uptrace/bun"
)

type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	GetByID(ctx context.Context, id string) (*models.Challenge, error)
	GetActive(ctx context.Context) ([]*models.Challenge, error)
	Deactivate(ctx context.Context, id string) error
	ExpireEnded(ctx context.Context, now time.Time) ([]*models.Challenge, error)

	AddParticipant(ctx context.Context, participant *models.ChallengeParticipant) (bool, error)
	GetParticipant(ctx context.Context, challengeID string, contributorID int64) (*models.ChallengeParticipant, error)
	GetParticipants(ctx context.Context, challengeID string) ([]*models.ChallengeParticipant, error)
	UpdateParticipant(ctx context.Context, participant *models.ChallengeParticipant) error

	RecordCompletion(ctx context.Context, completed *models.CompletedChallenge) error
	GetCompletionsByContributor(ctx context.Context, contributorID int64) ([]*models.CompletedChallenge, error)
}

type challengeRepository struct {
	*BaseRepository
}

func NewChallengeRepository(db *bun.DB) ChallengeRepository {
	return &challengeRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *challengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	challenge.CreatedAt = time.Now()
	challenge.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(challenge).Exec(ctx)
	return err
}

func (r *challengeRepository) GetByID(ctx context.Context, id string) (*models.Challenge, error) {
	challenge := new(models.Challenge)
	err := r.db.NewSelect().
		Model(challenge).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "challenge", ID: id}
		}
		return nil, err
	}
	return challenge, nil
}

func (r *challengeRepository) GetActive(ctx context.Context) ([]*models.Challenge, error) {
	var challenges []*models.Challenge
	err := r.db.NewSelect().
		Model(&challenges).
		Where("active = ?", true).
		Order("ends_at ASC").
		Scan(ctx)
	return challenges, err
}

func (r *challengeRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Challenge)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return r.HandleErrorWithID("deactivate", "challenge", id, err)
}

// ExpireEnded deactivates challenges past their end time and returns
// them, so the caller can log what closed.
func (r *challengeRepository) ExpireEnded(ctx context.Context, now time.Time) ([]*models.Challenge, error) {
	var expired []*models.Challenge
	err := r.db.NewSelect().
		Model(&expired).
		Where("active = ?", true).
		Where("ends_at < ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	_, err = r.db.NewUpdate().
		Model((*models.Challenge)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", now).
		Where("active = ?", true).
		Where("ends_at < ?", now).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// AddParticipant returns false when the contributor already joined.
func (r *challengeRepository) AddParticipant(ctx context.Context, participant *models.ChallengeParticipant) (bool, error) {
	participant.JoinedAt = time.Now()
	res, err := r.db.NewInsert().
		Model(participant).
		On("CONFLICT (challenge_id, contributor_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *challengeRepository) GetParticipant(ctx context.Context, challengeID string, contributorID int64) (*models.ChallengeParticipant, error) {
	participant := new(models.ChallengeParticipant)
	err := r.db.NewSelect().
		Model(participant).
		Where("challenge_id = ?", challengeID).
		Where("contributor_id = ?", contributorID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "challenge_participant", ID: contributorID}
		}
		return nil, err
	}
	return participant, nil
}

func (r *challengeRepository) GetParticipants(ctx context.Context, challengeID string) ([]*models.ChallengeParticipant, error) {
	var participants []*models.ChallengeParticipant
	err := r.db.NewSelect().
		Model(&participants).
		Where("challenge_id = ?", challengeID).
		OrderExpr("progress DESC, joined_at ASC").
		Scan(ctx)
	return participants, err
}

func (r *challengeRepository) UpdateParticipant(ctx context.Context, participant *models.ChallengeParticipant) error {
	_, err := r.db.NewUpdate().
		Model(participant).
		WherePK().
		Exec(ctx)
	return err
}

func (r *challengeRepository) RecordCompletion(ctx context.Context, completed *models.CompletedChallenge) error {
	completed.CompletedAt = time.Now()
	_, err := r.db.NewInsert().Model(completed).Exec(ctx)
	return err
}

func (r *challengeRepository) GetCompletionsByContributor(ctx context.Context, contributorID int64) ([]*models.CompletedChallenge, error) {
	var completions []*models.CompletedChallenge
	err := r.db.NewSelect().
		Model(&completions).
		Where("contributor_id = ?", contributorID).
		Order("completed_at DESC").
		Scan(ctx)
	return completions, err
}
