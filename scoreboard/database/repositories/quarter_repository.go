package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/uptrace/bun"
)

const settingsRowID = 1

type QuarterRepository interface {
	GetSettings(ctx context.Context) (*models.QuarterSettings, error)
	UpdateSettings(ctx context.Context, settings *models.QuarterSettings) error
	SetCurrentQuarter(ctx context.Context, quarter string) error

	AddToBucket(ctx context.Context, contributorID int64, quarter string, points, authored, reviews int64) error
	PutBucket(ctx context.Context, contributorID int64, quarter string, points, authored, reviews int64) error
	GetBucket(ctx context.Context, contributorID int64, quarter string) (*models.QuarterStats, error)
	TopForQuarter(ctx context.Context, quarter string, limit int) ([]*models.QuarterStats, error)
	CountParticipants(ctx context.Context, quarter string) (int64, error)

	ArchiveWinner(ctx context.Context, winner *models.QuarterlyWinner) error
	GetWinner(ctx context.Context, quarter string) (*models.QuarterlyWinner, error)
	ListWinners(ctx context.Context) ([]*models.QuarterlyWinner, error)
}

type quarterRepository struct {
	*BaseRepository
}

func NewQuarterRepository(db *bun.DB) QuarterRepository {
	return &quarterRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *quarterRepository) GetSettings(ctx context.Context) (*models.QuarterSettings, error) {
	settings := new(models.QuarterSettings)
	err := r.db.NewSelect().
		Model(settings).
		Where("id = ?", settingsRowID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "quarter_settings", ID: settingsRowID}
		}
		return nil, err
	}
	return settings, nil
}

func (r *quarterRepository) UpdateSettings(ctx context.Context, settings *models.QuarterSettings) error {
	settings.ID = settingsRowID
	settings.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(settings).
		WherePK().
		Exec(ctx)
	return err
}

func (r *quarterRepository) SetCurrentQuarter(ctx context.Context, quarter string) error {
	_, err := r.db.NewUpdate().
		Model((*models.QuarterSettings)(nil)).
		Set("current_quarter = ?", quarter).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", settingsRowID).
		Exec(ctx)
	return err
}

// AddToBucket upserts the (contributor, quarter) stats row and adds the
// deltas. Late events land in their own quarter's bucket this way.
func (r *quarterRepository) AddToBucket(ctx context.Context, contributorID int64, quarter string, points, authored, reviews int64) error {
	stats := &models.QuarterStats{
		ContributorID: contributorID,
		Quarter:       quarter,
		Points:        points,
		Authored:      authored,
		Reviews:       reviews,
		UpdatedAt:     time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(stats).
		On("CONFLICT (contributor_id, quarter) DO UPDATE").
		Set("points = qst.points + EXCLUDED.points").
		Set("authored = qst.authored + EXCLUDED.authored").
		Set("reviews = qst.reviews + EXCLUDED.reviews").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// PutBucket overwrites the (contributor, quarter) stats row with
// recomputed totals. Used by quarter recompute, never by ingestion.
func (r *quarterRepository) PutBucket(ctx context.Context, contributorID int64, quarter string, points, authored, reviews int64) error {
	stats := &models.QuarterStats{
		ContributorID: contributorID,
		Quarter:       quarter,
		Points:        points,
		Authored:      authored,
		Reviews:       reviews,
		UpdatedAt:     time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(stats).
		On("CONFLICT (contributor_id, quarter) DO UPDATE").
		Set("points = EXCLUDED.points").
		Set("authored = EXCLUDED.authored").
		Set("reviews = EXCLUDED.reviews").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *quarterRepository) GetBucket(ctx context.Context, contributorID int64, quarter string) (*models.QuarterStats, error) {
	stats := new(models.QuarterStats)
	err := r.db.NewSelect().
		Model(stats).
		Where("contributor_id = ?", contributorID).
		Where("quarter = ?", quarter).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "quarter_stats", ID: quarter}
		}
		return nil, err
	}
	return stats, nil
}

func (r *quarterRepository) TopForQuarter(ctx context.Context, quarter string, limit int) ([]*models.QuarterStats, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var stats []*models.QuarterStats
	err := r.db.NewSelect().
		Model(&stats).
		Where("quarter = ?", quarter).
		OrderExpr("points DESC, authored DESC").
		Limit(limit).
		Scan(ctx)
	return stats, err
}

// CountParticipants counts contributors with any recorded activity in
// the quarter.
func (r *quarterRepository) CountParticipants(ctx context.Context, quarter string) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*models.QuarterStats)(nil)).
		Where("quarter = ?", quarter).
		Where("points > 0 OR authored > 0 OR reviews > 0").
		Count(ctx)
	return int64(count), err
}

// ArchiveWinner records the closed quarter's winner. Re-running a
// rollover for the same quarter is a no-op.
func (r *quarterRepository) ArchiveWinner(ctx context.Context, winner *models.QuarterlyWinner) error {
	winner.ArchivedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(winner).
		On("CONFLICT (quarter) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *quarterRepository) GetWinner(ctx context.Context, quarter string) (*models.QuarterlyWinner, error) {
	winner := new(models.QuarterlyWinner)
	err := r.db.NewSelect().
		Model(winner).
		Where("quarter = ?", quarter).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "quarterly_winner", ID: quarter}
		}
		return nil, err
	}
	return winner, nil
}

func (r *quarterRepository) ListWinners(ctx context.Context) ([]*models.QuarterlyWinner, error) {
	var winners []*models.QuarterlyWinner
	err := r.db.NewSelect().
		Model(&winners).
		Order("archived_at DESC").
		Scan(ctx)
	return winners, err
}
