package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/uptrace/bun"
)

type ContributorRepository interface {
	Create(ctx context.Context, contributor *models.Contributor) error
	GetByID(ctx context.Context, id int64) (*models.Contributor, error)
	GetByUsername(ctx context.Context, username string) (*models.Contributor, error)
	GetOrCreate(ctx context.Context, username string) (*models.Contributor, error)
	Update(ctx context.Context, contributor *models.Contributor) error
	SaveWithHistory(ctx context.Context, contributor *models.Contributor, entry *models.PointHistory) error
	GetAll(ctx context.Context) ([]*models.Contributor, error)
	GetTopByLifetimePoints(ctx context.Context, limit int) ([]*models.Contributor, error)
	ResetQuarterSnapshots(ctx context.Context, quarter string) error
}

type contributorRepository struct {
	*BaseRepository
}

func NewContributorRepository(db *bun.DB) ContributorRepository {
	return &contributorRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *contributorRepository) Create(ctx context.Context, contributor *models.Contributor) error {
	contributor.CreatedAt = time.Now()
	contributor.UpdatedAt = time.Now()
	if contributor.Badges == nil {
		contributor.Badges = []models.Badge{}
	}
	_, err := r.db.NewInsert().Model(contributor).Exec(ctx)
	return err
}

func (r *contributorRepository) GetByID(ctx context.Context, id int64) (*models.Contributor, error) {
	contributor := new(models.Contributor)
	err := r.db.NewSelect().
		Model(contributor).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "contributor", ID: id}
		}
		return nil, err
	}
	return contributor, nil
}

func (r *contributorRepository) GetByUsername(ctx context.Context, username string) (*models.Contributor, error) {
	contributor := new(models.Contributor)
	err := r.db.NewSelect().
		Model(contributor).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "contributor", ID: username}
		}
		return nil, err
	}
	return contributor, nil
}

// GetOrCreate fetches a contributor by username, creating the row on first
// contact. Concurrent first contacts are resolved by the unique username
// index: the loser of the race re-reads the winner's row.
func (r *contributorRepository) GetOrCreate(ctx context.Context, username string) (*models.Contributor, error) {
	contributor, err := r.GetByUsername(ctx, username)
	if err == nil {
		return contributor, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	contributor = &models.Contributor{
		Username:  username,
		Badges:    []models.Badge{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	res, err := r.db.NewInsert().
		Model(contributor).
		On("CONFLICT (username) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return r.GetByUsername(ctx, username)
	}

	slog.Debug("Contributor created",
		slog.String("type", "db"),
		slog.String("operation", "GetOrCreate"),
		slog.String("username", username))
	return contributor, nil
}

func (r *contributorRepository) Update(ctx context.Context, contributor *models.Contributor) error {
	contributor.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(contributor).
		WherePK().
		Exec(ctx)
	return r.HandleErrorWithID("update", "contributor", contributor.Username, err)
}

// SaveWithHistory persists the contributor and appends the event's
// point history row in one transaction, so the counter update and its
// audit trail commit together.
func (r *contributorRepository) SaveWithHistory(ctx context.Context, contributor *models.Contributor, entry *models.PointHistory) error {
	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		contributor.UpdatedAt = time.Now()
		if _, err := tx.NewUpdate().Model(contributor).WherePK().Exec(ctx); err != nil {
			return err
		}
		entry.CreatedAt = time.Now()
		_, err := tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
	return r.HandleErrorWithID("save with history", "contributor", contributor.Username, err)
}

func (r *contributorRepository) GetAll(ctx context.Context) ([]*models.Contributor, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var contributors []*models.Contributor
	err := r.db.NewSelect().
		Model(&contributors).
		Order("lifetime_points DESC").
		Scan(ctx)
	return contributors, err
}

func (r *contributorRepository) GetTopByLifetimePoints(ctx context.Context, limit int) ([]*models.Contributor, error) {
	var contributors []*models.Contributor
	err := r.db.NewSelect().
		Model(&contributors).
		OrderExpr("lifetime_points DESC").
		Limit(limit).
		Scan(ctx)
	return contributors, err
}

// ResetQuarterSnapshots clears every embedded snapshot and stamps it with
// the new quarter label. Runs once per rollover.
func (r *contributorRepository) ResetQuarterSnapshots(ctx context.Context, quarter string) error {
	snapshot, err := json.Marshal(models.QuarterSnapshot{Quarter: quarter})
	if err != nil {
		return err
	}
	_, err = r.db.NewUpdate().
		Model((*models.Contributor)(nil)).
		Set("current_quarter = ?::jsonb", string(snapshot)).
		Set("updated_at = ?", time.Now()).
		Where("1 = 1").
		Exec(ctx)
	return err
}
