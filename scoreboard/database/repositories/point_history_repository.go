package repositories

import (
	"context"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/uptrace/bun"
)

// ReasonTotal aggregates point history by reason tag.
type ReasonTotal struct {
	Reason string `bun:"reason"`
	Count  int64  `bun:"count"`
	Points int64  `bun:"points"`
}

type PointHistoryRepository interface {
	Insert(ctx context.Context, entry *models.PointHistory) error
	GetByContributor(ctx context.Context, contributorID int64, limit int) ([]*models.PointHistory, error)
	SumForContributor(ctx context.Context, contributorID int64) (int64, error)
	SumBetween(ctx context.Context, contributorID int64, from, to time.Time) (int64, error)
	TotalsByReason(ctx context.Context, contributorID int64) ([]ReasonTotal, error)
	TotalsByReasonBetween(ctx context.Context, contributorID int64, from, to time.Time) ([]ReasonTotal, error)
}

type pointHistoryRepository struct {
	*BaseRepository
}

func NewPointHistoryRepository(db *bun.DB) PointHistoryRepository {
	return &pointHistoryRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *pointHistoryRepository) Insert(ctx context.Context, entry *models.PointHistory) error {
	entry.CreatedAt = time.Now()
	_, err := r.db.NewInsert().Model(entry).Exec(ctx)
	return r.HandleError("insert", "point_history", err)
}

func (r *pointHistoryRepository) GetByContributor(ctx context.Context, contributorID int64, limit int) ([]*models.PointHistory, error) {
	var entries []*models.PointHistory
	q := r.db.NewSelect().
		Model(&entries).
		Where("contributor_id = ?", contributorID).
		Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return entries, err
}

func (r *pointHistoryRepository) SumForContributor(ctx context.Context, contributorID int64) (int64, error) {
	var total int64
	err := r.db.NewSelect().
		Model((*models.PointHistory)(nil)).
		ColumnExpr("COALESCE(SUM(points), 0)").
		Where("contributor_id = ?", contributorID).
		Scan(ctx, &total)
	return total, err
}

func (r *pointHistoryRepository) SumBetween(ctx context.Context, contributorID int64, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.NewSelect().
		Model((*models.PointHistory)(nil)).
		ColumnExpr("COALESCE(SUM(points), 0)").
		Where("contributor_id = ?", contributorID).
		Where("occurred_at >= ?", from).
		Where("occurred_at <= ?", to).
		Scan(ctx, &total)
	return total, err
}

func (r *pointHistoryRepository) TotalsByReason(ctx context.Context, contributorID int64) ([]ReasonTotal, error) {
	var totals []ReasonTotal
	err := r.db.NewSelect().
		Model((*models.PointHistory)(nil)).
		ColumnExpr("reason, COUNT(*) AS count, COALESCE(SUM(points), 0) AS points").
		Where("contributor_id = ?", contributorID).
		Group("reason").
		Scan(ctx, &totals)
	return totals, err
}

func (r *pointHistoryRepository) TotalsByReasonBetween(ctx context.Context, contributorID int64, from, to time.Time) ([]ReasonTotal, error) {
	var totals []ReasonTotal
	err := r.db.NewSelect().
		Model((*models.PointHistory)(nil)).
		ColumnExpr("reason, COUNT(*) AS count, COALESCE(SUM(points), 0) AS points").
		Where("contributor_id = ?", contributorID).
		Where("occurred_at >= ?", from).
		Where("occurred_at <= ?", to).
		Group("reason").
		Scan(ctx, &totals)
	return totals, err
}
