package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/uptrace/bun"
)

// DuplicateGroup describes a set of ledger rows sharing an event key.
// Count above one means rows predate the unique admission index.
type DuplicateGroup struct {
	ContributorID int64 `bun:"contributor_id"`
	RequestNumber int64 `bun:"request_number"`
	ReviewID      int64 `bun:"review_id"`
	Count         int64 `bun:"count"`
	KeepID        int64 `bun:"keep_id"`
}

type LedgerRepository interface {
	// AdmitAuthored inserts the event if its key is unseen. Returns false
	// with no error when the event was already admitted.
	AdmitAuthored(ctx context.Context, event *models.AuthoredEvent) (bool, error)
	AdmitReview(ctx context.Context, event *models.ReviewEvent) (bool, error)

	CountAuthored(ctx context.Context, contributorID int64) (int64, error)
	CountReviews(ctx context.Context, contributorID int64) (int64, error)
	GetAuthoredByContributor(ctx context.Context, contributorID int64) ([]*models.AuthoredEvent, error)
	GetReviewsByContributor(ctx context.Context, contributorID int64) ([]*models.ReviewEvent, error)

	FindDuplicateAuthored(ctx context.Context) ([]DuplicateGroup, error)
	FindDuplicateReviews(ctx context.Context) ([]DuplicateGroup, error)
	DeleteAuthoredDuplicates(ctx context.Context, group DuplicateGroup) (int64, error)
	DeleteReviewDuplicates(ctx context.Context, group DuplicateGroup) (int64, error)
}

type ledgerRepository struct {
	*BaseRepository
}

func NewLedgerRepository(db *bun.DB) LedgerRepository {
	return &ledgerRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *ledgerRepository) AdmitAuthored(ctx context.Context, event *models.AuthoredEvent) (bool, error) {
	event.CreatedAt = time.Now()
	if event.Labels == nil {
		event.Labels = []string{}
	}

	res, err := r.db.NewInsert().
		Model(event).
		On("CONFLICT (contributor_id, request_number, action) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		slog.Debug("Authored event already admitted",
			slog.String("type", "db"),
			slog.String("operation", "AdmitAuthored"),
			slog.Int64("contributor_id", event.ContributorID),
			slog.Int64("request_number", event.RequestNumber))
		return false, nil
	}
	return true, nil
}

func (r *ledgerRepository) AdmitReview(ctx context.Context, event *models.ReviewEvent) (bool, error) {
	event.CreatedAt = time.Now()

	res, err := r.db.NewInsert().
		Model(event).
		On("CONFLICT (contributor_id, request_number, review_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		slog.Debug("Review event already admitted",
			slog.String("type", "db"),
			slog.String("operation", "AdmitReview"),
			slog.Int64("contributor_id", event.ContributorID),
			slog.Int64("review_id", event.ReviewID))
		return false, nil
	}
	return true, nil
}

func (r *ledgerRepository) CountAuthored(ctx context.Context, contributorID int64) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*models.AuthoredEvent)(nil)).
		Where("contributor_id = ?", contributorID).
		Count(ctx)
	return int64(count), err
}

func (r *ledgerRepository) CountReviews(ctx context.Context, contributorID int64) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*models.ReviewEvent)(nil)).
		Where("contributor_id = ?", contributorID).
		Count(ctx)
	return int64(count), err
}

func (r *ledgerRepository) GetAuthoredByContributor(ctx context.Context, contributorID int64) ([]*models.AuthoredEvent, error) {
	var events []*models.AuthoredEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("contributor_id = ?", contributorID).
		Order("occurred_at ASC").
		Scan(ctx)
	return events, err
}

func (r *ledgerRepository) GetReviewsByContributor(ctx context.Context, contributorID int64) ([]*models.ReviewEvent, error) {
	var events []*models.ReviewEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("contributor_id = ?", contributorID).
		Order("occurred_at ASC").
		Scan(ctx)
	return events, err
}

func (r *ledgerRepository) FindDuplicateAuthored(ctx context.Context) ([]DuplicateGroup, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var groups []DuplicateGroup
	err := r.db.NewSelect().
		Model((*models.AuthoredEvent)(nil)).
		ColumnExpr("contributor_id, request_number, COUNT(*) AS count, MIN(id) AS keep_id").
		Group("contributor_id", "request_number").
		Having("COUNT(*) > 1").
		Scan(ctx, &groups)
	return groups, err
}

func (r *ledgerRepository) FindDuplicateReviews(ctx context.Context) ([]DuplicateGroup, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var groups []DuplicateGroup
	err := r.db.NewSelect().
		Model((*models.ReviewEvent)(nil)).
		ColumnExpr("contributor_id, request_number, review_id, COUNT(*) AS count, MIN(id) AS keep_id").
		Group("contributor_id", "request_number", "review_id").
		Having("COUNT(*) > 1").
		Scan(ctx, &groups)
	return groups, err
}

// DeleteAuthoredDuplicates removes every row in the group except the
// oldest, which stays as the admitted event.
func (r *ledgerRepository) DeleteAuthoredDuplicates(ctx context.Context, group DuplicateGroup) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.AuthoredEvent)(nil)).
		Where("contributor_id = ?", group.ContributorID).
		Where("request_number = ?", group.RequestNumber).
		Where("id != ?", group.KeepID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ledgerRepository) DeleteReviewDuplicates(ctx context.Context, group DuplicateGroup) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.ReviewEvent)(nil)).
		Where("contributor_id = ?", group.ContributorID).
		Where("request_number = ?", group.RequestNumber).
		Where("review_id = ?", group.ReviewID).
		Where("id != ?", group.KeepID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
