package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/config"
	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/CruGlobal/scoreboard/scoreboard/database/repositories"
)

// AuditReport summarizes one audit pass.
type AuditReport struct {
	DuplicatesRemoved int64
	ContributorsFixed int
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Drift is one contributor whose counters disagree with the ledgers.
type Drift struct {
	Username       string
	AuthoredStored int64
	AuthoredActual int64
	ReviewsStored  int64
	ReviewsActual  int64
	PointsStored   int64
	PointsActual   int64
}

// CheckReport is the read-only audit result. Nothing is changed.
type CheckReport struct {
	DuplicateGroups []repositories.DuplicateGroup
	Drifts          []Drift
}

// AuditService repairs ledger duplicates and drift between the ledger
// and the contributor counters. Both repairs are idempotent: a second
// pass over a clean scoreboard changes nothing.
type AuditService struct {
	contributors repositories.ContributorRepository
	ledger       repositories.LedgerRepository
	history      repositories.PointHistoryRepository
	quarters     repositories.QuarterRepository
}

func NewAuditService(
	contributors repositories.ContributorRepository,
	ledger repositories.LedgerRepository,
	history repositories.PointHistoryRepository,
	quarters repositories.QuarterRepository,
) *AuditService {
	return &AuditService{
		contributors: contributors,
		ledger:       ledger,
		history:      history,
		quarters:     quarters,
	}
}

// Run performs a full audit pass: duplicate repair first, then counter
// recompute for every contributor.
func (as *AuditService) Run(ctx context.Context) (*AuditReport, error) {
	ctx, cancel := context.WithTimeout(ctx, config.AuditTimeout)
	defer cancel()

	report := &AuditReport{StartedAt: time.Now()}

	removed, err := as.RepairDuplicates(ctx)
	if err != nil {
		return report, err
	}
	report.DuplicatesRemoved = removed

	contributors, err := as.contributors.GetAll(ctx)
	if err != nil {
		return report, err
	}
	for _, contributor := range contributors {
		fixed, err := as.Recompute(ctx, contributor)
		if err != nil {
			return report, err
		}
		if fixed {
			report.ContributorsFixed++
		}
	}

	report.FinishedAt = time.Now()
	slog.Info("Audit pass finished",
		slog.String("type", "sys"),
		slog.Int64("duplicates_removed", report.DuplicatesRemoved),
		slog.Int("contributors_fixed", report.ContributorsFixed),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// Check reports structural duplicates and counter drift without
// touching anything. The repair counterpart is Run.
func (as *AuditService) Check(ctx context.Context) (*CheckReport, error) {
	report := &CheckReport{}

	authoredGroups, err := as.ledger.FindDuplicateAuthored(ctx)
	if err != nil {
		return nil, err
	}
	report.DuplicateGroups = append(report.DuplicateGroups, authoredGroups...)

	reviewGroups, err := as.ledger.FindDuplicateReviews(ctx)
	if err != nil {
		return nil, err
	}
	report.DuplicateGroups = append(report.DuplicateGroups, reviewGroups...)

	contributors, err := as.contributors.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, contributor := range contributors {
		authored, err := as.ledger.CountAuthored(ctx, contributor.ID)
		if err != nil {
			return nil, err
		}
		reviews, err := as.ledger.CountReviews(ctx, contributor.ID)
		if err != nil {
			return nil, err
		}
		points, err := as.history.SumForContributor(ctx, contributor.ID)
		if err != nil {
			return nil, err
		}

		if contributor.AuthoredCount == authored &&
			contributor.ReviewCount == reviews &&
			contributor.LifetimePoints == points {
			continue
		}
		report.Drifts = append(report.Drifts, Drift{
			Username:       contributor.Username,
			AuthoredStored: contributor.AuthoredCount,
			AuthoredActual: authored,
			ReviewsStored:  contributor.ReviewCount,
			ReviewsActual:  reviews,
			PointsStored:   contributor.LifetimePoints,
			PointsActual:   points,
		})
	}
	return report, nil
}

// ResetMilestones clears the one-shot award state: streak milestone
// flags, currency milestone flags, and the badge ladder. The next
// qualifying event re-earns all of them. Empty username means everyone.
func (as *AuditService) ResetMilestones(ctx context.Context, username string) (int, error) {
	var targets []*models.Contributor
	if username != "" {
		contributor, err := as.contributors.GetByUsername(ctx, username)
		if err != nil {
			return 0, err
		}
		targets = append(targets, contributor)
	} else {
		all, err := as.contributors.GetAll(ctx)
		if err != nil {
			return 0, err
		}
		targets = all
	}

	reset := 0
	for _, contributor := range targets {
		clean := models.MilestoneFlags{}
		if len(contributor.Streak.AwardedMilestones) == 0 &&
			len(contributor.Badges) == 0 &&
			contributor.Milestones == clean {
			continue
		}
		contributor.Streak.AwardedMilestones = nil
		contributor.Badges = []models.Badge{}
		contributor.Milestones = clean
		if err := as.contributors.Update(ctx, contributor); err != nil {
			return reset, err
		}
		reset++
	}

	slog.Info("Milestones reset",
		slog.String("type", "sys"),
		slog.Int("contributors", reset))
	return reset, nil
}

// RepairDuplicates removes ledger rows sharing an event key, keeping
// the oldest of each group. Rows like this predate the unique admission
// indexes; new ones cannot appear.
func (as *AuditService) RepairDuplicates(ctx context.Context) (int64, error) {
	var removed int64

	authoredGroups, err := as.ledger.FindDuplicateAuthored(ctx)
	if err != nil {
		return removed, err
	}
	for _, group := range authoredGroups {
		n, err := as.ledger.DeleteAuthoredDuplicates(ctx, group)
		if err != nil {
			return removed, err
		}
		removed += n
		slog.Warn("Removed duplicate authored ledger rows",
			slog.String("type", "sys"),
			slog.Int64("contributor_id", group.ContributorID),
			slog.Int64("request_number", group.RequestNumber),
			slog.Int64("removed", n))
	}

	reviewGroups, err := as.ledger.FindDuplicateReviews(ctx)
	if err != nil {
		return removed, err
	}
	for _, group := range reviewGroups {
		n, err := as.ledger.DeleteReviewDuplicates(ctx, group)
		if err != nil {
			return removed, err
		}
		removed += n
		slog.Warn("Removed duplicate review ledger rows",
			slog.String("type", "sys"),
			slog.Int64("contributor_id", group.ContributorID),
			slog.Int64("request_number", group.RequestNumber),
			slog.Int64("removed", n))
	}

	return removed, nil
}

// Recompute re-derives a contributor's counters from the ledgers and
// point history and fixes drift. Counts come from the ledgers; points
// come from the history sum, which keeps challenge rewards. The current
// quarter snapshot is rebuilt from its stats bucket. Badges and
// currency are grants, not derived values, so they are left alone.
func (as *AuditService) Recompute(ctx context.Context, contributor *models.Contributor) (bool, error) {
	authored, err := as.ledger.CountAuthored(ctx, contributor.ID)
	if err != nil {
		return false, err
	}
	reviews, err := as.ledger.CountReviews(ctx, contributor.ID)
	if err != nil {
		return false, err
	}
	points, err := as.history.SumForContributor(ctx, contributor.ID)
	if err != nil {
		return false, err
	}

	snapshot, err := as.currentSnapshot(ctx, contributor.ID)
	if err != nil {
		return false, err
	}

	changed := contributor.AuthoredCount != authored ||
		contributor.ReviewCount != reviews ||
		contributor.LifetimePoints != points ||
		contributor.CurrentQuarter != snapshot
	if !changed {
		return false, nil
	}

	slog.Warn("Counter drift detected",
		slog.String("type", "sys"),
		slog.String("contributor", contributor.Username),
		slog.Int64("authored_was", contributor.AuthoredCount),
		slog.Int64("authored_now", authored),
		slog.Int64("points_was", contributor.LifetimePoints),
		slog.Int64("points_now", points))

	contributor.AuthoredCount = authored
	contributor.ReviewCount = reviews
	contributor.LifetimePoints = points
	contributor.CurrentQuarter = snapshot
	if err := as.contributors.Update(ctx, contributor); err != nil {
		return false, err
	}
	return true, nil
}

// currentSnapshot rebuilds the embedded snapshot from the stats bucket
// of the quarter named in settings.
func (as *AuditService) currentSnapshot(ctx context.Context, contributorID int64) (models.QuarterSnapshot, error) {
	settings, err := as.quarters.GetSettings(ctx)
	if err != nil {
		return models.QuarterSnapshot{}, err
	}
	if settings.CurrentQuarter == "" {
		return models.QuarterSnapshot{}, nil
	}

	bucket, err := as.quarters.GetBucket(ctx, contributorID, settings.CurrentQuarter)
	if err != nil {
		if repositories.IsNotFound(err) {
			return models.QuarterSnapshot{Quarter: settings.CurrentQuarter}, nil
		}
		return models.QuarterSnapshot{}, err
	}
	return models.QuarterSnapshot{
		Quarter:  bucket.Quarter,
		Points:   bucket.Points,
		Authored: bucket.Authored,
		Reviews:  bucket.Reviews,
	}, nil
}
