package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/config"
	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/CruGlobal/scoreboard/scoreboard/database/repositories"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidQuarterConfig = errors.New("invalid quarter configuration")

// QuarterService owns quarter labeling, window math, and rollover. All
// rollover entry points funnel through a singleflight group so that
// concurrent ingestion can only run one transition at a time.
type QuarterService struct {
	quarters     repositories.QuarterRepository
	contributors repositories.ContributorRepository
	history      repositories.PointHistoryRepository
	notifier     Notifier

	rollovers singleflight.Group
}

func NewQuarterService(
	quarters repositories.QuarterRepository,
	contributors repositories.ContributorRepository,
	history repositories.PointHistoryRepository,
	notifier Notifier,
) *QuarterService {
	return &QuarterService{
		quarters:     quarters,
		contributors: contributors,
		history:      history,
		notifier:     notifier,
	}
}

// Label names the quarter containing t under a system whose Q1 starts
// in firstMonth. The label year is the year Q1 started in, so with a
// fiscal scheme (October) January 2025 falls in "2024-Q2".
func Label(t time.Time, firstMonth int) string {
	t = t.UTC()
	month := int(t.Month())
	quarterNum := ((month-firstMonth+12)%12)/config.MonthsPerQuarter + 1
	labelYear := t.Year()
	if month < firstMonth {
		labelYear--
	}
	return fmt.Sprintf("%d-Q%d", labelYear, quarterNum)
}

// Window returns the inclusive UTC bounds of a labeled quarter.
func Window(label string, firstMonth int) (time.Time, time.Time, error) {
	var labelYear, quarterNum int
	if _, err := fmt.Sscanf(label, "%d-Q%d", &labelYear, &quarterNum); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed quarter label %q: %w", label, err)
	}
	if quarterNum < 1 || quarterNum > config.QuartersPerYear {
		return time.Time{}, time.Time{}, fmt.Errorf("quarter number out of range in %q", label)
	}

	idx := (firstMonth - 1) + (quarterNum-1)*config.MonthsPerQuarter
	startYear := labelYear + idx/12
	startMonth := idx%12 + 1

	start := time.Date(startYear, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, config.MonthsPerQuarter, 0).Add(-time.Second)
	return start, end, nil
}

// SchemeFirstMonth maps a named scheme to its Q1 month. Custom schemes
// keep whatever month is already configured.
func SchemeFirstMonth(scheme string, configured int) int {
	switch scheme {
	case models.SchemeCalendar:
		return config.QuarterSchemeCalendar
	case models.SchemeAcademic:
		return config.QuarterSchemeAcademic
	case models.SchemeFiscal:
		return config.QuarterSchemeFiscal
	default:
		return configured
	}
}

// CurrentLabel labels now under the stored settings.
func (qs *QuarterService) CurrentLabel(ctx context.Context, now time.Time) (string, error) {
	settings, err := qs.quarters.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	return Label(now, settings.FirstQuarterMonth), nil
}

// EnsureCurrent rolls the scoreboard forward when the stored current
// quarter no longer matches the quarter containing now. Safe to call on
// every ingested event.
func (qs *QuarterService) EnsureCurrent(ctx context.Context, now time.Time) error {
	settings, err := qs.quarters.GetSettings(ctx)
	if err != nil {
		return err
	}

	expected := Label(now, settings.FirstQuarterMonth)
	if settings.CurrentQuarter == expected {
		return nil
	}

	_, err, _ = qs.rollovers.Do("rollover", func() (interface{}, error) {
		return nil, qs.rollover(ctx, expected)
	})
	return err
}

// UpdateScheme changes the quarter scheme and forces a transition into
// the quarter the new scheme puts us in.
func (qs *QuarterService) UpdateScheme(ctx context.Context, scheme string, firstMonth int, now time.Time) error {
	switch scheme {
	case models.SchemeCalendar, models.SchemeAcademic, models.SchemeFiscal:
	case models.SchemeCustom:
		if firstMonth < 1 || firstMonth > 12 {
			return fmt.Errorf("%w: first month %d out of range", ErrInvalidQuarterConfig, firstMonth)
		}
	default:
		return fmt.Errorf("%w: unknown scheme %q", ErrInvalidQuarterConfig, scheme)
	}

	settings, err := qs.quarters.GetSettings(ctx)
	if err != nil {
		return err
	}

	settings.Scheme = scheme
	settings.FirstQuarterMonth = SchemeFirstMonth(scheme, firstMonth)
	if err := qs.quarters.UpdateSettings(ctx, settings); err != nil {
		return err
	}

	expected := Label(now, settings.FirstQuarterMonth)
	if settings.CurrentQuarter == expected {
		return nil
	}

	_, err, _ = qs.rollovers.Do("rollover", func() (interface{}, error) {
		return nil, qs.rollover(ctx, expected)
	})
	return err
}

// rollover archives the closing quarter's winner, clears the embedded
// snapshots, and moves the marker. Runs inside the singleflight group.
func (qs *QuarterService) rollover(ctx context.Context, expected string) error {
	ctx, cancel := context.WithTimeout(ctx, config.RolloverTimeout)
	defer cancel()

	// Re-read under the flight: a racing caller may have finished first
	settings, err := qs.quarters.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.CurrentQuarter == expected {
		return nil
	}
	closing := settings.CurrentQuarter

	if closing != "" {
		if err := qs.archiveWinner(ctx, closing); err != nil {
			return fmt.Errorf("failed to archive quarter %s: %w", closing, err)
		}
	}

	if err := qs.contributors.ResetQuarterSnapshots(ctx, expected); err != nil {
		return fmt.Errorf("failed to reset quarter snapshots: %w", err)
	}

	if err := qs.quarters.SetCurrentQuarter(ctx, expected); err != nil {
		return err
	}

	slog.Info("Quarter rolled over",
		slog.String("type", "sys"),
		slog.String("closed", closing),
		slog.String("current", expected))
	return nil
}

// archiveWinner records the top scorer of the closing quarter together
// with the top-three standings and the participant count. Quarters
// nobody scored in leave no archive row.
func (qs *QuarterService) archiveWinner(ctx context.Context, quarter string) error {
	top, err := qs.quarters.TopForQuarter(ctx, quarter, 3)
	if err != nil {
		return err
	}
	if len(top) == 0 || top[0].Points <= 0 {
		slog.Debug("Skipping archive for empty quarter",
			slog.String("type", "sys"),
			slog.String("quarter", quarter))
		return nil
	}

	participants, err := qs.quarters.CountParticipants(ctx, quarter)
	if err != nil {
		return err
	}

	var topThree []models.RankedStanding
	for i, stats := range top {
		contributor, err := qs.contributors.GetByID(ctx, stats.ContributorID)
		if err != nil {
			return err
		}
		topThree = append(topThree, models.RankedStanding{
			Rank:     i + 1,
			Username: contributor.Username,
			Points:   stats.Points,
			Authored: stats.Authored,
			Reviews:  stats.Reviews,
		})
	}

	winner := &models.QuarterlyWinner{
		Quarter:       quarter,
		ContributorID: top[0].ContributorID,
		Username:      topThree[0].Username,
		Points:        top[0].Points,
		Authored:      top[0].Authored,
		Reviews:       top[0].Reviews,
		TopThree:      topThree,
		Participants:  participants,
	}
	if err := qs.quarters.ArchiveWinner(ctx, winner); err != nil {
		return err
	}

	if qs.notifier != nil {
		qs.notifier.AnnounceQuarterWinner(quarter, winner.Username, winner.Points)
	}
	return nil
}

// ArchiveQuarter records a historical quarter's winner on demand, for
// quarters that closed before winner archival existed. Already-archived
// quarters are untouched.
func (qs *QuarterService) ArchiveQuarter(ctx context.Context, quarter string) error {
	if _, _, err := Window(quarter, 1); err != nil {
		return err
	}
	return qs.archiveWinner(ctx, quarter)
}

// RecomputeQuarter rebuilds the quarter's stats buckets from point
// history. Counts come from the reason tags, one "PR merged" row per
// authored admission and one "Review submitted" row per review.
// Challenge rewards stay out of quarter buckets. Contributors whose
// current-quarter snapshot is affected get it refreshed too.
func (qs *QuarterService) RecomputeQuarter(ctx context.Context, quarter string) error {
	settings, err := qs.quarters.GetSettings(ctx)
	if err != nil {
		return err
	}
	start, end, err := Window(quarter, settings.FirstQuarterMonth)
	if err != nil {
		return err
	}

	contributors, err := qs.contributors.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, contributor := range contributors {
		totals, err := qs.history.TotalsByReasonBetween(ctx, contributor.ID, start, end)
		if err != nil {
			return err
		}

		var points, authored, reviews int64
		for _, t := range totals {
			switch t.Reason {
			case models.ReasonMerged:
				points += t.Points
				authored += t.Count
			case models.ReasonReview:
				points += t.Points
				reviews += t.Count
			}
		}
		if points == 0 && authored == 0 && reviews == 0 {
			continue
		}

		if err := qs.quarters.PutBucket(ctx, contributor.ID, quarter, points, authored, reviews); err != nil {
			return err
		}

		if quarter == settings.CurrentQuarter {
			contributor.CurrentQuarter = models.QuarterSnapshot{
				Quarter:  quarter,
				Points:   points,
				Authored: authored,
				Reviews:  reviews,
			}
			if err := qs.contributors.Update(ctx, contributor); err != nil {
				return err
			}
		}
	}

	slog.Info("Quarter recomputed",
		slog.String("type", "sys"),
		slog.String("quarter", quarter))
	return nil
}

// AllTimeLeaderboard ranks contributors by lifetime points.
func (qs *QuarterService) AllTimeLeaderboard(ctx context.Context, limit int) ([]*models.Contributor, error) {
	return qs.contributors.GetTopByLifetimePoints(ctx, limit)
}

// Leaderboard returns the quarter's standings joined with usernames.
func (qs *QuarterService) Leaderboard(ctx context.Context, quarter string, limit int) ([]QuarterStanding, error) {
	stats, err := qs.quarters.TopForQuarter(ctx, quarter, limit)
	if err != nil {
		return nil, err
	}

	standings := make([]QuarterStanding, 0, len(stats))
	for _, s := range stats {
		contributor, err := qs.contributors.GetByID(ctx, s.ContributorID)
		if err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		standings = append(standings, QuarterStanding{
			Username: contributor.Username,
			Points:   s.Points,
			Authored: s.Authored,
			Reviews:  s.Reviews,
		})
	}
	return standings, nil
}

// HallOfFame lists archived quarter winners, newest first.
func (qs *QuarterService) HallOfFame(ctx context.Context) ([]*models.QuarterlyWinner, error) {
	return qs.quarters.ListWinners(ctx)
}

type QuarterStanding struct {
	Username string
	Points   int64
	Authored int64
	Reviews  int64
}
