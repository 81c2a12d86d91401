package scoreboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database"
	"github.com/CruGlobal/scoreboard/scoreboard/database/repositories"
	"github.com/CruGlobal/scoreboard/scoreboard/services"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

type App struct {
	Cfg     Config
	Version string
	Commit  string
	DB      *database.DB

	ContributorRepository  repositories.ContributorRepository
	LedgerRepository       repositories.LedgerRepository
	PointHistoryRepository repositories.PointHistoryRepository
	QuarterRepository      repositories.QuarterRepository
	ChallengeRepository    repositories.ChallengeRepository

	// EventSource is optional. Embedding code installs a platform
	// client here to drive ingestion through a Poller; left nil,
	// ingestion is push-driven through EventService.
	EventSource services.EventSource

	Notifier         services.Notifier
	PointsService    *services.PointsService
	StreakService    *services.StreakService
	QuarterService   *services.QuarterService
	ChallengeService *services.ChallengeService
	EventService     *services.EventService
	AuditService     *services.AuditService
}

// SetupServices wires repositories and services over the connected
// database. Call after DB is set.
func (a *App) SetupServices() error {
	bunDB := a.DB.BunDB()

	a.ContributorRepository = repositories.NewContributorRepository(bunDB)
	a.LedgerRepository = repositories.NewLedgerRepository(bunDB)
	a.PointHistoryRepository = repositories.NewPointHistoryRepository(bunDB)
	a.QuarterRepository = repositories.NewQuarterRepository(bunDB)
	a.ChallengeRepository = repositories.NewChallengeRepository(bunDB)

	notifier, err := services.NewLogNotifier()
	if err != nil {
		return err
	}
	a.Notifier = notifier

	a.PointsService = services.NewPointsService()
	a.StreakService = services.NewStreakService()
	a.QuarterService = services.NewQuarterService(a.QuarterRepository, a.ContributorRepository, a.PointHistoryRepository, a.Notifier)
	a.ChallengeService = services.NewChallengeService(a.ChallengeRepository, a.ContributorRepository, a.PointHistoryRepository, a.QuarterRepository, a.Notifier)
	a.EventService = services.NewEventService(
		a.ContributorRepository,
		a.LedgerRepository,
		a.QuarterRepository,
		a.PointsService,
		a.StreakService,
		a.QuarterService,
		a.ChallengeService,
		a.Notifier,
	)
	a.AuditService = services.NewAuditService(a.ContributorRepository, a.LedgerRepository, a.PointHistoryRepository, a.QuarterRepository)

	return nil
}

// OnReady aligns the quarter marker with the clock so the first event
// doesn't pay the rollover cost.
func (a *App) OnReady(ctx context.Context) error {
	if err := a.QuarterService.EnsureCurrent(ctx, time.Now()); err != nil {
		return err
	}

	slog.Info("Scoreboard is now ready",
		slog.String("version", a.Version),
		slog.String("commit", a.Commit))
	return nil
}
