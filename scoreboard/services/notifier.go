package services

import (
	"fmt"
	"log/slog"

	"github.com/CruGlobal/scoreboard/scoreboard/config"
	lru "github.com/hashicorp/golang-lru"
)

// Notifier receives gamification announcements. Implementations fan out
// to whatever surface the deployment uses; every call is fire-and-forget
// and the core only guarantees the calls happen after the underlying
// state is persisted.
type Notifier interface {
	AnnouncePullRequestScored(username string, number, points int64)
	AnnounceReviewScored(username string, number, points int64)
	AnnounceBadge(username, badge string)
	AnnounceStreakBroken(username string, priorLength int64)
	AnnounceChallengeComplete(username, challengeName string, reward int64)
	AnnounceQuarterWinner(quarter, username string, points int64)
}

// LogNotifier writes announcements to the log. A bounded LRU suppresses
// repeat badge announcements when audit recompute re-derives an award
// the contributor already saw.
type LogNotifier struct {
	announced *lru.Cache
}

func NewLogNotifier() (*LogNotifier, error) {
	cache, err := lru.New(config.AnnounceCacheSize)
	if err != nil {
		return nil, err
	}
	return &LogNotifier{announced: cache}, nil
}

func (n *LogNotifier) AnnouncePullRequestScored(username string, number, points int64) {
	slog.Info("Pull request scored",
		slog.String("type", "event"),
		slog.String("contributor", username),
		slog.Int64("request", number),
		slog.Int64("points", points))
}

func (n *LogNotifier) AnnounceReviewScored(username string, number, points int64) {
	slog.Info("Review scored",
		slog.String("type", "event"),
		slog.String("contributor", username),
		slog.Int64("request", number),
		slog.Int64("points", points))
}

func (n *LogNotifier) AnnounceStreakBroken(username string, priorLength int64) {
	slog.Info("Streak broken",
		slog.String("type", "event"),
		slog.String("contributor", username),
		slog.Int64("prior_length", priorLength))
}

func (n *LogNotifier) AnnounceBadge(username, badge string) {
	key := fmt.Sprintf("badge:%s:%s", username, badge)
	if _, seen := n.announced.Get(key); seen {
		return
	}
	n.announced.Add(key, struct{}{})

	slog.Info("Badge awarded",
		slog.String("type", "event"),
		slog.String("contributor", username),
		slog.String("badge", badge))
}

func (n *LogNotifier) AnnounceChallengeComplete(username, challengeName string, reward int64) {
	key := fmt.Sprintf("challenge:%s:%s", username, challengeName)
	if _, seen := n.announced.Get(key); seen {
		return
	}
	n.announced.Add(key, struct{}{})

	slog.Info("Challenge completed",
		slog.String("type", "event"),
		slog.String("contributor", username),
		slog.String("challenge", challengeName),
		slog.Int64("reward", reward))
}

func (n *LogNotifier) AnnounceQuarterWinner(quarter, username string, points int64) {
	slog.Info("Quarter winner archived",
		slog.String("type", "event"),
		slog.String("quarter", quarter),
		slog.String("contributor", username),
		slog.Int64("points", points))
}
