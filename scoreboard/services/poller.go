package services

import (
	"context"
	"log/slog"
	"time"
)

// EventSource fetches contribution events from the hosting platform.
// Implementations live outside the core; the poller only needs batches
// ordered oldest first.
type EventSource interface {
	FetchMergedPullRequests(ctx context.Context, since time.Time) ([]MergedPullRequest, error)
	FetchSubmittedReviews(ctx context.Context, since time.Time) ([]SubmittedReview, error)
}

// Poller drains an EventSource into the event pipeline on an interval.
// Each event kind keeps its own high-water mark so a stalled batch of
// one kind never skips events of the other. Admission makes redelivery
// harmless, so the marks only need to be approximate: on restart the
// poller re-fetches from the beginning of the current day.
type Poller struct {
	source   EventSource
	events   *EventService
	interval time.Duration

	sinceMerged time.Time
	sinceReview time.Time
}

func NewPoller(source EventSource, events *EventService, interval time.Duration) *Poller {
	start := truncateToDay(time.Now())
	return &Poller{
		source:      source,
		events:      events,
		interval:    interval,
		sinceMerged: start,
		sinceReview: start,
	}
}

// Run blocks until the context is canceled, polling once per interval.
// One failed batch is logged and retried at the next tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("Event poller started",
		slog.String("type", "sys"),
		slog.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Event poller stopped", slog.String("type", "sys"))
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				slog.Error("Poll cycle failed",
					slog.String("type", "error"),
					slog.Any("error", err))
			}
		}
	}
}

// Poll fetches and processes one batch of each event kind. Each mark
// advances to the newest event seen, never backwards. A failed event
// is logged and left at the mark; admission makes the redelivery on
// the next tick harmless, and the other kind's batch still runs.
func (p *Poller) Poll(ctx context.Context) error {
	merged, err := p.source.FetchMergedPullRequests(ctx, p.sinceMerged)
	if err != nil {
		return err
	}
	for _, ev := range merged {
		if _, err := p.events.ProcessMergedPullRequest(ctx, ev); err != nil {
			slog.Error("Merged pull request left for retry",
				slog.String("type", "error"),
				slog.String("contributor", ev.Author),
				slog.Int64("request", ev.Number),
				slog.Any("error", err))
			break
		}
		p.sinceMerged = advance(p.sinceMerged, ev.MergedAt)
	}

	reviews, err := p.source.FetchSubmittedReviews(ctx, p.sinceReview)
	if err != nil {
		return err
	}
	for _, ev := range reviews {
		if _, err := p.events.ProcessSubmittedReview(ctx, ev); err != nil {
			slog.Error("Review left for retry",
				slog.String("type", "error"),
				slog.String("contributor", ev.Reviewer),
				slog.Int64("request", ev.Number),
				slog.Any("error", err))
			break
		}
		p.sinceReview = advance(p.sinceReview, ev.SubmittedAt)
	}

	return nil
}

func advance(mark, seen time.Time) time.Time {
	if seen.After(mark) {
		return seen
	}
	return mark
}
