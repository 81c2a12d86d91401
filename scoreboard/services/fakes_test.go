package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard/database/models"
	"github.com/CruGlobal/scoreboard/scoreboard/database/repositories"
)

// In-memory repository fakes. They copy on read and write like the real
// implementations, so a service that forgets to call Update loses its
// changes in tests too.

type fakeContributorRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.Contributor

	history  *fakeHistoryRepo
	failSave error
}

func newFakeContributorRepo() *fakeContributorRepo {
	return &fakeContributorRepo{rows: map[int64]models.Contributor{}}
}

func (f *fakeContributorRepo) Create(_ context.Context, c *models.Contributor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	f.rows[c.ID] = *c
	return nil
}

func (f *fakeContributorRepo) GetByID(_ context.Context, id int64) (*models.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "contributor", ID: id}
	}
	out := row
	return &out, nil
}

func (f *fakeContributorRepo) GetByUsername(_ context.Context, username string) (*models.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Username == username {
			out := row
			return &out, nil
		}
	}
	return nil, &repositories.NotFoundError{Entity: "contributor", ID: username}
}

func (f *fakeContributorRepo) GetOrCreate(ctx context.Context, username string) (*models.Contributor, error) {
	if c, err := f.GetByUsername(ctx, username); err == nil {
		return c, nil
	}
	c := &models.Contributor{Username: username, Badges: []models.Badge{}}
	if err := f.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *fakeContributorRepo) Update(_ context.Context, c *models.Contributor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[c.ID]; !ok {
		return &repositories.NotFoundError{Entity: "contributor", ID: c.ID}
	}
	f.rows[c.ID] = *c
	return nil
}

func (f *fakeContributorRepo) SaveWithHistory(ctx context.Context, c *models.Contributor, entry *models.PointHistory) error {
	if f.failSave != nil {
		return f.failSave
	}
	if err := f.Update(ctx, c); err != nil {
		return err
	}
	return f.history.Insert(ctx, entry)
}

func (f *fakeContributorRepo) GetAll(_ context.Context) ([]*models.Contributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Contributor
	for id := int64(1); id <= f.nextID; id++ {
		if row, ok := f.rows[id]; ok {
			c := row
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeContributorRepo) GetTopByLifetimePoints(ctx context.Context, limit int) ([]*models.Contributor, error) {
	all, _ := f.GetAll(ctx)
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].LifetimePoints > all[i].LifetimePoints {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeContributorRepo) ResetQuarterSnapshots(_ context.Context, quarter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, row := range f.rows {
		row.CurrentQuarter = models.QuarterSnapshot{Quarter: quarter}
		f.rows[id] = row
	}
	return nil
}

type fakeLedgerRepo struct {
	mu       sync.Mutex
	nextID   int64
	authored []models.AuthoredEvent
	reviews  []models.ReviewEvent

	failAdmit error
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{}
}

func authoredKey(e *models.AuthoredEvent) string {
	return fmt.Sprintf("%d/%d/%s", e.ContributorID, e.RequestNumber, e.Action)
}

func reviewKey(e *models.ReviewEvent) string {
	return fmt.Sprintf("%d/%d/%d", e.ContributorID, e.RequestNumber, e.ReviewID)
}

func (f *fakeLedgerRepo) AdmitAuthored(_ context.Context, event *models.AuthoredEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdmit != nil {
		return false, f.failAdmit
	}
	for i := range f.authored {
		if authoredKey(&f.authored[i]) == authoredKey(event) {
			return false, nil
		}
	}
	f.nextID++
	event.ID = f.nextID
	f.authored = append(f.authored, *event)
	return true, nil
}

func (f *fakeLedgerRepo) AdmitReview(_ context.Context, event *models.ReviewEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.reviews {
		if reviewKey(&f.reviews[i]) == reviewKey(event) {
			return false, nil
		}
	}
	f.nextID++
	event.ID = f.nextID
	f.reviews = append(f.reviews, *event)
	return true, nil
}

// injectAuthoredDuplicate bypasses admission, as rows written before the
// unique index existed would have.
func (f *fakeLedgerRepo) injectAuthoredDuplicate(event models.AuthoredEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	event.ID = f.nextID
	f.authored = append(f.authored, event)
}

func (f *fakeLedgerRepo) CountAuthored(_ context.Context, contributorID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.authored {
		if f.authored[i].ContributorID == contributorID {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedgerRepo) CountReviews(_ context.Context, contributorID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.reviews {
		if f.reviews[i].ContributorID == contributorID {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedgerRepo) GetAuthoredByContributor(_ context.Context, contributorID int64) ([]*models.AuthoredEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AuthoredEvent
	for i := range f.authored {
		if f.authored[i].ContributorID == contributorID {
			e := f.authored[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) GetReviewsByContributor(_ context.Context, contributorID int64) ([]*models.ReviewEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ReviewEvent
	for i := range f.reviews {
		if f.reviews[i].ContributorID == contributorID {
			e := f.reviews[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) FindDuplicateAuthored(_ context.Context) ([]repositories.DuplicateGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type agg struct {
		count  int64
		keepID int64
		first  models.AuthoredEvent
	}
	groups := map[string]*agg{}
	for i := range f.authored {
		key := authoredKey(&f.authored[i])
		g, ok := groups[key]
		if !ok {
			groups[key] = &agg{count: 1, keepID: f.authored[i].ID, first: f.authored[i]}
			continue
		}
		g.count++
		if f.authored[i].ID < g.keepID {
			g.keepID = f.authored[i].ID
		}
	}
	var out []repositories.DuplicateGroup
	for _, g := range groups {
		if g.count > 1 {
			out = append(out, repositories.DuplicateGroup{
				ContributorID: g.first.ContributorID,
				RequestNumber: g.first.RequestNumber,
				Count:         g.count,
				KeepID:        g.keepID,
			})
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) FindDuplicateReviews(_ context.Context) ([]repositories.DuplicateGroup, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) DeleteAuthoredDuplicates(_ context.Context, group repositories.DuplicateGroup) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.AuthoredEvent
	var removed int64
	for i := range f.authored {
		e := f.authored[i]
		if e.ContributorID == group.ContributorID && e.RequestNumber == group.RequestNumber && e.ID != group.KeepID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.authored = kept
	return removed, nil
}

func (f *fakeLedgerRepo) DeleteReviewDuplicates(_ context.Context, _ repositories.DuplicateGroup) (int64, error) {
	return 0, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries []models.PointHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{}
}

func (f *fakeHistoryRepo) Insert(_ context.Context, entry *models.PointHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryRepo) GetByContributor(_ context.Context, contributorID int64, limit int) ([]*models.PointHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PointHistory
	for i := range f.entries {
		if f.entries[i].ContributorID == contributorID {
			e := f.entries[i]
			out = append(out, &e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistoryRepo) SumForContributor(_ context.Context, contributorID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for i := range f.entries {
		if f.entries[i].ContributorID == contributorID {
			total += f.entries[i].Points
		}
	}
	return total, nil
}

func (f *fakeHistoryRepo) SumBetween(_ context.Context, contributorID int64, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for i := range f.entries {
		e := f.entries[i]
		if e.ContributorID == contributorID && !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			total += e.Points
		}
	}
	return total, nil
}

func (f *fakeHistoryRepo) TotalsByReason(_ context.Context, contributorID int64) ([]repositories.ReasonTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byReason := map[string]*repositories.ReasonTotal{}
	for i := range f.entries {
		e := f.entries[i]
		if e.ContributorID != contributorID {
			continue
		}
		t, ok := byReason[e.Reason]
		if !ok {
			t = &repositories.ReasonTotal{Reason: e.Reason}
			byReason[e.Reason] = t
		}
		t.Count++
		t.Points += e.Points
	}
	var out []repositories.ReasonTotal
	for _, t := range byReason {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeHistoryRepo) TotalsByReasonBetween(_ context.Context, contributorID int64, from, to time.Time) ([]repositories.ReasonTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byReason := map[string]*repositories.ReasonTotal{}
	for i := range f.entries {
		e := f.entries[i]
		if e.ContributorID != contributorID || e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		t, ok := byReason[e.Reason]
		if !ok {
			t = &repositories.ReasonTotal{Reason: e.Reason}
			byReason[e.Reason] = t
		}
		t.Count++
		t.Points += e.Points
	}
	var out []repositories.ReasonTotal
	for _, t := range byReason {
		out = append(out, *t)
	}
	return out, nil
}

type fakeQuarterRepo struct {
	mu       sync.Mutex
	settings models.QuarterSettings
	buckets  map[string]models.QuarterStats
	winners  map[string]models.QuarterlyWinner
	nextID   int64
}

func newFakeQuarterRepo(firstMonth int, currentQuarter string) *fakeQuarterRepo {
	return &fakeQuarterRepo{
		settings: models.QuarterSettings{
			ID:                1,
			FirstQuarterMonth: firstMonth,
			Scheme:            models.SchemeCalendar,
			CurrentQuarter:    currentQuarter,
		},
		buckets: map[string]models.QuarterStats{},
		winners: map[string]models.QuarterlyWinner{},
	}
}

func bucketKey(contributorID int64, quarter string) string {
	return fmt.Sprintf("%d/%s", contributorID, quarter)
}

func (f *fakeQuarterRepo) GetSettings(_ context.Context) (*models.QuarterSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.settings
	return &out, nil
}

func (f *fakeQuarterRepo) UpdateSettings(_ context.Context, settings *models.QuarterSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = *settings
	return nil
}

func (f *fakeQuarterRepo) SetCurrentQuarter(_ context.Context, quarter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings.CurrentQuarter = quarter
	return nil
}

func (f *fakeQuarterRepo) AddToBucket(_ context.Context, contributorID int64, quarter string, points, authored, reviews int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bucketKey(contributorID, quarter)
	bucket, ok := f.buckets[key]
	if !ok {
		f.nextID++
		bucket = models.QuarterStats{ID: f.nextID, ContributorID: contributorID, Quarter: quarter}
	}
	bucket.Points += points
	bucket.Authored += authored
	bucket.Reviews += reviews
	f.buckets[key] = bucket
	return nil
}

func (f *fakeQuarterRepo) PutBucket(_ context.Context, contributorID int64, quarter string, points, authored, reviews int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bucketKey(contributorID, quarter)
	bucket, ok := f.buckets[key]
	if !ok {
		f.nextID++
		bucket = models.QuarterStats{ID: f.nextID, ContributorID: contributorID, Quarter: quarter}
	}
	bucket.Points = points
	bucket.Authored = authored
	bucket.Reviews = reviews
	f.buckets[key] = bucket
	return nil
}

func (f *fakeQuarterRepo) GetBucket(_ context.Context, contributorID int64, quarter string) (*models.QuarterStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[bucketKey(contributorID, quarter)]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "quarter_stats", ID: quarter}
	}
	out := bucket
	return &out, nil
}

func (f *fakeQuarterRepo) TopForQuarter(_ context.Context, quarter string, limit int) ([]*models.QuarterStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QuarterStats
	for key := range f.buckets {
		bucket := f.buckets[key]
		if bucket.Quarter == quarter {
			b := bucket
			out = append(out, &b)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Points > out[i].Points {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQuarterRepo) CountParticipants(_ context.Context, quarter string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for key := range f.buckets {
		bucket := f.buckets[key]
		if bucket.Quarter == quarter && (bucket.Points > 0 || bucket.Authored > 0 || bucket.Reviews > 0) {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuarterRepo) ArchiveWinner(_ context.Context, winner *models.QuarterlyWinner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.winners[winner.Quarter]; ok {
		return nil
	}
	f.winners[winner.Quarter] = *winner
	return nil
}

func (f *fakeQuarterRepo) GetWinner(_ context.Context, quarter string) (*models.QuarterlyWinner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	winner, ok := f.winners[quarter]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "quarterly_winner", ID: quarter}
	}
	out := winner
	return &out, nil
}

func (f *fakeQuarterRepo) ListWinners(_ context.Context) ([]*models.QuarterlyWinner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.QuarterlyWinner
	for quarter := range f.winners {
		w := f.winners[quarter]
		out = append(out, &w)
	}
	return out, nil
}

type fakeChallengeRepo struct {
	mu           sync.Mutex
	nextID       int64
	challenges   map[string]models.Challenge
	participants map[string]models.ChallengeParticipant
	completions  []models.CompletedChallenge
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{
		challenges:   map[string]models.Challenge{},
		participants: map[string]models.ChallengeParticipant{},
	}
}

func participantKey(challengeID string, contributorID int64) string {
	return fmt.Sprintf("%s/%d", challengeID, contributorID)
}

func (f *fakeChallengeRepo) Create(_ context.Context, challenge *models.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenges[challenge.ID] = *challenge
	return nil
}

func (f *fakeChallengeRepo) GetByID(_ context.Context, id string) (*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	challenge, ok := f.challenges[id]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "challenge", ID: id}
	}
	out := challenge
	return &out, nil
}

func (f *fakeChallengeRepo) GetActive(_ context.Context) ([]*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Challenge
	for id := range f.challenges {
		challenge := f.challenges[id]
		if challenge.Active {
			c := challenge
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeChallengeRepo) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	challenge, ok := f.challenges[id]
	if !ok {
		return &repositories.NotFoundError{Entity: "challenge", ID: id}
	}
	challenge.Active = false
	f.challenges[id] = challenge
	return nil
}

func (f *fakeChallengeRepo) ExpireEnded(_ context.Context, now time.Time) ([]*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []*models.Challenge
	for id, challenge := range f.challenges {
		if challenge.Active && challenge.EndsAt.Before(now) {
			challenge.Active = false
			f.challenges[id] = challenge
			c := challenge
			expired = append(expired, &c)
		}
	}
	return expired, nil
}

func (f *fakeChallengeRepo) AddParticipant(_ context.Context, participant *models.ChallengeParticipant) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := participantKey(participant.ChallengeID, participant.ContributorID)
	if _, ok := f.participants[key]; ok {
		return false, nil
	}
	f.nextID++
	participant.ID = f.nextID
	f.participants[key] = *participant
	return true, nil
}

func (f *fakeChallengeRepo) GetParticipant(_ context.Context, challengeID string, contributorID int64) (*models.ChallengeParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	participant, ok := f.participants[participantKey(challengeID, contributorID)]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "challenge_participant", ID: contributorID}
	}
	out := participant
	return &out, nil
}

func (f *fakeChallengeRepo) GetParticipants(_ context.Context, challengeID string) ([]*models.ChallengeParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ChallengeParticipant
	for key := range f.participants {
		participant := f.participants[key]
		if participant.ChallengeID == challengeID {
			p := participant
			out = append(out, &p)
		}
	}
	return out, nil
}

func (f *fakeChallengeRepo) UpdateParticipant(_ context.Context, participant *models.ChallengeParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := participantKey(participant.ChallengeID, participant.ContributorID)
	if _, ok := f.participants[key]; !ok {
		return &repositories.NotFoundError{Entity: "challenge_participant", ID: participant.ContributorID}
	}
	f.participants[key] = *participant
	return nil
}

func (f *fakeChallengeRepo) RecordCompletion(_ context.Context, completed *models.CompletedChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, *completed)
	return nil
}

func (f *fakeChallengeRepo) GetCompletionsByContributor(_ context.Context, contributorID int64) ([]*models.CompletedChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CompletedChallenge
	for i := range f.completions {
		if f.completions[i].ContributorID == contributorID {
			c := f.completions[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	scored  []string
	broken  []string
	badges  []string
	done    []string
	winners []string
}

func (n *fakeNotifier) AnnouncePullRequestScored(username string, number, points int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scored = append(n.scored, fmt.Sprintf("pr:%s:%d:%d", username, number, points))
}

func (n *fakeNotifier) AnnounceReviewScored(username string, number, points int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scored = append(n.scored, fmt.Sprintf("review:%s:%d:%d", username, number, points))
}

func (n *fakeNotifier) AnnounceStreakBroken(username string, priorLength int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broken = append(n.broken, fmt.Sprintf("%s:%d", username, priorLength))
}

func (n *fakeNotifier) AnnounceBadge(username, badge string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.badges = append(n.badges, fmt.Sprintf("%s:%s", username, badge))
}

func (n *fakeNotifier) AnnounceChallengeComplete(username, challengeName string, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = append(n.done, fmt.Sprintf("%s:%s", username, challengeName))
}

func (n *fakeNotifier) AnnounceQuarterWinner(quarter, username string, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.winners = append(n.winners, fmt.Sprintf("%s:%s", quarter, username))
}

// testEnv bundles one fully wired pipeline over the fakes.
type testEnv struct {
	contributors *fakeContributorRepo
	ledger       *fakeLedgerRepo
	history      *fakeHistoryRepo
	quarters     *fakeQuarterRepo
	challenges   *fakeChallengeRepo
	notifier     *fakeNotifier

	points       *PointsService
	streaks      *StreakService
	quarterSvc   *QuarterService
	challengeSvc *ChallengeService
	events       *EventService
	audit        *AuditService
}

func newTestEnv(firstMonth int, now time.Time) *testEnv {
	env := &testEnv{
		contributors: newFakeContributorRepo(),
		ledger:       newFakeLedgerRepo(),
		history:      newFakeHistoryRepo(),
		challenges:   newFakeChallengeRepo(),
		notifier:     &fakeNotifier{},
	}
	env.quarters = newFakeQuarterRepo(firstMonth, Label(now, firstMonth))
	env.contributors.history = env.history

	env.points = NewPointsService()
	env.streaks = NewStreakService()
	env.quarterSvc = NewQuarterService(env.quarters, env.contributors, env.history, env.notifier)
	env.challengeSvc = NewChallengeService(env.challenges, env.contributors, env.history, env.quarters, env.notifier)
	env.events = NewEventService(
		env.contributors,
		env.ledger,
		env.quarters,
		env.points,
		env.streaks,
		env.quarterSvc,
		env.challengeSvc,
		env.notifier,
	)
	env.audit = NewAuditService(env.contributors, env.ledger, env.history, env.quarters)
	return env
}
