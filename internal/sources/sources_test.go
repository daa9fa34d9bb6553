// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/esi"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
	"github.com/EVE-KILL/Thessia-sub001/internal/tokens"
	"github.com/EVE-KILL/Thessia-sub001/internal/zkb"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

var testNow = time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)

type fakeChecker struct {
	mu       sync.Mutex
	existing map[int64]struct{}
	err      error
}

func newFakeChecker(ids ...int64) *fakeChecker {
	c := &fakeChecker{existing: make(map[int64]struct{})}
	for _, id := range ids {
		c.existing[id] = struct{}{}
	}
	return c
}

func (c *fakeChecker) KillmailExists(_ context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.existing[id]
	return ok, nil
}

func (c *fakeChecker) ExistingKillmailIDs(_ context.Context, ids []int64) (map[int64]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[int64]struct{})
	for _, id := range ids {
		if _, ok := c.existing[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// fakeQueue records requests and honors dedupe keys like the real queue.
type fakeQueue struct {
	mu   sync.Mutex
	reqs []queue.Request
	keys map[string]struct{}
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{keys: make(map[string]struct{})}
}

func (q *fakeQueue) add(req queue.Request) bool {
	if _, dup := q.keys[req.Options.DedupeKey]; dup {
		return false
	}
	q.keys[req.Options.DedupeKey] = struct{}{}
	q.reqs = append(q.reqs, req)
	return true
}

func (q *fakeQueue) Enqueue(_ context.Context, req queue.Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.add(req)
	return req.Options.DedupeKey, nil
}

func (q *fakeQueue) EnqueueBulk(_ context.Context, reqs []queue.Request) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range reqs {
		if q.add(r) {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) jobs() []models.PendingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.PendingJob, len(q.reqs))
	for i, r := range q.reqs {
		out[i] = r.Payload.(models.PendingJob)
	}
	return out
}

func refs(from, to int64) []models.KillmailRef {
	var out []models.KillmailRef
	for id := from; id <= to; id++ {
		out = append(out, models.KillmailRef{KillmailID: id, Hash: fmt.Sprintf("h%d", id)})
	}
	return out
}

func TestKillmailRequest(t *testing.T) {
	req := KillmailRequest(models.KillmailRef{KillmailID: 5, Hash: "abc"}, models.PriorityWar, 77)
	job := req.Payload.(models.PendingJob)

	if req.Kind != models.JobKindKillmail || job.KillmailID != 5 || job.Hash != "abc" || job.WarID != 77 {
		t.Errorf("request = %+v", req)
	}
	if req.Options.Priority != 100 || req.Options.MaxAttempts != 10 || req.Options.Backoff != 5*time.Second {
		t.Errorf("options = %+v", req.Options)
	}
	if req.Options.DedupeKey != "km:5:abc" {
		t.Errorf("dedupe key = %q", req.Options.DedupeKey)
	}
}

type fakeDays struct {
	byDay map[string][]models.KillmailRef
	fail  map[string]bool
	calls []string
}

func (f *fakeDays) FetchDay(_ context.Context, day time.Time) ([]models.KillmailRef, error) {
	key := day.Format(zkb.DayFormat)
	f.calls = append(f.calls, key)
	if f.fail[key] {
		return nil, errors.New("boom")
	}
	return f.byDay[key], nil
}

// 600 killmails in the census with 500 already stored must produce exactly
// 100 jobs in a real queue.
func TestHistory_ReplayDayEnqueuesOnlyMissing(t *testing.T) {
	store, err := queue.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	q, err := store.Queue(models.QueueKillmails)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}

	var stored []int64
	for id := int64(1); id <= 500; id++ {
		stored = append(stored, id)
	}
	day := time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeDays{byDay: map[string][]models.KillmailRef{"20260409": refs(1, 600)}}
	h := NewHistory(fetcher, newFakeChecker(stored...), q, 7, time.Hour)
	ctx := context.Background()

	n, err := h.ReplayDay(ctx, day, models.PriorityCatchUp, SourceHistory)
	if err != nil {
		t.Fatalf("ReplayDay: %v", err)
	}
	if n != 100 {
		t.Errorf("ReplayDay = %d, want 100", n)
	}
	if count, _ := q.Count(ctx); count != 100 {
		t.Errorf("queue count = %d, want 100", count)
	}

	job, err := q.Claim(ctx, "test")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	var p models.PendingJob
	if err := job.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.KillmailID <= 500 || job.Priority != models.PriorityCatchUp {
		t.Errorf("claimed killmail %d at priority %d", p.KillmailID, job.Priority)
	}

	// Replaying the same day again writes nothing new.
	if n, _ := h.ReplayDay(ctx, day, models.PriorityCatchUp, SourceHistory); n != 0 {
		t.Errorf("second replay queued %d", n)
	}
}

func TestHistory_SweepCoversLookbackAndSkipsFailedDays(t *testing.T) {
	fetcher := &fakeDays{
		byDay: map[string][]models.KillmailRef{
			"20260410": refs(1, 2),
			"20260404": refs(10, 10),
			"20260403": refs(20, 20),
		},
		fail: map[string]bool{"20260407": true},
	}
	q := newFakeQueue()
	h := NewHistory(fetcher, newFakeChecker(), q, 7, time.Hour)
	h.now = func() time.Time { return testNow }

	if n := h.Sweep(context.Background()); n != 3 {
		t.Errorf("Sweep = %d, want 3", n)
	}
	if len(fetcher.calls) != 7 || fetcher.calls[0] != "20260410" || fetcher.calls[6] != "20260404" {
		t.Errorf("days fetched = %v", fetcher.calls)
	}
	for _, j := range q.jobs() {
		if j.Priority != models.PriorityCatchUp {
			t.Errorf("job %d priority = %d", j.KillmailID, j.Priority)
		}
	}
}

func TestHistory_Backfill(t *testing.T) {
	fetcher := &fakeDays{byDay: map[string][]models.KillmailRef{
		"20250101": refs(1, 3),
		"20250102": refs(3, 4),
	}}
	q := newFakeQueue()
	h := NewHistory(fetcher, newFakeChecker(), q, 0, 0)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	n, err := h.Backfill(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 4 {
		t.Errorf("Backfill = %d, want 4 (overlap deduplicated)", n)
	}
	for _, j := range q.jobs() {
		if j.Priority != models.PriorityBulk {
			t.Errorf("job %d priority = %d, want %d", j.KillmailID, j.Priority, models.PriorityBulk)
		}
	}

	if _, err := h.Backfill(context.Background(), to, from); err == nil {
		t.Error("reversed range should fail")
	}
}

type scriptedPoller struct {
	mu    sync.Mutex
	steps []pollStep
}

type pollStep struct {
	ref *models.KillmailRef
	err error
}

func (p *scriptedPoller) Poll(ctx context.Context) (*models.KillmailRef, error) {
	p.mu.Lock()
	if len(p.steps) > 0 {
		s := p.steps[0]
		p.steps = p.steps[1:]
		p.mu.Unlock()
		return s.ref, s.err
	}
	p.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *scriptedPoller) remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

func TestRealtime_EnqueuesNewAndSurvivesErrors(t *testing.T) {
	known := &models.KillmailRef{KillmailID: 1, Hash: "a"}
	fresh := &models.KillmailRef{KillmailID: 2, Hash: "b"}
	poller := &scriptedPoller{steps: []pollStep{
		{ref: known},
		{err: errors.New("connection reset")},
		{ref: nil},
		{ref: fresh},
		{ref: fresh},
	}}
	q := newFakeQueue()
	a := NewRealtime(poller, newFakeChecker(1), q, nil, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for poller.remaining() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	jobs := q.jobs()
	if len(jobs) != 1 || jobs[0].KillmailID != 2 || jobs[0].Priority != models.PriorityDefault {
		t.Errorf("jobs = %+v, want only killmail 2 at priority 1", jobs)
	}
}

func TestRealtime_CheckErrorAllowsRetry(t *testing.T) {
	checker := newFakeChecker()
	checker.err = errors.New("db down")
	q := newFakeQueue()
	rt := newRealtime(checker, q, nil)
	ref := models.KillmailRef{KillmailID: 9, Hash: "x"}

	rt.handle(context.Background(), SourceRedisQ, ref)
	if len(q.jobs()) != 0 {
		t.Fatal("nothing should be queued while the check fails")
	}

	checker.mu.Lock()
	checker.err = nil
	checker.mu.Unlock()
	rt.handle(context.Background(), SourceRedisQ, ref)
	if len(q.jobs()) != 1 {
		t.Error("reference should be retried after a failed check")
	}
}

type fakeFeed struct {
	refs []models.KillmailRef
}

func (f *fakeFeed) Run(ctx context.Context, handle zkb.RefHandler) error {
	for _, r := range f.refs {
		handle(ctx, r)
	}
	<-ctx.Done()
	return nil
}

// The realtime adapters share one seen cache so a kill announced by both
// RedisQ and the killstream costs a single lookup.
func TestFeed_SharesSeenCacheWithRealtime(t *testing.T) {
	seen := NewSeenCache()
	checker := newFakeChecker()
	q := newFakeQueue()

	ref := models.KillmailRef{KillmailID: 3, Hash: "c"}
	newRealtime(checker, q, seen).handle(context.Background(), SourceRedisQ, ref)

	feed := NewFeed(&fakeFeed{refs: []models.KillmailRef{ref, {KillmailID: 4, Hash: "d"}}}, checker, q, seen)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = feed.Serve(ctx)

	jobs := q.jobs()
	if len(jobs) != 2 || jobs[0].KillmailID != 3 || jobs[1].KillmailID != 4 {
		t.Errorf("jobs = %+v", jobs)
	}
}

type fakeUserStore struct {
	mu           sync.Mutex
	users        []models.UserCredential
	touched      []int64
	corpCleared  []int64
	placeholders map[int64]*models.Placeholder
}

func newFakeUserStore(users ...models.UserCredential) *fakeUserStore {
	return &fakeUserStore{users: users, placeholders: make(map[int64]*models.Placeholder)}
}

func (s *fakeUserStore) StaleUsers(context.Context, time.Time) ([]models.UserCredential, error) {
	return append([]models.UserCredential(nil), s.users...), nil
}

func (s *fakeUserStore) TouchLastChecked(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func (s *fakeUserStore) ClearCorporationCapability(_ context.Context, id int64) error {
	s.corpCleared = append(s.corpCleared, id)
	return nil
}

func (s *fakeUserStore) UpsertPlaceholder(_ context.Context, id int64, hash string, visibleAt *time.Time) (*models.Placeholder, error) {
	ph, ok := s.placeholders[id]
	if !ok {
		ph = &models.Placeholder{KillmailID: id, Hash: hash, VisibleAt: visibleAt}
		s.placeholders[id] = ph
	} else if !ph.Queued {
		ph.VisibleAt = models.MergeVisibility(ph.VisibleAt, visibleAt)
	}
	cp := *ph
	return &cp, nil
}

func (s *fakeUserStore) MarkPlaceholdersQueued(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if ph, ok := s.placeholders[id]; ok {
			ph.Queued = true
		}
	}
	return nil
}

func (s *fakeUserStore) DuePlaceholders(_ context.Context, now time.Time, limit int) ([]models.Placeholder, error) {
	var out []models.Placeholder
	for id := int64(0); id < 10000 && len(out) < limit; id++ {
		ph, ok := s.placeholders[id]
		if !ok || ph.Queued || (ph.VisibleAt != nil && ph.VisibleAt.After(now)) {
			continue
		}
		out = append(out, *ph)
	}
	return out, nil
}

type fakeLister struct {
	character    []models.KillmailRef
	characterErr error
	corporation  []models.KillmailRef
	corpErr      error
	corpCalls    int
}

func (l *fakeLister) CharacterKillmails(context.Context, int64, string) ([]models.KillmailRef, error) {
	return l.character, l.characterErr
}

func (l *fakeLister) CorporationKillmails(context.Context, int64, string) ([]models.KillmailRef, error) {
	l.corpCalls++
	return l.corporation, l.corpErr
}

type fakeTokens struct {
	err         error
	refreshErr  error
	refreshed   int
	deactivated []string
}

func (f *fakeTokens) EnsureFresh(context.Context, *models.UserCredential) error {
	return f.err
}

func (f *fakeTokens) Refresh(_ context.Context, u *models.UserCredential) error {
	f.refreshed++
	if f.refreshErr != nil {
		if tokens.IsDeactivated(f.refreshErr) {
			f.deactivated = append(f.deactivated, "refresh")
			u.PollingActive = false
		}
		return f.refreshErr
	}
	u.AccessToken = "refreshed"
	return nil
}

func pollUser(delayHours int, corporationID int64, canCorp bool) models.UserCredential {
	return models.UserCredential{
		CharacterID:                  90000001,
		CorporationID:                corporationID,
		AccessToken:                  "access",
		CanFetchCorporationKillmails: canCorp,
		PollingActive:                true,
		DelayHours:                   delayHours,
	}
}

func newTestUserPoll(store *fakeUserStore, lister *fakeLister, tk *fakeTokens, checker *fakeChecker, q *fakeQueue) *UserPoll {
	p := NewUserPoll(store, lister, tk, checker, q, time.Minute, 5*time.Minute)
	p.now = func() time.Time { return testNow }
	return p
}

func TestUserPoll_ImmediateVisibility(t *testing.T) {
	store := newFakeUserStore()
	lister := &fakeLister{
		character:   refs(1, 3),
		corporation: refs(3, 5),
	}
	q := newFakeQueue()
	u := pollUser(0, 98000001, true)

	res, err := newTestUserPoll(store, lister, &fakeTokens{}, newFakeChecker(2), q).PollUser(context.Background(), &u)
	if err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if res.Discovered != 4 || res.Queued != 4 {
		t.Errorf("result = %+v, want 4 discovered and queued", res)
	}
	if len(q.jobs()) != 4 {
		t.Errorf("jobs = %d, want 4", len(q.jobs()))
	}
	if !store.placeholders[1].Queued || store.placeholders[1].VisibleAt != nil {
		t.Errorf("placeholder 1 = %+v", store.placeholders[1])
	}
	if len(store.touched) != 1 {
		t.Errorf("touched = %v", store.touched)
	}
}

func TestUserPoll_DelayedVisibility(t *testing.T) {
	store := newFakeUserStore()
	lister := &fakeLister{character: refs(1, 2)}
	q := newFakeQueue()
	u := pollUser(24, 1000125, true)

	res, err := newTestUserPoll(store, lister, &fakeTokens{}, newFakeChecker(), q).PollUser(context.Background(), &u)
	if err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if res.Placeholder != 2 || res.Queued != 0 || len(q.jobs()) != 0 {
		t.Errorf("result = %+v, jobs = %d; want placeholders only", res, len(q.jobs()))
	}
	want := testNow.Add(24 * time.Hour)
	if ph := store.placeholders[1]; ph.VisibleAt == nil || !ph.VisibleAt.Equal(want) {
		t.Errorf("visible_at = %v, want %v", ph.VisibleAt, want)
	}
	if lister.corpCalls != 0 {
		t.Error("NPC corporations must not be polled")
	}
}

// A zero-delay user seeing a kill already held back by a delayed user
// releases it immediately.
func TestUserPoll_ZeroDelayReleasesHeldKill(t *testing.T) {
	store := newFakeUserStore()
	q := newFakeQueue()
	checker := newFakeChecker()

	delayed := pollUser(12, 0, false)
	if _, err := newTestUserPoll(store, &fakeLister{character: refs(7, 7)}, &fakeTokens{}, checker, q).PollUser(context.Background(), &delayed); err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if len(q.jobs()) != 0 {
		t.Fatal("delayed user should not enqueue")
	}

	immediate := pollUser(0, 0, false)
	immediate.CharacterID = 90000002
	if _, err := newTestUserPoll(store, &fakeLister{character: refs(7, 7)}, &fakeTokens{}, checker, q).PollUser(context.Background(), &immediate); err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if len(q.jobs()) != 1 || store.placeholders[7].VisibleAt != nil {
		t.Errorf("jobs = %d, placeholder = %+v", len(q.jobs()), store.placeholders[7])
	}
}

func TestUserPoll_MissingRoleClearsCapabilityOnly(t *testing.T) {
	store := newFakeUserStore()
	lister := &fakeLister{
		character:   refs(1, 1),
		corporation: refs(50, 51),
		corpErr:     &esi.APIError{Status: http.StatusForbidden, Message: "Character does not have required role(s)"},
	}
	q := newFakeQueue()
	tk := &fakeTokens{}
	u := pollUser(0, 98000001, true)

	res, err := newTestUserPoll(store, lister, tk, newFakeChecker(), q).PollUser(context.Background(), &u)
	if err != nil {
		t.Fatalf("PollUser: %v", err)
	}
	if len(store.corpCleared) != 1 || u.CanFetchCorporationKillmails {
		t.Errorf("capability not cleared: %v", store.corpCleared)
	}
	if len(tk.deactivated) != 0 || !u.PollingActive {
		t.Error("missing role must not deactivate polling")
	}
	// Pages fetched before the failure are kept.
	if res.Queued != 3 {
		t.Errorf("queued = %d, want 3", res.Queued)
	}
}

func TestUserPoll_TerminalTokenDeactivates(t *testing.T) {
	store := newFakeUserStore()
	lister := &fakeLister{character: refs(1, 1)}
	tk := &fakeTokens{err: fmt.Errorf("refresh: %w", tokens.ErrDeactivated)}
	u := pollUser(0, 0, false)

	_, err := newTestUserPoll(store, lister, tk, newFakeChecker(), newFakeQueue()).PollUser(context.Background(), &u)
	if !tokens.IsDeactivated(err) {
		t.Fatalf("err = %v, want deactivation", err)
	}
	if len(store.touched) != 1 {
		t.Error("last_checked must be updated on failure")
	}
}

func TestUserPoll_RejectedAccessTokenRefreshesAndSkips(t *testing.T) {
	expired := &esi.APIError{Status: http.StatusUnauthorized, Message: "invalid_token: token is expired"}

	tests := []struct {
		name   string
		lister *fakeLister
		user   models.UserCredential
	}{
		{"character list", &fakeLister{characterErr: expired}, pollUser(0, 0, false)},
		{"corporation list", &fakeLister{character: refs(1, 1), corpErr: expired}, pollUser(0, 98000001, true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeUserStore()
			tk := &fakeTokens{}
			q := newFakeQueue()
			u := tt.user

			_, err := newTestUserPoll(store, tt.lister, tk, newFakeChecker(), q).PollUser(context.Background(), &u)
			if err != nil {
				t.Fatalf("PollUser: %v", err)
			}
			if tk.refreshed != 1 || u.AccessToken != "refreshed" {
				t.Errorf("refreshed = %d, token = %q, want one forced refresh", tk.refreshed, u.AccessToken)
			}
			if len(tk.deactivated) != 0 || !u.PollingActive {
				t.Error("a rejected access token must not deactivate polling")
			}
			if len(q.jobs()) != 0 {
				t.Errorf("jobs = %d, want the user skipped this cycle", len(q.jobs()))
			}
			if len(store.touched) != 1 {
				t.Error("last_checked must be updated for a skipped user")
			}
		})
	}
}

func TestUserPoll_RejectedTokenWithDeadRefreshDeactivates(t *testing.T) {
	store := newFakeUserStore()
	lister := &fakeLister{characterErr: &esi.APIError{Status: http.StatusUnauthorized, Message: "invalid_token"}}
	tk := &fakeTokens{refreshErr: fmt.Errorf("invalid_grant: %w", tokens.ErrDeactivated)}
	u := pollUser(0, 0, false)

	_, err := newTestUserPoll(store, lister, tk, newFakeChecker(), newFakeQueue()).PollUser(context.Background(), &u)
	if !tokens.IsDeactivated(err) || len(tk.deactivated) != 1 || u.PollingActive {
		t.Fatalf("err = %v, deactivated = %v", err, tk.deactivated)
	}
}

func TestUserPoll_OtherErrorsSkipUser(t *testing.T) {
	store := newFakeUserStore(pollUser(0, 0, false))
	lister := &fakeLister{characterErr: &esi.APIError{Status: http.StatusBadGateway, Message: "bad gateway"}}
	tk := &fakeTokens{}
	q := newFakeQueue()

	newTestUserPoll(store, lister, tk, newFakeChecker(), q).Cycle(context.Background())

	if len(tk.deactivated) != 0 || len(q.jobs()) != 0 {
		t.Errorf("deactivated = %v, jobs = %d", tk.deactivated, len(q.jobs()))
	}
	if len(store.touched) != 1 {
		t.Error("last_checked must be updated on failure")
	}
}

func TestDelayed_SweepReleasesDuePlaceholders(t *testing.T) {
	store := newFakeUserStore()
	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)
	store.placeholders[1] = &models.Placeholder{KillmailID: 1, Hash: "a", VisibleAt: &past}
	store.placeholders[2] = &models.Placeholder{KillmailID: 2, Hash: "b", VisibleAt: &future}
	store.placeholders[3] = &models.Placeholder{KillmailID: 3, Hash: "c"}
	store.placeholders[4] = &models.Placeholder{KillmailID: 4, Hash: "d", Queued: true}

	q := newFakeQueue()
	d := NewDelayed(store, q, time.Minute)
	d.now = func() time.Time { return testNow }

	n, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep = %d, want 2", n)
	}
	if !store.placeholders[1].Queued || !store.placeholders[3].Queued || store.placeholders[2].Queued {
		t.Error("wrong placeholders marked queued")
	}
	for _, j := range q.jobs() {
		if j.Priority != models.PriorityDefault {
			t.Errorf("job %d priority = %d", j.KillmailID, j.Priority)
		}
	}

	if n, _ := d.Sweep(context.Background()); n != 0 {
		t.Errorf("second sweep = %d, want 0", n)
	}
}

type fakeWars map[int64][]models.KillmailRef

func (f fakeWars) WarKillmails(_ context.Context, warID int64) ([]models.KillmailRef, error) {
	refs, ok := f[warID]
	if !ok {
		return nil, &esi.APIError{Status: http.StatusNotFound, Message: "war not found"}
	}
	return refs, nil
}

func TestWars_SweepUsesWarPriority(t *testing.T) {
	q := newFakeQueue()
	w := NewWars(fakeWars{615476: refs(1, 3)}, newFakeChecker(1), q, []int64{999, 615476}, time.Hour)

	if n := w.Sweep(context.Background()); n != 2 {
		t.Errorf("Sweep = %d, want 2", n)
	}
	for _, j := range q.jobs() {
		if j.Priority != models.PriorityWar || j.WarID != 615476 {
			t.Errorf("job = %+v", j)
		}
	}
}
