package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/auth"
	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory implementation of every repository interface.
// It mimics what sqlstore does closely enough for the service rules to be
// tested without a database.
type fakeStore struct {
	mu sync.Mutex

	accounts     map[int64]*model.Account
	challenges   map[int64]*model.Challenge
	participants map[[2]int64]*model.Participant // (challengeID, accountID)
	sessions     map[int64]*model.StudySession
	credits      map[int64][]model.SessionCredit // by session id

	nextID int64

	// set to a non-nil error to simulate a storage failure
	failCreateAccount error
	failApply         error
	// forceDuplicateJoin makes AddParticipant report a unique violation, as
	// when a concurrent join wins the race after the pre-check.
	forceDuplicateJoin bool
	// hideEmail makes GetAccountByEmail miss, as when a registration races
	// past the pre-check.
	hideEmail bool
}

var (
	_ repository.AccountRepository   = (*fakeStore)(nil)
	_ repository.ChallengeRepository = (*fakeStore)(nil)
	_ repository.SessionRepository   = (*fakeStore)(nil)
	_ repository.Ledger              = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[int64]*model.Account),
		challenges:   make(map[int64]*model.Challenge),
		participants: make(map[[2]int64]*model.Participant),
		sessions:     make(map[int64]*model.StudySession),
		credits:      make(map[int64][]model.SessionCredit),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func notFound(resource string, id int64) error {
	return apperror.NotFound(resource, strconv.FormatInt(id, 10))
}

// --- accounts ---

func (f *fakeStore) CreateAccount(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateAccount != nil {
		return f.failCreateAccount
	}
	for _, existing := range f.accounts {
		if existing.Email == a.Email {
			return repository.ErrDuplicate
		}
		if a.GitHubID != nil && existing.GitHubID != nil && *existing.GitHubID == *a.GitHubID {
			return repository.ErrDuplicate
		}
	}
	a.ID = f.id()
	a.TotalPoints = 0
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAccountByID(_ context.Context, id int64) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hideEmail {
		for _, a := range f.accounts {
			if a.Email == email {
				cp := *a
				return &cp, nil
			}
		}
	}
	return nil, apperror.NotFound("account", email)
}

func (f *fakeStore) GetAccountByGitHubID(_ context.Context, githubID int64) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.GitHubID != nil && *a.GitHubID == githubID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, notFound("account", githubID)
}

func (f *fakeStore) LinkGitHub(_ context.Context, accountID, githubID int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return notFound("account", accountID)
	}
	a.GitHubID = &githubID
	a.UpdatedAt = now
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, id int64, name, avatarURL string, now time.Time) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	a.Name, a.AvatarURL, a.UpdatedAt = name, avatarURL, now
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ProfileStats(_ context.Context, id int64) (*model.ProfileStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st model.ProfileStats
	for _, s := range f.sessions {
		if s.AccountID == id {
			st.TotalSessions++
			st.TotalStudyTimeSeconds += s.DurationSeconds
			st.TotalPointsEarned += s.PointsEarned
		}
	}
	for key := range f.participants {
		if key[1] == id {
			st.TotalChallenges++
		}
	}
	return &st, nil
}

// --- challenges ---

func (f *fakeStore) CreateChallenge(_ context.Context, c *model.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	creator, ok := f.accounts[c.CreatorID]
	if !ok {
		return notFound("account", c.CreatorID)
	}
	c.ID = f.id()
	cp := *c
	cp.CreatorName = creator.Name
	f.challenges[c.ID] = &cp
	f.participants[[2]int64{c.ID, c.CreatorID}] = &model.Participant{ChallengeID: c.ID, AccountID: c.CreatorID, JoinedAt: c.CreatedAt}
	return nil
}

func (f *fakeStore) GetChallenge(_ context.Context, id int64) (*model.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.challenges[id]
	if !ok {
		return nil, notFound("challenge", id)
	}
	cp := *c
	cp.ParticipantsCount = f.countParticipants(id)
	return &cp, nil
}

func (f *fakeStore) countParticipants(challengeID int64) int64 {
	var n int64
	for key := range f.participants {
		if key[0] == challengeID {
			n++
		}
	}
	return n
}

func (f *fakeStore) ListQualifyingChallenges(_ context.Context, now time.Time) ([]model.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Challenge{}
	for _, c := range f.challenges {
		if c.Qualifies(now) {
			cp := *c
			cp.ParticipantsCount = f.countParticipants(c.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) IsParticipant(_ context.Context, challengeID, accountID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.participants[[2]int64{challengeID, accountID}]
	return ok, nil
}

func (f *fakeStore) AddParticipant(_ context.Context, p *model.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{p.ChallengeID, p.AccountID}
	if _, ok := f.participants[key]; ok || f.forceDuplicateJoin {
		return repository.ErrDuplicate
	}
	cp := *p
	f.participants[key] = &cp
	return nil
}

func (f *fakeStore) Ranking(_ context.Context, challengeID int64) ([]model.RankingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ps []*model.Participant
	for key, p := range f.participants {
		if key[0] == challengeID {
			ps = append(ps, p)
		}
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].TotalPoints != ps[j].TotalPoints {
			return ps[i].TotalPoints > ps[j].TotalPoints
		}
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].AccountID < ps[j].AccountID
	})
	out := []model.RankingEntry{}
	for i, p := range ps {
		out = append(out, model.RankingEntry{
			Position:    i + 1,
			AccountID:   p.AccountID,
			Name:        f.accounts[p.AccountID].Name,
			TotalPoints: p.TotalPoints,
		})
	}
	return out, nil
}

func (f *fakeStore) ExpireChallenges(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.challenges {
		if c.IsActive && c.EndDate != nil && !c.EndDate.After(now) {
			c.IsActive = false
			n++
		}
	}
	return n, nil
}

// --- sessions ---

func (f *fakeStore) GetSession(_ context.Context, accountID, id int64) (*model.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.AccountID != accountID {
		return nil, notFound("study session", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) sorted(accountID int64) []model.StudySession {
	out := []model.StudySession{}
	for _, s := range f.sessions {
		if s.AccountID == accountID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeStore) ListSessions(_ context.Context, accountID int64, opts repository.ListOptions) ([]model.StudySession, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(accountID)
	total := int64(len(all))
	if opts.Offset >= len(all) {
		return []model.StudySession{}, total, nil
	}
	end := min(opts.Offset+opts.Limit, len(all))
	return all[opts.Offset:end], total, nil
}

func (f *fakeStore) AllSessions(_ context.Context, accountID int64) ([]model.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(accountID), nil
}

func (f *fakeStore) UpdateSessionText(_ context.Context, s *model.StudySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok || stored.AccountID != s.AccountID {
		return notFound("study session", s.ID)
	}
	stored.Subject, stored.Notes = s.Subject, s.Notes
	return nil
}

// --- ledger ---

func (f *fakeStore) ApplySession(_ context.Context, s *model.StudySession, now time.Time) ([]model.SessionCredit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failApply != nil {
		return nil, f.failApply
	}
	owner, ok := f.accounts[s.AccountID]
	if !ok {
		return nil, notFound("account", s.AccountID)
	}
	s.ID = f.id()
	cp := *s
	f.sessions[s.ID] = &cp
	owner.TotalPoints += s.PointsEarned

	credits := []model.SessionCredit{}
	if s.PointsEarned == 0 {
		return credits, nil
	}
	for key, p := range f.participants {
		if key[1] != s.AccountID || !f.challenges[key[0]].Qualifies(now) {
			continue
		}
		p.TotalPoints += s.PointsEarned
		credits = append(credits, model.SessionCredit{SessionID: s.ID, ChallengeID: key[0], Points: s.PointsEarned})
	}
	sort.Slice(credits, func(i, j int) bool { return credits[i].ChallengeID < credits[j].ChallengeID })
	f.credits[s.ID] = credits
	return credits, nil
}

func (f *fakeStore) ReverseSession(_ context.Context, accountID, sessionID int64) (*model.StudySession, []model.SessionCredit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.AccountID != accountID {
		return nil, nil, notFound("study session", sessionID)
	}
	credits := f.credits[sessionID]
	for _, c := range credits {
		f.participants[[2]int64{c.ChallengeID, accountID}].TotalPoints -= c.Points
	}
	f.accounts[accountID].TotalPoints -= s.PointsEarned
	delete(f.sessions, sessionID)
	delete(f.credits, sessionID)
	if credits == nil {
		credits = []model.SessionCredit{}
	}
	return s, credits, nil
}

// participantPoints reads a participation's total directly.
func (f *fakeStore) participantPoints(challengeID, accountID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants[[2]int64{challengeID, accountID}].TotalPoints
}

// recordingNotifier captures RankingChanged calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]int64
}

func (n *recordingNotifier) RankingChanged(_ context.Context, ids ...int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ids)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires every service over one fake store and clock.
type testEnv struct {
	store      *fakeStore
	clock      *fakeClock
	notifier   *recordingNotifier
	tokens     *auth.TokenService
	auth       *AuthService
	accounts   *AccountService
	challenges *ChallengeService
	sessions   *SessionService
	accounting *AccountingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	store := newFakeStore()
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	logger := discardLogger()

	accounting := NewAccountingService(store, notifier, clock.Now, logger)
	return &testEnv{
		store:      store,
		clock:      clock,
		notifier:   notifier,
		tokens:     tokens,
		auth:       NewAuthService(store, tokens, auth.NewPasswordServiceWithCost(4), clock.Now, logger),
		accounts:   NewAccountService(store, clock.Now, logger),
		challenges: NewChallengeService(store, clock.Now, logger),
		sessions:   NewSessionService(store, accounting, logger),
		accounting: accounting,
	}
}

func (e *testEnv) register(t *testing.T, email, name string) *model.Account {
	t.Helper()
	res, err := e.auth.Register(context.Background(), RegisterInput{Email: email, Password: "secret123", Name: name})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	return res.Account
}

func (e *testEnv) challenge(t *testing.T, creatorID int64, name string, end *time.Time) *model.Challenge {
	t.Helper()
	c, err := e.challenges.Create(context.Background(), creatorID, CreateChallengeInput{Name: name, Subject: "math", EndDate: end})
	if err != nil {
		t.Fatalf("Create challenge %s error = %v", name, err)
	}
	return c
}

func (e *testEnv) logSession(t *testing.T, accountID, seconds int64) *model.StudySession {
	t.Helper()
	s, err := e.sessions.Create(context.Background(), accountID, CreateSessionInput{DurationSeconds: seconds, Subject: "math"})
	if err != nil {
		t.Fatalf("Create session error = %v", err)
	}
	return s
}

func (e *testEnv) accountPoints(t *testing.T, id int64) int64 {
	t.Helper()
	a, err := e.store.GetAccountByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return a.TotalPoints
}

func ptr[T any](v T) *T { return &v }
