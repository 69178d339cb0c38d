package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/model"
)

func TestPoints(t *testing.T) {
	tests := []struct {
		seconds int64
		want    int64
	}{
		{3600, 10},
		{1800, 5},
		{59, 0},
		{359, 0},
		{360, 1},
		{5400, 15},
		{86400, 240},
		{90000, 250},
		{math.MaxInt64, math.MaxInt64 / 360},
		{math.MaxInt64 - 1, math.MaxInt64 / 360},
		{0, 0},
		{-10, 0},
	}

	for _, tt := range tests {
		if got := Points(tt.seconds); got != tt.want {
			t.Errorf("Points(%d) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestApplySession_CreditsQualifyingChallenges(t *testing.T) {
	env := newTestEnv(t)
	ana := env.register(t, "ana@example.com", "Ana")

	soon := env.clock.Now().Add(time.Hour)
	open := env.challenge(t, ana.ID, "Open", nil)
	short := env.challenge(t, ana.ID, "Short", &soon)

	env.clock.Advance(2 * time.Hour) // Short has now ended

	sess := &model.StudySession{AccountID: ana.ID, DurationSeconds: 3600}
	credits, err := env.accounting.ApplySession(context.Background(), sess)
	if err != nil {
		t.Fatalf("ApplySession() error = %v", err)
	}

	if sess.PointsEarned != 10 {
		t.Errorf("PointsEarned = %d, want 10", sess.PointsEarned)
	}
	if !sess.CreatedAt.Equal(env.clock.Now()) {
		t.Errorf("CreatedAt = %v, want clock time", sess.CreatedAt)
	}
	if len(credits) != 1 || credits[0].ChallengeID != open.ID {
		t.Errorf("credits = %+v, want only challenge %d", credits, open.ID)
	}
	if got := env.store.participantPoints(short.ID, ana.ID); got != 0 {
		t.Errorf("ended challenge points = %d, want 0", got)
	}
	if got := env.accountPoints(t, ana.ID); got != 10 {
		t.Errorf("account points = %d, want 10", got)
	}

	if len(env.notifier.calls) != 1 || len(env.notifier.calls[0]) != 1 || env.notifier.calls[0][0] != open.ID {
		t.Errorf("notifier calls = %v", env.notifier.calls)
	}
}

func TestApplySession_NoNotificationWithoutCredits(t *testing.T) {
	env := newTestEnv(t)
	ana := env.register(t, "ana@example.com", "Ana")
	env.challenge(t, ana.ID, "Open", nil)

	if _, err := env.accounting.ApplySession(context.Background(), &model.StudySession{AccountID: ana.ID, DurationSeconds: 30}); err != nil {
		t.Fatal(err)
	}
	if len(env.notifier.calls) != 0 {
		t.Errorf("notifier called for a zero-point session: %v", env.notifier.calls)
	}
}

func TestApplySession_FailureLeavesTotals(t *testing.T) {
	env := newTestEnv(t)
	ana := env.register(t, "ana@example.com", "Ana")
	env.store.failApply = errors.New("tx aborted")

	if _, err := env.accounting.ApplySession(context.Background(), &model.StudySession{AccountID: ana.ID, DurationSeconds: 3600}); err == nil {
		t.Fatal("ApplySession() error = nil, want failure")
	}
	if got := env.accountPoints(t, ana.ID); got != 0 {
		t.Errorf("account points = %d, want 0", got)
	}
}

// A session credited while its challenge ran is fully withdrawn on delete,
// whether or not the challenge still qualifies.
func TestReverseSession_Branches(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
	}{
		{"challenge still active", 10 * time.Minute},
		{"challenge expired in between", 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ana := env.register(t, "ana@example.com", "Ana")
			end := env.clock.Now().Add(time.Hour)
			c := env.challenge(t, ana.ID, "Sprint", &end)

			keep := env.logSession(t, ana.ID, 1800) // 5 points
			drop := env.logSession(t, ana.ID, 3600) // 10 points

			env.clock.Advance(tt.advance)
			if _, err := env.challenges.ExpireChallenges(context.Background()); err != nil {
				t.Fatal(err)
			}

			got, err := env.accounting.ReverseSession(context.Background(), ana.ID, drop.ID)
			if err != nil {
				t.Fatalf("ReverseSession() error = %v", err)
			}
			if got.ID != drop.ID {
				t.Errorf("reversed %d, want %d", got.ID, drop.ID)
			}

			if p := env.accountPoints(t, ana.ID); p != keep.PointsEarned {
				t.Errorf("account points = %d, want %d", p, keep.PointsEarned)
			}
			if p := env.store.participantPoints(c.ID, ana.ID); p != keep.PointsEarned {
				t.Errorf("challenge points = %d, want %d", p, keep.PointsEarned)
			}
		})
	}
}

func TestReverseSession_JoinedAfterwardsUntouched(t *testing.T) {
	env := newTestEnv(t)
	ana := env.register(t, "ana@example.com", "Ana")
	bia := env.register(t, "bia@example.com", "Bia")

	sess := env.logSession(t, ana.ID, 3600)

	c := env.challenge(t, bia.ID, "Later", nil)
	if err := env.challenges.Join(context.Background(), c.ID, ana.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := env.accounting.ReverseSession(context.Background(), ana.ID, sess.ID); err != nil {
		t.Fatal(err)
	}
	if p := env.store.participantPoints(c.ID, ana.ID); p != 0 {
		t.Errorf("challenge points = %d, want 0", p)
	}
	if p := env.accountPoints(t, ana.ID); p != 0 {
		t.Errorf("account points = %d, want 0", p)
	}
}

func TestReverseSession_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	ana := env.register(t, "ana@example.com", "Ana")
	bia := env.register(t, "bia@example.com", "Bia")
	sess := env.logSession(t, ana.ID, 3600)

	if _, err := env.accounting.ReverseSession(context.Background(), bia.ID, sess.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ReverseSession() error = %v, want ErrNotFound", err)
	}
	if p := env.accountPoints(t, ana.ID); p != 10 {
		t.Errorf("owner points = %d, want 10", p)
	}
}

// Totals always equal the sum over existing sessions.
func TestAccountTotalMatchesSessions(t *testing.T) {
	env := newTestEnv(t)
	ana := env.register(t, "ana@example.com", "Ana")
	env.challenge(t, ana.ID, "Open", nil)

	var ids []int64
	for _, d := range []int64{3600, 1800, 59, 7200, 360} {
		ids = append(ids, env.logSession(t, ana.ID, d).ID)
		env.clock.Advance(time.Minute)
	}
	for _, id := range []int64{ids[1], ids[3]} {
		if err := env.sessions.Delete(context.Background(), ana.ID, id); err != nil {
			t.Fatal(err)
		}
	}

	all, err := env.sessions.All(context.Background(), ana.ID)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, s := range all {
		sum += s.PointsEarned
	}
	if got := env.accountPoints(t, ana.ID); got != sum || sum != 11 {
		t.Errorf("account total = %d, session sum = %d, want both 11", got, sum)
	}
}
