// Package repository declares the storage contracts the service layer depends
// on. Implementations live in subpackages (sqlstore); services only ever see
// these interfaces, so tests can substitute in-memory fakes.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/estudogame/internal/model"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (account email, GitHub id, or a (challenge, account) participation).
var ErrDuplicate = errors.New("repository: duplicate key")

type ListOptions struct {
	Limit  int
	Offset int
}

type AccountRepository interface {
	// CreateAccount inserts the account and fills ID and timestamps.
	// Returns ErrDuplicate when the email (or GitHub id) is taken.
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByGitHubID(ctx context.Context, githubID int64) (*model.Account, error)
	LinkGitHub(ctx context.Context, accountID, githubID int64, now time.Time) error
	UpdateProfile(ctx context.Context, id int64, name, avatarURL string, now time.Time) (*model.Account, error)
	ProfileStats(ctx context.Context, id int64) (*model.ProfileStats, error)
}

type ChallengeRepository interface {
	// CreateChallenge inserts the challenge and enrols its creator in the
	// same transaction.
	CreateChallenge(ctx context.Context, c *model.Challenge) error
	GetChallenge(ctx context.Context, id int64) (*model.Challenge, error)
	ListQualifyingChallenges(ctx context.Context, now time.Time) ([]model.Challenge, error)
	IsParticipant(ctx context.Context, challengeID, accountID int64) (bool, error)
	// AddParticipant returns ErrDuplicate when the account already participates.
	AddParticipant(ctx context.Context, p *model.Participant) error
	Ranking(ctx context.Context, challengeID int64) ([]model.RankingEntry, error)
	// ExpireChallenges clears the active flag of challenges whose end date
	// is at or before now and returns how many changed.
	ExpireChallenges(ctx context.Context, now time.Time) (int64, error)
}

type SessionRepository interface {
	GetSession(ctx context.Context, accountID, id int64) (*model.StudySession, error)
	ListSessions(ctx context.Context, accountID int64, opts ListOptions) ([]model.StudySession, int64, error)
	AllSessions(ctx context.Context, accountID int64) ([]model.StudySession, error)
	// UpdateSessionText stores Subject and Notes only.
	UpdateSessionText(ctx context.Context, s *model.StudySession) error
}

// Ledger performs the two points-accounting transactions. Each call is one
// database transaction: either every effect commits or none does.
type Ledger interface {
	// ApplySession inserts s (PointsEarned already computed), adds the
	// points to the owner's total and to every participation whose
	// challenge qualifies at now, and records one credit per participation.
	ApplySession(ctx context.Context, s *model.StudySession, now time.Time) ([]model.SessionCredit, error)
	// ReverseSession deletes the caller's session and subtracts exactly the
	// points it was credited with, from the owner and from each credited
	// participation.
	ReverseSession(ctx context.Context, accountID, sessionID int64) (*model.StudySession, []model.SessionCredit, error)
}
