package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

const accountColumns = `id, email, password_hash, name, avatar_url, total_points, github_id, created_at, updated_at`

// CreateAccount inserts a, filling ID. CreatedAt/UpdatedAt default to the
// current time when the caller left them zero.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`INSERT INTO accounts (email, password_hash, name, avatar_url, total_points, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		 RETURNING id`),
		a.Email, a.PasswordHash, a.Name, a.AvatarURL, a.GitHubID, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("sqlstore: inserting account %q: %w", a.Email, err)
	}

	a.TotalPoints = 0
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting account %d: %w", id, notFound(err, "account", id))
	}
	return &a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE email = ?`), email)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting account by email: %w", notFoundKey(err, "account", email))
	}
	return &a, nil
}

func (s *Store) GetAccountByGitHubID(ctx context.Context, githubID int64) (*model.Account, error) {
	var a model.Account
	err := s.db.GetContext(ctx, &a, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE github_id = ?`), githubID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting account by github id %d: %w", githubID, notFoundKey(err, "account", fmt.Sprintf("github:%d", githubID)))
	}
	return &a, nil
}

// LinkGitHub records the GitHub identity on an existing account. Returns
// ErrDuplicate if another account already owns githubID.
func (s *Store) LinkGitHub(ctx context.Context, accountID, githubID int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE accounts SET github_id = ?, updated_at = ? WHERE id = ?`),
		githubID, now.UTC(), accountID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("sqlstore: linking github id to account %d: %w", accountID, err)
	}
	return expectOneRow(res, "account", accountID)
}

// UpdateProfile changes name and avatar and returns the stored account.
// total_points is never part of the update.
func (s *Store) UpdateProfile(ctx context.Context, id int64, name, avatarURL string, now time.Time) (*model.Account, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE accounts SET name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`),
		name, avatarURL, now.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: updating profile %d: %w", id, err)
	}
	if err := expectOneRow(res, "account", id); err != nil {
		return nil, err
	}
	return s.GetAccountByID(ctx, id)
}

// ProfileStats aggregates the account's sessions and participations.
// TotalStudyTimeHours is left for the caller to derive.
func (s *Store) ProfileStats(ctx context.Context, id int64) (*model.ProfileStats, error) {
	var stats model.ProfileStats
	err := s.db.GetContext(ctx, &stats, s.db.Rebind(
		`SELECT COUNT(*) AS total_sessions,
		        CAST(COALESCE(SUM(duration_seconds), 0) AS BIGINT) AS total_study_time,
		        CAST(COALESCE(SUM(points_earned), 0) AS BIGINT) AS total_points_earned
		 FROM study_sessions WHERE account_id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: aggregating sessions of account %d: %w", id, err)
	}

	err = s.db.GetContext(ctx, &stats.TotalChallenges, s.db.Rebind(
		`SELECT COUNT(*) FROM participants WHERE account_id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: counting participations of account %d: %w", id, err)
	}

	return &stats, nil
}
