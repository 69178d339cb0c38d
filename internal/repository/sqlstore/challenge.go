package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

// challengeSelect reads a challenge with its creator's name and the current
// participant count. The count is a scalar subquery so no GROUP BY is needed.
const challengeSelect = `
	SELECT c.id, c.name, c.description, c.subject, c.creator_id, c.start_date,
	       c.end_date, c.is_active, c.created_at,
	       a.name AS creator_name,
	       (SELECT COUNT(*) FROM participants p WHERE p.challenge_id = c.id) AS participants_count
	FROM challenges c
	INNER JOIN accounts a ON a.id = c.creator_id`

// CreateChallenge inserts c and enrols the creator with zero points, both in
// one transaction.
func (s *Store) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.StartDate.IsZero() {
		c.StartDate = c.CreatedAt
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, tx.Rebind(
			`INSERT INTO challenges (name, description, subject, creator_id, start_date, end_date, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING id`),
			c.Name, c.Description, c.Subject, c.CreatorID,
			c.StartDate.UTC(), utcPtr(c.EndDate), c.IsActive, c.CreatedAt.UTC(),
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("inserting challenge: %w", err)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO participants (challenge_id, account_id, total_points, joined_at) VALUES (?, ?, 0, ?)`),
			c.ID, c.CreatorID, c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("enrolling creator: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: creating challenge %q: %w", c.Name, err)
	}

	c.ParticipantsCount = 1
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id int64) (*model.Challenge, error) {
	var c model.Challenge
	err := s.db.GetContext(ctx, &c, s.db.Rebind(challengeSelect+` WHERE c.id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting challenge %d: %w", id, notFound(err, "challenge", id))
	}
	return &c, nil
}

// ListQualifyingChallenges returns every challenge in which a session logged
// at now would earn points, newest first.
func (s *Store) ListQualifyingChallenges(ctx context.Context, now time.Time) ([]model.Challenge, error) {
	challenges := []model.Challenge{}
	err := s.db.SelectContext(ctx, &challenges, s.db.Rebind(challengeSelect+`
		WHERE c.is_active = TRUE AND (c.end_date IS NULL OR c.end_date > ?)
		ORDER BY c.created_at DESC, c.id DESC`), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing challenges: %w", err)
	}
	return challenges, nil
}

func (s *Store) IsParticipant(ctx context.Context, challengeID, accountID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM participants WHERE challenge_id = ? AND account_id = ?`),
		challengeID, accountID)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking participation: %w", err)
	}
	return n > 0, nil
}

// AddParticipant enrols an account with zero points. The composite primary
// key turns a second join into ErrDuplicate.
func (s *Store) AddParticipant(ctx context.Context, p *model.Participant) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	p.TotalPoints = 0

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO participants (challenge_id, account_id, total_points, joined_at) VALUES (?, ?, 0, ?)`),
		p.ChallengeID, p.AccountID, p.JoinedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("sqlstore: adding participant %d to challenge %d: %w", p.AccountID, p.ChallengeID, err)
	}
	return nil
}

// Ranking lists the challenge's participants by points. Ties keep the order
// in which they joined, then account id; positions follow that order.
func (s *Store) Ranking(ctx context.Context, challengeID int64) ([]model.RankingEntry, error) {
	entries := []model.RankingEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(
		`SELECT p.account_id, a.name, a.avatar_url, p.total_points
		 FROM participants p
		 INNER JOIN accounts a ON a.id = p.account_id
		 WHERE p.challenge_id = ?
		 ORDER BY p.total_points DESC, p.joined_at ASC, p.account_id ASC`), challengeID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: ranking challenge %d: %w", challengeID, err)
	}

	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries, nil
}

func (s *Store) ExpireChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE challenges SET is_active = FALSE
		 WHERE is_active = TRUE AND end_date IS NOT NULL AND end_date <= ?`), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlstore: expiring challenges: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: expiring challenges: %w", err)
	}
	return n, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
