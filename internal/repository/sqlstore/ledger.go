package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/estudogame/internal/model"
)

// ApplySession records a new session and credits its points.
//
// Inside one transaction:
//  1. lock the owner's account row (PostgreSQL) and make sure it exists
//  2. insert the session
//  3. add PointsEarned to the account total
//  4. for every participation of the owner whose challenge qualifies at
//     now, add PointsEarned and write a session_credits row
//
// The credits are what ReverseSession later subtracts, so a challenge that
// expires or is joined afterwards never changes what gets reversed.
func (s *Store) ApplySession(ctx context.Context, sess *model.StudySession, now time.Time) ([]model.SessionCredit, error) {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	credits := []model.SessionCredit{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var ownerID int64
		err := tx.GetContext(ctx, &ownerID, tx.Rebind(
			`SELECT id FROM accounts WHERE id = ?`+s.forUpdate()), sess.AccountID)
		if err != nil {
			return notFound(err, "account", sess.AccountID)
		}

		err = tx.QueryRowxContext(ctx, tx.Rebind(
			`INSERT INTO study_sessions (account_id, duration_seconds, subject, notes, points_earned, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 RETURNING id`),
			sess.AccountID, sess.DurationSeconds, sess.Subject, sess.Notes, sess.PointsEarned, sess.CreatedAt.UTC(),
		).Scan(&sess.ID)
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE accounts SET total_points = total_points + ? WHERE id = ?`),
			sess.PointsEarned, sess.AccountID,
		); err != nil {
			return fmt.Errorf("crediting account: %w", err)
		}

		// Zero-point sessions still count as sessions but credit nothing.
		if sess.PointsEarned == 0 {
			return nil
		}

		var challengeIDs []int64
		err = tx.SelectContext(ctx, &challengeIDs, tx.Rebind(
			`SELECT p.challenge_id
			 FROM participants p
			 INNER JOIN challenges c ON c.id = p.challenge_id
			 WHERE p.account_id = ?
			   AND c.is_active = TRUE
			   AND (c.end_date IS NULL OR c.end_date > ?)
			 ORDER BY p.challenge_id`+s.forUpdateOf("p")),
			sess.AccountID, now.UTC())
		if err != nil {
			return fmt.Errorf("selecting qualifying participations: %w", err)
		}

		for _, challengeID := range challengeIDs {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				`UPDATE participants SET total_points = total_points + ?
				 WHERE challenge_id = ? AND account_id = ?`),
				sess.PointsEarned, challengeID, sess.AccountID,
			); err != nil {
				return fmt.Errorf("crediting challenge %d: %w", challengeID, err)
			}

			if _, err := tx.ExecContext(ctx, tx.Rebind(
				`INSERT INTO session_credits (session_id, challenge_id, account_id, points) VALUES (?, ?, ?, ?)`),
				sess.ID, challengeID, sess.AccountID, sess.PointsEarned,
			); err != nil {
				return fmt.Errorf("recording credit for challenge %d: %w", challengeID, err)
			}

			credits = append(credits, model.SessionCredit{
				SessionID:   sess.ID,
				ChallengeID: challengeID,
				Points:      sess.PointsEarned,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: applying session for account %d: %w", sess.AccountID, err)
	}

	return credits, nil
}

// ReverseSession deletes the session and undoes exactly its credits.
func (s *Store) ReverseSession(ctx context.Context, accountID, sessionID int64) (*model.StudySession, []model.SessionCredit, error) {
	var sess model.StudySession
	credits := []model.SessionCredit{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var ownerID int64
		err := tx.GetContext(ctx, &ownerID, tx.Rebind(
			`SELECT id FROM accounts WHERE id = ?`+s.forUpdate()), accountID)
		if err != nil {
			return notFound(err, "account", accountID)
		}

		err = tx.GetContext(ctx, &sess, tx.Rebind(
			`SELECT `+sessionColumns+` FROM study_sessions WHERE id = ? AND account_id = ?`+s.forUpdate()),
			sessionID, accountID)
		if err != nil {
			return notFound(err, "study session", sessionID)
		}

		err = tx.SelectContext(ctx, &credits, tx.Rebind(
			`SELECT session_id, challenge_id, points FROM session_credits
			 WHERE session_id = ? ORDER BY challenge_id`), sessionID)
		if err != nil {
			return fmt.Errorf("reading credits: %w", err)
		}

		for _, cr := range credits {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				`UPDATE participants SET total_points = total_points - ?
				 WHERE challenge_id = ? AND account_id = ?`),
				cr.Points, cr.ChallengeID, accountID,
			); err != nil {
				return fmt.Errorf("debiting challenge %d: %w", cr.ChallengeID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`DELETE FROM session_credits WHERE session_id = ?`), sessionID,
		); err != nil {
			return fmt.Errorf("deleting credits: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`DELETE FROM study_sessions WHERE id = ? AND account_id = ?`), sessionID, accountID,
		); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE accounts SET total_points = total_points - ? WHERE id = ?`),
			sess.PointsEarned, accountID,
		); err != nil {
			return fmt.Errorf("debiting account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: reversing session %d: %w", sessionID, err)
	}

	return &sess, credits, nil
}

// forUpdateOf locks only the named table's rows in a joined SELECT.
func (s *Store) forUpdateOf(table string) string {
	if s.isPostgres() {
		return " FOR UPDATE OF " + table
	}
	return ""
}
