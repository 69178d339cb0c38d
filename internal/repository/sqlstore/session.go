package sqlstore

import (
	"context"
	"fmt"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

const sessionColumns = `id, account_id, duration_seconds, subject, notes, points_earned, created_at`

// GetSession loads a session owned by accountID. A session that exists but
// belongs to someone else is reported as not found.
func (s *Store) GetSession(ctx context.Context, accountID, id int64) (*model.StudySession, error) {
	var sess model.StudySession
	err := s.db.GetContext(ctx, &sess, s.db.Rebind(
		`SELECT `+sessionColumns+` FROM study_sessions WHERE id = ? AND account_id = ?`), id, accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting session %d: %w", id, notFound(err, "study session", id))
	}
	return &sess, nil
}

// ListSessions returns one page of the account's sessions, newest first, and
// the total number of sessions the account has.
func (s *Store) ListSessions(ctx context.Context, accountID int64, opts repository.ListOptions) ([]model.StudySession, int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, s.db.Rebind(
		`SELECT COUNT(*) FROM study_sessions WHERE account_id = ?`), accountID)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: counting sessions of account %d: %w", accountID, err)
	}

	sessions := []model.StudySession{}
	err = s.db.SelectContext(ctx, &sessions, s.db.Rebind(
		`SELECT `+sessionColumns+` FROM study_sessions
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`), accountID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: listing sessions of account %d: %w", accountID, err)
	}

	return sessions, total, nil
}

// AllSessions returns every session of the account, newest first. Used by the
// spreadsheet export.
func (s *Store) AllSessions(ctx context.Context, accountID int64) ([]model.StudySession, error) {
	sessions := []model.StudySession{}
	err := s.db.SelectContext(ctx, &sessions, s.db.Rebind(
		`SELECT `+sessionColumns+` FROM study_sessions
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC`), accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: reading sessions of account %d: %w", accountID, err)
	}
	return sessions, nil
}

func (s *Store) UpdateSessionText(ctx context.Context, sess *model.StudySession) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE study_sessions SET subject = ?, notes = ? WHERE id = ? AND account_id = ?`),
		sess.Subject, sess.Notes, sess.ID, sess.AccountID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating session %d: %w", sess.ID, err)
	}
	return expectOneRow(res, "study session", sess.ID)
}
