package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

type CreateSessionInput struct {
	DurationSeconds int64  `json:"durationSeconds" validate:"required,min=1"`
	Subject         string `json:"subject"         validate:"max=255"`
	Notes           string `json:"notes"           validate:"max=1000"`
}

// UpdateSessionInput is a partial update: nil fields keep their value.
type UpdateSessionInput struct {
	Subject *string `json:"subject" validate:"omitempty,max=255"`
	Notes   *string `json:"notes"   validate:"omitempty,max=1000"`
}

// SessionService handles the study log. Point changes go through the
// AccountingService; this service never adjusts totals itself.
type SessionService struct {
	sessions   repository.SessionRepository
	accounting *AccountingService
	logger     *slog.Logger
}

func NewSessionService(sessions repository.SessionRepository, accounting *AccountingService, logger *slog.Logger) *SessionService {
	return &SessionService{sessions: sessions, accounting: accounting, logger: logger}
}

// PageParams resolves raw page/limit query values. Missing, non-numeric or
// non-positive values fall back to the defaults; limit is capped at MaxLimit.
func PageParams(rawPage, rawLimit string) (page, limit int) {
	page = DefaultPage
	if n, err := strconv.Atoi(rawPage); err == nil && n >= 1 {
		page = n
	}
	limit = DefaultLimit
	if n, err := strconv.Atoi(rawLimit); err == nil && n >= 1 {
		limit = min(n, MaxLimit)
	}
	return page, limit
}

// List returns one page of the caller's sessions, newest first.
func (s *SessionService) List(ctx context.Context, accountID int64, page, limit int) (*model.SessionPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	sessions, total, err := s.sessions.ListSessions(ctx, accountID, repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("service/session: listing: %w", err)
	}

	return &model.SessionPage{
		Sessions:   sessions,
		Pagination: model.NewPagination(page, limit, total),
	}, nil
}

// Create logs a study session and credits its points.
func (s *SessionService) Create(ctx context.Context, accountID int64, in CreateSessionInput) (*model.StudySession, error) {
	in.Subject = cleanText(in.Subject)
	in.Notes = cleanText(in.Notes)

	if err := checkStruct(in); err != nil {
		return nil, err
	}

	sess := &model.StudySession{
		AccountID:       accountID,
		DurationSeconds: in.DurationSeconds,
		Subject:         in.Subject,
		Notes:           in.Notes,
	}
	if _, err := s.accounting.ApplySession(ctx, sess); err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}
	return sess, nil
}

// Update changes subject and/or notes. Duration and points are fixed once
// the session is logged.
func (s *SessionService) Update(ctx context.Context, accountID, sessionID int64, in UpdateSessionInput) (*model.StudySession, error) {
	if in.Subject != nil {
		v := cleanText(*in.Subject)
		in.Subject = &v
	}
	if in.Notes != nil {
		v := cleanText(*in.Notes)
		in.Notes = &v
	}
	if err := checkStruct(in); err != nil {
		return nil, err
	}

	sess, err := s.sessions.GetSession(ctx, accountID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}

	if in.Subject != nil {
		sess.Subject = *in.Subject
	}
	if in.Notes != nil {
		sess.Notes = *in.Notes
	}

	if err := s.sessions.UpdateSessionText(ctx, sess); err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}

	s.logger.Info("study session updated", slog.Int64("accountID", accountID), slog.Int64("sessionID", sessionID))
	return sess, nil
}

// Delete removes the caller's session and withdraws its points.
func (s *SessionService) Delete(ctx context.Context, accountID, sessionID int64) error {
	if _, err := s.accounting.ReverseSession(ctx, accountID, sessionID); err != nil {
		return fmt.Errorf("service/session: %w", err)
	}
	return nil
}

// All returns every session of the caller, for export.
func (s *SessionService) All(ctx context.Context, accountID int64) ([]model.StudySession, error) {
	sessions, err := s.sessions.AllSessions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}
	return sessions, nil
}
