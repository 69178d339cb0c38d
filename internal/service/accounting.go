package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

// PointsPerHour is what a full hour of study earns.
const PointsPerHour = 10

// secondsPerPoint is 3600 / PointsPerHour. Dividing once keeps the result
// exact for any int64 duration.
const secondsPerPoint = 3600 / PointsPerHour

// Points converts a study duration into points: 10 per hour, rounded down.
// 3600s → 10, 1800s → 5, 59s → 0.
func Points(durationSeconds int64) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	return durationSeconds / secondsPerPoint
}

// RankingNotifier is told which challenges had their standings change.
// The realtime hub implements it; nil disables notifications.
type RankingNotifier interface {
	RankingChanged(ctx context.Context, challengeIDs ...int64)
}

// AccountingService is the only writer of point totals. It wraps the ledger
// transactions and tells the notifier which challenges moved.
type AccountingService struct {
	ledger   repository.Ledger
	notifier RankingNotifier
	now      Clock
	logger   *slog.Logger
}

func NewAccountingService(ledger repository.Ledger, notifier RankingNotifier, now Clock, logger *slog.Logger) *AccountingService {
	if now == nil {
		now = utcNow
	}
	return &AccountingService{ledger: ledger, notifier: notifier, now: now, logger: logger}
}

// ApplySession computes the session's points, stores it and credits the
// owner and every qualifying participation.
func (s *AccountingService) ApplySession(ctx context.Context, sess *model.StudySession) ([]model.SessionCredit, error) {
	now := s.now()
	sess.PointsEarned = Points(sess.DurationSeconds)
	sess.CreatedAt = now

	credits, err := s.ledger.ApplySession(ctx, sess, now)
	if err != nil {
		return nil, fmt.Errorf("service/accounting: applying session: %w", err)
	}

	s.logger.Info("study session applied",
		slog.Int64("accountID", sess.AccountID),
		slog.Int64("sessionID", sess.ID),
		slog.Int64("points", sess.PointsEarned),
		slog.Int("challengesCredited", len(credits)),
	)
	s.notify(ctx, credits)
	return credits, nil
}

// ReverseSession deletes the caller's session and withdraws exactly the
// points it was credited with.
func (s *AccountingService) ReverseSession(ctx context.Context, accountID, sessionID int64) (*model.StudySession, error) {
	sess, credits, err := s.ledger.ReverseSession(ctx, accountID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service/accounting: reversing session %d: %w", sessionID, err)
	}

	s.logger.Info("study session reversed",
		slog.Int64("accountID", accountID),
		slog.Int64("sessionID", sessionID),
		slog.Int64("points", sess.PointsEarned),
		slog.Int("challengesDebited", len(credits)),
	)
	s.notify(ctx, credits)
	return sess, nil
}

func (s *AccountingService) notify(ctx context.Context, credits []model.SessionCredit) {
	if s.notifier == nil || len(credits) == 0 {
		return
	}
	ids := make([]int64, 0, len(credits))
	for _, c := range credits {
		ids = append(ids, c.ChallengeID)
	}
	s.notifier.RankingChanged(ctx, ids...)
}
