package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

type CreateChallengeInput struct {
	Name        string     `json:"name"        validate:"required,max=255"`
	Description string     `json:"description" validate:"max=1000"`
	Subject     string     `json:"subject"     validate:"required,max=100"`
	EndDate     *time.Time `json:"endDate"`
}

// ChallengeService manages challenges and their participants.
type ChallengeService struct {
	challenges repository.ChallengeRepository
	now        Clock
	logger     *slog.Logger
}

func NewChallengeService(challenges repository.ChallengeRepository, now Clock, logger *slog.Logger) *ChallengeService {
	if now == nil {
		now = utcNow
	}
	return &ChallengeService{challenges: challenges, now: now, logger: logger}
}

// Create stores a new active challenge starting now, with the creator as its
// first participant.
func (s *ChallengeService) Create(ctx context.Context, creatorID int64, in CreateChallengeInput) (*model.Challenge, error) {
	in.Name = cleanText(in.Name)
	in.Subject = cleanText(in.Subject)
	in.Description = cleanText(in.Description)

	if err := checkStruct(in); err != nil {
		return nil, err
	}

	now := s.now()
	var end *time.Time
	if in.EndDate != nil {
		if !in.EndDate.After(now) {
			return nil, apperror.ValidationFailed("endDate", "endDate must be in the future")
		}
		e := in.EndDate.UTC()
		end = &e
	}

	c := &model.Challenge{
		Name:        in.Name,
		Description: in.Description,
		Subject:     in.Subject,
		CreatorID:   creatorID,
		StartDate:   now,
		EndDate:     end,
		IsActive:    true,
		CreatedAt:   now,
	}
	if err := s.challenges.CreateChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("service/challenge: creating challenge: %w", err)
	}

	s.logger.Info("challenge created",
		slog.Int64("challengeID", c.ID),
		slog.Int64("creatorID", creatorID),
	)

	// Re-read for creatorName; fall back to what was stored.
	stored, err := s.challenges.GetChallenge(ctx, c.ID)
	if err != nil {
		s.logger.Warn("re-reading new challenge failed", slog.Int64("challengeID", c.ID), slog.String("error", err.Error()))
		return c, nil
	}
	return stored, nil
}

// Join enrols accountID. Checks run in order and the first failure wins:
// unknown challenge, challenge not active, already participating.
func (s *ChallengeService) Join(ctx context.Context, challengeID, accountID int64) error {
	c, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("service/challenge: joining %d: %w", challengeID, err)
	}

	now := s.now()
	if !c.Qualifies(now) {
		return apperror.Conflict("challenge is not active")
	}

	already, err := s.challenges.IsParticipant(ctx, challengeID, accountID)
	if err != nil {
		return fmt.Errorf("service/challenge: checking participation: %w", err)
	}
	if already {
		return errAlreadyParticipating()
	}

	err = s.challenges.AddParticipant(ctx, &model.Participant{
		ChallengeID: challengeID,
		AccountID:   accountID,
		JoinedAt:    now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return errAlreadyParticipating()
		}
		return fmt.Errorf("service/challenge: adding participant: %w", err)
	}

	s.logger.Info("challenge joined", slog.Int64("challengeID", challengeID), slog.Int64("accountID", accountID))
	return nil
}

func (s *ChallengeService) Get(ctx context.Context, id int64) (*model.Challenge, error) {
	c, err := s.challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/challenge: %w", err)
	}
	return c, nil
}

// List returns the challenges a session logged now would count towards.
func (s *ChallengeService) List(ctx context.Context) ([]model.Challenge, error) {
	list, err := s.challenges.ListQualifyingChallenges(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/challenge: %w", err)
	}
	return list, nil
}

// Ranking returns the leaderboard; an unknown challenge is not found rather
// than an empty board.
func (s *ChallengeService) Ranking(ctx context.Context, id int64) ([]model.RankingEntry, error) {
	if _, err := s.challenges.GetChallenge(ctx, id); err != nil {
		return nil, fmt.Errorf("service/challenge: %w", err)
	}

	entries, err := s.challenges.Ranking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/challenge: %w", err)
	}
	return entries, nil
}

// ExpireChallenges clears the active flag of challenges past their end date.
// The scheduler calls it periodically.
func (s *ChallengeService) ExpireChallenges(ctx context.Context) (int64, error) {
	n, err := s.challenges.ExpireChallenges(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/challenge: %w", err)
	}
	if n > 0 {
		s.logger.Info("challenges expired", slog.Int64("count", n))
	}
	return n, nil
}

func errAlreadyParticipating() error {
	return apperror.Conflict("already participating in this challenge")
}
