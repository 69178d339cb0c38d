package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

type UpdateProfileInput struct {
	Name      string `json:"name"      validate:"required,max=255"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,http_url,max=2048"`
}

// Profile is an account together with its activity statistics.
type Profile struct {
	Account *model.Account
	Stats   *model.ProfileStats
}

type AccountService struct {
	accounts repository.AccountRepository
	now      Clock
	logger   *slog.Logger
}

func NewAccountService(accounts repository.AccountRepository, now Clock, logger *slog.Logger) *AccountService {
	if now == nil {
		now = utcNow
	}
	return &AccountService{accounts: accounts, now: now, logger: logger}
}

func (s *AccountService) Profile(ctx context.Context, accountID int64) (*Profile, error) {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account %d: %w", accountID, err)
	}

	stats, err := s.accounts.ProfileStats(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching stats of %d: %w", accountID, err)
	}
	stats.TotalStudyTimeHours = stats.TotalStudyTimeSeconds / 3600

	return &Profile{Account: account, Stats: stats}, nil
}

// UpdateProfile changes name and avatar. An empty avatarUrl clears it.
// Points are never touched here.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID int64, in UpdateProfileInput) (*model.Account, error) {
	in.Name = cleanText(in.Name)
	in.AvatarURL = strings.TrimSpace(in.AvatarURL)

	if err := checkStruct(in); err != nil {
		return nil, err
	}

	account, err := s.accounts.UpdateProfile(ctx, accountID, in.Name, in.AvatarURL, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/account: updating profile %d: %w", accountID, err)
	}

	s.logger.Info("profile updated", slog.Int64("accountID", accountID))
	return account, nil
}
