// Package service holds the business rules of the application.
//
//	Handler (HTTP) → Service (rules) → Repository (storage)
//
// Services take repository interfaces, never concrete stores, and return
// *apperror.AppError values for every failure a client can cause. They know
// nothing about HTTP, so the CLI tests and background jobs can reuse them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/auth"
	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/repository"
)

// errInvalidCredentials is the single answer for a failed login, whether the
// email is unknown or the password is wrong.
var errInvalidCredentials = apperror.Unauthorized("invalid credentials")

type RegisterInput struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"     validate:"required,max=255"`
}

type LoginInput struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult bundles the account with a freshly issued token.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// AuthService registers accounts and exchanges credentials for tokens.
//
// DEPENDENCIES:
//   - accounts   repository.AccountRepository
//   - tokens     *auth.TokenService    JWT issue/verify
//   - passwords  *auth.PasswordService bcrypt
type AuthService struct {
	accounts  repository.AccountRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	now       Clock
	logger    *slog.Logger
}

func NewAuthService(
	accounts repository.AccountRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	now Clock,
	logger *slog.Logger,
) *AuthService {
	if now == nil {
		now = utcNow
	}
	return &AuthService{
		accounts:  accounts,
		tokens:    tokens,
		passwords: passwords,
		now:       now,
		logger:    logger,
	}
}

// Register creates a password account and signs it in.
//
// The email pre-check gives the friendly message in the common case; the
// unique index decides when two registrations race, and both paths end in
// the same conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = cleanText(in.Name)

	if err := checkStruct(in); err != nil {
		return nil, err
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	_, err := s.accounts.GetAccountByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, errEmailTaken()
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	now := s.now()
	account := &model.Account{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errEmailTaken()
		}
		return nil, fmt.Errorf("service/auth: creating account: %w", err)
	}

	s.logger.Info("account registered", slog.Int64("accountID", account.ID))
	return s.issue(account)
}

// Login verifies email and password. Every failure is the same 401 and, for
// an unknown email, still pays for one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := checkStruct(in); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccountByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Burn(in.Password)
			s.logger.Warn("login failed", slog.String("reason", "unknown email"))
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up account: %w", err)
	}

	// Accounts created through GitHub have no password.
	if account.PasswordHash == "" {
		s.passwords.Burn(in.Password)
		s.logger.Warn("login failed", slog.Int64("accountID", account.ID), slog.String("reason", "no password set"))
		return nil, errInvalidCredentials
	}

	if err := s.passwords.Verify(account.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("password verification failed", slog.Int64("accountID", account.ID), slog.String("error", err.Error()))
		} else {
			s.logger.Warn("login failed", slog.Int64("accountID", account.ID), slog.String("reason", "wrong password"))
		}
		return nil, errInvalidCredentials
	}

	return s.issue(account)
}

// CurrentAccount returns the account behind a verified token.
func (s *AuthService) CurrentAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Token is valid but the account is gone.
			return nil, apperror.Unauthorized("account no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching account %d: %w", accountID, err)
	}
	return account, nil
}

// LoginGitHub signs in with a GitHub profile:
//  1. an account already linked to the GitHub id
//  2. otherwise an account with the same email, which gets linked
//  3. otherwise a new password-less account
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, apperror.ValidationFailed("github", "GitHub profile is missing")
	}

	account, err := s.accounts.GetAccountByGitHubID(ctx, gh.ID)
	if err == nil {
		return s.issue(account)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up github account: %w", err)
	}

	email := normalizeEmail(gh.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "GitHub account has no verified email")
	}
	now := s.now()

	account, err = s.accounts.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.accounts.LinkGitHub(ctx, account.ID, gh.ID, now); err != nil {
			return nil, fmt.Errorf("service/auth: linking github to account %d: %w", account.ID, err)
		}
		id := gh.ID
		account.GitHubID = &id
		s.logger.Info("github linked", slog.Int64("accountID", account.ID), slog.String("login", gh.Login))
		return s.issue(account)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up account by email: %w", err)
	}

	name := cleanText(gh.DisplayName())
	if name == "" {
		name = email
	}
	if len([]rune(name)) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}

	id := gh.ID
	account = &model.Account{
		Email:     email,
		Name:      name,
		AvatarURL: gh.AvatarURL,
		GitHubID:  &id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict("account already exists, sign in again")
		}
		return nil, fmt.Errorf("service/auth: creating github account: %w", err)
	}

	s.logger.Info("account registered via github", slog.Int64("accountID", account.ID), slog.String("login", gh.Login))
	return s.issue(account)
}

func (s *AuthService) issue(account *model.Account) (*AuthResult, error) {
	token, err := s.tokens.Generate(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for account %d: %w", account.ID, err)
	}
	return &AuthResult{Account: account, Token: token}, nil
}

func errEmailTaken() error {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: "email already registered",
		Field:   "email",
	}
}
