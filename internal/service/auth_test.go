package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/auth"
)

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister_NewAccount(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.auth.Register(context.Background(), RegisterInput{
		Email:    "  Ana@Example.COM ",
		Password: "secret123",
		Name:     "Ana",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if res.Account.ID == 0 {
		t.Error("Register() returned account without ID")
	}
	if res.Account.Email != "ana@example.com" {
		t.Errorf("Email = %q, want normalised %q", res.Account.Email, "ana@example.com")
	}
	if res.Account.PasswordHash == "" || res.Account.PasswordHash == "secret123" {
		t.Error("password was not hashed")
	}

	id, err := env.tokens.Validate(res.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if id.AccountID != res.Account.ID || id.Email != "ana@example.com" {
		t.Errorf("token identity = %+v", id)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana@example.com", "Ana")

	_, err := env.auth.Register(context.Background(), RegisterInput{Email: "ANA@example.com", Password: "secret123", Name: "Other"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Register() error = %v, want ErrConflict", err)
	}
	if err.Error() != "email already registered" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestRegister_DuplicateRacePastPreCheck(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana@example.com", "Ana")

	// The pre-check misses; the unique index still rejects the insert.
	env.store.hideEmail = true
	_, err := env.auth.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "secret123", Name: "Ana"})
	if !errors.Is(err, apperror.ErrConflict) || err.Error() != "email already registered" {
		t.Errorf("Register() error = %v, want the same conflict as the pre-check", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing email", RegisterInput{Password: "secret123", Name: "A"}, "email"},
		{"bad email", RegisterInput{Email: "not-an-email", Password: "secret123", Name: "A"}, "email"},
		{"short password", RegisterInput{Email: "a@b.co", Password: "12345", Name: "A"}, "password"},
		{"missing name", RegisterInput{Email: "a@b.co", Password: "secret123"}, "name"},
		{"markup-only name", RegisterInput{Email: "a@b.co", Password: "secret123", Name: "<b></b>"}, "name"},
		{"long name", RegisterInput{Email: "a@b.co", Password: "secret123", Name: strings.Repeat("n", 256)}, "name"},
		{"password over bcrypt limit", RegisterInput{Email: "a@b.co", Password: strings.Repeat("p", 73), Name: "A"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.auth.Register(context.Background(), tt.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				t.Fatal("error is not an AppError")
			}
			if _, ok := appErr.Fields[tt.field]; !ok {
				t.Errorf("Fields = %v, want entry for %q", appErr.Fields, tt.field)
			}
		})
	}
}

func TestRegister_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.failCreateAccount = errors.New("disk full")

	_, err := env.auth.Register(context.Background(), RegisterInput{Email: "a@b.co", Password: "secret123", Name: "A"})
	if err == nil || errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Register() error = %v, want an internal error", err)
	}
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	acc := env.register(t, "ana@example.com", "Ana")

	res, err := env.auth.Login(context.Background(), LoginInput{Email: " ANA@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Account.ID != acc.ID || res.Token == "" {
		t.Errorf("Login() = %+v", res)
	}
}

// Unknown email and wrong password must be indistinguishable to the client.
func TestLogin_FailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana@example.com", "Ana")

	_, unknown := env.auth.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "secret123"})
	_, wrong := env.auth.Login(context.Background(), LoginInput{Email: "ana@example.com", Password: "wrong-pass"})

	for name, err := range map[string]error{"unknown email": unknown, "wrong password": wrong} {
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Errorf("%s: error = %v, want ErrUnauthorized", name, err)
		}
	}
	if unknown.Error() != wrong.Error() {
		t.Errorf("messages differ: %q vs %q", unknown.Error(), wrong.Error())
	}
	if unknown.Error() != "invalid credentials" {
		t.Errorf("message = %q, want %q", unknown.Error(), "invalid credentials")
	}
}

func TestLogin_GitHubOnlyAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.LoginGitHub(context.Background(), &auth.GitHubUser{ID: 9, Login: "octo", Email: "octo@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.auth.Login(context.Background(), LoginInput{Email: "octo@example.com", Password: ""})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty password error = %v, want ErrValidation", err)
	}
	_, err = env.auth.Login(context.Background(), LoginInput{Email: "octo@example.com", Password: "anything"})
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// CurrentAccount / LoginGitHub TESTS
// =========================================================================

func TestCurrentAccount(t *testing.T) {
	env := newTestEnv(t)
	acc := env.register(t, "ana@example.com", "Ana")

	got, err := env.auth.CurrentAccount(context.Background(), acc.ID)
	if err != nil || got.ID != acc.ID {
		t.Fatalf("CurrentAccount() = %v, %v", got, err)
	}

	if _, err := env.auth.CurrentAccount(context.Background(), 999); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("CurrentAccount(missing) error = %v, want ErrUnauthorized", err)
	}
}

func TestLoginGitHub_CreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	gh := &auth.GitHubUser{ID: 42, Login: "octocat", Email: "Octo@GitHub.com", AvatarURL: "https://avatars.test/42"}

	first, err := env.auth.LoginGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("LoginGitHub() error = %v", err)
	}
	if first.Account.Name != "octocat" || first.Account.Email != "octo@github.com" {
		t.Errorf("account = %+v", first.Account)
	}
	if first.Account.GitHubID == nil || *first.Account.GitHubID != 42 {
		t.Error("GitHubID not stored")
	}

	second, err := env.auth.LoginGitHub(context.Background(), gh)
	if err != nil {
		t.Fatal(err)
	}
	if second.Account.ID != first.Account.ID {
		t.Errorf("second login created account %d, want %d", second.Account.ID, first.Account.ID)
	}
}

func TestLoginGitHub_LinksExistingEmail(t *testing.T) {
	env := newTestEnv(t)
	acc := env.register(t, "ana@example.com", "Ana")

	res, err := env.auth.LoginGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "ana", Name: "Ana GH", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("LoginGitHub() error = %v", err)
	}
	if res.Account.ID != acc.ID {
		t.Errorf("linked to %d, want %d", res.Account.ID, acc.ID)
	}

	byGH, err := env.store.GetAccountByGitHubID(context.Background(), 7)
	if err != nil || byGH.ID != acc.ID {
		t.Errorf("GetAccountByGitHubID() = %v, %v", byGH, err)
	}
	// Name stays what the user registered with.
	if byGH.Name != "Ana" {
		t.Errorf("Name = %q, want %q", byGH.Name, "Ana")
	}
}

func TestLoginGitHub_Invalid(t *testing.T) {
	env := newTestEnv(t)
	for name, gh := range map[string]*auth.GitHubUser{
		"nil":      nil,
		"no id":    {Login: "x", Email: "x@example.com"},
		"no email": {ID: 3, Login: "x"},
	} {
		if _, err := env.auth.LoginGitHub(context.Background(), gh); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("%s: error = %v, want ErrValidation", name, err)
		}
	}
}
