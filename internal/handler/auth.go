package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/auth"
	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/service"
)

const stateCookie = "oauth_state"

// UserView is the public JSON shape of an account.
type UserView struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatarUrl"`
	TotalPoints int64     `json:"totalPoints"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newUserView(a *model.Account) UserView {
	return UserView{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		AvatarURL:   a.AvatarURL,
		TotalPoints: a.TotalPoints,
		CreatedAt:   a.CreatedAt,
	}
}

// AuthResponse is returned by every successful sign-in.
type AuthResponse struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    UserView `json:"user"`
}

// AuthHandler manages registration, password login and the GitHub OAuth flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create a password account, return a token
//   - HandleLogin          → exchange email + password for a token
//   - HandleVerify         → return the account behind the bearer token
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, sign in or link, return a token
//
// github is nil when OAuth is not configured; the GitHub routes are then not
// mounted at all.
type AuthHandler struct {
	auth   *service.AuthService
	github *auth.GitHubProvider
	rs     *Responder
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, rs *Responder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, github: github, rs: rs, logger: logger}
}

// GitHubEnabled reports whether the OAuth routes should be mounted.
func (h *AuthHandler) GitHubEnabled() bool {
	return h.github != nil
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"email": "...", "password": "...", "name": "..."}
// RESPONSE: 201 {"message", "token", "user"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Message: "account created",
		Token:   res.Token,
		User:    newUserView(res.Account),
	})
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /api/auth/login
// Unknown email and wrong password both answer 401 "invalid credentials".
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "login successful",
		Token:   res.Token,
		User:    newUserView(res.Account),
	})
}

// HandleVerify returns the currently authenticated account.
//
// HTTP: GET /api/auth/verify
// Auth: Required
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	account, err := h.auth.CurrentAccount(r.Context(), id)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]UserView{"user": newUserView(account)})
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /api/auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and must come
// back unchanged on the callback.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Sign in the linked account, link by email, or create one
//  4. Return the same body as a password login
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		h.rs.writeError(w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		h.rs.writeError(w, r, apperror.Unauthorized("GitHub authorization denied"))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.rs.writeError(w, r, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.rs.writeError(w, r, fmt.Errorf("%w: %v", apperror.Upstream("GitHub authentication failed"), err))
		return
	}

	res, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "login successful",
		Token:   res.Token,
		User:    newUserView(res.Account),
	})
}
