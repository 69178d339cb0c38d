package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
)

// ===== AUTH =====

// Register creates an account and signs sess in.
func (c *Client) Register(ctx context.Context, sess *Session, email, password, name string) (*AuthResponse, error) {
	var res AuthResponse
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, body, &res); err != nil {
		return nil, err
	}
	if err := sess.SignIn(c.baseURL, res.Token, res.User); err != nil {
		return &res, fmt.Errorf("client: saving credentials: %w", err)
	}
	return &res, nil
}

// Login exchanges email and password for a token and signs sess in.
func (c *Client) Login(ctx context.Context, sess *Session, email, password string) (*AuthResponse, error) {
	var res AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &res); err != nil {
		return nil, err
	}
	if err := sess.SignIn(c.baseURL, res.Token, res.User); err != nil {
		return &res, fmt.Errorf("client: saving credentials: %w", err)
	}
	return &res, nil
}

// Verify returns the account behind the session token.
func (c *Client) Verify(ctx context.Context, sess *Session) (*User, error) {
	var res struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/verify", sess, nil, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// ===== PROFILE =====

func (c *Client) Profile(ctx context.Context, sess *Session) (*Profile, error) {
	var res Profile
	if err := c.do(ctx, http.MethodGet, "/users/profile", sess, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateProfile sets name and avatar URL; an empty avatarURL clears it.
func (c *Client) UpdateProfile(ctx context.Context, sess *Session, name, avatarURL string) (*User, error) {
	var res struct {
		User User `json:"user"`
	}
	body := map[string]string{"name": name, "avatarUrl": avatarURL}
	if err := c.do(ctx, http.MethodPut, "/users/profile", sess, body, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// RefreshUser re-reads the account into sess. Callers use it after writes
// that change points.
func (c *Client) RefreshUser(ctx context.Context, sess *Session) (*User, error) {
	u, err := c.Verify(ctx, sess)
	if err != nil {
		return nil, err
	}
	return u, sess.SetUser(*u)
}

// ===== CHALLENGES =====

func (c *Client) Challenges(ctx context.Context, sess *Session) ([]Challenge, error) {
	var res struct {
		Challenges []Challenge `json:"challenges"`
	}
	if err := c.do(ctx, http.MethodGet, "/challenges", sess, nil, &res); err != nil {
		return nil, err
	}
	return res.Challenges, nil
}

func (c *Client) CreateChallenge(ctx context.Context, sess *Session, req CreateChallengeRequest) (*Challenge, error) {
	var res struct {
		Challenge Challenge `json:"challenge"`
	}
	if err := c.do(ctx, http.MethodPost, "/challenges", sess, req, &res); err != nil {
		return nil, err
	}
	return &res.Challenge, nil
}

func (c *Client) Challenge(ctx context.Context, sess *Session, id int64) (*Challenge, error) {
	var res struct {
		Challenge Challenge `json:"challenge"`
	}
	if err := c.do(ctx, http.MethodGet, "/challenges/"+strconv.FormatInt(id, 10), sess, nil, &res); err != nil {
		return nil, err
	}
	return &res.Challenge, nil
}

// JoinChallenge enrols the session's account and returns the server message.
func (c *Client) JoinChallenge(ctx context.Context, sess *Session, id int64) (string, error) {
	var res struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/challenges/"+strconv.FormatInt(id, 10)+"/join", sess, nil, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (c *Client) Ranking(ctx context.Context, sess *Session, id int64) ([]RankingEntry, error) {
	var res struct {
		Ranking []RankingEntry `json:"ranking"`
	}
	if err := c.do(ctx, http.MethodGet, "/challenges/"+strconv.FormatInt(id, 10)+"/ranking", sess, nil, &res); err != nil {
		return nil, err
	}
	return res.Ranking, nil
}

// ===== STUDY SESSIONS =====

// Sessions returns one page of the log. Zero page or limit use the server
// defaults.
func (c *Client) Sessions(ctx context.Context, sess *Session, page, limit int) (*SessionPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/study-sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res SessionPage
	if err := c.do(ctx, http.MethodGet, path, sess, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) LogSession(ctx context.Context, sess *Session, req LogSessionRequest) (*StudySession, error) {
	var res struct {
		Session StudySession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/study-sessions", sess, req, &res); err != nil {
		return nil, err
	}
	return &res.Session, nil
}

func (c *Client) UpdateSession(ctx context.Context, sess *Session, id int64, req UpdateSessionRequest) (*StudySession, error) {
	var res struct {
		Session StudySession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPut, "/study-sessions/"+strconv.FormatInt(id, 10), sess, req, &res); err != nil {
		return nil, err
	}
	return &res.Session, nil
}

func (c *Client) DeleteSession(ctx context.Context, sess *Session, id int64) error {
	return c.do(ctx, http.MethodDelete, "/study-sessions/"+strconv.FormatInt(id, 10), sess, nil, nil)
}

// ExportSessions streams the spreadsheet export into w and returns the file
// name suggested by the server.
func (c *Client) ExportSessions(ctx context.Context, sess *Session, w io.Writer) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/study-sessions/export", sess, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}

	name := "study-sessions.xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("client: downloading export: %w", err)
	}
	return name, nil
}

// ===== MISC =====

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var res Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
