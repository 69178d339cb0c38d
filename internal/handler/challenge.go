package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/auth"
	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/realtime"
	"github.com/sakif/estudogame/internal/service"
)

// createChallengeRequest accepts endDate as RFC 3339 or as a bare
// YYYY-MM-DD date (end of that day, UTC). An empty string means open-ended.
type createChallengeRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Subject     string  `json:"subject"`
	EndDate     *string `json:"endDate"`
}

func (req createChallengeRequest) input() (service.CreateChallengeInput, error) {
	in := service.CreateChallengeInput{
		Name:        req.Name,
		Description: req.Description,
		Subject:     req.Subject,
	}
	if req.EndDate == nil || strings.TrimSpace(*req.EndDate) == "" {
		return in, nil
	}

	raw := strings.TrimSpace(*req.EndDate)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		in.EndDate = &t
		return in, nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		t := d.Add(24*time.Hour - time.Second)
		in.EndDate = &t
		return in, nil
	}
	return in, apperror.ValidationFailed("endDate", "endDate must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}

// ChallengeHandler serves challenge listing, creation, joining and rankings,
// plus the live ranking websocket.
type ChallengeHandler struct {
	challenges *service.ChallengeService
	hub        *realtime.Hub
	tokens     *auth.TokenService
	rs         *Responder
	logger     *slog.Logger
}

func NewChallengeHandler(
	challenges *service.ChallengeService,
	hub *realtime.Hub,
	tokens *auth.TokenService,
	rs *Responder,
	logger *slog.Logger,
) *ChallengeHandler {
	return &ChallengeHandler{
		challenges: challenges,
		hub:        hub,
		tokens:     tokens,
		rs:         rs,
		logger:     logger,
	}
}

// HandleList returns the challenges currently accepting points.
//
// HTTP: GET /api/challenges
func (h *ChallengeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.challenges.List(r.Context())
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Challenge{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Challenge{"challenges": list})
}

// HandleCreate creates a challenge with the caller as its first participant.
//
// HTTP: POST /api/challenges
// REQUEST BODY: {"name", "description", "subject", "endDate"?}
// RESPONSE: 201 {"message", "challenge"}
func (h *ChallengeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	var req createChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	c, err := h.challenges.Create(r.Context(), id, in)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message   string           `json:"message"`
		Challenge *model.Challenge `json:"challenge"`
	}{"challenge created", c})
}

// HandleGet returns one challenge.
//
// HTTP: GET /api/challenges/{id}
func (h *ChallengeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", "challenge")
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	c, err := h.challenges.Get(r.Context(), id)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.Challenge{"challenge": c})
}

// HandleJoin enrols the caller.
//
// HTTP: POST /api/challenges/{id}/join
func (h *ChallengeHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	id, err := parseID(r, "id", "challenge")
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	if err := h.challenges.Join(r.Context(), id, caller); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	// The new participant shows up on the board with zero points.
	h.hub.RankingChanged(r.Context(), id)

	writeJSON(w, http.StatusOK, MessageResponse{Message: "joined challenge"})
}

// HandleRanking returns the leaderboard.
//
// HTTP: GET /api/challenges/{id}/ranking
func (h *ChallengeHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id", "challenge")
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	entries, err := h.challenges.Ranking(r.Context(), id)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.RankingEntry{"ranking": entries})
}

// HandleLive streams ranking snapshots over a websocket.
//
// HTTP: GET /api/challenges/{id}/live?token=<jwt>
//
// Browsers cannot set headers on a websocket handshake, so the token may come
// as a query parameter. A bearer header is accepted as well.
func (h *ChallengeHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	raw, ok := auth.BearerToken(r)
	if !ok {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		h.rs.writeError(w, r, apperror.Unauthorized("authentication required"))
		return
	}
	if _, err := h.tokens.Validate(raw); err != nil {
		h.rs.writeError(w, r, apperror.Unauthorized("invalid token"))
		return
	}

	id, err := parseID(r, "id", "challenge")
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	if _, err := h.challenges.Get(r.Context(), id); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	if err := h.hub.Serve(w, r, id); err != nil {
		h.rs.writeError(w, r, err)
	}
}
