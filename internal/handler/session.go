package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/estudogame/internal/export"
	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/service"
)

// SessionHandler serves the study log of the authenticated caller.
type SessionHandler struct {
	sessions *service.SessionService
	rs       *Responder
	now      func() time.Time
	logger   *slog.Logger
}

func NewSessionHandler(sessions *service.SessionService, rs *Responder, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, rs: rs, now: time.Now, logger: logger}
}

type sessionResponse struct {
	Message string              `json:"message"`
	Session *model.StudySession `json:"session"`
}

// HandleList returns one page of the caller's sessions, newest first.
//
// HTTP: GET /api/study-sessions?page=1&limit=10
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	page, limit := service.PageParams(r.URL.Query().Get("page"), r.URL.Query().Get("limit"))
	result, err := h.sessions.List(r.Context(), id, page, limit)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	if result.Sessions == nil {
		result.Sessions = []model.StudySession{}
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCreate logs a session and credits its points.
//
// HTTP: POST /api/study-sessions
// REQUEST BODY: {"durationSeconds": 3600, "subject": "...", "notes": "..."}
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	var in service.CreateSessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	sess, err := h.sessions.Create(r.Context(), id, in)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Message: "session logged", Session: sess})
}

// HandleUpdate changes subject and/or notes of a session.
//
// HTTP: PUT /api/study-sessions/{id}
func (h *SessionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	id, err := parseID(r, "id", "study session")
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	var in service.UpdateSessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	sess, err := h.sessions.Update(r.Context(), caller, id, in)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Message: "session updated", Session: sess})
}

// HandleDelete removes a session and withdraws its points.
//
// HTTP: DELETE /api/study-sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	id, err := parseID(r, "id", "study session")
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	if err := h.sessions.Delete(r.Context(), caller, id); err != nil {
		h.rs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "session deleted"})
}

// HandleExport downloads every session of the caller as a spreadsheet.
//
// HTTP: GET /api/study-sessions/export
//
// The workbook is rendered into memory first so a failure can still be
// answered with a JSON error instead of a truncated file.
func (h *SessionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	sessions, err := h.sessions.All(r.Context(), id)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteSessions(&buf, sessions); err != nil {
		h.rs.writeError(w, r, fmt.Errorf("handler/session: exporting: %w", err))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(h.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export: writing response", slog.Int64("accountID", id), slog.String("error", err.Error()))
	}
}
