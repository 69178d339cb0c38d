package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a backing dependency, such as the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse carries Error only when the service is unavailable, so
// clients can read every failure body the same way.
type HealthResponse struct {
	Error     string `json:"error,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler answers load-balancer probes.
type HealthHandler struct {
	db  Pinger
	now func() time.Time
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now}
}

// HandleHealth reports whether the API and its database are reachable.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ts := h.now().UTC().Format(time.RFC3339)

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Error:     "database unavailable",
				Status:    "UNAVAILABLE",
				Message:   "database unreachable",
				Timestamp: ts,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Message:   "estudogame API is running",
		Timestamp: ts,
	})
}
