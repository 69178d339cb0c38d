package handler

import (
	"net/http"

	"github.com/sakif/estudogame/internal/model"
	"github.com/sakif/estudogame/internal/service"
)

// ProfileResponse is the body of GET /api/users/profile.
type ProfileResponse struct {
	User  UserView           `json:"user"`
	Stats model.ProfileStats `json:"stats"`
}

type AccountHandler struct {
	accounts *service.AccountService
	rs       *Responder
}

func NewAccountHandler(accounts *service.AccountService, rs *Responder) *AccountHandler {
	return &AccountHandler{accounts: accounts, rs: rs}
}

// HandleGetProfile returns the caller with activity statistics.
//
// HTTP: GET /api/users/profile
func (h *AccountHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	p, err := h.accounts.Profile(r.Context(), id)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{User: newUserView(p.Account), Stats: *p.Stats})
}

// HandleUpdateProfile changes name and avatar.
//
// HTTP: PUT /api/users/profile
// REQUEST BODY: {"name": "...", "avatarUrl": "https://..."}
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	account, err := h.accounts.UpdateProfile(r.Context(), id, in)
	if err != nil {
		h.rs.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string   `json:"message"`
		User    UserView `json:"user"`
	}{"profile updated", newUserView(account)})
}
