package handlers

import (
	"net/http"

	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/models"
	"github.com/storagelabels/backend/internal/service"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FirstName    string `json:"firstName"`
		LastName     string `json:"lastName"`
		EmailAddress string `json:"emailAddress"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	user, err := h.users.Update(r.Context(), &models.User{
		ID:           auth.UserIDFromContext(r.Context()),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		EmailAddress: in.EmailAddress,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.users.GetPreferences(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var in models.Preferences
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	prefs, err := h.users.UpdatePreferences(r.Context(), auth.UserIDFromContext(r.Context()), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
