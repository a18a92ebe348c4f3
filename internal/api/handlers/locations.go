package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/models"
	"github.com/storagelabels/backend/internal/service"
)

type LocationHandler struct {
	locations *service.LocationService
}

func NewLocationHandler(locations *service.LocationService) *LocationHandler {
	return &LocationHandler{locations: locations}
}

func locationID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindInvalid, "invalid location ID")
	}
	return id, nil
}

type locationRequest struct {
	Name string `json:"name"`
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in locationRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	loc, err := h.locations.Create(r.Context(), auth.UserIDFromContext(r.Context()), in.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	locs, err := h.locations.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locations": locs, "count": len(locs)})
}

func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := locationID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	loc, err := h.locations.Get(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := locationID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var in locationRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	loc, err := h.locations.Update(r.Context(), auth.UserIDFromContext(r.Context()), id, in.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := locationID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := h.locations.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *LocationHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	id, err := locationID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	grants, err := h.locations.ListGrants(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants, "count": len(grants)})
}

type grantRequest struct {
	UserID      string `json:"user_id"`
	AccessLevel string `json:"access_level"`
}

// SetGrant upserts a grant; access_level "none" removes it.
func (h *LocationHandler) SetGrant(w http.ResponseWriter, r *http.Request) {
	id, err := locationID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var in grantRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if in.UserID == "" {
		writeErr(w, apperr.Invalid(map[string]string{"user_id": "user_id is required"}))
		return
	}

	grant := models.UserLocation{
		UserID:      in.UserID,
		LocationID:  id,
		AccessLevel: models.ParseAccessLevel(in.AccessLevel),
	}
	if err := h.locations.SetGrant(r.Context(), auth.UserIDFromContext(r.Context()), grant); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *LocationHandler) RemoveGrant(w http.ResponseWriter, r *http.Request) {
	id, err := locationID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	subjectID := chi.URLParam(r, "userID")

	if err := h.locations.RemoveGrant(r.Context(), auth.UserIDFromContext(r.Context()), subjectID, id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
