package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/service"
)

type BoxHandler struct {
	boxes *service.BoxService
	items *service.ItemService
}

func NewBoxHandler(boxes *service.BoxService, items *service.ItemService) *BoxHandler {
	return &BoxHandler{boxes: boxes, items: items}
}

func boxID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindInvalid, "invalid box ID")
	}
	return id, nil
}

type boxRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	LocationID  int64   `json:"location_id"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

func (in boxRequest) toInput() service.BoxInput {
	return service.BoxInput{
		Code:        in.Code,
		Name:        in.Name,
		LocationID:  in.LocationID,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
}

func (h *BoxHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in boxRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	box, err := h.boxes.Create(r.Context(), auth.UserIDFromContext(r.Context()), in.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, box)
}

func (h *BoxHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := boxID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	box, err := h.boxes.Get(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

// ListByLocation requires a location_id query parameter; listing every
// box across locations is not offered.
func (h *BoxHandler) ListByLocation(w http.ResponseWriter, r *http.Request) {
	locID, err := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if err != nil {
		writeErr(w, apperr.Invalid(map[string]string{"location_id": "location_id is required"}))
		return
	}

	boxes, err := h.boxes.ListByLocation(r.Context(), auth.UserIDFromContext(r.Context()), locID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"boxes": boxes, "count": len(boxes)})
}

func (h *BoxHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := boxID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var in boxRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	box, err := h.boxes.Update(r.Context(), auth.UserIDFromContext(r.Context()), id, in.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

func (h *BoxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := boxID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := h.boxes.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *BoxHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	id, err := boxID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	items, err := h.items.ListByBox(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}
