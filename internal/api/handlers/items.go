package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/service"
)

type ItemHandler struct {
	items *service.ItemService
}

func NewItemHandler(items *service.ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

func itemID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindInvalid, "invalid item ID")
	}
	return id, nil
}

type itemRequest struct {
	BoxID       string  `json:"box_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

func (in itemRequest) toInput() service.ItemInput {
	boxID, _ := uuid.Parse(in.BoxID)
	return service.ItemInput{
		BoxID:       boxID,
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in itemRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	item, err := h.items.Create(r.Context(), auth.UserIDFromContext(r.Context()), in.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	item, err := h.items.Get(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var in itemRequest
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	item, err := h.items.Update(r.Context(), auth.UserIDFromContext(r.Context()), id, in.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := h.items.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
