package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/service"
)

// KeyHandler exposes the encryption-key lifecycle. The routes sit under
// /admin and are meant for operators, not end users.
type KeyHandler struct {
	keys *service.KeyService
}

func NewKeyHandler(keys *service.KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.CreateKey(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (h *KeyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	kid, err := strconv.ParseInt(chi.URLParam(r, "kid"), 10, 32)
	if err != nil {
		writeErr(w, apperr.New(apperr.KindInvalid, "invalid key ID"))
		return
	}

	key, err := h.keys.ActivateKey(r.Context(), int32(kid))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *KeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	rotation, err := h.keys.StartRotation(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rotation)
}

// RetryRotation reopens a failed rotation and re-enqueues it.
func (h *KeyHandler) RetryRotation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, apperr.New(apperr.KindInvalid, "invalid rotation ID"))
		return
	}

	rotation, err := h.keys.RetryRotation(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rotation)
}

func (h *KeyHandler) RotationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, apperr.New(apperr.KindInvalid, "invalid rotation ID"))
		return
	}

	rotation, err := h.keys.GetRotation(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotation)
}
