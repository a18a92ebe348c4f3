package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/service"
)

type CommonLocationHandler struct {
	common *service.CommonLocationService
}

func NewCommonLocationHandler(common *service.CommonLocationService) *CommonLocationHandler {
	return &CommonLocationHandler{common: common}
}

func (h *CommonLocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, err)
		return
	}

	loc, err := h.common.Create(r.Context(), in.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *CommonLocationHandler) List(w http.ResponseWriter, r *http.Request) {
	locs, err := h.common.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"common_locations": locs, "count": len(locs)})
}

func (h *CommonLocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeErr(w, apperr.New(apperr.KindInvalid, "invalid common location ID"))
		return
	}

	if err := h.common.Delete(r.Context(), int32(id)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
