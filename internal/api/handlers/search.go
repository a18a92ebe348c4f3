package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/repository"
	"github.com/storagelabels/backend/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := repository.SearchParams{Query: q.Get("q")}
	if v := q.Get("location_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			params.LocationID = &id
		}
	}
	if v := q.Get("box_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			params.BoxID = &id
		}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.search.Search(r.Context(), auth.UserIDFromContext(r.Context()), params, page, pageSize)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SearchLegacy serves the pre-v2 search path for old clients and
// announces its retirement per RFC 8594.
func (h *SearchHandler) SearchLegacy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Deprecation", "true")
	w.Header().Set("Sunset", "Sat, 01 Jan 2028 00:00:00 GMT")
	w.Header().Set("Link", `</api/v2/search>; rel="successor-version"`)
	h.Search(w, r)
}

func (h *SearchHandler) QrLookup(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	result, err := h.search.SearchByQrCode(r.Context(), auth.UserIDFromContext(r.Context()), code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
