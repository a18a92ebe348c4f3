package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/service"
)

type ImageHandler struct {
	images *service.ImageService
	users  *service.UserService
}

func NewImageHandler(images *service.ImageService, users *service.UserService) *ImageHandler {
	return &ImageHandler{images: images, users: users}
}

func imageID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindInvalid, "invalid image ID")
	}
	return id, nil
}

func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(service.MaxImageBytes + 1024); err != nil {
		writeErr(w, apperr.New(apperr.KindInvalid, "invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, apperr.Invalid(map[string]string{"file": "file is required"}))
		return
	}
	defer file.Close()

	// Read one byte past the limit so the service can reject oversized
	// uploads with an exact error instead of a truncated file.
	data, err := io.ReadAll(io.LimitReader(file, service.MaxImageBytes+1))
	if err != nil {
		writeErr(w, apperr.New(apperr.KindFailed, "reading upload failed"))
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	prefs, err := h.users.GetPreferences(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}

	meta, err := h.images.Upload(r.Context(), userID,
		header.Filename, header.Header.Get("Content-Type"), data, prefs.EncryptUploads)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// GetFile streams the decrypted image. The URL carries the uploader's
// hashed id so raw user ids never appear in image links.
func (h *ImageHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, err := imageID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	hashedUserID := chi.URLParam(r, "hashedUserID")

	meta, data, err := h.images.GetFile(r.Context(), auth.UserIDFromContext(r.Context()), hashedUserID, id)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := imageID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	if err := h.images.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id, force); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
