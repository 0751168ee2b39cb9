package api

import (
	"net/http"

	"github.com/starford/landchain/internal/photos"
)

// PhotoHandler accepts owner photo uploads.
type PhotoHandler struct {
	store *photos.Store
}

// NewPhotoHandler creates a handler backed by store.
func NewPhotoHandler(store *photos.Store) *PhotoHandler {
	return &PhotoHandler{store: store}
}

// Upload handles POST /api/photos (multipart/form-data, field "file").
//
//	@Summary		Upload an owner photo
//	@Tags			photos
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		201	{object}	PhotoUploadResponse
//	@Failure		400	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/photos [post]
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Multipart framing adds a little on top of the image itself.
	limit := h.store.MaxBytes() + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	ref, err := h.store.Put(file)
	if err != nil {
		writeError(w, "upload photo", err)
		return
	}
	writeJSON(w, http.StatusCreated, PhotoUploadResponse{Ref: ref, URL: "/photos/" + ref})
}
