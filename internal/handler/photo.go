package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/templui/stravasync/internal/ctxkeys"
	"github.com/templui/stravasync/internal/service"
)

type PhotoHandler struct {
	photoService *service.PhotoService
	maxSize      int64
}

func NewPhotoHandler(photoService *service.PhotoService, maxSize int64) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
		maxSize:      maxSize,
	}
}

func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	photos, err := h.photoService.List(r.Context(), user.ID, r.PathValue("activityId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, photos)
}

// Upload takes a multipart form with the image in "photo" and an optional
// "caption".
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+(1<<20))
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: file too large", service.ErrInvalidInput))
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: photo is required", service.ErrInvalidInput))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
	if err != nil {
		writeError(w, r, err)
		return
	}

	photo, err := h.photoService.Add(r.Context(), user.ID, r.PathValue("activityId"), header.Filename, data, r.FormValue("caption"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, photo)
}

func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	if err := h.photoService.Delete(r.Context(), user.ID, r.PathValue("photoId")); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PhotoHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	photo, err := h.photoService.SetPrimary(r.Context(), user.ID, r.PathValue("photoId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, photo)
}
