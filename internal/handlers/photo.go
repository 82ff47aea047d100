package handlers

import (
	"errors"
	"io"
	"net/http"

	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const multipartOverhead = 1 << 20

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photoService   *services.PhotoService
	maxUploadBytes int64
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService *services.PhotoService, maxUploadBytes int64) *PhotoHandler {
	return &PhotoHandler{
		photoService:   photoService,
		maxUploadBytes: maxUploadBytes,
	}
}

// GetPhotos handles GET /api/v1/photos
func (h *PhotoHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	photos, err := h.photoService.ListPhotosForOwner(ctx, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, photos)
}

// GetUserPhotos handles GET /api/v1/users/{user_id}/photos
func (h *PhotoHandler) GetUserPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.GetUserID(ctx)
	ownerID := chi.URLParam(r, "user_id")

	photos, err := h.photoService.ListPhotosForUser(ctx, viewerID, ownerID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, photos)
}

// UploadPhoto handles POST /api/v1/photos (multipart field "photo")
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Photo is too large", Kind: services.ErrValidation.Error()})
			return
		}
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart form", Kind: services.ErrValidation.Error()})
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No photo uploaded", Kind: services.ErrValidation.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "Failed to read photo", http.StatusBadRequest)
		return
	}

	photo, err := h.photoService.Upload(ctx, userID, middleware.GetUsername(ctx), services.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
		Data:        data,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, photo)
}

// GetImage handles GET /api/v1/photos/{photo_id}/image
func (h *PhotoHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	url, err := h.photoService.ImageURL(ctx, userID, chi.URLParam(r, "photo_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// AddDefaultPhotos handles POST /api/v1/photos/defaults
func (h *PhotoHandler) AddDefaultPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	n, err := h.photoService.SeedDefaultPhotos(ctx, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().Str("user_id", userID).Int("count", n).Msg("Default photos added")
	respondJSON(w, http.StatusCreated, map[string]any{"message": "Default photos added", "count": n})
}
