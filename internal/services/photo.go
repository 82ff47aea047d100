package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"photo-trade-backend/internal/config"
	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const derivedPrefix = "watermarked-"

// ObjectStore persists image bytes and hands out short-lived read URLs
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// Deriver produces the protected variant of an uploaded image
type Deriver interface {
	Derive(src []byte, username string) ([]byte, error)
}

// UploadInput is one multipart upload
type UploadInput struct {
	Filename    string
	ContentType string
	Description string
	Data        []byte
}

// PhotoService handles photo-related business logic
type PhotoService struct {
	db         repository.DB
	photoRepo  *repository.PhotoRepository
	friendRepo *repository.FriendRepository
	store      ObjectStore
	deriver    Deriver
	cfg        config.AssetsConfig
	now        func() time.Time
}

// NewPhotoService creates a new photo service
func NewPhotoService(
	db repository.DB,
	photoRepo *repository.PhotoRepository,
	friendRepo *repository.FriendRepository,
	store ObjectStore,
	deriver Deriver,
	cfg config.AssetsConfig,
) *PhotoService {
	return &PhotoService{
		db:         db,
		photoRepo:  photoRepo,
		friendRepo: friendRepo,
		store:      store,
		deriver:    deriver,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreatePhoto records a photo that is already stored
func (s *PhotoService) CreatePhoto(ctx context.Context, ownerID, filename, originalName, description, derivedFilename string) (string, error) {
	if ownerID == "" || filename == "" || originalName == "" {
		return "", newError(ErrValidation, "owner, filename and original name are required")
	}

	photo := &models.Photo{
		ID:              uuid.New().String(),
		UserID:          ownerID,
		Filename:        filename,
		OriginalName:    originalName,
		Description:     description,
		DerivedFilename: derivedFilename,
		CreatedAt:       s.now(),
	}
	if err := s.photoRepo.Create(ctx, photo); err != nil {
		return "", storageError("failed to create photo", err)
	}
	return photo.ID, nil
}

// GetPhoto returns the full record, raw filename included
func (s *PhotoService) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	photo, err := s.photoRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError("photo not found", err)
	}
	return photo, nil
}

// ListPhotosForOwner returns a user's photos newest first, showing only derived filenames
func (s *PhotoService) ListPhotosForOwner(ctx context.Context, ownerID string) ([]models.Photo, error) {
	photos, err := s.photoRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageError("failed to get photos", err)
	}

	protected := make([]models.Photo, 0, len(photos))
	for _, p := range photos {
		protected = append(protected, p.Protected())
	}
	return protected, nil
}

// ListPhotosForUser returns another user's photos, for picking a trade target
func (s *PhotoService) ListPhotosForUser(ctx context.Context, viewerID, ownerID string) ([]models.Photo, error) {
	if err := s.checkVisible(ctx, viewerID, ownerID); err != nil {
		return nil, err
	}
	return s.ListPhotosForOwner(ctx, ownerID)
}

// ImageURL returns a presigned URL for the derived image of a photo
func (s *PhotoService) ImageURL(ctx context.Context, viewerID, photoID string) (string, error) {
	photo, err := s.GetPhoto(ctx, photoID)
	if err != nil {
		return "", err
	}
	if err := s.checkVisible(ctx, viewerID, photo.UserID); err != nil {
		return "", err
	}

	url, err := s.store.PresignGet(ctx, photo.Protected().Filename)
	if err != nil {
		return "", wrapError(ErrDependency, "failed to sign image url", err)
	}
	return url, nil
}

// checkVisible allows the owner and the owner's accepted friends
func (s *PhotoService) checkVisible(ctx context.Context, viewerID, ownerID string) error {
	if viewerID == ownerID {
		return nil
	}
	ok, err := s.friendRepo.AreFriends(ctx, viewerID, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidID) {
			return wrapError(ErrValidation, "user id is not valid", err)
		}
		return storageError("failed to check friendship", err)
	}
	if !ok {
		return newError(ErrUnauthorized, "photos are only visible to friends")
	}
	return nil
}

// Upload stores the raw image and its watermarked variant, then records the photo
func (s *PhotoService) Upload(ctx context.Context, ownerID, username string, in UploadInput) (*models.Photo, error) {
	if len(in.Data) == 0 {
		return nil, newError(ErrValidation, "no photo uploaded")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(in.Data)) > s.cfg.MaxUploadBytes {
		return nil, newError(ErrValidation, fmt.Sprintf("photo exceeds %d bytes", s.cfg.MaxUploadBytes))
	}
	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(in.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, newError(ErrValidation, "only image files are allowed")
	}

	originalName := filepath.Base(in.Filename)
	if originalName == "." || originalName == "/" || originalName == "" {
		originalName = "photo"
	}
	key := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))
	derivedKey := derivedPrefix + strings.TrimSuffix(key, filepath.Ext(key)) + ".jpg"

	derived, err := s.deriver.Derive(in.Data, username)
	if err != nil {
		return nil, wrapError(ErrDependency, "failed to watermark photo", err)
	}
	if err := s.store.Put(ctx, key, in.Data, contentType); err != nil {
		return nil, wrapError(ErrDependency, "failed to store photo", err)
	}
	if err := s.store.Put(ctx, derivedKey, derived, "image/jpeg"); err != nil {
		s.discardObjects(ctx, key)
		return nil, wrapError(ErrDependency, "failed to store watermarked photo", err)
	}

	photo := &models.Photo{
		ID:              uuid.New().String(),
		UserID:          ownerID,
		Filename:        key,
		OriginalName:    originalName,
		Description:     strings.TrimSpace(in.Description),
		DerivedFilename: derivedKey,
		CreatedAt:       s.now(),
	}
	if err := s.photoRepo.Create(ctx, photo); err != nil {
		s.discardObjects(ctx, key, derivedKey)
		return nil, storageError("failed to create photo", err)
	}

	log.Info().
		Str("photo_id", photo.ID).
		Str("user_id", ownerID).
		Int("size", len(in.Data)).
		Msg("Photo uploaded")

	return photo, nil
}

// discardObjects removes objects written by an upload that did not complete.
// Failures are logged; the upload error is what the caller sees.
func (s *PhotoService) discardObjects(ctx context.Context, keys ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to remove orphaned object")
		}
	}
}

// SeedDefaultPhotos gives a user without photos the stock set
func (s *PhotoService) SeedDefaultPhotos(ctx context.Context, userID string) (int, error) {
	photos := defaultPhotos(userID, s.cfg.DefaultPhotos, s.now())

	err := repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
		repo := s.photoRepo.WithTx(tx)
		count, err := repo.CountByOwner(ctx, userID)
		if err != nil {
			return storageError("failed to count photos", err)
		}
		if count > 0 {
			return newError(ErrConflict, "user already has photos")
		}
		if err := insertPhotos(ctx, repo, photos); err != nil {
			return storageError("failed to add default photos", err)
		}
		return nil
	})
	if err != nil {
		return 0, asServiceError("failed to add default photos", err)
	}
	return len(photos), nil
}

func defaultPhotos(ownerID string, defaults []config.DefaultPhoto, now time.Time) []*models.Photo {
	photos := make([]*models.Photo, 0, len(defaults))
	for _, d := range defaults {
		photos = append(photos, &models.Photo{
			ID:              uuid.New().String(),
			UserID:          ownerID,
			Filename:        d.Filename,
			OriginalName:    d.OriginalName,
			Description:     d.Description,
			DerivedFilename: d.Filename,
			CreatedAt:       now,
		})
	}
	return photos
}

func insertPhotos(ctx context.Context, repo *repository.PhotoRepository, photos []*models.Photo) error {
	for _, p := range photos {
		if err := repo.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
