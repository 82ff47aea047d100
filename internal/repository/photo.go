package repository

import (
	"context"
	"errors"
	"fmt"

	"photo-trade-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// PhotoRepository handles database operations for photos
type PhotoRepository struct {
	db DB
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PhotoRepository) WithTx(tx pgx.Tx) *PhotoRepository {
	return &PhotoRepository{db: tx}
}

const photoColumns = `id, user_id, filename, original_name, COALESCE(description, ''), COALESCE(derived_filename, ''), created_at`

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var photo models.Photo
	err := row.Scan(
		&photo.ID, &photo.UserID, &photo.Filename, &photo.OriginalName,
		&photo.Description, &photo.DerivedFilename, &photo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

// Create creates a new photo
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (id, user_id, filename, original_name, description, derived_filename, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`
	_, err := r.db.Exec(ctx, query,
		photo.ID, photo.UserID, photo.Filename, photo.OriginalName,
		photo.Description, photo.DerivedFilename, photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// GetByID retrieves a photo by ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("photo not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// ListByOwner retrieves all photos owned by a user, newest first
func (r *PhotoRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get photos: %w", err)
	}
	defer rows.Close()

	photos := make([]*models.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

// CountByOwner returns how many photos a user owns
func (r *PhotoRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	query := `SELECT COUNT(*) FROM photos WHERE user_id = $1`
	var count int
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return count, nil
}
