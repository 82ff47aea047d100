package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photo-trade-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// FriendRepository handles database operations for friend edges.
// Every mutation touches both mirror rows (a,b) and (b,a).
type FriendRepository struct {
	db DB
}

// NewFriendRepository creates a new friend repository
func NewFriendRepository(db DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *FriendRepository) WithTx(tx pgx.Tx) *FriendRepository {
	return &FriendRepository{db: tx}
}

// GetEdge retrieves the directional edge userID -> friendID
func (r *FriendRepository) GetEdge(ctx context.Context, userID, friendID string) (*models.FriendEdge, error) {
	query := `
		SELECT user_id, friend_id, status, created_at
		FROM friends
		WHERE user_id = $1 AND friend_id = $2
	`
	var (
		edge   models.FriendEdge
		status string
	)
	err := r.db.QueryRow(ctx, query, userID, friendID).Scan(&edge.UserID, &edge.FriendID, &status, &edge.CreatedAt)
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("friend edge not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get friend edge: %w", err)
	}
	edge.Status = models.FriendStatus(status)
	return &edge, nil
}

// CreatePendingPair inserts both pending mirror rows. Must run inside a
// transaction so a failure on the second row discards the first.
func (r *FriendRepository) CreatePendingPair(ctx context.Context, requesterID, targetID string, createdAt time.Time) error {
	query := `
		INSERT INTO friends (user_id, friend_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, edge := range [][2]string{{requesterID, targetID}, {targetID, requesterID}} {
		_, err := r.db.Exec(ctx, query, edge[0], edge[1], string(models.FriendPending), createdAt)
		if err != nil {
			if errors.Is(mapError(err), ErrDuplicate) {
				return fmt.Errorf("friend edge already exists: %w", ErrDuplicate)
			}
			return fmt.Errorf("failed to create friend edge: %w", err)
		}
	}
	return nil
}

// AcceptPair sets both mirror rows to accepted and returns how many rows changed
func (r *FriendRepository) AcceptPair(ctx context.Context, a, b string) (int64, error) {
	query := `
		UPDATE friends SET status = $1
		WHERE (user_id = $2 AND friend_id = $3) OR (user_id = $3 AND friend_id = $2)
	`
	result, err := r.db.Exec(ctx, query, string(models.FriendAccepted), a, b)
	if err != nil {
		if isMissing(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to accept friend edges: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeletePair removes both mirror rows regardless of status
func (r *FriendRepository) DeletePair(ctx context.Context, a, b string) (int64, error) {
	query := `
		DELETE FROM friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`
	result, err := r.db.Exec(ctx, query, a, b)
	if err != nil {
		if isMissing(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to delete friend edges: %w", err)
	}
	return result.RowsAffected(), nil
}

// AreFriends reports whether a has an accepted edge to b. A malformed id
// yields ErrInvalidID.
func (r *FriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2 AND status = $3)`
	var exists bool
	err := r.db.QueryRow(ctx, query, a, b, string(models.FriendAccepted)).Scan(&exists)
	if err != nil {
		if errors.Is(mapError(err), ErrInvalidID) {
			return false, fmt.Errorf("malformed user id: %w", ErrInvalidID)
		}
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// ListPeers returns the peers of userID whose edge from userID has the given status
func (r *FriendRepository) ListPeers(ctx context.Context, userID string, status models.FriendStatus) ([]*models.Friend, error) {
	query := `
		SELECT u.id, u.username, u.email
		FROM friends f
		JOIN users u ON f.friend_id = u.id
		WHERE f.user_id = $1 AND f.status = $2 AND u.id <> $1
		ORDER BY u.username
	`
	rows, err := r.db.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := make([]*models.Friend, 0)
	for rows.Next() {
		var friend models.Friend
		if err := rows.Scan(&friend.ID, &friend.Username, &friend.Email); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, &friend)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friends: %w", err)
	}
	return friends, nil
}
