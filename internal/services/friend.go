package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// FriendRequest is the body of POST /friends/request
type FriendRequest struct {
	Username string `json:"username" validate:"required"`
}

// FriendAction is the body of accept, decline and remove
type FriendAction struct {
	FriendID string `json:"friend_id" validate:"required"`
}

// FriendService maintains the symmetric friendship graph
type FriendService struct {
	db         repository.DB
	userRepo   *repository.UserRepository
	friendRepo *repository.FriendRepository
	now        func() time.Time
}

// NewFriendService creates a new friend service
func NewFriendService(db repository.DB, userRepo *repository.UserRepository, friendRepo *repository.FriendRepository) *FriendService {
	return &FriendService{
		db:         db,
		userRepo:   userRepo,
		friendRepo: friendRepo,
		now:        time.Now,
	}
}

// RequestFriend creates a pending relationship between requester and the named user
func (s *FriendService) RequestFriend(ctx context.Context, requesterID, targetUsername string) (friend *models.Friend, err error) {
	defer func() { friendOps.WithLabelValues("request", outcome(err)).Inc() }()

	targetUsername = strings.TrimSpace(targetUsername)
	if targetUsername == "" {
		return nil, newError(ErrValidation, "username is required")
	}

	target, err := s.userRepo.GetByUsername(ctx, targetUsername)
	if err != nil {
		return nil, storageError("user not found", err)
	}
	if target.ID == requesterID {
		return nil, newError(ErrValidation, "cannot send a friend request to yourself")
	}

	_, err = s.friendRepo.GetEdge(ctx, requesterID, target.ID)
	switch {
	case err == nil:
		return nil, newError(ErrConflict, "friend request already exists")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageError("failed to check friendship", err)
	}

	err = repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
		return s.friendRepo.WithTx(tx).CreatePendingPair(ctx, requesterID, target.ID, s.now())
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, wrapError(ErrConflict, "friend request already exists", err)
		}
		return nil, wrapError(ErrStorage, "failed to send friend request", err)
	}

	log.Info().
		Str("user_id", requesterID).
		Str("friend_id", target.ID).
		Msg("Friend request sent")

	return &models.Friend{ID: target.ID, Username: target.Username, Email: target.Email}, nil
}

// AcceptFriend marks both edges accepted. Accepting a request that no longer
// exists changes nothing and is not an error.
func (s *FriendService) AcceptFriend(ctx context.Context, accepterID, requesterID string) (err error) {
	defer func() { friendOps.WithLabelValues("accept", outcome(err)).Inc() }()

	if err := validatePeer(accepterID, requesterID); err != nil {
		return err
	}

	n, err := s.friendRepo.AcceptPair(ctx, accepterID, requesterID)
	if err != nil {
		return storageError("failed to accept friend request", err)
	}

	log.Info().
		Str("user_id", accepterID).
		Str("friend_id", requesterID).
		Int64("rows", n).
		Msg("Friend request accepted")
	return nil
}

// DeclineFriend deletes a pending relationship
func (s *FriendService) DeclineFriend(ctx context.Context, userID, requesterID string) (err error) {
	defer func() { friendOps.WithLabelValues("decline", outcome(err)).Inc() }()
	return s.deletePair(ctx, userID, requesterID)
}

// RemoveFriend deletes a relationship in any status
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID string) (err error) {
	defer func() { friendOps.WithLabelValues("remove", outcome(err)).Inc() }()
	return s.deletePair(ctx, userID, friendID)
}

func (s *FriendService) deletePair(ctx context.Context, a, b string) error {
	if err := validatePeer(a, b); err != nil {
		return err
	}

	n, err := s.friendRepo.DeletePair(ctx, a, b)
	if err != nil {
		return storageError("failed to remove friend", err)
	}

	log.Info().Str("user_id", a).Str("friend_id", b).Int64("rows", n).Msg("Friend edges removed")
	return nil
}

func validatePeer(userID, peerID string) error {
	if strings.TrimSpace(peerID) == "" {
		return newError(ErrValidation, "friend_id is required")
	}
	if userID == peerID {
		return newError(ErrValidation, "cannot befriend yourself")
	}
	return nil
}

// ListFriends returns accepted peers ordered by username
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]*models.Friend, error) {
	friends, err := s.friendRepo.ListPeers(ctx, userID, models.FriendAccepted)
	if err != nil {
		return nil, storageError("failed to get friends", err)
	}
	return friends, nil
}

// ListIncomingRequests returns peers with a pending relationship
func (s *FriendService) ListIncomingRequests(ctx context.Context, userID string) ([]*models.Friend, error) {
	requests, err := s.friendRepo.ListPeers(ctx, userID, models.FriendPending)
	if err != nil {
		return nil, storageError("failed to get friend requests", err)
	}
	return requests, nil
}

// AreFriends reports whether a and b have an accepted relationship
func (s *FriendService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	ok, err := s.friendRepo.AreFriends(ctx, a, b)
	if err != nil {
		return false, storageError("failed to check friendship", err)
	}
	return ok, nil
}
