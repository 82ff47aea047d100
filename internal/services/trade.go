package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ProposeTradeRequest is the body of POST /trades
type ProposeTradeRequest struct {
	ToUserID    string `json:"to_user_id" validate:"required"`
	FromPhotoID string `json:"from_photo_id" validate:"required"`
	ToPhotoID   string `json:"to_photo_id" validate:"required"`
}

// TradeService runs the trade lifecycle: pending -> accepted | declined
type TradeService struct {
	db         repository.DB
	tradeRepo  *repository.TradeRepository
	photoRepo  *repository.PhotoRepository
	friendRepo *repository.FriendRepository
	notifier   Notifier
	now        func() time.Time
}

// NewTradeService creates a new trade service
func NewTradeService(
	db repository.DB,
	tradeRepo *repository.TradeRepository,
	photoRepo *repository.PhotoRepository,
	friendRepo *repository.FriendRepository,
	notifier Notifier,
) *TradeService {
	return &TradeService{
		db:         db,
		tradeRepo:  tradeRepo,
		photoRepo:  photoRepo,
		friendRepo: friendRepo,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Propose records a pending trade and notifies the recipient
func (s *TradeService) Propose(ctx context.Context, fromUserID string, req ProposeTradeRequest) (trade *models.Trade, err error) {
	defer func() { tradeOps.WithLabelValues("propose", outcome(err)).Inc() }()

	req.ToUserID = strings.TrimSpace(req.ToUserID)
	if req.ToUserID == "" || req.FromPhotoID == "" || req.ToPhotoID == "" {
		return nil, newError(ErrValidation, "to_user_id, from_photo_id and to_photo_id are required")
	}
	if req.ToUserID == fromUserID {
		return nil, newError(ErrValidation, "cannot trade with yourself")
	}

	friends, err := s.friendRepo.AreFriends(ctx, fromUserID, req.ToUserID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidID) {
			return nil, wrapError(ErrValidation, "to_user_id is not a valid user id", err)
		}
		return nil, storageError("failed to check friendship", err)
	}
	if !friends {
		return nil, newError(ErrUnauthorized, "you can only trade with friends")
	}

	if err := s.checkOwner(ctx, req.FromPhotoID, fromUserID, "your photo"); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, req.ToPhotoID, req.ToUserID, "the requested photo"); err != nil {
		return nil, err
	}

	trade = &models.Trade{
		ID:          uuid.New().String(),
		FromUserID:  fromUserID,
		ToUserID:    req.ToUserID,
		FromPhotoID: req.FromPhotoID,
		ToPhotoID:   req.ToPhotoID,
		Status:      models.TradePending,
		CreatedAt:   s.now(),
	}
	if err := s.tradeRepo.Create(ctx, trade); err != nil {
		return nil, storageError("failed to create trade", err)
	}

	log.Info().
		Str("trade_id", trade.ID).
		Str("from_user_id", trade.FromUserID).
		Str("to_user_id", trade.ToUserID).
		Msg("Trade proposed")

	s.notifier.EmitToUser(trade.ToUserID, EventNewTrade, tradeEvent(trade))
	return trade, nil
}

func (s *TradeService) checkOwner(ctx context.Context, photoID, ownerID, what string) error {
	photo, err := s.photoRepo.GetByID(ctx, photoID)
	if err != nil {
		return storageError(what+" was not found", err)
	}
	if photo.UserID != ownerID {
		return newError(ErrValidation, what+" belongs to someone else")
	}
	return nil
}

// Accept completes a trade: both parties receive a copy of the other's photo.
// The status change and both copies commit together; events go out after commit.
func (s *TradeService) Accept(ctx context.Context, tradeID, actingUserID string) (trade *models.Trade, err error) {
	defer func() { tradeOps.WithLabelValues("accept", outcome(err)).Inc() }()

	if tradeID == "" {
		return nil, newError(ErrValidation, "trade id is required")
	}

	err = repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
		trades := s.tradeRepo.WithTx(tx)
		resolved, err := trades.Resolve(ctx, tradeID, actingUserID, models.TradeAccepted, s.now())
		if err != nil {
			return s.classify(ctx, trades, tradeID, actingUserID, err)
		}

		photos := s.photoRepo.WithTx(tx)
		fromPhoto, err := photos.GetByID(ctx, resolved.FromPhotoID)
		if err != nil {
			return wrapError(ErrStorage, "traded photo is missing", err)
		}
		toPhoto, err := photos.GetByID(ctx, resolved.ToPhotoID)
		if err != nil {
			return wrapError(ErrStorage, "traded photo is missing", err)
		}

		now := s.now()
		if err := photos.Create(ctx, copyPhoto(toPhoto, resolved.FromUserID, now)); err != nil {
			return wrapError(ErrStorage, "failed to copy photo to proposer", err)
		}
		if err := photos.Create(ctx, copyPhoto(fromPhoto, resolved.ToUserID, now)); err != nil {
			return wrapError(ErrStorage, "failed to copy photo to recipient", err)
		}

		trade = resolved
		return nil
	})
	if err != nil {
		return nil, asServiceError("failed to accept trade", err)
	}

	log.Info().Str("trade_id", trade.ID).Str("user_id", actingUserID).Msg("Trade accepted")
	s.notifyBoth(trade, EventTradeAccepted)
	return trade, nil
}

// Decline closes a trade without moving any photo
func (s *TradeService) Decline(ctx context.Context, tradeID, actingUserID string) (trade *models.Trade, err error) {
	defer func() { tradeOps.WithLabelValues("decline", outcome(err)).Inc() }()

	if tradeID == "" {
		return nil, newError(ErrValidation, "trade id is required")
	}

	err = repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
		trades := s.tradeRepo.WithTx(tx)
		resolved, err := trades.Resolve(ctx, tradeID, actingUserID, models.TradeDeclined, s.now())
		if err != nil {
			return s.classify(ctx, trades, tradeID, actingUserID, err)
		}
		trade = resolved
		return nil
	})
	if err != nil {
		return nil, asServiceError("failed to decline trade", err)
	}

	log.Info().Str("trade_id", trade.ID).Str("user_id", actingUserID).Msg("Trade declined")
	s.notifyBoth(trade, EventTradeDeclined)
	return trade, nil
}

// classify explains why the conditional update matched no row. It runs in the
// same transaction, after the row lock was released or never taken.
func (s *TradeService) classify(ctx context.Context, trades *repository.TradeRepository, tradeID, actingUserID string, resolveErr error) error {
	if errors.Is(resolveErr, repository.ErrInvalidID) {
		// the transaction is aborted; no such trade can exist
		return wrapError(ErrNotFound, "trade not found", resolveErr)
	}
	if !errors.Is(resolveErr, repository.ErrNotFound) {
		return wrapError(ErrStorage, "failed to resolve trade", resolveErr)
	}

	current, err := trades.GetByID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return wrapError(ErrNotFound, "trade not found", err)
		}
		return wrapError(ErrStorage, "failed to get trade", err)
	}
	if current.ToUserID != actingUserID {
		return newError(ErrUnauthorized, "only the recipient can respond to this trade")
	}
	if current.Status.Terminal() {
		return newError(ErrConflict, fmt.Sprintf("trade already %s", current.Status))
	}
	return newError(ErrConflict, "trade is being resolved by another request")
}

// ListForUser returns the trades a user takes part in, newest first
func (s *TradeService) ListForUser(ctx context.Context, userID string) ([]*models.TradeView, error) {
	trades, err := s.tradeRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, storageError("failed to get trades", err)
	}
	return trades, nil
}

func (s *TradeService) notifyBoth(trade *models.Trade, event string) {
	ev := tradeEvent(trade)
	s.notifier.EmitToUser(trade.FromUserID, event, ev)
	s.notifier.EmitToUser(trade.ToUserID, event, ev)
}

func tradeEvent(trade *models.Trade) TradeEvent {
	return TradeEvent{TradeID: trade.ID, FromUserID: trade.FromUserID, ToUserID: trade.ToUserID}
}

// copyPhoto duplicates src for newOwner; stored objects are shared
func copyPhoto(src *models.Photo, newOwner string, now time.Time) *models.Photo {
	return &models.Photo{
		ID:              uuid.New().String(),
		UserID:          newOwner,
		Filename:        src.Filename,
		OriginalName:    src.OriginalName,
		Description:     src.Description,
		DerivedFilename: src.DerivedFilename,
		CreatedAt:       now,
	}
}
