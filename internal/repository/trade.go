package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photo-trade-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// TradeRepository handles database operations for trades
type TradeRepository struct {
	db DB
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *TradeRepository) WithTx(tx pgx.Tx) *TradeRepository {
	return &TradeRepository{db: tx}
}

const tradeColumns = `id, from_user_id, to_user_id, from_photo_id, to_photo_id, status, created_at, resolved_at`

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var (
		trade  models.Trade
		status string
	)
	err := row.Scan(
		&trade.ID, &trade.FromUserID, &trade.ToUserID, &trade.FromPhotoID, &trade.ToPhotoID,
		&status, &trade.CreatedAt, &trade.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	trade.Status = models.TradeStatus(status)
	return &trade, nil
}

// Create creates a new pending trade
func (r *TradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	query := `
		INSERT INTO trades (id, from_user_id, to_user_id, from_photo_id, to_photo_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		trade.ID, trade.FromUserID, trade.ToUserID, trade.FromPhotoID, trade.ToPhotoID,
		string(trade.Status), trade.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by ID
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`
	trade, err := scanTrade(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("trade not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// Resolve moves a trade out of pending in a single conditional update. The row
// changes only if it is still pending and addressed to recipientID; otherwise
// ErrNotFound is returned and nothing is written. This is the only guard
// between concurrent accept and decline calls. A malformed id yields
// ErrInvalidID and leaves the enclosing transaction aborted.
func (r *TradeRepository) Resolve(ctx context.Context, id, recipientID string, status models.TradeStatus, at time.Time) (*models.Trade, error) {
	query := `
		UPDATE trades SET status = $1, resolved_at = $2
		WHERE id = $3 AND to_user_id = $4 AND status = $5
		RETURNING ` + tradeColumns
	trade, err := scanTrade(r.db.QueryRow(ctx, query, string(status), at, id, recipientID, string(models.TradePending)))
	if err != nil {
		switch mapError(err) {
		case ErrNotFound:
			return nil, fmt.Errorf("no pending trade for recipient: %w", ErrNotFound)
		case ErrInvalidID:
			return nil, fmt.Errorf("malformed trade id: %w", ErrInvalidID)
		}
		return nil, fmt.Errorf("failed to resolve trade: %w", err)
	}
	return trade, nil
}

// ListForUser retrieves trades where the user is either party, newest first.
// Photo filenames are always the derived ones.
func (r *TradeRepository) ListForUser(ctx context.Context, userID string) ([]*models.TradeView, error) {
	query := `
		SELECT t.id, t.from_user_id, t.to_user_id, t.from_photo_id, t.to_photo_id,
		       t.status, t.created_at, t.resolved_at,
		       fu.username, tu.username,
		       fp.original_name, COALESCE(fp.derived_filename, fp.filename),
		       tp.original_name, COALESCE(tp.derived_filename, tp.filename)
		FROM trades t
		JOIN users fu ON t.from_user_id = fu.id
		JOIN users tu ON t.to_user_id = tu.id
		JOIN photos fp ON t.from_photo_id = fp.id
		JOIN photos tp ON t.to_photo_id = tp.id
		WHERE t.from_user_id = $1 OR t.to_user_id = $1
		ORDER BY t.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*models.TradeView, 0)
	for rows.Next() {
		var (
			view   models.TradeView
			status string
		)
		err := rows.Scan(
			&view.ID, &view.FromUserID, &view.ToUserID, &view.FromPhotoID, &view.ToPhotoID,
			&status, &view.CreatedAt, &view.ResolvedAt,
			&view.FromUsername, &view.ToUsername,
			&view.FromPhotoName, &view.FromPhotoFilename,
			&view.ToPhotoName, &view.ToPhotoFilename,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		view.Status = models.TradeStatus(status)
		view.CounterpartUsername = view.ToUsername
		if view.ToUserID == userID {
			view.CounterpartUsername = view.FromUsername
		}
		trades = append(trades, &view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}
