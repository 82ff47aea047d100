package models

import "time"

// User represents an account in the system
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	PushToken    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Photo represents an image owned by exactly one user.
// Filename is the raw stored object; DerivedFilename is the watermarked one.
type Photo struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Filename        string    `json:"filename"`
	OriginalName    string    `json:"original_name"`
	Description     string    `json:"description,omitempty"`
	DerivedFilename string    `json:"derived_filename,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Protected returns a copy safe to show to anyone: the raw filename is
// replaced by the derived one when it exists.
func (p Photo) Protected() Photo {
	if p.DerivedFilename != "" {
		p.Filename = p.DerivedFilename
	}
	return p
}

// FriendStatus is the state of one directional friend edge
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// FriendEdge is one direction of a friendship; two mirrored edges model one relationship
type FriendEdge struct {
	UserID    string       `json:"user_id"`
	FriendID  string       `json:"friend_id"`
	Status    FriendStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// Friend is a peer as seen from one side of an edge
type Friend struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// TradeStatus is the state of a trade
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeAccepted TradeStatus = "accepted"
	TradeDeclined TradeStatus = "declined"
)

// Terminal reports whether no further transition is allowed
func (s TradeStatus) Terminal() bool {
	return s == TradeAccepted || s == TradeDeclined
}

// Trade records a proposed exchange of two photos and its outcome
type Trade struct {
	ID          string      `json:"id"`
	FromUserID  string      `json:"from_user_id"`
	ToUserID    string      `json:"to_user_id"`
	FromPhotoID string      `json:"from_photo_id"`
	ToPhotoID   string      `json:"to_photo_id"`
	Status      TradeStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// TradeView is a trade enriched for listing
type TradeView struct {
	Trade
	FromUsername        string `json:"from_username"`
	ToUsername          string `json:"to_username"`
	CounterpartUsername string `json:"counterpart_username"`
	FromPhotoName       string `json:"from_photo_name"`
	FromPhotoFilename   string `json:"from_photo_filename"`
	ToPhotoName         string `json:"to_photo_name"`
	ToPhotoFilename     string `json:"to_photo_filename"`
}
