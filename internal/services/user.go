package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"photo-trade-backend/internal/config"
	"photo-trade-backend/internal/models"
	"photo-trade-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the JWT payload issued at register and login
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// UserService handles user-related business logic
type UserService struct {
	db         repository.DB
	userRepo   *repository.UserRepository
	photoRepo  *repository.PhotoRepository
	defaults   []config.DefaultPhoto
	jwt        config.JWTConfig
	bcryptCost int
	now        func() time.Time
}

// NewUserService creates a new user service
func NewUserService(
	db repository.DB,
	userRepo *repository.UserRepository,
	photoRepo *repository.PhotoRepository,
	defaults []config.DefaultPhoto,
	jwtCfg config.JWTConfig,
) *UserService {
	return &UserService{
		db:         db,
		userRepo:   userRepo,
		photoRepo:  photoRepo,
		defaults:   defaults,
		jwt:        jwtCfg,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Register creates an account and its default photos in one transaction
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, newError(ErrValidation, "username, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, wrapError(ErrValidation, "password cannot be hashed", err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	err = repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		return insertPhotos(ctx, s.photoRepo.WithTx(tx), defaultPhotos(user.ID, s.defaults, now))
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, wrapError(ErrConflict, "username or email already exists", err)
		}
		return nil, wrapError(ErrStorage, "failed to create user", err)
	}

	token, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Int("default_photos", len(s.defaults)).
		Msg("User registered")

	return &AuthResponse{Token: token, User: user}, nil
}

// VerifyCredential returns the user when the password matches
func (s *UserService) VerifyCredential(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrUnauthorized, "invalid username or password")
		}
		return nil, storageError("failed to get user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, newError(ErrUnauthorized, "invalid username or password")
	}
	return user, nil
}

// Login verifies credentials and issues a token
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.VerifyCredential(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user}, nil
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.jwt.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwt.Expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwt.Secret))
	if err != nil {
		return "", wrapError(ErrStorage, "failed to sign token", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns its claims
func (s *UserService) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.jwt.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.jwt.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.jwt.Secret), nil
	}, opts...)
	if err != nil {
		return nil, wrapError(ErrUnauthorized, "invalid token", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, newError(ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

// UpdatePushToken stores the device token used for push alerts; empty clears it
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	if err := s.userRepo.UpdatePushToken(ctx, userID, strings.TrimSpace(pushToken)); err != nil {
		return storageError("failed to update push token", err)
	}
	return nil
}
