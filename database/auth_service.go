package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"pixeltruth/models"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	mysqlErrDuplicateEntry = 1062
)

// AuthService handles users and their tokens
type AuthService struct {
	db         *sql.DB
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewAuthService creates a new authentication service instance
func NewAuthService(db *sql.DB, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		db:         db,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL is the lifetime of issued access tokens
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

// CreateUser registers a user with email/password authentication
func (s *AuthService) CreateUser(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ? OR username = ?)",
		email, req.Username).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  req.Username,
		Plan:      models.PlanFree,
		IsActive:  true,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, username, password_hash, plan) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Username, string(passwordHash), user.Plan)
	if err != nil {
		// A concurrent registration can pass the EXISTS check and lose on the unique key.
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	log.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// GetUser retrieves a user by ID
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{ID: userID}
	err := s.db.QueryRowContext(ctx,
		"SELECT email, username, plan, is_active, analysis_count, created_at, updated_at FROM users WHERE id = ?",
		userID).Scan(&user.Email, &user.Username, &user.Plan, &user.IsActive, &user.AnalysisCount, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// Login authenticates a user and issues a token pair
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	userID, err := s.authenticateWithPassword(ctx, normalizeEmail(req.Email), req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.GenerateTokenPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(access, refresh, user), nil
}

// Refresh exchanges a valid refresh token for a new pair. The old refresh
// token is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	userID, err := s.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.InvalidateToken(ctx, userID, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	access, refresh, err := s.GenerateTokenPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(access, refresh, nil), nil
}

func (s *AuthService) tokenResponse(access, refresh string, user *models.User) *models.TokenResponse {
	return &models.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
		User:         user,
	}
}

// ValidateToken validates an access token and returns the user ID
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	userID, err := s.parseToken(tokenString, tokenTypeAccess)
	if err != nil {
		return "", err
	}
	if err := s.verifyTokenInDB(ctx, userID, tokenString, tokenTypeAccess); err != nil {
		return "", err
	}
	return userID, nil
}

// ValidateRefreshToken validates a refresh token and returns the user ID
func (s *AuthService) ValidateRefreshToken(ctx context.Context, tokenString string) (string, error) {
	userID, err := s.parseToken(tokenString, tokenTypeRefresh)
	if err != nil {
		return "", err
	}
	if err := s.verifyTokenInDB(ctx, userID, tokenString, tokenTypeRefresh); err != nil {
		return "", err
	}
	return userID, nil
}

// GenerateTokenPair generates both access and refresh tokens
func (s *AuthService) GenerateTokenPair(ctx context.Context, userID string) (string, string, error) {
	now := s.now()
	accessExpiry := now.Add(s.accessTTL)
	refreshExpiry := now.Add(s.refreshTTL)

	access, err := s.signToken(userID, tokenTypeAccess, now, accessExpiry)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.signToken(userID, tokenTypeRefresh, now, refreshExpiry)
	if err != nil {
		return "", "", err
	}

	if err := s.storeTokens(ctx, userID, access, refresh, accessExpiry, refreshExpiry); err != nil {
		return "", "", fmt.Errorf("failed to store tokens: %w", err)
	}
	return access, refresh, nil
}

// InvalidateToken removes a token from the database. Unknown tokens are not
// an error.
func (s *AuthService) InvalidateToken(ctx context.Context, userID, tokenString string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE user_id = ? AND token_hash = ?",
		userID, hashToken(tokenString))
	return err
}

// IncrementAnalysisCount bumps the user's analysis counter
func (s *AuthService) IncrementAnalysisCount(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET analysis_count = analysis_count + 1 WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to increment analysis count: %w", err)
	}
	return nil
}

// Helper methods

func (s *AuthService) authenticateWithPassword(ctx context.Context, email, password string) (string, error) {
	var userID, passwordHash string
	var isActive bool

	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash, is_active FROM users WHERE email = ?",
		email).Scan(&userID, &passwordHash, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		log.WithField("user_id", userID).Warn("Password mismatch")
		return "", ErrInvalidCredentials
	}
	if !isActive {
		return "", ErrUserInactive
	}
	return userID, nil
}

func (s *AuthService) signToken(userID, tokenType string, now, expiry time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"type":    tokenType,
		"jti":     uuid.NewString(),
		"exp":     expiry.Unix(),
		"iat":     now.Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) parseToken(tokenString, wantType string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != wantType {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthService) verifyTokenInDB(ctx context.Context, userID, tokenString, tokenType string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM auth_tokens WHERE user_id = ? AND token_hash = ? AND token_type = ? AND expires_at > NOW())",
		userID, hashToken(tokenString), tokenType).Scan(&exists)
	if err != nil || !exists {
		return ErrInvalidToken
	}
	return nil
}

func (s *AuthService) storeTokens(ctx context.Context, userID, accessToken, refreshToken string, accessExpiry, refreshExpiry time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO auth_tokens (user_id, token_hash, token_type, expires_at) VALUES (?, ?, 'access', FROM_UNIXTIME(?))",
		userID, hashToken(accessToken), accessExpiry.Unix())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO auth_tokens (user_id, token_hash, token_type, expires_at) VALUES (?, ?, 'refresh', FROM_UNIXTIME(?))",
		userID, hashToken(refreshToken), refreshExpiry.Unix())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Utility functions

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
