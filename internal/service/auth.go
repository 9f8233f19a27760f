package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/avolkov/market-api/internal/hash"
	"github.com/avolkov/market-api/internal/logging"
	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/repo"
)

const tokenSecretBytes = 16

// AuthService is the credential store and token manager. Tokens are
// opaque random pairs persisted per issuance; every check is a database
// lookup, so revocation takes effect immediately.
type AuthService struct {
	Repo       *repo.GormRepo
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func newSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *AuthService) Register(ctx context.Context, username, name, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password required: %w", ErrValidation)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	now := time.Now().UTC()
	user := models.User{
		Username:     username,
		Name:         name,
		Email:        email,
		PasswordHash: pwHash,
		MemberSince:  now,
		LastSeen:     now,
	}
	if err := s.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			return nil, fmt.Errorf("user already exists: %w", ErrConflict)
		}
		l.Error("register_error", "error", err)
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies a username/password pair. No side effects.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// IssueToken mints a fresh access/refresh pair for the user. Stale
// tokens are garbage-collected first, best effort; a cleanup failure
// never blocks issuance.
func (s *AuthService) IssueToken(ctx context.Context, user *models.User) (*models.Token, error) {
	l := logging.FromContext(ctx).With("svc", "auth.issue", "user_id", user.ID)

	now := time.Now().UTC()
	if err := s.Repo.DeleteExpiredTokens(ctx, now.Add(-24*time.Hour)); err != nil {
		l.Warn("token_gc_failed", "error", err)
	}

	token, err := s.newToken(user.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *AuthService) newToken(userID uint, now time.Time) (*models.Token, error) {
	access, err := newSecret()
	if err != nil {
		return nil, err
	}
	refresh, err := newSecret()
	if err != nil {
		return nil, err
	}
	return &models.Token{
		AccessToken:       access,
		AccessExpiration:  now.Add(s.AccessTTL),
		RefreshToken:      refresh,
		RefreshExpiration: now.Add(s.RefreshTTL),
		UserID:            userID,
	}, nil
}

// VerifyAccess resolves a live access secret to its user and touches
// the user's last-seen stamp. The stamp moves only on success.
func (s *AuthService) VerifyAccess(ctx context.Context, accessToken string) (*models.User, error) {
	token, err := s.Repo.FindTokenByAccess(ctx, accessToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !now.Before(token.AccessExpiration) {
		return nil, ErrUnauthorized
	}

	user, err := s.Repo.GetUserByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.TouchLastSeen(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastSeen = now
	return user, nil
}

// Refresh rotates a token pair. The refresh secret must arrive together
// with its own access secret; a mismatched pair never resolves. A
// refresh secret presented after its expiration is treated as a replay:
// every token of that user is revoked and the caller sees a plain
// Unauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, accessToken string) (*models.Token, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" || accessToken == "" {
		return nil, ErrUnauthorized
	}

	token, err := s.Repo.FindTokenByPair(ctx, refreshToken, accessToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !now.Before(token.RefreshExpiration) {
		l.Warn("refresh_replay_detected", "user_id", token.UserID)
		if err := s.Repo.RevokeAllTokens(ctx, token.UserID, now); err != nil {
			l.Error("revoke_all_failed", "user_id", token.UserID, "error", err)
		}
		return nil, ErrUnauthorized
	}

	fresh, err := s.newToken(token.UserID, now)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.RotateToken(ctx, token.ID, fresh, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// lost a concurrent rotation race
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return fresh, nil
}

// Revoke expires the token carrying the given access secret.
func (s *AuthService) Revoke(ctx context.Context, accessToken string) error {
	token, err := s.Repo.FindTokenByAccess(ctx, accessToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("invalid token: %w", ErrBadRequest)
		}
		return err
	}
	return s.Repo.ExpireToken(ctx, token.ID, time.Now().UTC())
}

func (s *AuthService) RevokeAll(ctx context.Context, userID uint) error {
	return s.Repo.RevokeAllTokens(ctx, userID, time.Now().UTC())
}
