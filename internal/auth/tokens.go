package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

// newRefreshToken returns a random opaque token and its SHA-256 hash.
// Only the hash is persisted.
func newRefreshToken() (raw, hash string) {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// issueRefreshToken stores a new refresh token row and returns the raw
// token for the client.
func issueRefreshToken(ctx context.Context, db *gorm.DB, userID uuid.UUID, ttl time.Duration) (string, error) {
	raw, hash := newRefreshToken()
	rt := models.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := db.WithContext(ctx).Create(&rt).Error; err != nil {
		return "", err
	}
	return raw, nil
}

// revokeAllRefreshTokens invalidates a user's whole token set. Called on
// logout, password change and refresh token reuse.
func revokeAllRefreshTokens(ctx context.Context, db *gorm.DB, userID uuid.UUID) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
}

// rotateRefreshToken validates a raw token and replaces it with a fresh
// one. Reuse of a revoked token is treated as theft: the whole set is
// revoked and an error returned.
func rotateRefreshToken(ctx context.Context, db *gorm.DB, raw string, ttl time.Duration) (*models.RefreshToken, string, error) {
	var current models.RefreshToken
	if err := db.WithContext(ctx).
		Where("token_hash = ?", hashToken(raw)).
		First(&current).Error; err != nil {
		return nil, "", err
	}

	if current.RevokedAt != nil {
		_ = revokeAllRefreshTokens(ctx, db, current.UserID)
		return nil, "", gorm.ErrRecordNotFound
	}
	if time.Now().After(current.ExpiresAt) {
		return nil, "", gorm.ErrRecordNotFound
	}

	rawNext, hashNext := newRefreshToken()
	next := models.RefreshToken{
		UserID:    current.UserID,
		TokenHash: hashNext,
		ExpiresAt: time.Now().Add(ttl),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&next).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		return tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", current.ID).
			Updates(map[string]any{"revoked_at": now, "replaced_by_id": next.ID}).Error
	})
	if err != nil {
		return nil, "", err
	}
	return &next, rawNext, nil
}

// PurgeExpiredRefreshTokens deletes rows past their expiry. Run on a
// schedule from cmd/server.
func PurgeExpiredRefreshTokens(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&models.RefreshToken{}).Error
}
