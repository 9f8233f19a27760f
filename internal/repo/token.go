package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avolkov/market-api/internal/models"
)

func (r *GormRepo) CreateToken(ctx context.Context, t *models.Token) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) FindTokenByAccess(ctx context.Context, accessToken string) (*models.Token, error) {
	var token models.Token
	if err := r.DB.WithContext(ctx).
		Where("access_token = ?", accessToken).
		First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// FindTokenByPair matches on both secrets, so a refresh token presented
// with a foreign access token never resolves.
func (r *GormRepo) FindTokenByPair(ctx context.Context, refreshToken, accessToken string) (*models.Token, error) {
	var token models.Token
	if err := r.DB.WithContext(ctx).
		Where("refresh_token = ? AND access_token = ?", refreshToken, accessToken).
		First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *GormRepo) ExpireToken(ctx context.Context, tokenID uint, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Token{}).
		Where("id = ?", tokenID).
		Updates(map[string]interface{}{
			"access_expiration":  now,
			"refresh_expiration": now,
		}).Error
}

// RotateToken expires the old pair and persists the fresh one in a
// single transaction, so there is no window where both validate.
func (r *GormRepo) RotateToken(ctx context.Context, oldID uint, fresh *models.Token, now time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Token{}).
			Where("id = ? AND refresh_expiration > ?", oldID, now).
			Updates(map[string]interface{}{
				"access_expiration":  now,
				"refresh_expiration": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(fresh).Error
	})
}

func (r *GormRepo) RevokeAllTokens(ctx context.Context, userID uint, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Token{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"access_expiration":  now,
			"refresh_expiration": now,
		}).Error
}

// DeleteExpiredTokens removes tokens whose refresh expiration passed
// before the cutoff. Expired tokens are already rejected by lookups, so
// this is cleanup only.
func (r *GormRepo) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) error {
	return r.DB.WithContext(ctx).
		Where("refresh_expiration < ?", cutoff).
		Delete(&models.Token{}).Error
}
