package credentials

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Repository exposes persistence helpers for marketplace credentials.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*models.APIKey, error)
	ShopActive(ctx context.Context, shopID int64) (bool, error)
	ListEligible(ctx context.Context, credType enums.CredentialType, now time.Time) ([]models.APIKey, error)
	Deactivate(ctx context.Context, id int64) error
	DisableUntil(ctx context.Context, id int64, until time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a credentials repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id int64) (*models.APIKey, error) {
	var key models.APIKey
	if err := r.db.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repositoryImpl) ShopActive(ctx context.Context, shopID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Shop{}).
		Where("id = ? AND is_active = ?", shopID, true).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) ListEligible(ctx context.Context, credType enums.CredentialType, now time.Time) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Joins("JOIN shops ON shops.id = api_keys.shop_id").
		Where("api_keys.type = ? AND api_keys.is_active = ? AND shops.is_active = ?", credType, true, true).
		Where("api_keys.disabled_until IS NULL OR api_keys.disabled_until <= ?", now).
		Order("api_keys.shop_id, api_keys.id").
		Find(&keys).Error
	return keys, err
}

func (r *repositoryImpl) Deactivate(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *repositoryImpl) DisableUntil(ctx context.Context, id int64, until time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("disabled_until", until).Error
}
