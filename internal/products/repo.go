package products

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
)

const (
	refreshFBOSQL = `
INSERT INTO sku_offers (shop_id, sku, type, offer_id, product_id)
SELECT p.shop_id, p.fbo_sku, ?, p.offer_id, p.id
FROM products p
WHERE p.shop_id = ? AND p.fbo_sku <> 0
ON CONFLICT (shop_id, sku) DO UPDATE SET
	type = excluded.type,
	offer_id = excluded.offer_id,
	product_id = excluded.product_id`

	refreshFBSSQL = `
INSERT INTO sku_offers (shop_id, sku, type, offer_id, product_id)
SELECT p.shop_id, p.fbs_sku, ?, p.offer_id, p.id
FROM products p
WHERE p.shop_id = ? AND p.fbs_sku <> 0 AND p.fbs_sku <> p.fbo_sku
ON CONFLICT (shop_id, sku) DO UPDATE SET
	type = excluded.type,
	offer_id = excluded.offer_id,
	product_id = excluded.product_id`

	refreshDiscountedSQL = `
INSERT INTO sku_offers (shop_id, sku, type, offer_id, product_id)
SELECT DISTINCT ws.shop_id, ws.sku, ?, ws.offer_id, p.id
FROM warehouse_stocks ws
JOIN products p ON p.shop_id = ws.shop_id AND p.offer_id = ws.offer_id
WHERE ws.shop_id = ? AND ws.discounted = ?
ON CONFLICT (shop_id, sku) DO NOTHING`
)

// Repository exposes persistence helpers for the product catalog.
type Repository interface {
	ProductIDs(ctx context.Context, shopID int64) ([]int64, error)
	DeleteMissing(ctx context.Context, shopID int64, keep []int64) (int64, error)
	RefreshSKUOffers(ctx context.Context, shopID int64) error
	SKUOffers(ctx context.Context, shopID int64) ([]models.SKUOffer, error)
	Products(ctx context.Context, shopID int64) ([]models.Product, error)
	RecordLost(ctx context.Context, lost *models.LostProduct) error
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ProductIDs(ctx context.Context, shopID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("shop_id = ?", shopID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteMissing removes products of the shop whose id is not in keep.
func (r *repositoryImpl) DeleteMissing(ctx context.Context, shopID int64, keep []int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("shop_id = ? AND id NOT IN ?", shopID, keep).
		Delete(&models.Product{})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) RefreshSKUOffers(ctx context.Context, shopID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(refreshFBOSQL, enums.SKUOfferFBO, shopID).Error; err != nil {
			return err
		}
		if err := tx.Exec(refreshFBSSQL, enums.SKUOfferFBS, shopID).Error; err != nil {
			return err
		}
		return tx.Exec(refreshDiscountedSQL, enums.SKUOfferDiscounted, shopID, true).Error
	})
}

func (r *repositoryImpl) SKUOffers(ctx context.Context, shopID int64) ([]models.SKUOffer, error) {
	var offers []models.SKUOffer
	err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).Find(&offers).Error
	return offers, err
}

func (r *repositoryImpl) Products(ctx context.Context, shopID int64) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Select("id", "shop_id", "offer_id", "fbo_sku", "fbs_sku").
		Where("shop_id = ?", shopID).
		Find(&products).Error
	return products, err
}

// RecordLost stores the lost sku once per scheme.
func (r *repositoryImpl) RecordLost(ctx context.Context, lost *models.LostProduct) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(lost).Error
}
