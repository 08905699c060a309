package reports

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Repository persists report requests.
type Repository interface {
	Purge(ctx context.Context, shopID int64, before time.Time) (int64, error)
	Conditions(ctx context.Context, shopID int64) ([]models.Report, error)
	Create(ctx context.Context, report *models.Report) error
	Queue(ctx context.Context, shopID int64, limit int) ([]models.Report, error)
	Update(ctx context.Context, id int64, fields map[string]any) error
	CampaignIDs(ctx context.Context, shopID int64) ([]int64, error)
	CampaignTypes(ctx context.Context, shopID int64) (map[int64]string, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Purge(ctx context.Context, shopID int64, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("shop_id = ? AND created_at < ?", shopID, before).
		Delete(&models.Report{})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) Conditions(ctx context.Context, shopID int64) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Select("id", "conditions").
		Where("shop_id = ?", shopID).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) Create(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// Queue returns the oldest unparsed reports.
func (r *repositoryImpl) Queue(ctx context.Context, shopID int64, limit int) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND is_parsed = ?", shopID, false).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) Update(ctx context.Context, id int64, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// CampaignIDs lists the running campaigns of the shop.
func (r *repositoryImpl) CampaignIDs(ctx context.Context, shopID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("shop_id = ? AND state = ?", shopID, enums.CampaignStateRunning).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repositoryImpl) CampaignTypes(ctx context.Context, shopID int64) (map[int64]string, error) {
	var rows []struct {
		ID            int64
		AdvObjectType string
	}
	err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Select("id, adv_object_type").
		Where("shop_id = ?", shopID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(rows))
	for _, row := range rows {
		out[row.ID] = row.AdvObjectType
	}
	return out, nil
}
