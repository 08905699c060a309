package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Repository exposes the order queries that sit outside reconciliation.
type Repository interface {
	OldestOpen(ctx context.Context, shopID int64) (*time.Time, bool, error)
	PostingIDs(ctx context.Context, table string, shopID int64, numbers []string) (map[string]int64, error)
	PendingSelfbuys(ctx context.Context, shopID int64) ([]models.Selfbuy, error)
	FBOOrderByNumber(ctx context.Context, shopID int64, number string) (*models.FBOOrder, *models.FBOOrderItem, error)
	DeliveredOn(ctx context.Context, shopID int64, orderRef string) (*time.Time, error)
	SaveSelfbuy(ctx context.Context, sb *models.Selfbuy) error
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

var postingTables = []string{"fbo_orders", "fbs_orders"}

// OldestOpen returns the earliest order date among non-terminal postings of
// both schemes and whether the shop has any postings at all.
func (r *repositoryImpl) OldestOpen(ctx context.Context, shopID int64) (*time.Time, bool, error) {
	var (
		oldest  *time.Time
		hasRows bool
	)
	for _, table := range postingTables {
		var count int64
		if err := r.db.WithContext(ctx).Table(table).Where("shop_id = ?", shopID).Count(&count).Error; err != nil {
			return nil, false, err
		}
		if count == 0 {
			continue
		}
		hasRows = true

		var dates []time.Time
		err := r.db.WithContext(ctx).
			Table(table).
			Where("shop_id = ? AND status NOT IN ?", shopID, enums.TerminalOrderStatuses).
			Order("ordered_at").
			Limit(1).
			Pluck("ordered_at", &dates).Error
		if err != nil {
			return nil, false, err
		}
		if len(dates) == 1 && (oldest == nil || dates[0].Before(*oldest)) {
			d := dates[0]
			oldest = &d
		}
	}
	return oldest, hasRows, nil
}

func (r *repositoryImpl) PostingIDs(ctx context.Context, table string, shopID int64, numbers []string) (map[string]int64, error) {
	out := make(map[string]int64, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	var rows []struct {
		ID            int64
		PostingNumber string
	}
	err := r.db.WithContext(ctx).
		Table(table).
		Select("id, posting_number").
		Where("shop_id = ? AND posting_number IN ?", shopID, numbers).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PostingNumber] = row.ID
	}
	return out, nil
}

func (r *repositoryImpl) PendingSelfbuys(ctx context.Context, shopID int64) ([]models.Selfbuy, error) {
	var rows []models.Selfbuy
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND (bought_on IS NULL OR taken_on IS NULL)", shopID).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// FBOOrderByNumber returns the first FBO posting matching number as either
// an order or a posting number, and its first line. Both are nil when the
// order has not been loaded yet.
func (r *repositoryImpl) FBOOrderByNumber(ctx context.Context, shopID int64, number string) (*models.FBOOrder, *models.FBOOrderItem, error) {
	var order models.FBOOrder
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND (order_number = ? OR posting_number = ?)", shopID, number, number).
		Order("id").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var item models.FBOOrderItem
	err = r.db.WithContext(ctx).
		Where("posting_id = ?", order.ID).
		Order("id").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &order, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &order, &item, nil
}

// DeliveredOn finds the first delivery operation booked against the posting
// orderRef names, or any posting of the order it names.
func (r *repositoryImpl) DeliveredOn(ctx context.Context, shopID int64, orderRef string) (*time.Time, error) {
	var dates []time.Time
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("shop_id = ? AND operation_type = ?", shopID, enums.OperationDeliveredToCustomer).
		Where("(posting_number = ? OR posting_number LIKE ?)", orderRef, orderRef+"-%").
		Order("operation_date").
		Limit(1).
		Pluck("operation_date", &dates).Error
	if err != nil || len(dates) == 0 {
		return nil, err
	}
	return &dates[0], nil
}

func (r *repositoryImpl) SaveSelfbuy(ctx context.Context, sb *models.Selfbuy) error {
	return r.db.WithContext(ctx).
		Model(&models.Selfbuy{}).
		Where("id = ?", sb.ID).
		Updates(map[string]any{
			"bought_on": sb.BoughtOn,
			"taken_on":  sb.TakenOn,
			"offer_id":  sb.OfferID,
			"name":      sb.Name,
			"status":    sb.Status,
		}).Error
}
