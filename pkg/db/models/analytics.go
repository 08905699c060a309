package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Analytics holds per-day per-sku storefront metrics.
type Analytics struct {
	ID               int64           `gorm:"column:id;primaryKey"`
	ShopID           int64           `gorm:"column:shop_id;not null"`
	Date             time.Time       `gorm:"column:date;type:date;not null"`
	SKU              int64           `gorm:"column:sku;not null"`
	HitsView         int64           `gorm:"column:hits_view;not null;default:0"`
	HitsToCart       int64           `gorm:"column:hits_tocart;not null;default:0"`
	SessionView      int64           `gorm:"column:session_view;not null;default:0"`
	OrderedUnits     int64           `gorm:"column:ordered_units;not null;default:0"`
	Revenue          decimal.Decimal `gorm:"column:revenue;type:numeric(14,2);not null;default:0"`
	Returns          int64           `gorm:"column:returns;not null;default:0"`
	Cancellations    int64           `gorm:"column:cancellations;not null;default:0"`
	PositionCategory decimal.Decimal `gorm:"column:position_category;type:numeric(12,5);not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Analytics) TableName() string { return "analytics" }
