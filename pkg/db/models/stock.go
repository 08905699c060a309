package models

import (
	"time"

	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Stock is the daily stock snapshot of a product per fulfillment scheme.
type Stock struct {
	ID        int64                   `gorm:"column:id;primaryKey"`
	ShopID    int64                   `gorm:"column:shop_id;not null"`
	ProductID int64                   `gorm:"column:product_id;not null"`
	Date      time.Time               `gorm:"column:date;type:date;not null"`
	Type      enums.FulfillmentScheme `gorm:"column:type;not null"`
	Present   int64                   `gorm:"column:present;not null;default:0"`
	Reserved  int64                   `gorm:"column:reserved;not null;default:0"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Stock) TableName() string { return "stocks" }

// WarehouseStock is the daily stock snapshot of a sku per warehouse cluster.
type WarehouseStock struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	ShopID     int64     `gorm:"column:shop_id;not null"`
	SKU        int64     `gorm:"column:sku;not null"`
	Date       time.Time `gorm:"column:date;type:date;not null"`
	Warehouse  string    `gorm:"column:warehouse;not null"`
	OfferID    string    `gorm:"column:offer_id;not null;default:''"`
	Discounted bool      `gorm:"column:discounted;not null;default:false"`
	FreeToSell int64     `gorm:"column:free_to_sell;not null;default:0"`
	Promised   int64     `gorm:"column:promised;not null;default:0"`
	Reserved   int64     `gorm:"column:reserved;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (WarehouseStock) TableName() string { return "warehouse_stocks" }
