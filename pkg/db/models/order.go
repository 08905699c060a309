package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Posting holds the columns shared by FBO and FBS orders.
type Posting struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	ShopID        int64     `gorm:"column:shop_id;not null"`
	OrderID       int64     `gorm:"column:order_id;not null"`
	OrderNumber   string    `gorm:"column:order_number;not null"`
	PostingNumber string    `gorm:"column:posting_number;not null"`
	Status        string    `gorm:"column:status;not null"`
	OrderedAt     time.Time `gorm:"column:ordered_at;not null"`
	InProcessAt   time.Time `gorm:"column:in_process_at"`
	Warehouse     string    `gorm:"column:warehouse;not null;default:''"`
	Region        string    `gorm:"column:region;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PostingItem holds the columns shared by FBO and FBS order lines.
type PostingItem struct {
	ID        int64           `gorm:"column:id;primaryKey"`
	PostingID int64           `gorm:"column:posting_id;not null"`
	ProductID *int64          `gorm:"column:product_id"`
	SKU       int64           `gorm:"column:sku;not null"`
	OfferID   string          `gorm:"column:offer_id;not null;default:''"`
	Name      string          `gorm:"column:name;not null;default:''"`
	Quantity  int64           `gorm:"column:quantity;not null;default:0"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

type FBOOrder struct {
	Posting
}

func (FBOOrder) TableName() string { return "fbo_orders" }

type FBSOrder struct {
	Posting
	ShipmentDate time.Time `gorm:"column:shipment_date"`
}

func (FBSOrder) TableName() string { return "fbs_orders" }

type FBOOrderItem struct {
	PostingItem
}

func (FBOOrderItem) TableName() string { return "fbo_order_items" }

type FBSOrderItem struct {
	PostingItem
}

func (FBSOrderItem) TableName() string { return "fbs_order_items" }

// Selfbuy marks an order the shop bought itself. Dates are filled from
// FBO orders and transactions once they arrive.
type Selfbuy struct {
	ID        int64      `gorm:"column:id;primaryKey"`
	ShopID    int64      `gorm:"column:shop_id;not null"`
	OrderRef  string     `gorm:"column:order_ref;not null"`
	BoughtOn  *time.Time `gorm:"column:bought_on;type:date"`
	TakenOn   *time.Time `gorm:"column:taken_on;type:date"`
	OfferID   *string    `gorm:"column:offer_id"`
	Name      *string    `gorm:"column:name"`
	Status    *string    `gorm:"column:status"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Selfbuy) TableName() string { return "selfbuys" }
