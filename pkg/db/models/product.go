package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Product is a marketplace listing. ID is the marketplace product id.
type Product struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement:false"`
	ShopID         int64           `gorm:"column:shop_id;not null"`
	OfferID        string          `gorm:"column:offer_id;not null"`
	Name           string          `gorm:"column:name;not null"`
	FBOSKU         int64           `gorm:"column:fbo_sku;not null;default:0"`
	FBSSKU         int64           `gorm:"column:fbs_sku;not null;default:0"`
	Barcode        string          `gorm:"column:barcode;not null;default:''"`
	CategoryID     int64           `gorm:"column:category_id;not null;default:0"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null;default:0"`
	OldPrice       decimal.Decimal `gorm:"column:old_price;type:numeric(14,2);not null;default:0"`
	MarketingPrice decimal.Decimal `gorm:"column:marketing_price;type:numeric(14,2);not null;default:0"`
	MinPrice       decimal.Decimal `gorm:"column:min_price;type:numeric(14,2);not null;default:0"`
	Visible        bool            `gorm:"column:visible;not null;default:false"`
	Attributes     datatypes.JSON  `gorm:"column:attributes;type:jsonb"`
	ListedAt       time.Time       `gorm:"column:listed_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// SKUOffer maps a marketplace sku to the product and offer it belongs to.
type SKUOffer struct {
	ID        int64              `gorm:"column:id;primaryKey"`
	ShopID    int64              `gorm:"column:shop_id;not null"`
	SKU       int64              `gorm:"column:sku;not null"`
	Type      enums.SKUOfferType `gorm:"column:type;not null"`
	OfferID   string             `gorm:"column:offer_id;not null"`
	ProductID int64              `gorm:"column:product_id;not null"`
}

func (SKUOffer) TableName() string { return "sku_offers" }

// LostProduct records a sku seen in orders that no product could be found for.
type LostProduct struct {
	ID        int64                   `gorm:"column:id;primaryKey"`
	ShopID    int64                   `gorm:"column:shop_id;not null"`
	SKU       int64                   `gorm:"column:sku;not null"`
	OfferID   string                  `gorm:"column:offer_id;not null;default:''"`
	Scheme    enums.FulfillmentScheme `gorm:"column:scheme;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (LostProduct) TableName() string { return "lost_products" }
