package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Daily is the per-day per-sku rollup. Each metric group is written by its
// own upsert and never touches the others.
type Daily struct {
	ID                 int64           `gorm:"column:id;primaryKey"`
	ShopID             int64           `gorm:"column:shop_id;not null"`
	Date               time.Time       `gorm:"column:date;type:date;not null"`
	SKU                int64           `gorm:"column:sku;not null"`
	Stocks             int64           `gorm:"column:stocks;not null;default:0"`
	SelfbuyCount       int64           `gorm:"column:selfbuy_cnt;not null;default:0"`
	SelfbuyAmount      decimal.Decimal `gorm:"column:selfbuy_amount;type:numeric(14,2);not null;default:0"`
	PremiumCashback    decimal.Decimal `gorm:"column:premium;type:numeric(14,2);not null;default:0"`
	Installment        decimal.Decimal `gorm:"column:installment;type:numeric(14,2);not null;default:0"`
	AdvPromoBid        decimal.Decimal `gorm:"column:adv_promo_bid;type:numeric(14,2);not null;default:0"`
	AdvPromoVisibility int64           `gorm:"column:adv_promo_visibility;not null;default:0"`
}

func (Daily) TableName() string { return "daily" }
