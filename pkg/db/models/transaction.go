package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction is a finance ledger operation keyed by the marketplace operation id.
type Transaction struct {
	ID                   int64           `gorm:"column:id;primaryKey"`
	ShopID               int64           `gorm:"column:shop_id;not null"`
	OperationID          int64           `gorm:"column:operation_id;not null"`
	OperationType        string          `gorm:"column:operation_type;not null"`
	OperationTypeName    string          `gorm:"column:operation_type_name;not null;default:''"`
	OperationDate        time.Time       `gorm:"column:operation_date;type:date;not null"`
	Type                 string          `gorm:"column:type;not null;default:''"`
	PostingNumber        string          `gorm:"column:posting_number;not null;default:''"`
	SKU                  int64           `gorm:"column:sku;not null;default:0"`
	Amount               decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null;default:0"`
	AccrualsForSale      decimal.Decimal `gorm:"column:accruals_for_sale;type:numeric(14,2);not null;default:0"`
	SaleCommission       decimal.Decimal `gorm:"column:sale_commission;type:numeric(14,2);not null;default:0"`
	DeliveryCharge       decimal.Decimal `gorm:"column:delivery_charge;type:numeric(14,2);not null;default:0"`
	ReturnDeliveryCharge decimal.Decimal `gorm:"column:return_delivery_charge;type:numeric(14,2);not null;default:0"`
	Services             datatypes.JSON  `gorm:"column:services;type:jsonb"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string { return "transactions" }
