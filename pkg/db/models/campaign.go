package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Campaign is an advertising campaign. ID is the marketplace campaign id.
type Campaign struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement:false"`
	ShopID        int64           `gorm:"column:shop_id;not null"`
	Title         string          `gorm:"column:title;not null;default:''"`
	State         string          `gorm:"column:state;not null"`
	AdvObjectType string          `gorm:"column:adv_object_type;not null;default:''"`
	PaymentType   string          `gorm:"column:payment_type;not null;default:''"`
	FromDate      string          `gorm:"column:from_date;not null;default:''"`
	ToDate        string          `gorm:"column:to_date;not null;default:''"`
	DailyBudget   decimal.Decimal `gorm:"column:daily_budget;type:numeric(14,2);not null;default:0"`
	Budget        decimal.Decimal `gorm:"column:budget;type:numeric(14,2);not null;default:0"`
	LaunchedAt    time.Time       `gorm:"column:launched_at"`
	ChangedAt     time.Time       `gorm:"column:changed_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Campaign) TableName() string { return "campaigns" }

// IsRunning reports whether the campaign is currently serving ads.
func (c Campaign) IsRunning() bool {
	return c.State == enums.CampaignStateRunning
}

// CampaignProduct links a running campaign to an advertised product sku.
type CampaignProduct struct {
	ID         int64           `gorm:"column:id;primaryKey"`
	CampaignID int64           `gorm:"column:campaign_id;not null"`
	ProductID  int64           `gorm:"column:product_id;not null"`
	SKU        int64           `gorm:"column:sku;not null"`
	Title      string          `gorm:"column:title;not null;default:''"`
	Bid        decimal.Decimal `gorm:"column:bid;type:numeric(14,2);not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CampaignProduct) TableName() string { return "campaign_products" }

// CampaignProductHistory keeps one bid/visibility snapshot per day.
type CampaignProductHistory struct {
	ID            int64           `gorm:"column:id;primaryKey"`
	Date          time.Time       `gorm:"column:date;type:date;not null"`
	ProductID     int64           `gorm:"column:product_id;not null"`
	CampaignID    int64           `gorm:"column:campaign_id;not null"`
	Bid           decimal.Decimal `gorm:"column:bid;type:numeric(14,2);not null;default:0"`
	VisibilityIdx int64           `gorm:"column:visibility_idx;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CampaignProductHistory) TableName() string { return "campaign_product_history" }

// StatisticsCampaign is the daily aggregate of one campaign.
type StatisticsCampaign struct {
	ID         int64           `gorm:"column:id;primaryKey"`
	ShopID     int64           `gorm:"column:shop_id;not null"`
	CampaignID int64           `gorm:"column:campaign_id;not null"`
	Date       time.Time       `gorm:"column:date;type:date;not null"`
	Views      int64           `gorm:"column:views;not null;default:0"`
	Clicks     int64           `gorm:"column:clicks;not null;default:0"`
	Expense    decimal.Decimal `gorm:"column:expense;type:numeric(14,2);not null;default:0"`
	Orders     int64           `gorm:"column:orders;not null;default:0"`
	Revenue    decimal.Decimal `gorm:"column:revenue;type:numeric(14,2);not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (StatisticsCampaign) TableName() string { return "statistics_campaigns" }

// StatisticsCampaignProduct is a per-sku line of a downloaded report.
type StatisticsCampaignProduct struct {
	ID         int64           `gorm:"column:id;primaryKey"`
	ShopID     int64           `gorm:"column:shop_id;not null"`
	CampaignID int64           `gorm:"column:campaign_id;not null"`
	Date       time.Time       `gorm:"column:date;type:date;not null"`
	SKU        int64           `gorm:"column:sku;not null"`
	Page       string          `gorm:"column:page;not null"`
	Condition  string          `gorm:"column:condition;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null;default:0"`
	Views      int64           `gorm:"column:views;not null;default:0"`
	Clicks     int64           `gorm:"column:clicks;not null;default:0"`
	Expense    decimal.Decimal `gorm:"column:expense;type:numeric(14,2);not null;default:0"`
	Orders     int64           `gorm:"column:orders;not null;default:0"`
	Revenue    decimal.Decimal `gorm:"column:revenue;type:numeric(14,2);not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (StatisticsCampaignProduct) TableName() string { return "statistics_campaign_products" }

// StatisticsCampaignOrder is an order attributed to search promotion.
type StatisticsCampaignOrder struct {
	ID             int64           `gorm:"column:id;primaryKey"`
	ShopID         int64           `gorm:"column:shop_id;not null"`
	CampaignID     int64           `gorm:"column:campaign_id;not null"`
	Date           time.Time       `gorm:"column:date;type:date;not null"`
	OrderID        string          `gorm:"column:order_id;not null"`
	SaleProductSKU int64           `gorm:"column:sale_product_sku;not null"`
	Count          int64           `gorm:"column:count;not null;default:0"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null;default:0"`
	RateAmount     decimal.Decimal `gorm:"column:rate_amount;type:numeric(14,2);not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (StatisticsCampaignOrder) TableName() string { return "statistics_campaign_orders" }

// Report tracks one asynchronous statistics report through its lifecycle.
type Report struct {
	ID          int64             `gorm:"column:id;primaryKey"`
	ShopID      int64             `gorm:"column:shop_id;not null"`
	UUID        *string           `gorm:"column:uuid"`
	Conditions  datatypes.JSON    `gorm:"column:conditions;type:jsonb;not null"`
	CampaignIDs pq.Int64Array     `gorm:"column:campaign_ids;type:bigint[]"`
	DateFrom    time.Time         `gorm:"column:date_from;type:date;not null"`
	DateTo      time.Time         `gorm:"column:date_to;type:date;not null"`
	State       enums.ReportState `gorm:"column:state;not null;default:''"`
	Response    datatypes.JSON    `gorm:"column:response;type:jsonb"`
	IsParsed    bool              `gorm:"column:is_parsed;not null;default:false"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Report) TableName() string { return "reports" }

// HasRemote reports whether the report was accepted by the API.
func (r Report) HasRemote() bool {
	return r.UUID != nil && *r.UUID != ""
}
