package campaigns

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

type (
	campaign  = models.Campaign
	link      = models.CampaignProduct
	snapshot  = models.CampaignProductHistory
	statistic = models.StatisticsCampaign
)

var campaignSchema = &reconcile.Schema[campaign]{
	Table:      "campaigns",
	KeyColumns: []string{"id"},
	ShopColumn: "shop_id",
	SetShop:    func(c *campaign, shopID int64) { c.ShopID = shopID },
	Fields: []reconcile.Field[campaign]{
		reconcile.Int64("id", func(c *campaign) *int64 { return &c.ID }),
		reconcile.String("title", func(c *campaign) *string { return &c.Title }),
		reconcile.String("state", func(c *campaign) *string { return &c.State }),
		reconcile.String("adv_object_type", func(c *campaign) *string { return &c.AdvObjectType }),
		reconcile.String("payment_type", func(c *campaign) *string { return &c.PaymentType }),
		reconcile.String("from_date", func(c *campaign) *string { return &c.FromDate }),
		reconcile.String("to_date", func(c *campaign) *string { return &c.ToDate }),
		reconcile.Decimal("daily_budget", func(c *campaign) *decimal.Decimal { return &c.DailyBudget }),
		reconcile.Decimal("budget", func(c *campaign) *decimal.Decimal { return &c.Budget }),
		reconcile.DateTime("launched_at", func(c *campaign) *time.Time { return &c.LaunchedAt }),
		reconcile.DateTime("changed_at", func(c *campaign) *time.Time { return &c.ChangedAt }),
	},
}

var linkSchema = &reconcile.Schema[link]{
	Table:      "campaign_products",
	KeyColumns: []string{"sku"},
	Fields: []reconcile.Field[link]{
		reconcile.Int64("sku", func(l *link) *int64 { return &l.SKU }),
		reconcile.Int64("product_id", func(l *link) *int64 { return &l.ProductID }),
		reconcile.String("title", func(l *link) *string { return &l.Title }),
		reconcile.Decimal("bid", func(l *link) *decimal.Decimal { return &l.Bid }),
	},
}

var historySchema = &reconcile.Schema[snapshot]{
	Table:      "campaign_product_history",
	KeyColumns: []string{"date", "product_id", "campaign_id"},
	Fields: []reconcile.Field[snapshot]{
		reconcile.Date("date", func(s *snapshot) *time.Time { return &s.Date }),
		reconcile.Int64("product_id", func(s *snapshot) *int64 { return &s.ProductID }),
		reconcile.Int64("campaign_id", func(s *snapshot) *int64 { return &s.CampaignID }),
		reconcile.Decimal("bid", func(s *snapshot) *decimal.Decimal { return &s.Bid }),
		reconcile.Int64("visibility_idx", func(s *snapshot) *int64 { return &s.VisibilityIdx }),
	},
}

var statisticSchema = &reconcile.Schema[statistic]{
	Table:      "statistics_campaigns",
	KeyColumns: []string{"date", "campaign_id"},
	ShopColumn: "shop_id",
	SetShop:    func(s *statistic, shopID int64) { s.ShopID = shopID },
	Fields: []reconcile.Field[statistic]{
		reconcile.Date("date", func(s *statistic) *time.Time { return &s.Date }),
		reconcile.Int64("campaign_id", func(s *statistic) *int64 { return &s.CampaignID }),
		reconcile.Int64("views", func(s *statistic) *int64 { return &s.Views }),
		reconcile.Int64("clicks", func(s *statistic) *int64 { return &s.Clicks }),
		reconcile.Decimal("expense", func(s *statistic) *decimal.Decimal { return &s.Expense }),
		reconcile.Int64("orders", func(s *statistic) *int64 { return &s.Orders }),
		reconcile.Decimal("revenue", func(s *statistic) *decimal.Decimal { return &s.Revenue }),
	},
}

func campaignRecord(item marketplace.Item) reconcile.Record {
	return reconcile.Record{
		"id":              marketplace.Lookup(item, "id"),
		"title":           marketplace.String(item, "title"),
		"state":           marketplace.String(item, "state"),
		"adv_object_type": marketplace.String(item, "advObjectType"),
		"payment_type":    marketplace.String(item, "PaymentType"),
		"from_date":       marketplace.String(item, "fromDate"),
		"to_date":         marketplace.String(item, "toDate"),
		"daily_budget":    marketplace.Number(item, "dailyBudget"),
		"budget":          marketplace.Number(item, "budget"),
		"launched_at":     marketplace.Lookup(item, "createdAt"),
		"changed_at":      marketplace.Lookup(item, "updatedAt"),
	}
}

// bidScale converts bids reported in millionths of the currency unit.
const bidScale = -6

func linkRecord(item marketplace.Item) (reconcile.Record, error) {
	bid, err := decimal.NewFromString(marketplace.Number(item, "bid"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "campaign product bid")
	}
	return reconcile.Record{
		"sku":            marketplace.Int64(item, "sku"),
		"title":          marketplace.String(item, "title"),
		"bid":            bid.Shift(bidScale),
		"visibility_idx": marketplace.Int64(item, "visibilityIndex"),
	}, nil
}

func statisticRecord(row marketplace.Item) reconcile.Record {
	return reconcile.Record{
		"date":        marketplace.String(row, "date"),
		"campaign_id": marketplace.Int64(row, "id"),
		"views":       marketplace.Int64(row, "views"),
		"clicks":      marketplace.Int64(row, "clicks"),
		"expense":     marketplace.Number(row, "moneySpent"),
		"orders":      marketplace.Int64(row, "orders"),
		"revenue":     marketplace.Number(row, "ordersMoney"),
	}
}
