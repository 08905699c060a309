package reports

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

type (
	productStat = models.StatisticsCampaignProduct
	orderStat   = models.StatisticsCampaignOrder
)

var productStatSchema = &reconcile.Schema[productStat]{
	Table:      "statistics_campaign_products",
	KeyColumns: []string{"campaign_id", "date", "sku", "page", "condition"},
	ShopColumn: "shop_id",
	SetShop:    func(p *productStat, shopID int64) { p.ShopID = shopID },
	Fields: []reconcile.Field[productStat]{
		reconcile.Int64("campaign_id", func(p *productStat) *int64 { return &p.CampaignID }),
		reconcile.Date("date", func(p *productStat) *time.Time { return &p.Date }),
		reconcile.Int64("sku", func(p *productStat) *int64 { return &p.SKU }),
		reconcile.String("page", func(p *productStat) *string { return &p.Page }),
		reconcile.String("condition", func(p *productStat) *string { return &p.Condition }),
		reconcile.Decimal("price", func(p *productStat) *decimal.Decimal { return &p.Price }),
		reconcile.Int64("views", func(p *productStat) *int64 { return &p.Views }),
		reconcile.Int64("clicks", func(p *productStat) *int64 { return &p.Clicks }),
		reconcile.Decimal("expense", func(p *productStat) *decimal.Decimal { return &p.Expense }),
		reconcile.Int64("orders", func(p *productStat) *int64 { return &p.Orders }),
		reconcile.Decimal("revenue", func(p *productStat) *decimal.Decimal { return &p.Revenue }),
	},
}

var orderStatSchema = &reconcile.Schema[orderStat]{
	Table:      "statistics_campaign_orders",
	KeyColumns: []string{"campaign_id", "order_id", "sale_product_sku"},
	ShopColumn: "shop_id",
	SetShop:    func(o *orderStat, shopID int64) { o.ShopID = shopID },
	Fields: []reconcile.Field[orderStat]{
		reconcile.Int64("campaign_id", func(o *orderStat) *int64 { return &o.CampaignID }),
		reconcile.Date("date", func(o *orderStat) *time.Time { return &o.Date }),
		reconcile.String("order_id", func(o *orderStat) *string { return &o.OrderID }),
		reconcile.Int64("sale_product_sku", func(o *orderStat) *int64 { return &o.SaleProductSKU }),
		reconcile.Int64("count", func(o *orderStat) *int64 { return &o.Count }),
		reconcile.Decimal("price", func(o *orderStat) *decimal.Decimal { return &o.Price }),
		reconcile.Decimal("rate_amount", func(o *orderStat) *decimal.Decimal { return &o.RateAmount }),
	},
}

type parsed struct {
	products []reconcile.Record
	orders   []reconcile.Record
	skipped  int
}

// parse splits a downloaded report into product and order statistics.
// Sections of an unknown type and rows without a readable date are logged
// and skipped.
func (s *Service) parse(ctx context.Context, download map[string]marketplace.Item, types map[int64]string) parsed {
	var out parsed
	for key, section := range download {
		campaignID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "section", key), "report section is not a campaign id")
			out.skipped++
			continue
		}
		kind := marketplace.String(section, "type")
		if kind == "" {
			kind = types[campaignID]
		}
		lctx := s.logg.WithFields(ctx, map[string]any{"campaign_id": campaignID, "type": kind})

		rows := marketplace.List(section, "report", "rows")
		switch kind {
		case enums.ReportSectionSKU:
			for _, row := range rows {
				rec, ok := productRow(campaignID, row)
				if !ok {
					out.skipped++
					continue
				}
				out.products = append(out.products, rec)
			}
		case enums.ReportSectionSearchPromo:
			for _, row := range rows {
				rec, ok := orderRow(campaignID, row)
				if !ok {
					out.skipped++
					continue
				}
				out.orders = append(out.orders, rec)
			}
		default:
			s.logg.Warn(lctx, "unknown campaign statistics type")
			out.skipped += len(rows)
		}
	}
	return out
}

func productRow(campaignID int64, row marketplace.Item) (reconcile.Record, bool) {
	day, ok := marketplace.Day(row, "date")
	if !ok {
		return nil, false
	}
	return reconcile.Record{
		"campaign_id": campaignID,
		"date":        day,
		"sku":         marketplace.Int64(row, "sku"),
		"page":        marketplace.String(row, "page"),
		"condition":   marketplace.String(row, "condition"),
		"price":       marketplace.Number(row, "price"),
		"views":       whole(row, "views"),
		"clicks":      whole(row, "clicks"),
		"expense":     marketplace.Number(row, "moneySpent"),
		"orders":      whole(row, "orders"),
		"revenue":     marketplace.Number(row, "ordersMoney"),
	}, true
}

func orderRow(campaignID int64, row marketplace.Item) (reconcile.Record, bool) {
	day, ok := marketplace.Day(row, "date")
	if !ok {
		return nil, false
	}
	sku := marketplace.Int64(row, "sku")
	if sku == 0 {
		sku = marketplace.Int64(row, "ozonId")
	}
	return reconcile.Record{
		"campaign_id":      campaignID,
		"date":             day,
		"order_id":         marketplace.String(row, "orderId"),
		"sale_product_sku": sku,
		"count":            whole(row, "quantity"),
		"price":            marketplace.Number(row, "price"),
		"rate_amount":      marketplace.Number(row, "cost"),
	}, true
}

// whole reads a counter that may be rendered with grouping spaces.
func whole(row marketplace.Item, key string) int64 {
	d, err := decimal.NewFromString(marketplace.Number(row, key))
	if err != nil {
		return 0
	}
	return d.IntPart()
}
