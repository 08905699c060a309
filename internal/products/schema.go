package products

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

type product = models.Product

var productSchema = &reconcile.Schema[product]{
	Table:      "products",
	KeyColumns: []string{"id"},
	ShopColumn: "shop_id",
	SetShop:    func(p *product, shopID int64) { p.ShopID = shopID },
	Fields: []reconcile.Field[product]{
		reconcile.Int64("id", func(p *product) *int64 { return &p.ID }),
		reconcile.String("offer_id", func(p *product) *string { return &p.OfferID }),
		reconcile.String("name", func(p *product) *string { return &p.Name }),
		reconcile.Int64("fbo_sku", func(p *product) *int64 { return &p.FBOSKU }),
		reconcile.Int64("fbs_sku", func(p *product) *int64 { return &p.FBSSKU }),
		reconcile.String("barcode", func(p *product) *string { return &p.Barcode }),
		reconcile.Int64("category_id", func(p *product) *int64 { return &p.CategoryID }),
		reconcile.Decimal("price", func(p *product) *decimal.Decimal { return &p.Price }),
		reconcile.Decimal("old_price", func(p *product) *decimal.Decimal { return &p.OldPrice }),
		reconcile.Decimal("marketing_price", func(p *product) *decimal.Decimal { return &p.MarketingPrice }),
		reconcile.Decimal("min_price", func(p *product) *decimal.Decimal { return &p.MinPrice }),
		reconcile.Bool("visible", func(p *product) *bool { return &p.Visible }),
		reconcile.JSON("attributes", func(p *product) *datatypes.JSON { return &p.Attributes }),
		reconcile.DateTime("listed_at", func(p *product) *time.Time { return &p.ListedAt }),
	},
}

// productRecord merges the info card with its price and attribute entries.
// price and attrs may be nil.
func productRecord(info, price, attrs marketplace.Item) reconcile.Record {
	rec := reconcile.Record{
		"id":          marketplace.Int64(info, "id"),
		"offer_id":    marketplace.String(info, "offer_id"),
		"name":        marketplace.String(info, "name"),
		"barcode":     barcode(info),
		"category_id": firstInt(info, "description_category_id", "category_id"),
		"visible":     visible(info),
		"listed_at":   marketplace.Lookup(info, "created_at"),
	}
	fbo, fbs := skus(info)
	rec["fbo_sku"] = fbo
	rec["fbs_sku"] = fbs

	prices := info
	if price != nil {
		if nested, ok := marketplace.Lookup(price, "price").(map[string]any); ok {
			prices = nested
		}
	}
	for _, col := range []string{"price", "old_price", "marketing_price", "min_price"} {
		if v := marketplace.Lookup(prices, col); v != nil {
			rec[col] = v
		}
	}
	if attrs != nil {
		if v := marketplace.Lookup(attrs, "attributes"); v != nil {
			rec["attributes"] = v
		}
	}
	return rec
}

// skus reads the fulfillment skus from the sources list, falling back to the
// legacy flat fields. A single unified source serves both schemes.
func skus(info marketplace.Item) (fbo, fbs int64) {
	for _, src := range marketplace.List(info, "sources") {
		sku := marketplace.Int64(src, "sku")
		switch marketplace.String(src, "source") {
		case "fbo":
			fbo = sku
		case "fbs":
			fbs = sku
		case "sds":
			if fbo == 0 {
				fbo = sku
			}
			if fbs == 0 {
				fbs = sku
			}
		}
	}
	if fbo == 0 {
		fbo = firstInt(info, "fbo_sku", "sku")
	}
	if fbs == 0 {
		fbs = firstInt(info, "fbs_sku", "sku")
	}
	return fbo, fbs
}

func barcode(info marketplace.Item) string {
	if codes, ok := marketplace.Lookup(info, "barcodes").([]any); ok && len(codes) > 0 {
		if s, ok := codes[0].(string); ok {
			return s
		}
	}
	return marketplace.String(info, "barcode")
}

func visible(info marketplace.Item) bool {
	if v, ok := marketplace.Lookup(info, "visible").(bool); ok {
		return v
	}
	return !marketplace.Bool(info, "is_archived")
}

func firstInt(item marketplace.Item, keys ...string) int64 {
	for _, key := range keys {
		if n := marketplace.Int64(item, key); n != 0 {
			return n
		}
	}
	return 0
}
