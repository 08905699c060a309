package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

func postingFields[O any](p func(*O) *models.Posting) []reconcile.Field[O] {
	return []reconcile.Field[O]{
		reconcile.Int64("order_id", func(o *O) *int64 { return &p(o).OrderID }),
		reconcile.String("order_number", func(o *O) *string { return &p(o).OrderNumber }),
		reconcile.String("posting_number", func(o *O) *string { return &p(o).PostingNumber }),
		reconcile.String("status", func(o *O) *string { return &p(o).Status }),
		reconcile.DateTime("ordered_at", func(o *O) *time.Time { return &p(o).OrderedAt }),
		reconcile.DateTime("in_process_at", func(o *O) *time.Time { return &p(o).InProcessAt }),
		reconcile.String("warehouse", func(o *O) *string { return &p(o).Warehouse }),
		reconcile.String("region", func(o *O) *string { return &p(o).Region }),
	}
}

func itemFields[I any](p func(*I) *models.PostingItem) []reconcile.Field[I] {
	return []reconcile.Field[I]{
		reconcile.Int64("sku", func(i *I) *int64 { return &p(i).SKU }),
		reconcile.NullableInt64("product_id", func(i *I) **int64 { return &p(i).ProductID }),
		reconcile.String("offer_id", func(i *I) *string { return &p(i).OfferID }),
		reconcile.String("name", func(i *I) *string { return &p(i).Name }),
		reconcile.Int64("quantity", func(i *I) *int64 { return &p(i).Quantity }),
		reconcile.Decimal("price", func(i *I) *decimal.Decimal { return &p(i).Price }),
	}
}

var postingKey = []string{"order_id", "posting_number"}

var fboOrders = &reconcile.Schema[models.FBOOrder]{
	Table:      "fbo_orders",
	KeyColumns: postingKey,
	ShopColumn: "shop_id",
	SetShop:    func(o *models.FBOOrder, shopID int64) { o.ShopID = shopID },
	Fields:     postingFields(func(o *models.FBOOrder) *models.Posting { return &o.Posting }),
}

var fbsOrders = &reconcile.Schema[models.FBSOrder]{
	Table:      "fbs_orders",
	KeyColumns: postingKey,
	ShopColumn: "shop_id",
	SetShop:    func(o *models.FBSOrder, shopID int64) { o.ShopID = shopID },
	Fields: append(
		postingFields(func(o *models.FBSOrder) *models.Posting { return &o.Posting }),
		reconcile.DateTime("shipment_date", func(o *models.FBSOrder) *time.Time { return &o.ShipmentDate }),
	),
}

var fboItems = &reconcile.Schema[models.FBOOrderItem]{
	Table:      "fbo_order_items",
	KeyColumns: []string{"sku"},
	Fields:     itemFields(func(i *models.FBOOrderItem) *models.PostingItem { return &i.PostingItem }),
}

var fbsItems = &reconcile.Schema[models.FBSOrderItem]{
	Table:      "fbs_order_items",
	KeyColumns: []string{"sku"},
	Fields:     itemFields(func(i *models.FBSOrderItem) *models.PostingItem { return &i.PostingItem }),
}

func postingRecord(p marketplace.Item, scheme enums.FulfillmentScheme) reconcile.Record {
	orderedAt := marketplace.Lookup(p, "created_at")
	if orderedAt == nil {
		orderedAt = marketplace.Lookup(p, "in_process_at")
	}
	warehouse := marketplace.String(p, "analytics_data", "warehouse_name")
	if warehouse == "" {
		warehouse = marketplace.String(p, "delivery_method", "warehouse")
	}
	rec := reconcile.Record{
		"order_id":       marketplace.Lookup(p, "order_id"),
		"order_number":   marketplace.String(p, "order_number"),
		"posting_number": marketplace.String(p, "posting_number"),
		"status":         marketplace.String(p, "status"),
		"ordered_at":     orderedAt,
		"in_process_at":  marketplace.Lookup(p, "in_process_at"),
		"warehouse":      warehouse,
		"region":         marketplace.String(p, "analytics_data", "region"),
	}
	if scheme == enums.SchemeFBS {
		rec["shipment_date"] = marketplace.Lookup(p, "shipment_date")
	}
	return rec
}

// itemRecords folds repeated skus of one posting into a single line.
func itemRecords(p marketplace.Item) []reconcile.Record {
	var (
		order []int64
		bySKU = map[int64]reconcile.Record{}
	)
	for _, item := range marketplace.List(p, "products") {
		sku := marketplace.Int64(item, "sku")
		qty := marketplace.Int64(item, "quantity")
		if rec, ok := bySKU[sku]; ok {
			rec["quantity"] = rec["quantity"].(int64) + qty
			continue
		}
		order = append(order, sku)
		bySKU[sku] = reconcile.Record{
			"sku":      sku,
			"offer_id": marketplace.String(item, "offer_id"),
			"name":     marketplace.String(item, "name"),
			"quantity": qty,
			"price":    marketplace.Lookup(item, "price"),
		}
	}
	out := make([]reconcile.Record, 0, len(order))
	for _, sku := range order {
		out = append(out, bySKU[sku])
	}
	return out
}
