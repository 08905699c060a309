// Package stocks snapshots product and warehouse stock levels once per day.
package stocks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

// Source is the seller API surface needed to refresh stock.
type Source interface {
	products.Source
	ProductStocks(ctx context.Context, ids []int64) ([]marketplace.Item, error)
	WarehouseStocks(ctx context.Context) ([]marketplace.Item, error)
}

var stockSchema = &reconcile.Schema[models.Stock]{
	Table:      "stocks",
	KeyColumns: []string{"product_id", "date", "type"},
	ShopColumn: "shop_id",
	SetShop:    func(s *models.Stock, shopID int64) { s.ShopID = shopID },
	Fields: []reconcile.Field[models.Stock]{
		reconcile.Int64("product_id", func(s *models.Stock) *int64 { return &s.ProductID }),
		reconcile.Date("date", func(s *models.Stock) *time.Time { return &s.Date }),
		reconcile.StringAs("type", func(s *models.Stock) *enums.FulfillmentScheme { return &s.Type }),
		reconcile.Int64("present", func(s *models.Stock) *int64 { return &s.Present }),
		reconcile.Int64("reserved", func(s *models.Stock) *int64 { return &s.Reserved }),
	},
}

var warehouseSchema = &reconcile.Schema[models.WarehouseStock]{
	Table:      "warehouse_stocks",
	KeyColumns: []string{"sku", "date", "warehouse"},
	ShopColumn: "shop_id",
	SetShop:    func(w *models.WarehouseStock, shopID int64) { w.ShopID = shopID },
	Fields: []reconcile.Field[models.WarehouseStock]{
		reconcile.Int64("sku", func(w *models.WarehouseStock) *int64 { return &w.SKU }),
		reconcile.Date("date", func(w *models.WarehouseStock) *time.Time { return &w.Date }),
		reconcile.String("warehouse", func(w *models.WarehouseStock) *string { return &w.Warehouse }),
		reconcile.String("offer_id", func(w *models.WarehouseStock) *string { return &w.OfferID }),
		reconcile.Bool("discounted", func(w *models.WarehouseStock) *bool { return &w.Discounted }),
		reconcile.Int64("free_to_sell", func(w *models.WarehouseStock) *int64 { return &w.FreeToSell }),
		reconcile.Int64("promised", func(w *models.WarehouseStock) *int64 { return &w.Promised }),
		reconcile.Int64("reserved", func(w *models.WarehouseStock) *int64 { return &w.Reserved }),
	},
}

type ServiceParams struct {
	DB        *gorm.DB
	Logger    *logger.Logger
	Products  *products.Service
	Rollup    *rollup.Service
	ChunkSize int
	Observer  reconcile.Observer
}

type Service struct {
	db        *gorm.DB
	logg      *logger.Logger
	products  *products.Service
	rollup    *rollup.Service
	chunkSize int
	observer  reconcile.Observer
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("stocks db required")
	case params.Logger == nil:
		return nil, fmt.Errorf("stocks logger required")
	case params.Products == nil:
		return nil, fmt.Errorf("stocks products service required")
	case params.Rollup == nil:
		return nil, fmt.Errorf("stocks rollup service required")
	}
	chunk := params.ChunkSize
	if chunk <= 0 {
		chunk = 1000
	}
	return &Service{
		db:        params.DB,
		logg:      params.Logger,
		products:  params.Products,
		rollup:    params.Rollup,
		chunkSize: chunk,
		observer:  params.Observer,
		now:       time.Now,
	}, nil
}

// Sync refreshes the catalog, then today's product and warehouse stock,
// then the sku map and the stock rollup.
func (s *Service) Sync(ctx context.Context, shopID int64, src Source) (reconcile.Summary, error) {
	var summary reconcile.Summary
	if _, err := s.products.Sync(ctx, shopID, src); err != nil {
		return summary, err
	}
	today := s.now().UTC()

	ids, err := s.products.ProductIDs(ctx, shopID)
	if err != nil {
		return summary, err
	}
	for _, chunk := range window.Chunk(ids, s.chunkSize) {
		items, err := src.ProductStocks(ctx, chunk)
		if err != nil {
			return summary, err
		}
		part, err := reconcile.Reconcile(ctx, s.db, stockSchema, productStockRecords(items, today), reconcile.Options[models.Stock]{
			ShopID:   shopID,
			Observer: s.observer,
		})
		if err != nil {
			return summary, err
		}
		summary.Add(part)
	}
	s.logg.Info(ctx, summary.String())

	rows, err := src.WarehouseStocks(ctx)
	if err != nil {
		return summary, err
	}
	resolver, err := s.products.Resolver(ctx, shopID)
	if err != nil {
		return summary, err
	}
	listed := resolver.ProductSKUs()
	records := make([]reconcile.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, warehouseRecord(row, today, listed))
	}
	wh, err := reconcile.Reconcile(ctx, s.db, warehouseSchema, records, reconcile.Options[models.WarehouseStock]{
		ShopID:   shopID,
		Observer: s.observer,
	})
	if err != nil {
		return summary, err
	}
	s.logg.Info(ctx, wh.String())
	summary.Add(wh)

	if err := s.products.RefreshSKUOffers(ctx, shopID); err != nil {
		return summary, err
	}
	if err := s.rollup.Stocks(ctx, shopID, rollup.LastDays(today, 1)); err != nil {
		return summary, err
	}
	return summary, nil
}

func productStockRecords(items []marketplace.Item, date time.Time) []reconcile.Record {
	var records []reconcile.Record
	for _, item := range items {
		productID := marketplace.Int64(item, "product_id")
		for _, st := range marketplace.List(item, "stocks") {
			records = append(records, reconcile.Record{
				"product_id": productID,
				"date":       date,
				"type":       marketplace.String(st, "type"),
				"present":    marketplace.Int64(st, "present"),
				"reserved":   marketplace.Int64(st, "reserved"),
			})
		}
	}
	return records
}

// warehouseRecord marks rows whose sku is on no product card as discounted
// stock.
func warehouseRecord(row marketplace.Item, date time.Time, listed map[int64]struct{}) reconcile.Record {
	sku := marketplace.Int64(row, "sku")
	_, onCard := listed[sku]
	return reconcile.Record{
		"sku":          sku,
		"date":         date,
		"warehouse":    marketplace.String(row, "warehouse_name"),
		"offer_id":     marketplace.String(row, "item_code"),
		"discounted":   !onCard,
		"free_to_sell": marketplace.Int64(row, "free_to_sell_amount"),
		"promised":     marketplace.Int64(row, "promised_amount"),
		"reserved":     marketplace.Int64(row, "reserved_amount"),
	}
}
