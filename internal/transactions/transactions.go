// Package transactions mirrors the finance ledger of a shop.
package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

const defaultChunkSize = 5000

type Source interface {
	Transactions(ctx context.Context, from, to time.Time) ([]marketplace.Item, error)
}

type txn = models.Transaction

var schema = &reconcile.Schema[txn]{
	Table:      "transactions",
	KeyColumns: []string{"operation_id"},
	ShopColumn: "shop_id",
	SetShop:    func(t *txn, shopID int64) { t.ShopID = shopID },
	Fields: []reconcile.Field[txn]{
		reconcile.Int64("operation_id", func(t *txn) *int64 { return &t.OperationID }),
		reconcile.String("operation_type", func(t *txn) *string { return &t.OperationType }),
		reconcile.String("operation_type_name", func(t *txn) *string { return &t.OperationTypeName }),
		reconcile.Date("operation_date", func(t *txn) *time.Time { return &t.OperationDate }),
		reconcile.String("type", func(t *txn) *string { return &t.Type }),
		reconcile.String("posting_number", func(t *txn) *string { return &t.PostingNumber }),
		reconcile.Int64("sku", func(t *txn) *int64 { return &t.SKU }),
		reconcile.Decimal("amount", func(t *txn) *decimal.Decimal { return &t.Amount }),
		reconcile.Decimal("accruals_for_sale", func(t *txn) *decimal.Decimal { return &t.AccrualsForSale }),
		reconcile.Decimal("sale_commission", func(t *txn) *decimal.Decimal { return &t.SaleCommission }),
		reconcile.Decimal("delivery_charge", func(t *txn) *decimal.Decimal { return &t.DeliveryCharge }),
		reconcile.Decimal("return_delivery_charge", func(t *txn) *decimal.Decimal { return &t.ReturnDeliveryCharge }),
		reconcile.JSON("services", func(t *txn) *datatypes.JSON { return &t.Services }),
	},
}

type ServiceParams struct {
	DB        *gorm.DB
	Logger    *logger.Logger
	Rollup    *rollup.Service
	MaxDays   int
	ChunkSize int
	Observer  reconcile.Observer
}

type Service struct {
	db        *gorm.DB
	logg      *logger.Logger
	rollup    *rollup.Service
	maxDays   int
	chunkSize int
	observer  reconcile.Observer
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transactions db required")
	case params.Logger == nil:
		return nil, fmt.Errorf("transactions logger required")
	case params.Rollup == nil:
		return nil, fmt.Errorf("transactions rollup service required")
	case params.MaxDays <= 0:
		return nil, fmt.Errorf("transactions max days must be positive")
	}
	chunk := params.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Service{
		db:        params.DB,
		logg:      params.Logger,
		rollup:    params.Rollup,
		maxDays:   params.MaxDays,
		chunkSize: chunk,
		observer:  params.Observer,
		now:       time.Now,
	}, nil
}

// Sync walks back days in contiguous windows and stops at the first window
// without operations. The premium and installment rollup is refreshed for
// the whole span afterwards.
func (s *Service) Sync(ctx context.Context, shopID int64, src Source, days int) (reconcile.Summary, error) {
	summary := reconcile.Summary{Table: schema.Table}
	now := s.now().UTC()
	plan := window.Plan{
		TotalDays:   days,
		MaxDays:     s.maxDays,
		Until:       now,
		Boundary:    window.BoundaryContiguous,
		StopOnEmpty: true,
	}
	page := func(ctx context.Context, w window.Window) (int, error) {
		ops, err := src.Transactions(ctx, w.From, w.To)
		if err != nil {
			return 0, err
		}
		for _, chunk := range window.Chunk(ops, s.chunkSize) {
			records := make([]reconcile.Record, 0, len(chunk))
			for _, op := range chunk {
				records = append(records, record(op))
			}
			part, err := reconcile.Reconcile(ctx, s.db, schema, records, reconcile.Options[txn]{
				ShopID:   shopID,
				Hook:     servicesHook,
				Observer: s.observer,
			})
			if err != nil {
				return 0, err
			}
			summary.Add(part)
		}
		return len(ops), nil
	}
	if _, err := window.Each(ctx, plan, page, window.Abort); err != nil {
		return summary, err
	}
	s.logg.Info(ctx, summary.String())

	if err := s.rollup.Transactions(ctx, shopID, rollup.LastDays(now, days)); err != nil {
		return summary, err
	}
	return summary, nil
}

func record(op marketplace.Item) reconcile.Record {
	var sku int64
	if items := marketplace.List(op, "items"); len(items) > 0 {
		sku = marketplace.Int64(items[0], "sku")
	}
	services := marketplace.Lookup(op, "services")
	if services == nil {
		services = []any{}
	}
	return reconcile.Record{
		"operation_id":           marketplace.Lookup(op, "operation_id"),
		"operation_type":         marketplace.String(op, "operation_type"),
		"operation_type_name":    marketplace.String(op, "operation_type_name"),
		"operation_date":         marketplace.String(op, "operation_date"),
		"type":                   marketplace.String(op, "type"),
		"posting_number":         marketplace.String(op, "posting", "posting_number"),
		"sku":                    sku,
		"amount":                 marketplace.Lookup(op, "amount"),
		"accruals_for_sale":      marketplace.Lookup(op, "accruals_for_sale"),
		"sale_commission":        marketplace.Lookup(op, "sale_commission"),
		"delivery_charge":        marketplace.Lookup(op, "delivery_charge"),
		"return_delivery_charge": marketplace.Lookup(op, "return_delivery_charge"),
		"services":               services,
	}
}

// servicesHook leaves an order operation as stored when the API later reports
// it without services, and ignores reordering of the list.
func servicesHook(changed bool, current *txn, column string, incoming any) (bool, bool) {
	if column != "services" || !changed {
		return changed, false
	}
	list, _ := incoming.([]any)
	if current.Type == enums.TransactionTypeOrders && len(list) == 0 {
		return true, true
	}
	if len(list) == 0 || len(current.Services) == 0 {
		return changed, false
	}
	var stored []any
	if err := json.Unmarshal(current.Services, &stored); err != nil {
		return changed, false
	}
	return !slices.Equal(sortedEntries(stored), sortedEntries(list)), false
}

func sortedEntries(list []any) []string {
	out := make([]string, 0, len(list))
	for _, entry := range list {
		raw, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		out = append(out, string(raw))
	}
	slices.Sort(out)
	return out
}
