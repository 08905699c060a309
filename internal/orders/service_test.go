package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type fetchCall struct {
	scheme   enums.FulfillmentScheme
	since, to time.Time
}

type fakeSource struct {
	fbo, fbs []marketplace.Item
	calls    []fetchCall
	err      error
}

// Postings only come back for the newest window.
func (f *fakeSource) fetch(scheme enums.FulfillmentScheme, items []marketplace.Item, since, to time.Time) ([]marketplace.Item, error) {
	f.calls = append(f.calls, fetchCall{scheme: scheme, since: since, to: to})
	if f.err != nil {
		return nil, f.err
	}
	if !to.Equal(now) {
		return nil, nil
	}
	return items, nil
}

func (f *fakeSource) FBOPostings(_ context.Context, since, to time.Time) ([]marketplace.Item, error) {
	return f.fetch(enums.SchemeFBO, f.fbo, since, to)
}

func (f *fakeSource) FBSPostings(_ context.Context, since, to time.Time) ([]marketplace.Item, error) {
	return f.fetch(enums.SchemeFBS, f.fbs, since, to)
}

func posting(orderID int64, number, postingNumber, status, createdAt string, lines ...map[string]any) marketplace.Item {
	list := make([]any, 0, len(lines))
	for _, l := range lines {
		list = append(list, l)
	}
	return marketplace.Item{
		"order_id":       float64(orderID),
		"order_number":   number,
		"posting_number": postingNumber,
		"status":         status,
		"created_at":     createdAt,
		"in_process_at":  createdAt,
		"analytics_data": map[string]any{"warehouse_name": "north", "region": "Moscow"},
		"products":       list,
	}
}

func line(sku int64, offerID string, qty int64, price string) map[string]any {
	return map[string]any{"sku": float64(sku), "offer_id": offerID, "name": offerID, "quantity": float64(qty), "price": price}
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	prods, err := products.NewService(products.ServiceParams{DB: conn, Logger: logger.Nop()})
	require.NoError(t, err)
	roll, err := rollup.NewService(conn)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:          conn,
		Logger:      logger.Nop(),
		Products:    prods,
		Rollup:      roll,
		MaxDays:     30,
		InitialDays: 90,
		Boundary:    window.BoundaryOverlap,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }

	require.NoError(t, conn.Create(&models.Product{ID: 1, ShopID: 1, OfferID: "A", Name: "a", FBOSKU: 101, FBSSKU: 201}).Error)
	return svc, conn
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestSyncOrdersAndItems(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()

	src := &fakeSource{
		fbo: []marketplace.Item{
			posting(10, "111", "111-0001-1", "awaiting_deliver", "2024-03-01T10:00:00Z",
				line(101, "A", 1, "100.00"),
				line(101, "A", 2, "100.00"),
				line(999, "Z", 1, "5.00"),
			),
		},
		fbs: []marketplace.Item{
			posting(20, "222", "222-0001-1", enums.OrderStatusDelivered, "2024-03-02T10:00:00Z",
				line(201, "A", 1, "120.00"),
			),
		},
	}

	summary, err := svc.Sync(ctx, 1, src, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)

	// Empty tables start from the initial horizon: one full window, then the
	// next window is empty and stops the walk.
	require.Len(t, src.calls, 4)
	assert.Equal(t, now.AddDate(0, 0, -30), src.calls[0].since)
	assert.Equal(t, enums.SchemeFBS, src.calls[2].scheme)

	var fboLines []models.FBOOrderItem
	require.NoError(t, conn.Order("sku").Find(&fboLines).Error)
	require.Len(t, fboLines, 2)
	assert.Equal(t, int64(3), fboLines[0].Quantity)
	require.NotNil(t, fboLines[0].ProductID)
	assert.Equal(t, int64(1), *fboLines[0].ProductID)
	assert.Nil(t, fboLines[1].ProductID)

	var fbsLines []models.FBSOrderItem
	require.NoError(t, conn.Find(&fbsLines).Error)
	require.Len(t, fbsLines, 1)
	require.NotNil(t, fbsLines[0].ProductID)

	var lost []models.LostProduct
	require.NoError(t, conn.Find(&lost).Error)
	require.Len(t, lost, 1)
	assert.Equal(t, int64(999), lost[0].SKU)
	assert.Equal(t, enums.SchemeFBO, lost[0].Scheme)

	// Second run: the open FBO order widens the horizon to its age, a line is
	// dropped and another changes quantity.
	src.calls = nil
	src.fbo = []marketplace.Item{
		posting(10, "111", "111-0001-1", "awaiting_deliver", "2024-03-01T10:00:00Z", line(101, "A", 5, "100.00")),
	}
	summary, err = svc.Sync(ctx, 1, src, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	require.NotEmpty(t, src.calls)
	assert.Equal(t, now.AddDate(0, 0, -9), src.calls[0].since)

	fboLines = nil
	require.NoError(t, conn.Find(&fboLines).Error)
	require.Len(t, fboLines, 1)
	assert.Equal(t, int64(5), fboLines[0].Quantity)

	var count int64
	require.NoError(t, conn.Model(&models.FBOOrder{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSyncFlagsSelfbuys(t *testing.T) {
	refs := map[string]string{
		"order number":   "111",
		"posting number": "111-0001-1",
	}
	for name, ref := range refs {
		t.Run(name, func(t *testing.T) {
			svc, conn := newService(t)
			ctx := context.Background()

			require.NoError(t, conn.Create(&models.Selfbuy{ShopID: 1, OrderRef: ref}).Error)
			require.NoError(t, conn.Create(&models.Transaction{
				ShopID:        1,
				OperationID:   1,
				OperationType: enums.OperationDeliveredToCustomer,
				OperationDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
				PostingNumber: "111-0001-1",
			}).Error)

			src := &fakeSource{fbo: []marketplace.Item{
				posting(10, "111", "111-0001-1", enums.OrderStatusDelivered, "2024-03-01T10:00:00Z", line(101, "A", 2, "150.00")),
			}}
			_, err := svc.Sync(ctx, 1, src, 1)
			require.NoError(t, err)

			var sb models.Selfbuy
			require.NoError(t, conn.Where("order_ref = ?", ref).First(&sb).Error)
			require.NotNil(t, sb.BoughtOn)
			require.NotNil(t, sb.TakenOn)
			assert.Equal(t, "2024-03-01", sb.BoughtOn.Format(time.DateOnly))
			assert.Equal(t, "2024-03-05", sb.TakenOn.Format(time.DateOnly))
			require.NotNil(t, sb.OfferID)
			assert.Equal(t, "A", *sb.OfferID)

			var daily models.Daily
			require.NoError(t, conn.Where("shop_id = ? AND sku = ?", 1, 101).First(&daily).Error)
			assert.Equal(t, int64(2), daily.SelfbuyCount)
			assert.True(t, decimal.NewFromInt(300).Equal(daily.SelfbuyAmount), daily.SelfbuyAmount.String())
		})
	}
}

func TestSyncPropagatesFetchError(t *testing.T) {
	svc, _ := newService(t)
	boom := errors.New("upstream down")
	_, err := svc.Sync(context.Background(), 1, &fakeSource{err: boom}, 1)
	require.ErrorIs(t, err, boom)
}

func TestItemRecordsMergesDuplicateSKUs(t *testing.T) {
	p := posting(1, "1", "1-1", "x", "2024-03-01T00:00:00Z", line(5, "A", 1, "1"), line(6, "B", 1, "1"), line(5, "A", 4, "1"))
	recs := itemRecords(p)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(5), recs[0]["quantity"])
	assert.Equal(t, int64(6), recs[1]["sku"])
}

func TestPostingRecordFallbacks(t *testing.T) {
	p := marketplace.Item{
		"order_id":        float64(1),
		"posting_number":  "1-1",
		"in_process_at":   "2024-03-01T08:00:00Z",
		"delivery_method": map[string]any{"warehouse": "south"},
		"shipment_date":   "2024-03-03T00:00:00Z",
	}
	rec := postingRecord(p, enums.SchemeFBS)
	assert.Equal(t, "2024-03-01T08:00:00Z", rec["ordered_at"])
	assert.Equal(t, "south", rec["warehouse"])
	assert.Equal(t, "2024-03-03T00:00:00Z", rec["shipment_date"])

	_, ok := postingRecord(p, enums.SchemeFBO)["shipment_date"]
	assert.False(t, ok)
}
