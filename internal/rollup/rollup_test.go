package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
)

var (
	march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	march2 = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(conn)
	require.NoError(t, err)
	return svc, conn
}

func loadDaily(t *testing.T, conn *gorm.DB, shopID, sku int64, date time.Time) models.Daily {
	t.Helper()
	var row models.Daily
	require.NoError(t, conn.Where("shop_id = ? AND sku = ? AND date = ?", shopID, sku, date).First(&row).Error)
	return row
}

func seedStock(t *testing.T, conn *gorm.DB, productID, sku int64, scheme enums.FulfillmentScheme, present int64) {
	t.Helper()
	offer := models.SKUOffer{ShopID: 1, SKU: sku, Type: enums.SKUOfferType(scheme), OfferID: "A", ProductID: productID}
	require.NoError(t, conn.Create(&offer).Error)
	row := models.Stock{ShopID: 1, ProductID: productID, Date: march1, Type: scheme, Present: present}
	require.NoError(t, conn.Create(&row).Error)
}

func seedTransaction(t *testing.T, conn *gorm.DB, opID int64, opType string, amount string) {
	t.Helper()
	row := models.Transaction{
		ShopID:        1,
		OperationID:   opID,
		OperationType: opType,
		OperationDate: march1,
		SKU:           100,
		Amount:        decimal.RequireFromString(amount),
	}
	require.NoError(t, conn.Create(&row).Error)
}

func TestLastDays(t *testing.T) {
	r := LastDays(time.Date(2024, 3, 10, 17, 30, 0, 0, time.UTC), 3)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), r.To)

	r = LastDays(march1, 0)
	assert.Equal(t, r.From, r.To)
}

func TestStocksFollowSKUOffers(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	seedStock(t, conn, 5, 100, enums.SchemeFBO, 7)
	seedStock(t, conn, 5, 200, enums.SchemeFBS, 2)
	require.NoError(t, conn.Create(&models.SKUOffer{ShopID: 1, SKU: 300, Type: enums.SKUOfferDiscounted, OfferID: "A", ProductID: 5}).Error)

	require.NoError(t, svc.Stocks(ctx, 1, Range{From: march1, To: march1}))
	assert.Equal(t, int64(7), loadDaily(t, conn, 1, 100, march1).Stocks)
	assert.Equal(t, int64(2), loadDaily(t, conn, 1, 200, march1).Stocks)

	require.NoError(t, conn.Model(&models.Stock{}).Where("type = ?", enums.SchemeFBO).Update("present", 14).Error)
	require.NoError(t, svc.Stocks(ctx, 1, Range{From: march1, To: march1}))
	assert.Equal(t, int64(14), loadDaily(t, conn, 1, 100, march1).Stocks)

	var count int64
	require.NoError(t, conn.Model(&models.Daily{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestUpsertsKeepOtherColumns(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	seedStock(t, conn, 5, 100, enums.SchemeFBO, 5)
	seedTransaction(t, conn, 1, enums.OperationPremiumCashback, "12.50")
	seedTransaction(t, conn, 2, enums.OperationPremiumCashback, "2.50")
	seedTransaction(t, conn, 3, enums.OperationInstallment, "-4.00")
	seedTransaction(t, conn, 4, "OperationAgentDeliveredToCustomer", "900.00")

	r := Range{From: march1, To: march1}
	require.NoError(t, svc.Stocks(ctx, 1, r))
	require.NoError(t, svc.Transactions(ctx, 1, r))

	row := loadDaily(t, conn, 1, 100, march1)
	assert.Equal(t, int64(5), row.Stocks)
	assert.True(t, decimal.NewFromInt(15).Equal(row.PremiumCashback), row.PremiumCashback.String())
	assert.True(t, decimal.NewFromInt(-4).Equal(row.Installment), row.Installment.String())

	require.NoError(t, svc.Stocks(ctx, 1, r))
	row = loadDaily(t, conn, 1, 100, march1)
	assert.Equal(t, int64(5), row.Stocks)
	assert.True(t, decimal.NewFromInt(15).Equal(row.PremiumCashback))
}

func TestSelfbuys(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()

	order := models.FBOOrder{Posting: models.Posting{
		ShopID:        1,
		OrderID:       77,
		OrderNumber:   "0001-1",
		PostingNumber: "0001-1-1",
		Status:        "delivered",
		OrderedAt:     march2,
	}}
	require.NoError(t, conn.Create(&order).Error)
	item := models.FBOOrderItem{PostingItem: models.PostingItem{
		PostingID: order.ID,
		SKU:       100,
		Quantity:  2,
		Price:     decimal.RequireFromString("150.00"),
	}}
	require.NoError(t, conn.Create(&item).Error)
	bought := march2
	require.NoError(t, conn.Create(&models.Selfbuy{ShopID: 1, OrderRef: "0001-1", BoughtOn: &bought}).Error)
	require.NoError(t, conn.Create(&models.Selfbuy{ShopID: 1, OrderRef: "missing"}).Error)

	byPosting := models.FBOOrder{Posting: models.Posting{
		ShopID:        1,
		OrderID:       78,
		OrderNumber:   "0002-1",
		PostingNumber: "0002-1-1",
		Status:        "delivered",
		OrderedAt:     march1,
	}}
	require.NoError(t, conn.Create(&byPosting).Error)
	require.NoError(t, conn.Create(&models.FBOOrderItem{PostingItem: models.PostingItem{
		PostingID: byPosting.ID,
		SKU:       200,
		Quantity:  1,
		Price:     decimal.RequireFromString("80.00"),
	}}).Error)
	boughtEarlier := march1
	require.NoError(t, conn.Create(&models.Selfbuy{ShopID: 1, OrderRef: "0002-1-1", BoughtOn: &boughtEarlier}).Error)

	require.NoError(t, svc.Selfbuys(ctx, 1, Range{From: march1, To: march2}))

	row := loadDaily(t, conn, 1, 100, march2)
	assert.Equal(t, int64(2), row.SelfbuyCount)
	assert.True(t, decimal.NewFromInt(300).Equal(row.SelfbuyAmount), row.SelfbuyAmount.String())

	row = loadDaily(t, conn, 1, 200, march1)
	assert.Equal(t, int64(1), row.SelfbuyCount)
	assert.True(t, decimal.NewFromInt(80).Equal(row.SelfbuyAmount), row.SelfbuyAmount.String())
}

func TestCampaigns(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()

	require.NoError(t, conn.Create(&models.Campaign{ID: 9, ShopID: 1, State: enums.CampaignStateRunning}).Error)
	require.NoError(t, conn.Create(&models.CampaignProduct{CampaignID: 9, ProductID: 5, SKU: 100}).Error)
	require.NoError(t, conn.Create(&models.Campaign{ID: 10, ShopID: 1, State: enums.CampaignStateRunning}).Error)
	require.NoError(t, conn.Create(&models.CampaignProduct{CampaignID: 10, ProductID: 5, SKU: 100}).Error)
	history := []models.CampaignProductHistory{
		{Date: march1, ProductID: 5, CampaignID: 9, Bid: decimal.RequireFromString("7.5"), VisibilityIdx: 3},
		{Date: march1, ProductID: 5, CampaignID: 10, Bid: decimal.RequireFromString("9"), VisibilityIdx: 1},
	}
	require.NoError(t, conn.Create(&history).Error)

	require.NoError(t, svc.Campaigns(ctx, 1, Range{From: march1, To: march1}))

	row := loadDaily(t, conn, 1, 100, march1)
	assert.True(t, decimal.NewFromInt(9).Equal(row.AdvPromoBid), row.AdvPromoBid.String())
	assert.Equal(t, int64(1), row.AdvPromoVisibility)
}
