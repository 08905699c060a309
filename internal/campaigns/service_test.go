package campaigns

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

var now = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

type statsCall struct {
	ids      []int64
	from, to time.Time
}

type fakeAds struct {
	campaigns []marketplace.Item
	products  map[int64][]marketplace.Item
	stats     []statsCall
}

func (f *fakeAds) Campaigns(context.Context) ([]marketplace.Item, error) {
	return f.campaigns, nil
}

func (f *fakeAds) CampaignProducts(_ context.Context, id int64) ([]marketplace.Item, error) {
	return f.products[id], nil
}

func (f *fakeAds) DailyStatistics(_ context.Context, ids []int64, from, to time.Time) ([]marketplace.Item, error) {
	f.stats = append(f.stats, statsCall{ids: append([]int64(nil), ids...), from: from, to: to})
	rows := make([]marketplace.Item, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, marketplace.Item{
			"id":          float64(id),
			"date":        "2024-03-09",
			"views":       "1000",
			"clicks":      "12",
			"moneySpent":  "150,75",
			"orders":      "2",
			"ordersMoney": "3000,00",
		})
	}
	return rows, nil
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	prods, err := products.NewService(products.ServiceParams{DB: conn, Logger: logger.Nop()})
	require.NoError(t, err)
	roll, err := rollup.NewService(conn)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:                conn,
		Logger:            logger.Nop(),
		Products:          prods,
		Rollup:            roll,
		MaxDays:           30,
		MaxStatisticsDays: 60,
		LimitCampaigns:    1,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	require.NoError(t, conn.Create(&models.Product{ID: 1, ShopID: 1, OfferID: "A", Name: "a", FBOSKU: 101}).Error)
	return svc, conn
}

func campaignItem(id int64, state string) marketplace.Item {
	return marketplace.Item{
		"id":            strconv.FormatInt(id, 10),
		"title":         "promo",
		"state":         state,
		"advObjectType": "SKU",
		"PaymentType":   "CPC",
		"dailyBudget":   "500",
		"createdAt":     "2024-01-01T00:00:00Z",
		"updatedAt":     "2024-03-01T00:00:00Z",
	}
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestSyncMirrorsRunningCampaignProducts(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	src := &fakeAds{
		campaigns: []marketplace.Item{
			campaignItem(11, enums.CampaignStateRunning),
			campaignItem(12, "CAMPAIGN_STATE_INACTIVE"),
		},
		products: map[int64][]marketplace.Item{
			11: {
				{"sku": "101", "title": "a", "bid": "5000000", "visibilityIndex": float64(3)},
				{"sku": "999", "title": "unknown", "bid": "1000000"},
			},
		},
	}

	summary, err := svc.Sync(ctx, 1, src)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)

	var stored models.Campaign
	require.NoError(t, conn.First(&stored, 11).Error)
	assert.Equal(t, int64(1), stored.ShopID)
	assert.Equal(t, "CPC", stored.PaymentType)
	assert.True(t, stored.IsRunning())

	var links []models.CampaignProduct
	require.NoError(t, conn.Find(&links).Error)
	require.Len(t, links, 1)
	assert.Equal(t, int64(11), links[0].CampaignID)
	assert.Equal(t, int64(1), links[0].ProductID)
	assert.True(t, decimal.NewFromInt(5).Equal(links[0].Bid), links[0].Bid.String())

	var history []models.CampaignProductHistory
	require.NoError(t, conn.Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, int64(3), history[0].VisibilityIdx)

	var daily models.Daily
	require.NoError(t, conn.Where("shop_id = ? AND sku = ?", 1, 101).First(&daily).Error)
	assert.True(t, decimal.NewFromInt(5).Equal(daily.AdvPromoBid), daily.AdvPromoBid.String())
	assert.Equal(t, int64(3), daily.AdvPromoVisibility)

	// The product disappears from the campaign upstream.
	src.products[11] = nil
	summary, err = svc.Sync(ctx, 1, src)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	links = nil
	require.NoError(t, conn.Find(&links).Error)
	assert.Empty(t, links)
}

func TestSyncStatisticsChunksCampaigns(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	require.NoError(t, conn.Create(&models.Campaign{ID: 11, ShopID: 1, State: enums.CampaignStateRunning}).Error)
	require.NoError(t, conn.Create(&models.Campaign{ID: 12, ShopID: 1, State: "CAMPAIGN_STATE_INACTIVE"}).Error)
	require.NoError(t, conn.Create(&models.Campaign{ID: 13, ShopID: 2, State: enums.CampaignStateRunning}).Error)

	src := &fakeAds{}
	summary, err := svc.SyncStatistics(ctx, 1, src, 3)
	require.NoError(t, err)
	require.Len(t, src.stats, 2)
	assert.Equal(t, []int64{11}, src.stats[0].ids)
	assert.Equal(t, []int64{12}, src.stats[1].ids)
	assert.Equal(t, 2, summary.Created)

	var row models.StatisticsCampaign
	require.NoError(t, conn.Where("campaign_id = ?", 11).First(&row).Error)
	assert.Equal(t, int64(1000), row.Views)
	assert.True(t, decimal.RequireFromString("150.75").Equal(row.Expense), row.Expense.String())
	assert.True(t, decimal.NewFromInt(3000).Equal(row.Revenue), row.Revenue.String())

	// Requests beyond the statistics ceiling are capped: 60 days in two
	// windows, one call per campaign each.
	src.stats = nil
	summary, err = svc.SyncStatistics(ctx, 1, src, 365)
	require.NoError(t, err)
	assert.Len(t, src.stats, 4)
	assert.Equal(t, 0, summary.Created)
}
