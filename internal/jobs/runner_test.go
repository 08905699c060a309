package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/analytics"
	"github.com/angelmondragon/mpsync/internal/campaigns"
	"github.com/angelmondragon/mpsync/internal/credentials"
	"github.com/angelmondragon/mpsync/internal/orders"
	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/reports"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/stocks"
	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/internal/transactions"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

// fakeAPI answers every call with no data and records the call order.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	panic string
}

func (f *fakeAPI) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if name == f.panic {
		panic("boom")
	}
	return f.errs[name]
}

func (f *fakeAPI) called(name string) bool {
	return f.index(name) >= 0
}

func (f *fakeAPI) index(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == name {
			return i
		}
	}
	return -1
}

func (f *fakeAPI) ProductIDs(context.Context) ([]int64, error) {
	return nil, f.call("ProductIDs")
}

func (f *fakeAPI) ProductInfo(context.Context, []int64) ([]marketplace.Item, error) {
	return nil, f.call("ProductInfo")
}

func (f *fakeAPI) ProductPrices(context.Context, []int64) ([]marketplace.Item, error) {
	return nil, f.call("ProductPrices")
}

func (f *fakeAPI) ProductAttributes(context.Context, []int64) ([]marketplace.Item, error) {
	return nil, f.call("ProductAttributes")
}

func (f *fakeAPI) ProductStocks(context.Context, []int64) ([]marketplace.Item, error) {
	return nil, f.call("ProductStocks")
}

func (f *fakeAPI) WarehouseStocks(context.Context) ([]marketplace.Item, error) {
	return nil, f.call("WarehouseStocks")
}

func (f *fakeAPI) Analytics(context.Context, time.Time, time.Time, []string) ([]marketplace.AnalyticsRow, error) {
	return nil, f.call("Analytics")
}

func (f *fakeAPI) Transactions(context.Context, time.Time, time.Time) ([]marketplace.Item, error) {
	return nil, f.call("Transactions")
}

func (f *fakeAPI) FBOPostings(context.Context, time.Time, time.Time) ([]marketplace.Item, error) {
	return nil, f.call("FBOPostings")
}

func (f *fakeAPI) FBSPostings(context.Context, time.Time, time.Time) ([]marketplace.Item, error) {
	return nil, f.call("FBSPostings")
}

func (f *fakeAPI) Campaigns(context.Context) ([]marketplace.Item, error) {
	return nil, f.call("Campaigns")
}

func (f *fakeAPI) CampaignProducts(context.Context, int64) ([]marketplace.Item, error) {
	return nil, f.call("CampaignProducts")
}

func (f *fakeAPI) DailyStatistics(context.Context, []int64, time.Time, time.Time) ([]marketplace.Item, error) {
	return nil, f.call("DailyStatistics")
}

func (f *fakeAPI) CreateReport(context.Context, []int64, time.Time, time.Time) (string, error) {
	return "", f.call("CreateReport")
}

func (f *fakeAPI) ReportState(context.Context, string) (marketplace.ReportStatus, error) {
	return marketplace.ReportStatus{}, f.call("ReportState")
}

func (f *fakeAPI) DownloadReport(context.Context, string) (map[string]marketplace.Item, error) {
	return nil, f.call("DownloadReport")
}

type fakeClients struct {
	seller, performance *fakeAPI
}

func (c fakeClients) Seller(*models.APIKey) (SellerAPI, error)           { return c.seller, nil }
func (c fakeClients) Performance(*models.APIKey) (PerformanceAPI, error) { return c.performance, nil }

type fakeLock struct {
	acquireErr error
	acquired   int
	released   int
	state      string
}

func (l *fakeLock) Acquire(context.Context) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired++
	return nil
}

func (l *fakeLock) Release(context.Context) error {
	l.released++
	return nil
}

func (l *fakeLock) SetState(_ context.Context, text string) error {
	l.state = text
	return nil
}

type fakeLocks map[string]*fakeLock

func (f fakeLocks) factory(_ context.Context, name string) (Locker, error) {
	l, ok := f[name]
	if !ok {
		l = &fakeLock{}
		f[name] = l
	}
	return l, nil
}

type fixture struct {
	runner      *Runner
	conn        *gorm.DB
	seller      *fakeAPI
	performance *fakeAPI
	locks       fakeLocks
	sellerKey   models.APIKey
	perfKey     models.APIKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	logg := logger.Nop()

	creds, err := credentials.NewService(credentials.NewRepository(conn))
	require.NoError(t, err)
	roll, err := rollup.NewService(conn)
	require.NoError(t, err)
	prod, err := products.NewService(products.ServiceParams{DB: conn, Logger: logg})
	require.NoError(t, err)
	st, err := stocks.NewService(stocks.ServiceParams{DB: conn, Logger: logg, Products: prod, Rollup: roll})
	require.NoError(t, err)
	an, err := analytics.NewService(analytics.ServiceParams{DB: conn, Logger: logg, MaxDays: 90, MetricsLimit: 14})
	require.NoError(t, err)
	tx, err := transactions.NewService(transactions.ServiceParams{DB: conn, Logger: logg, Rollup: roll, MaxDays: 30})
	require.NoError(t, err)
	ord, err := orders.NewService(orders.ServiceParams{DB: conn, Logger: logg, Products: prod, Rollup: roll, MaxDays: 30, InitialDays: 90, Boundary: window.BoundaryOverlap})
	require.NoError(t, err)
	camp, err := campaigns.NewService(campaigns.ServiceParams{DB: conn, Logger: logg, Products: prod, Rollup: roll, MaxDays: 62, MaxStatisticsDays: 60, LimitCampaigns: 10})
	require.NoError(t, err)
	rep, err := reports.NewService(reports.ServiceParams{DB: conn, Logger: logg, LimitDays: 62, LimitCampaigns: 10})
	require.NoError(t, err)

	f := &fixture{
		conn:        conn,
		seller:      &fakeAPI{errs: map[string]error{}},
		performance: &fakeAPI{errs: map[string]error{}},
		locks:       fakeLocks{},
	}
	runner, err := NewRunner(RunnerParams{
		Logger:      logg,
		Credentials: creds,
		Clients:     fakeClients{seller: f.seller, performance: f.performance},
		Locks:       f.locks.factory,
		Services: Services{
			Products:     prod,
			Stocks:       st,
			Analytics:    an,
			Transactions: tx,
			Orders:       ord,
			Campaigns:    camp,
			Reports:      rep,
		},
		CoolDown: time.Hour,
	})
	require.NoError(t, err)
	f.runner = runner

	shop := models.Shop{Name: "shop", IsActive: true}
	require.NoError(t, conn.Create(&shop).Error)
	f.sellerKey = models.APIKey{ShopID: shop.ID, Type: enums.CredentialTypeSeller, Name: "seller", ClientID: "seller-client", ClientSecret: "s", IsActive: true}
	require.NoError(t, conn.Create(&f.sellerKey).Error)
	f.perfKey = models.APIKey{ShopID: shop.ID, Type: enums.CredentialTypePerformance, Name: "ads", ClientID: "ads-client", ClientSecret: "s", IsActive: true}
	require.NoError(t, conn.Create(&f.perfKey).Error)
	return f
}

func (f *fixture) reload(t *testing.T, id int64) models.APIKey {
	t.Helper()
	var key models.APIKey
	require.NoError(t, f.conn.First(&key, id).Error)
	return key
}

func TestNewRunnerRequiresDependencies(t *testing.T) {
	_, err := NewRunner(RunnerParams{})
	require.Error(t, err)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.runner.Run(ctx, enums.JobName("bogus"), Params{CredentialID: f.sellerKey.ID})
	assert.False(t, res.OK())
	assert.Equal(t, pkgerrors.CodeValidation, res.Code)

	res = f.runner.Run(ctx, enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID, Days: 500})
	assert.Equal(t, pkgerrors.CodeValidation, res.Code)

	res = f.runner.Run(ctx, enums.JobUpdateProducts, Params{CredentialID: f.perfKey.ID})
	assert.Equal(t, pkgerrors.CodeValidation, res.Code, "credential type must match the job")

	res = f.runner.Run(ctx, enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID, ShopID: f.sellerKey.ShopID + 1})
	assert.Equal(t, pkgerrors.CodeValidation, res.Code)

	res = f.runner.Run(ctx, enums.JobUpdateProducts, Params{CredentialID: 999})
	assert.Equal(t, pkgerrors.CodeNotFound, res.Code)

	assert.Empty(t, f.seller.calls)
	assert.Empty(t, f.locks)
}

func TestRunSucceedsUnderCredentialLock(t *testing.T) {
	f := newFixture(t)

	res := f.runner.Run(context.Background(), enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID})
	require.True(t, res.OK(), res.String())
	assert.Equal(t, enums.ResultSuccess, res.Status)
	assert.True(t, f.seller.called("ProductIDs"))

	l := f.locks["credential:seller-client"]
	require.NotNil(t, l)
	assert.Equal(t, 1, l.acquired)
	assert.Equal(t, 1, l.released)
	assert.Equal(t, "running update_products", l.state)
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.locks["credential:seller-client"] = &fakeLock{acquireErr: pkgerrors.New(pkgerrors.CodeLockHeld, "lock held")}

	res := f.runner.Run(context.Background(), enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID})
	assert.Equal(t, pkgerrors.CodeLockHeld, res.Code)
	assert.Empty(t, f.seller.calls)
	assert.Zero(t, f.locks["credential:seller-client"].released)
}

func TestRunDeactivatesRejectedCredential(t *testing.T) {
	f := newFixture(t)
	f.seller.errs["ProductIDs"] = pkgerrors.New(pkgerrors.CodeBadCredential, "invalid api key")

	res := f.runner.Run(context.Background(), enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID})
	assert.Equal(t, pkgerrors.CodeBadCredential, res.Code)
	assert.Nil(t, res.RetryAt)
	assert.False(t, f.reload(t, f.sellerKey.ID).IsActive)
	assert.Equal(t, 1, f.locks["credential:seller-client"].released)
}

func TestRunCoolsDownRateLimitedCredential(t *testing.T) {
	f := newFixture(t)
	f.seller.errs["ProductIDs"] = pkgerrors.New(pkgerrors.CodeRateLimited, "too many requests")

	before := time.Now()
	res := f.runner.Run(context.Background(), enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID})
	assert.Equal(t, pkgerrors.CodeRateLimited, res.Code)
	require.NotNil(t, res.RetryAt)
	assert.True(t, res.RetryAt.After(before.Add(59*time.Minute)))

	key := f.reload(t, f.sellerKey.ID)
	assert.True(t, key.IsActive)
	require.NotNil(t, key.DisabledUntil)

	res = f.runner.Run(context.Background(), enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID})
	assert.Equal(t, pkgerrors.CodeRateLimited, res.Code, "cooling credential is refused")
}

func TestRunRecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.seller.panic = "ProductIDs"

	res := f.runner.Run(context.Background(), enums.JobUpdateProducts, Params{CredentialID: f.sellerKey.ID})
	assert.Equal(t, pkgerrors.CodeInternal, res.Code)
	assert.Contains(t, res.Message, "boom")
	assert.Equal(t, 1, f.locks["credential:seller-client"].released)
}

func TestRunPerformanceJob(t *testing.T) {
	f := newFixture(t)

	res := f.runner.Run(context.Background(), enums.JobUpdateCampaigns, Params{CredentialID: f.perfKey.ID})
	require.True(t, res.OK(), res.String())
	assert.True(t, f.performance.called("Campaigns"))
	assert.Empty(t, f.seller.calls)
	assert.NotNil(t, f.locks["credential:ads-client"])
}

func seedCampaign(t *testing.T, conn *gorm.DB, shopID int64) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Campaign{ID: 7, ShopID: shopID, State: enums.CampaignStateRunning}).Error)
}

func TestUpdateAllRunsStepsInOrder(t *testing.T) {
	f := newFixture(t)
	seedCampaign(t, f.conn, f.sellerKey.ShopID)

	res := f.runner.Run(context.Background(), enums.JobUpdateAll, Params{CredentialID: f.sellerKey.ID, Days: 1})
	require.True(t, res.OK(), res.String())

	order := []int{
		f.seller.index("WarehouseStocks"),
		f.seller.index("Analytics"),
		f.seller.index("Transactions"),
		f.seller.index("FBOPostings"),
	}
	for i, idx := range order {
		require.GreaterOrEqual(t, idx, 0, "step %d not called", i)
		if i > 0 {
			assert.Greater(t, idx, order[i-1])
		}
	}
	assert.True(t, f.performance.called("DailyStatistics"))
	assert.Equal(t, 1, f.locks["credential:ads-client"].released)
	assert.Equal(t, 1, f.locks["credential:seller-client"].released)
}

func TestUpdateAllAbortsOnRejectedSellerCredential(t *testing.T) {
	f := newFixture(t)
	f.seller.errs["ProductIDs"] = pkgerrors.New(pkgerrors.CodeBadCredential, "invalid api key")

	res := f.runner.Run(context.Background(), enums.JobUpdateAll, Params{CredentialID: f.sellerKey.ID})
	assert.Equal(t, pkgerrors.CodeBadCredential, res.Code)
	assert.False(t, f.seller.called("Analytics"))
	assert.False(t, f.seller.called("FBOPostings"))
	assert.False(t, f.reload(t, f.sellerKey.ID).IsActive)
}

func TestUpdateAllKeepsGoingAfterStepFailure(t *testing.T) {
	f := newFixture(t)
	f.seller.errs["Transactions"] = pkgerrors.New(pkgerrors.CodeDependency, "upstream 500")

	res := f.runner.Run(context.Background(), enums.JobUpdateAll, Params{CredentialID: f.sellerKey.ID})
	assert.False(t, res.OK())
	assert.Equal(t, pkgerrors.CodeDependency, res.Code)
	assert.Contains(t, res.Message, "transactions")
	assert.True(t, f.seller.called("FBOPostings"))
	assert.True(t, f.reload(t, f.sellerKey.ID).IsActive)
}

func TestUpdateAllSettlesPerformanceFailureOnItsOwnCredential(t *testing.T) {
	f := newFixture(t)
	seedCampaign(t, f.conn, f.sellerKey.ShopID)
	f.performance.errs["DailyStatistics"] = pkgerrors.New(pkgerrors.CodeBadCredential, "token rejected")

	res := f.runner.Run(context.Background(), enums.JobUpdateAll, Params{CredentialID: f.sellerKey.ID})
	assert.False(t, res.OK())
	assert.NotEqual(t, pkgerrors.CodeBadCredential, res.Code)
	assert.True(t, f.seller.called("FBOPostings"), "orders still run")

	assert.False(t, f.reload(t, f.perfKey.ID).IsActive)
	assert.True(t, f.reload(t, f.sellerKey.ID).IsActive)
}

func TestUpdateAllSkipsCampaignStatisticsWithoutPerformanceCredential(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Delete(&models.APIKey{}, f.perfKey.ID).Error)

	res := f.runner.Run(context.Background(), enums.JobUpdateAll, Params{CredentialID: f.sellerKey.ID})
	require.True(t, res.OK(), res.String())
	assert.Contains(t, res.Message, "no performance credential")
	assert.Empty(t, f.performance.calls)
}
