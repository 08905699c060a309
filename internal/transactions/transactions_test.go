package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

var now = time.Date(2024, 3, 31, 6, 0, 0, 0, time.UTC)

type fetchWindow struct{ from, to time.Time }

type fakeSource struct {
	windows []fetchWindow
	pages   map[int][]marketplace.Item
}

func (f *fakeSource) Transactions(_ context.Context, from, to time.Time) ([]marketplace.Item, error) {
	f.windows = append(f.windows, fetchWindow{from: from, to: to})
	return f.pages[len(f.windows)], nil
}

func operation(id int64, opType, amount string, services []any) marketplace.Item {
	return marketplace.Item{
		"operation_id":        float64(id),
		"operation_type":      opType,
		"operation_type_name": "name",
		"operation_date":      "2024-03-30 00:00:00",
		"type":                enums.TransactionTypeOrders,
		"amount":              amount,
		"posting":             map[string]any{"posting_number": "P-1"},
		"items":               []any{map[string]any{"sku": float64(100), "name": "item"}},
		"services":            services,
	}
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	roll, err := rollup.NewService(conn)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{DB: conn, Logger: logger.Nop(), Rollup: roll, MaxDays: 30})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	return svc, conn
}

func TestSyncStopsOnFirstEmptyWindow(t *testing.T) {
	svc, conn := newService(t)
	src := &fakeSource{pages: map[int][]marketplace.Item{
		1: {
			operation(1, enums.OperationPremiumCashback, "20.00", nil),
			operation(2, enums.OperationInstallment, "-5.00", nil),
		},
	}}

	summary, err := svc.Sync(context.Background(), 1, src, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)

	require.Len(t, src.windows, 2)
	assert.Equal(t, now, src.windows[0].to)
	assert.Equal(t, src.windows[0].from.AddDate(0, 0, -1), src.windows[1].to)

	var stored models.Transaction
	require.NoError(t, conn.Where("operation_id = ?", 1).First(&stored).Error)
	assert.Equal(t, "P-1", stored.PostingNumber)
	assert.Equal(t, int64(100), stored.SKU)

	var daily models.Daily
	require.NoError(t, conn.Where("sku = ?", 100).First(&daily).Error)
	assert.True(t, decimal.NewFromInt(20).Equal(daily.PremiumCashback))
	assert.True(t, decimal.NewFromInt(-5).Equal(daily.Installment))
}

func TestServicesHook(t *testing.T) {
	stored := &models.Transaction{
		Type:     enums.TransactionTypeOrders,
		Services: datatypes.JSON(`[{"name":"a","price":1},{"name":"b","price":2}]`),
	}

	changed, skip := servicesHook(true, stored, "services", []any{})
	assert.True(t, changed)
	assert.True(t, skip)

	reordered := []any{
		map[string]any{"price": float64(2), "name": "b"},
		map[string]any{"name": "a", "price": float64(1)},
	}
	changed, skip = servicesHook(true, stored, "services", reordered)
	assert.False(t, changed)
	assert.False(t, skip)

	different := []any{map[string]any{"name": "a", "price": float64(3)}}
	changed, _ = servicesHook(true, stored, "services", different)
	assert.True(t, changed)

	changed, skip = servicesHook(true, stored, "amount", "1")
	assert.True(t, changed)
	assert.False(t, skip)

	other := &models.Transaction{Type: "services"}
	changed, skip = servicesHook(true, other, "services", []any{})
	assert.True(t, changed)
	assert.False(t, skip)

	bare := &models.Transaction{Type: enums.TransactionTypeOrders}
	changed, skip = servicesHook(false, bare, "services", []any{})
	assert.False(t, changed)
	assert.False(t, skip)
}

func TestSyncLeavesOrderOperationWithoutServicesUntouched(t *testing.T) {
	svc, conn := newService(t)
	services := []any{map[string]any{"name": "logistics", "price": float64(-30)}}
	src := &fakeSource{pages: map[int][]marketplace.Item{
		1: {
			operation(7, "OperationAgentDeliveredToCustomer", "100.00", services),
			operation(8, "OperationAgentDeliveredToCustomer", "50.00", services),
		},
	}}
	_, err := svc.Sync(context.Background(), 1, src, 30)
	require.NoError(t, err)

	src.windows = nil
	src.pages = map[int][]marketplace.Item{
		1: {
			operation(7, "OperationAgentDeliveredToCustomer", "90.00", nil),
			operation(8, "OperationAgentDeliveredToCustomer", "45.00", services),
		},
	}
	summary, err := svc.Sync(context.Background(), 1, src, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, []string{"amount"}, summary.Changed)

	var stored models.Transaction
	require.NoError(t, conn.Where("operation_id = ?", 7).First(&stored).Error)
	assert.Contains(t, string(stored.Services), "logistics")
	assert.True(t, decimal.NewFromInt(100).Equal(stored.Amount))

	var other models.Transaction
	require.NoError(t, conn.Where("operation_id = ?", 8).First(&other).Error)
	assert.True(t, decimal.NewFromInt(45).Equal(other.Amount))
}
