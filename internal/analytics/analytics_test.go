package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

var now = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

type call struct {
	from, to time.Time
	metrics  []string
}

type fakeSource struct {
	calls  []call
	failOn map[int]error
}

func (f *fakeSource) Analytics(_ context.Context, from, to time.Time, metrics []string) ([]marketplace.AnalyticsRow, error) {
	f.calls = append(f.calls, call{from: from, to: to, metrics: metrics})
	if err := f.failOn[len(f.calls)]; err != nil {
		return nil, err
	}
	values := make([]float64, len(metrics))
	for i := range values {
		values[i] = float64(i + 1)
	}
	return []marketplace.AnalyticsRow{
		{SKU: "100", Date: to.Format(time.DateOnly), Metrics: values},
	}, nil
}

func newService(t *testing.T, metricsLimit int) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(ServiceParams{
		DB:           conn,
		Logger:       logger.Nop(),
		MaxDays:      90,
		MetricsLimit: metricsLimit,
		Boundary:     window.BoundaryOverlap,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	return svc, conn
}

func TestSyncWindowsAndMetricChunks(t *testing.T) {
	svc, conn := newService(t, 5)
	src := &fakeSource{}

	summary, err := svc.Sync(context.Background(), 1, src, 5, 2)
	require.NoError(t, err)

	require.Len(t, src.calls, 6)
	assert.Len(t, src.calls[0].metrics, 5)
	assert.Len(t, src.calls[1].metrics, 3)
	assert.Equal(t, now, src.calls[0].to)
	assert.Equal(t, now.AddDate(0, 0, -2), src.calls[0].from)
	assert.Equal(t, src.calls[0].from, src.calls[2].to)
	assert.Equal(t, 3, summary.Created)

	var stored models.Analytics
	require.NoError(t, conn.Where("sku = ?", 100).Order("date DESC").First(&stored).Error)
	assert.Equal(t, int64(1), stored.HitsView)
	assert.Equal(t, int64(4), stored.OrderedUnits)
	assert.Equal(t, int64(1), stored.Returns)
	assert.True(t, decimal.NewFromInt(3).Equal(stored.PositionCategory))
}

func TestSyncSkipsFailedWindows(t *testing.T) {
	svc, _ := newService(t, 14)
	src := &fakeSource{failOn: map[int]error{
		1: pkgerrors.New(pkgerrors.CodeDependency, "upstream 500"),
	}}

	summary, err := svc.Sync(context.Background(), 1, src, 3, 1)
	require.NoError(t, err)
	assert.Len(t, src.calls, 3)
	assert.Equal(t, 2, summary.Created)
}

func TestSyncSkipsFailedMetricChunkOnly(t *testing.T) {
	svc, conn := newService(t, 4)
	src := &fakeSource{failOn: map[int]error{
		1: pkgerrors.New(pkgerrors.CodeDependency, "upstream 500"),
	}}

	summary, err := svc.Sync(context.Background(), 1, src, 1, 1)
	require.NoError(t, err)
	require.Len(t, src.calls, 2)
	assert.Equal(t, Metrics[4:], src.calls[1].metrics)
	assert.Equal(t, 1, summary.Created)

	var stored models.Analytics
	require.NoError(t, conn.Where("sku = ?", 100).First(&stored).Error)
	assert.Equal(t, int64(0), stored.HitsView)
	assert.True(t, decimal.NewFromInt(1).Equal(stored.Revenue))
}

func TestSyncStopsOnRejectedCredential(t *testing.T) {
	svc, _ := newService(t, 14)
	src := &fakeSource{failOn: map[int]error{
		2: pkgerrors.New(pkgerrors.CodeBadCredential, "401"),
	}}

	_, err := svc.Sync(context.Background(), 1, src, 3, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBadCredential))
	assert.Len(t, src.calls, 2)
}

func TestRecordsRejectShortRows(t *testing.T) {
	_, err := toRecords([]marketplace.AnalyticsRow{{SKU: "1", Date: "2024-03-01", Metrics: []float64{1}}}, []string{"hits_view", "revenue"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedPayload))
}
