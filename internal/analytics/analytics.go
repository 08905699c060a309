// Package analytics loads daily per-sku storefront metrics.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

// Metrics requested from the analytics report, named after their columns.
var Metrics = []string{
	"hits_view",
	"hits_tocart",
	"session_view",
	"ordered_units",
	"revenue",
	"returns",
	"cancellations",
	"position_category",
}

// Source is the analytics report endpoint.
type Source interface {
	Analytics(ctx context.Context, from, to time.Time, metrics []string) ([]marketplace.AnalyticsRow, error)
}

type row = models.Analytics

var schema = &reconcile.Schema[row]{
	Table:      "analytics",
	KeyColumns: []string{"date", "sku"},
	ShopColumn: "shop_id",
	SetShop:    func(r *row, shopID int64) { r.ShopID = shopID },
	Fields: []reconcile.Field[row]{
		reconcile.Date("date", func(r *row) *time.Time { return &r.Date }),
		reconcile.Int64("sku", func(r *row) *int64 { return &r.SKU }),
		reconcile.Int64("hits_view", func(r *row) *int64 { return &r.HitsView }),
		reconcile.Int64("hits_tocart", func(r *row) *int64 { return &r.HitsToCart }),
		reconcile.Int64("session_view", func(r *row) *int64 { return &r.SessionView }),
		reconcile.Int64("ordered_units", func(r *row) *int64 { return &r.OrderedUnits }),
		reconcile.Decimal("revenue", func(r *row) *decimal.Decimal { return &r.Revenue }),
		reconcile.Int64("returns", func(r *row) *int64 { return &r.Returns }),
		reconcile.Int64("cancellations", func(r *row) *int64 { return &r.Cancellations }),
		reconcile.Decimal("position_category", func(r *row) *decimal.Decimal { return &r.PositionCategory }),
	},
}

type ServiceParams struct {
	DB           *gorm.DB
	Logger       *logger.Logger
	MaxDays      int
	MetricsLimit int
	Boundary     window.Boundary
	Observer     reconcile.Observer
}

type Service struct {
	db           *gorm.DB
	logg         *logger.Logger
	maxDays      int
	metricsLimit int
	boundary     window.Boundary
	observer     reconcile.Observer
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("analytics db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("analytics logger required")
	}
	if params.MaxDays <= 0 || params.MetricsLimit <= 0 {
		return nil, fmt.Errorf("analytics api limits must be positive")
	}
	return &Service{
		db:           params.DB,
		logg:         params.Logger,
		maxDays:      params.MaxDays,
		metricsLimit: params.MetricsLimit,
		boundary:     params.Boundary,
		observer:     params.Observer,
		now:          time.Now,
	}, nil
}

// Sync walks back days from today in windows of at most step days and
// reconciles every metric chunk. A failed chunk is logged and skipped on its
// own unless the credential itself is rejected or throttled.
func (s *Service) Sync(ctx context.Context, shopID int64, src Source, days, step int) (reconcile.Summary, error) {
	summary := reconcile.Summary{Table: schema.Table}
	plan := window.Plan{
		TotalDays: days,
		MaxDays:   s.maxDays,
		Step:      step,
		Until:     s.now().UTC(),
		Boundary:  s.boundary,
	}
	policy := s.bestEffort(ctx)
	page := func(ctx context.Context, w window.Window) (int, error) {
		seen := 0
		for _, metrics := range window.Chunk(Metrics, s.metricsLimit) {
			part, n, err := s.syncChunk(ctx, shopID, src, w, metrics)
			if err != nil {
				if err := policy(w, err); err != nil {
					return seen, err
				}
				continue
			}
			summary.Add(part)
			seen += n
		}
		return seen, nil
	}
	if _, err := window.Each(ctx, plan, page, policy); err != nil {
		return summary, err
	}
	s.logg.Info(ctx, summary.String())
	return summary, nil
}

func (s *Service) syncChunk(ctx context.Context, shopID int64, src Source, w window.Window, metrics []string) (reconcile.Summary, int, error) {
	rows, err := src.Analytics(ctx, w.From, w.To, metrics)
	if err != nil {
		return reconcile.Summary{}, 0, err
	}
	recs, err := toRecords(rows, metrics)
	if err != nil {
		return reconcile.Summary{}, 0, err
	}
	part, err := reconcile.Reconcile(ctx, s.db, schema, recs, reconcile.Options[row]{
		ShopID:   shopID,
		Observer: s.observer,
	})
	return part, len(rows), err
}

func (s *Service) bestEffort(ctx context.Context) window.ErrorPolicy {
	return func(w window.Window, err error) error {
		if pkgerrors.IsCode(err, pkgerrors.CodeBadCredential) || pkgerrors.IsCode(err, pkgerrors.CodeRateLimited) || ctx.Err() != nil {
			return err
		}
		s.logg.Error(s.logg.WithField(ctx, "window", w.String()), "analytics window failed", err)
		return nil
	}
}

func toRecords(rows []marketplace.AnalyticsRow, metrics []string) ([]reconcile.Record, error) {
	out := make([]reconcile.Record, 0, len(rows))
	for _, r := range rows {
		if len(r.Metrics) != len(metrics) {
			return nil, pkgerrors.New(pkgerrors.CodeMalformedPayload,
				fmt.Sprintf("analytics row for sku %s has %d metrics, want %d", r.SKU, len(r.Metrics), len(metrics)))
		}
		rec := reconcile.Record{"date": r.Date, "sku": r.SKU}
		for i, name := range metrics {
			rec[name] = r.Metrics[i]
		}
		out = append(out, rec)
	}
	return out, nil
}
