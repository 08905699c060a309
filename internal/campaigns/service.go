// Package campaigns mirrors advertising campaigns, their promoted products
// and daily campaign statistics.
package campaigns

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
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

type Source interface {
	Campaigns(ctx context.Context) ([]marketplace.Item, error)
	CampaignProducts(ctx context.Context, campaignID int64) ([]marketplace.Item, error)
	DailyStatistics(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]marketplace.Item, error)
}

type ServiceParams struct {
	DB       *gorm.DB
	Logger   *logger.Logger
	Products *products.Service
	Rollup   *rollup.Service
	// MaxDays bounds one statistics call; MaxStatisticsDays bounds a run.
	MaxDays           int
	MaxStatisticsDays int
	LimitCampaigns    int
	Observer          reconcile.Observer
}

type Service struct {
	db             *gorm.DB
	logg           *logger.Logger
	products       *products.Service
	rollup         *rollup.Service
	maxDays        int
	maxStatDays    int
	limitCampaigns int
	observer       reconcile.Observer
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("campaigns db required")
	case params.Logger == nil:
		return nil, fmt.Errorf("campaigns logger required")
	case params.Products == nil:
		return nil, fmt.Errorf("campaigns products service required")
	case params.Rollup == nil:
		return nil, fmt.Errorf("campaigns rollup service required")
	case params.MaxDays <= 0 || params.MaxStatisticsDays <= 0:
		return nil, fmt.Errorf("campaigns day limits must be positive")
	case params.LimitCampaigns <= 0:
		return nil, fmt.Errorf("campaigns batch size must be positive")
	}
	return &Service{
		db:             params.DB,
		logg:           params.Logger,
		products:       params.Products,
		rollup:         params.Rollup,
		maxDays:        params.MaxDays,
		maxStatDays:    params.MaxStatisticsDays,
		limitCampaigns: params.LimitCampaigns,
		observer:       params.Observer,
		now:            time.Now,
	}, nil
}

// Sync reconciles the campaign list, mirrors the products of running
// campaigns and snapshots today's bids.
func (s *Service) Sync(ctx context.Context, shopID int64, src Source) (reconcile.Summary, error) {
	items, err := src.Campaigns(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	records := make([]reconcile.Record, 0, len(items))
	var running []int64
	for _, item := range items {
		records = append(records, campaignRecord(item))
		if marketplace.String(item, "state") == enums.CampaignStateRunning {
			running = append(running, marketplace.Int64(item, "id"))
		}
	}
	summary, err := reconcile.Reconcile(ctx, s.db, campaignSchema, records, reconcile.Options[campaign]{
		ShopID:   shopID,
		Observer: s.observer,
	})
	if err != nil {
		return summary, err
	}
	s.logg.Info(ctx, summary.String())

	resolver, err := s.products.Resolver(ctx, shopID)
	if err != nil {
		return summary, err
	}
	today := s.today()
	var history []reconcile.Record
	for _, id := range running {
		snaps, err := s.syncLinks(ctx, src, resolver, id, today)
		if err != nil {
			return summary, err
		}
		history = append(history, snaps...)
	}

	hist, err := reconcile.Reconcile(ctx, s.db, historySchema, history, reconcile.Options[snapshot]{Observer: s.observer})
	if err != nil {
		return summary, err
	}
	s.logg.Info(ctx, hist.String())

	if err := s.rollup.Campaigns(ctx, shopID, rollup.LastDays(today, 1)); err != nil {
		return summary, err
	}
	return summary, nil
}

// syncLinks mirrors the promoted products of one campaign and returns the
// bid snapshots of the products it could resolve.
func (s *Service) syncLinks(ctx context.Context, src Source, resolver *products.Resolver, campaignID int64, day time.Time) ([]reconcile.Record, error) {
	items, err := src.CampaignProducts(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	records := make([]reconcile.Record, 0, len(items))
	for _, item := range items {
		rec, err := linkRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	var snaps []reconcile.Record
	lctx := s.logg.WithField(ctx, "campaign_id", campaignID)
	prepare := func(_ context.Context, rec reconcile.Record) (reconcile.Record, bool, error) {
		sku, _ := rec["sku"].(int64)
		id := resolver.Resolve(sku, "", enums.SchemeFBO)
		if id == nil {
			s.logg.Warn(s.logg.WithField(lctx, "sku", sku), "campaign product sku not in catalog")
			return rec, true, nil
		}
		rec["product_id"] = *id
		snaps = append(snaps, reconcile.Record{
			"date":           day,
			"product_id":     *id,
			"campaign_id":    campaignID,
			"bid":            rec["bid"],
			"visibility_idx": rec["visibility_idx"],
		})
		return rec, false, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := reconcile.SyncChildren(ctx, tx, linkSchema, reconcile.ParentRef{Column: "campaign_id", ID: campaignID}, records, reconcile.ChildOptions[link]{
			Prepare:   prepare,
			SetParent: func(l *link, id int64) { l.CampaignID = id },
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// SyncStatistics loads daily totals of every known campaign for the last
// days, capped at the configured maximum.
func (s *Service) SyncStatistics(ctx context.Context, shopID int64, src Source, days int) (reconcile.Summary, error) {
	summary := reconcile.Summary{Table: statisticSchema.Table}
	if days > s.maxStatDays {
		days = s.maxStatDays
	}
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("shop_id = ?", shopID).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list campaigns")
	}
	if len(ids) == 0 {
		return summary, nil
	}

	plan := window.Plan{TotalDays: days, MaxDays: s.maxDays, Until: s.today(), Boundary: window.BoundaryContiguous}
	page := func(ctx context.Context, w window.Window) (int, error) {
		seen := 0
		for _, chunk := range window.Chunk(ids, s.limitCampaigns) {
			rows, err := src.DailyStatistics(ctx, chunk, w.From, w.To)
			if err != nil {
				return 0, err
			}
			records := make([]reconcile.Record, 0, len(rows))
			for _, row := range rows {
				records = append(records, statisticRecord(row))
			}
			part, err := reconcile.Reconcile(ctx, s.db, statisticSchema, records, reconcile.Options[statistic]{
				ShopID:   shopID,
				Observer: s.observer,
			})
			if err != nil {
				return 0, err
			}
			summary.Add(part)
			seen += len(rows)
		}
		return seen, nil
	}
	if _, err := window.Each(ctx, plan, page, window.Abort); err != nil {
		return summary, err
	}
	s.logg.Info(ctx, summary.String())
	return summary, nil
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
