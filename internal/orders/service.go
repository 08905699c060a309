// Package orders mirrors FBO and FBS postings with their line items.
package orders

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

const defaultChunkSize = 3000

type Source interface {
	FBOPostings(ctx context.Context, since, to time.Time) ([]marketplace.Item, error)
	FBSPostings(ctx context.Context, since, to time.Time) ([]marketplace.Item, error)
}

type ServiceParams struct {
	DB          *gorm.DB
	Logger      *logger.Logger
	Products    *products.Service
	Rollup      *rollup.Service
	MaxDays     int
	InitialDays int
	ChunkSize   int
	Boundary    window.Boundary
	Observer    reconcile.Observer
}

type Service struct {
	db          *gorm.DB
	repo        Repository
	logg        *logger.Logger
	products    *products.Service
	rollup      *rollup.Service
	maxDays     int
	initialDays int
	chunkSize   int
	boundary    window.Boundary
	observer    reconcile.Observer
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("orders db required")
	case params.Logger == nil:
		return nil, fmt.Errorf("orders logger required")
	case params.Products == nil:
		return nil, fmt.Errorf("orders products service required")
	case params.Rollup == nil:
		return nil, fmt.Errorf("orders rollup service required")
	case params.MaxDays <= 0 || params.InitialDays <= 0:
		return nil, fmt.Errorf("orders day limits must be positive")
	}
	chunk := params.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Service{
		db:          params.DB,
		repo:        NewRepository(params.DB),
		logg:        params.Logger,
		products:    params.Products,
		rollup:      params.Rollup,
		maxDays:     params.MaxDays,
		initialDays: params.InitialDays,
		chunkSize:   chunk,
		boundary:    params.Boundary,
		observer:    params.Observer,
		now:         time.Now,
	}, nil
}

// Sync loads FBO then FBS postings. The requested span widens to cover the
// oldest order that has not reached a terminal status.
func (s *Service) Sync(ctx context.Context, shopID int64, src Source, days int) (reconcile.Summary, error) {
	var summary reconcile.Summary
	now := s.now().UTC()

	oldest, hasRows, err := s.repo.OldestOpen(ctx, shopID)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order horizon")
	}
	horizon := window.OrderHorizon(window.Horizon{
		Requested:  days,
		OldestOpen: oldest,
		HasRows:    hasRows,
		Now:        now,
		Ceiling:    s.initialDays,
		Initial:    s.initialDays,
	})
	ctx = s.logg.WithField(ctx, "horizon_days", horizon)

	resolver, err := s.products.Resolver(ctx, shopID)
	if err != nil {
		return summary, err
	}
	plan := window.Plan{
		TotalDays:   horizon,
		MaxDays:     s.maxDays,
		Until:       now,
		Boundary:    s.boundary,
		StopOnEmpty: true,
	}

	run := &schemeRun{svc: s, shopID: shopID, resolver: resolver}
	fbo, err := syncScheme(ctx, run, plan, fboScheme(src))
	summary.Add(fbo)
	if err != nil {
		return summary, err
	}
	fbs, err := syncScheme(ctx, run, plan, fbsScheme(src))
	summary.Add(fbs)
	if err != nil {
		return summary, err
	}
	s.logg.Info(ctx, summary.String())

	for _, lost := range run.lost {
		if err := s.products.RecordLost(ctx, shopID, lost.sku, lost.offerID, lost.scheme); err != nil {
			return summary, err
		}
	}
	if err := s.flagSelfbuys(ctx, shopID); err != nil {
		return summary, err
	}
	if err := s.rollup.Selfbuys(ctx, shopID, rollup.LastDays(now, horizon)); err != nil {
		return summary, err
	}
	return summary, nil
}

type lostSKU struct {
	sku     int64
	offerID string
	scheme  enums.FulfillmentScheme
}

type schemeRun struct {
	svc      *Service
	shopID   int64
	resolver *products.Resolver
	lost     []lostSKU
}

type scheme[O, I any] struct {
	name      enums.FulfillmentScheme
	fetch     func(ctx context.Context, since, to time.Time) ([]marketplace.Item, error)
	orders    *reconcile.Schema[O]
	items     *reconcile.Schema[I]
	setParent func(*I, int64)
}

func syncScheme[O, I any](ctx context.Context, run *schemeRun, plan window.Plan, sc scheme[O, I]) (reconcile.Summary, error) {
	summary := reconcile.Summary{Table: sc.orders.Table}
	page := func(ctx context.Context, w window.Window) (int, error) {
		postings, err := sc.fetch(ctx, w.From, w.To)
		if err != nil {
			return 0, err
		}
		for _, chunk := range window.Chunk(postings, run.svc.chunkSize) {
			part, err := run.syncChunk(ctx, chunk, sc.name, func(ctx context.Context, records []reconcile.Record) (reconcile.Summary, error) {
				return reconcile.Reconcile(ctx, run.svc.db, sc.orders, records, reconcile.Options[O]{
					ShopID:   run.shopID,
					Observer: run.svc.observer,
				})
			}, func(ctx context.Context, tx *gorm.DB, postingID int64, records []reconcile.Record) error {
				_, err := reconcile.SyncChildren(ctx, tx, sc.items, reconcile.ParentRef{Column: "posting_id", ID: postingID}, records, reconcile.ChildOptions[I]{
					Prepare:   run.prepareItem(sc.name),
					SetParent: sc.setParent,
				})
				return err
			}, sc.orders.Table)
			if err != nil {
				return 0, err
			}
			summary.Add(part)
		}
		return len(postings), nil
	}
	_, err := window.Each(ctx, plan, page, window.Abort)
	return summary, err
}

type reconcileFunc func(ctx context.Context, records []reconcile.Record) (reconcile.Summary, error)

type childrenFunc func(ctx context.Context, tx *gorm.DB, postingID int64, records []reconcile.Record) error

// syncChunk reconciles a chunk of postings, then mirrors the items of every
// posting in one transaction.
func (r *schemeRun) syncChunk(ctx context.Context, postings []marketplace.Item, name enums.FulfillmentScheme, reconcilePostings reconcileFunc, syncItems childrenFunc, table string) (reconcile.Summary, error) {
	records := make([]reconcile.Record, 0, len(postings))
	numbers := make([]string, 0, len(postings))
	for _, p := range postings {
		records = append(records, postingRecord(p, name))
		numbers = append(numbers, marketplace.String(p, "posting_number"))
	}
	summary, err := reconcilePostings(ctx, records)
	if err != nil {
		return summary, err
	}

	ids, err := r.svc.repo.PostingIDs(ctx, table, r.shopID, numbers)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load posting ids")
	}
	err = r.svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range postings {
			number := marketplace.String(p, "posting_number")
			id, ok := ids[number]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeIntegrity, fmt.Sprintf("posting %s missing after reconcile", number))
			}
			if err := syncItems(ctx, tx, id, itemRecords(p)); err != nil {
				return err
			}
		}
		return nil
	})
	return summary, err
}

// prepareItem resolves the product of an order line. Unresolved skus keep a
// null product and are remembered as lost.
func (r *schemeRun) prepareItem(name enums.FulfillmentScheme) func(context.Context, reconcile.Record) (reconcile.Record, bool, error) {
	return func(_ context.Context, rec reconcile.Record) (reconcile.Record, bool, error) {
		sku, _ := rec["sku"].(int64)
		offerID, _ := rec["offer_id"].(string)
		if id := r.resolver.Resolve(sku, offerID, name); id != nil {
			rec["product_id"] = *id
			return rec, false, nil
		}
		rec["product_id"] = nil
		r.lost = append(r.lost, lostSKU{sku: sku, offerID: offerID, scheme: name})
		return rec, false, nil
	}
}
