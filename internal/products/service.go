package products

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

const defaultChunkSize = 1000

// Source is the slice of the seller API the catalog sync reads.
type Source interface {
	ProductIDs(ctx context.Context) ([]int64, error)
	ProductInfo(ctx context.Context, ids []int64) ([]marketplace.Item, error)
	ProductPrices(ctx context.Context, ids []int64) ([]marketplace.Item, error)
	ProductAttributes(ctx context.Context, ids []int64) ([]marketplace.Item, error)
}

type ServiceParams struct {
	DB        *gorm.DB
	Logger    *logger.Logger
	ChunkSize int
	Observer  reconcile.Observer
}

// Service keeps the product catalog and the sku-to-offer map of a shop
// in step with the marketplace.
type Service struct {
	db        *gorm.DB
	repo      Repository
	logg      *logger.Logger
	chunkSize int
	observer  reconcile.Observer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("products db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("products logger required")
	}
	chunk := params.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Service{
		db:        params.DB,
		repo:      NewRepository(params.DB),
		logg:      params.Logger,
		chunkSize: chunk,
		observer:  params.Observer,
	}, nil
}

// Sync fetches every product of the shop in chunks and reconciles them.
// Products no longer listed upstream are deleted unless the listing came
// back empty. The sku-to-offer map is refreshed afterwards.
func (s *Service) Sync(ctx context.Context, shopID int64, src Source) (reconcile.Summary, error) {
	summary := reconcile.Summary{Table: productSchema.Table}
	ids, err := src.ProductIDs(ctx)
	if err != nil {
		return summary, err
	}

	for _, chunk := range window.Chunk(ids, s.chunkSize) {
		records, err := s.fetchChunk(ctx, src, chunk)
		if err != nil {
			return summary, err
		}
		part, err := reconcile.Reconcile(ctx, s.db, productSchema, records, reconcile.Options[product]{
			ShopID:   shopID,
			Observer: s.observer,
		})
		if err != nil {
			return summary, err
		}
		summary.Add(part)
	}

	if len(ids) > 0 {
		removed, err := s.repo.DeleteMissing(ctx, shopID, ids)
		if err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete unlisted products")
		}
		if removed > 0 {
			s.logg.Info(s.logg.WithField(ctx, "removed", removed), "unlisted products deleted")
		}
	}
	if err := s.RefreshSKUOffers(ctx, shopID); err != nil {
		return summary, err
	}
	s.logg.Info(ctx, summary.String())
	return summary, nil
}

// fetchChunk loads cards, prices and attributes for ids concurrently.
func (s *Service) fetchChunk(ctx context.Context, src Source, ids []int64) ([]reconcile.Record, error) {
	var infos, prices, attrs []marketplace.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		infos, err = src.ProductInfo(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		prices, err = src.ProductPrices(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		attrs, err = src.ProductAttributes(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	priceByID := indexBy(prices, "product_id")
	attrsByID := indexBy(attrs, "id")
	records := make([]reconcile.Record, 0, len(infos))
	for _, info := range infos {
		id := marketplace.Int64(info, "id")
		if id == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeMalformedPayload, "product card without id")
		}
		records = append(records, productRecord(info, priceByID[id], attrsByID[id]))
	}
	return records, nil
}

func indexBy(items []marketplace.Item, key string) map[int64]marketplace.Item {
	out := make(map[int64]marketplace.Item, len(items))
	for _, item := range items {
		out[marketplace.Int64(item, key)] = item
	}
	return out
}

// RefreshSKUOffers rebuilds the sku mappings from products and discounted
// warehouse stock.
func (s *Service) RefreshSKUOffers(ctx context.Context, shopID int64) error {
	if err := s.repo.RefreshSKUOffers(ctx, shopID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh sku offers")
	}
	return nil
}

// ProductIDs returns the stored product ids of the shop.
func (s *Service) ProductIDs(ctx context.Context, shopID int64) ([]int64, error) {
	ids, err := s.repo.ProductIDs(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list product ids")
	}
	return ids, nil
}

// RecordLost notes a sku no product could be found for.
func (s *Service) RecordLost(ctx context.Context, shopID, sku int64, offerID string, scheme enums.FulfillmentScheme) error {
	lost := &models.LostProduct{ShopID: shopID, SKU: sku, OfferID: offerID, Scheme: scheme}
	if err := s.repo.RecordLost(ctx, lost); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record lost product")
	}
	return nil
}

// Resolver maps skus and offer ids to product ids from a snapshot of the
// shop's catalog. It is read-only once built.
type Resolver struct {
	bySKU    map[int64]int64
	byScheme map[enums.FulfillmentScheme]map[int64]int64
	byOffer  map[string]int64
}

// Resolver snapshots the catalog of shopID.
func (s *Service) Resolver(ctx context.Context, shopID int64) (*Resolver, error) {
	offers, err := s.repo.SKUOffers(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sku offers")
	}
	products, err := s.repo.Products(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	r := &Resolver{
		bySKU: make(map[int64]int64, len(offers)),
		byScheme: map[enums.FulfillmentScheme]map[int64]int64{
			enums.SchemeFBO: make(map[int64]int64, len(products)),
			enums.SchemeFBS: make(map[int64]int64, len(products)),
		},
		byOffer: make(map[string]int64, len(products)),
	}
	for _, o := range offers {
		r.bySKU[o.SKU] = o.ProductID
	}
	for _, p := range products {
		if p.FBOSKU != 0 {
			r.byScheme[enums.SchemeFBO][p.FBOSKU] = p.ID
		}
		if p.FBSSKU != 0 {
			r.byScheme[enums.SchemeFBS][p.FBSSKU] = p.ID
		}
		if p.OfferID != "" {
			r.byOffer[p.OfferID] = p.ID
		}
	}
	return r, nil
}

// Resolve returns the product id for sku, trying the sku map, then the
// scheme's sku column, then the offer id. It returns nil when nothing matches.
func (r *Resolver) Resolve(sku int64, offerID string, scheme enums.FulfillmentScheme) *int64 {
	if id, ok := r.bySKU[sku]; ok {
		return &id
	}
	if id, ok := r.byScheme[scheme][sku]; ok {
		return &id
	}
	if offerID != "" {
		if id, ok := r.byOffer[offerID]; ok {
			return &id
		}
	}
	return nil
}

// ProductSKUs returns the skus listed on product cards.
func (r *Resolver) ProductSKUs() map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, m := range r.byScheme {
		for sku := range m {
			out[sku] = struct{}{}
		}
	}
	return out
}
