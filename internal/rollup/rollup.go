// Package rollup maintains the per-day per-sku summary table. Each metric
// group has its own upsert which only ever writes its own columns, so the
// groups can be refreshed independently and in any order.
package rollup

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

const stocksSQL = `
INSERT INTO daily (shop_id, date, sku, stocks)
SELECT st.shop_id, st.date, so.sku, SUM(st.present)
FROM stocks st
JOIN sku_offers so ON so.shop_id = st.shop_id AND so.product_id = st.product_id
	AND so.type = st.type AND so.sku > 0
WHERE st.shop_id = ? AND st.date BETWEEN ? AND ?
GROUP BY st.shop_id, st.date, so.sku
ON CONFLICT (shop_id, date, sku) DO UPDATE SET stocks = excluded.stocks`

const transactionsSQL = `
INSERT INTO daily (shop_id, date, sku, premium, installment)
SELECT t.shop_id, t.operation_date, t.sku,
	SUM(CASE WHEN t.operation_type = ? THEN t.amount ELSE 0 END),
	SUM(CASE WHEN t.operation_type = ? THEN t.amount ELSE 0 END)
FROM transactions t
WHERE t.shop_id = ? AND t.sku <> 0 AND t.operation_type IN (?, ?)
	AND t.operation_date BETWEEN ? AND ?
GROUP BY t.shop_id, t.operation_date, t.sku
ON CONFLICT (shop_id, date, sku) DO UPDATE SET
	premium = excluded.premium,
	installment = excluded.installment`

const selfbuysSQL = `
INSERT INTO daily (shop_id, date, sku, selfbuy_cnt, selfbuy_amount)
SELECT s.shop_id, s.bought_on, i.sku, SUM(i.quantity), SUM(i.price * i.quantity)
FROM selfbuys s
JOIN fbo_orders o ON o.shop_id = s.shop_id
	AND (o.order_number = s.order_ref OR o.posting_number = s.order_ref)
JOIN fbo_order_items i ON i.posting_id = o.id
WHERE s.shop_id = ? AND s.bought_on IS NOT NULL AND s.bought_on BETWEEN ? AND ?
GROUP BY s.shop_id, s.bought_on, i.sku
ON CONFLICT (shop_id, date, sku) DO UPDATE SET
	selfbuy_cnt = excluded.selfbuy_cnt,
	selfbuy_amount = excluded.selfbuy_amount`

const campaignsSQL = `
INSERT INTO daily (shop_id, date, sku, adv_promo_bid, adv_promo_visibility)
SELECT c.shop_id, h.date, cp.sku, MAX(h.bid), MIN(h.visibility_idx)
FROM campaign_product_history h
JOIN campaign_products cp ON cp.campaign_id = h.campaign_id AND cp.product_id = h.product_id
JOIN campaigns c ON c.id = h.campaign_id
WHERE c.shop_id = ? AND h.date BETWEEN ? AND ?
GROUP BY c.shop_id, h.date, cp.sku
ON CONFLICT (shop_id, date, sku) DO UPDATE SET
	adv_promo_bid = excluded.adv_promo_bid,
	adv_promo_visibility = excluded.adv_promo_visibility`

// Range is an inclusive span of calendar days.
type Range struct {
	From time.Time
	To   time.Time
}

// LastDays returns the range of the days ending on until.
func LastDays(until time.Time, days int) Range {
	to := day(until)
	if days < 1 {
		days = 1
	}
	return Range{From: to.AddDate(0, 0, -(days - 1)), To: to}
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Service runs the rollup upserts.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("rollup db required")
	}
	return &Service{db: db}, nil
}

// Stocks sets the present stock of each sku from the per-scheme product
// stock its sku offer points at.
func (s *Service) Stocks(ctx context.Context, shopID int64, r Range) error {
	return s.exec(ctx, "stocks", stocksSQL, shopID, day(r.From), day(r.To))
}

// Transactions sets the premium cashback and installment sums.
func (s *Service) Transactions(ctx context.Context, shopID int64, r Range) error {
	return s.exec(ctx, "transactions", transactionsSQL,
		enums.OperationPremiumCashback, enums.OperationInstallment,
		shopID, enums.OperationPremiumCashback, enums.OperationInstallment,
		day(r.From), day(r.To))
}

// Selfbuys sets the count and amount of items the shop bought itself.
func (s *Service) Selfbuys(ctx context.Context, shopID int64, r Range) error {
	return s.exec(ctx, "selfbuys", selfbuysSQL, shopID, day(r.From), day(r.To))
}

// Campaigns sets the highest bid and the best (lowest) visibility index seen
// for each sku.
func (s *Service) Campaigns(ctx context.Context, shopID int64, r Range) error {
	return s.exec(ctx, "campaigns", campaignsSQL, shopID, day(r.From), day(r.To))
}

func (s *Service) exec(ctx context.Context, metric, stmt string, args ...any) error {
	if err := s.db.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("rollup %s", metric))
	}
	return nil
}
