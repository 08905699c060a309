// Package testdb opens in-memory SQLite databases carrying the sync schema
// for package tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE shops (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		client_id TEXT NOT NULL,
		client_secret TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		disabled_until DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		shop_id INTEGER NOT NULL,
		offer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		fbo_sku INTEGER NOT NULL DEFAULT 0,
		fbs_sku INTEGER NOT NULL DEFAULT 0,
		barcode TEXT NOT NULL DEFAULT '',
		category_id INTEGER NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL DEFAULT 0,
		old_price NUMERIC NOT NULL DEFAULT 0,
		marketing_price NUMERIC NOT NULL DEFAULT 0,
		min_price NUMERIC NOT NULL DEFAULT 0,
		visible BOOLEAN NOT NULL DEFAULT 0,
		attributes TEXT,
		listed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE sku_offers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		sku INTEGER NOT NULL,
		type TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		UNIQUE (shop_id, sku)
	)`,
	`CREATE TABLE lost_products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		sku INTEGER NOT NULL,
		offer_id TEXT NOT NULL DEFAULT '',
		scheme TEXT NOT NULL,
		created_at DATETIME,
		UNIQUE (shop_id, sku, scheme)
	)`,
	`CREATE TABLE stocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		date DATE NOT NULL,
		type TEXT NOT NULL,
		present INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, product_id, date, type)
	)`,
	`CREATE TABLE warehouse_stocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		sku INTEGER NOT NULL,
		date DATE NOT NULL,
		warehouse TEXT NOT NULL,
		offer_id TEXT NOT NULL DEFAULT '',
		discounted BOOLEAN NOT NULL DEFAULT 0,
		free_to_sell INTEGER NOT NULL DEFAULT 0,
		promised INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, sku, date, warehouse)
	)`,
	`CREATE TABLE analytics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		date DATE NOT NULL,
		sku INTEGER NOT NULL,
		hits_view INTEGER NOT NULL DEFAULT 0,
		hits_tocart INTEGER NOT NULL DEFAULT 0,
		session_view INTEGER NOT NULL DEFAULT 0,
		ordered_units INTEGER NOT NULL DEFAULT 0,
		revenue NUMERIC NOT NULL DEFAULT 0,
		returns INTEGER NOT NULL DEFAULT 0,
		cancellations INTEGER NOT NULL DEFAULT 0,
		position_category NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, date, sku)
	)`,
	`CREATE TABLE transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		operation_id INTEGER NOT NULL,
		operation_type TEXT NOT NULL,
		operation_type_name TEXT NOT NULL DEFAULT '',
		operation_date DATE NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		posting_number TEXT NOT NULL DEFAULT '',
		sku INTEGER NOT NULL DEFAULT 0,
		amount NUMERIC NOT NULL DEFAULT 0,
		accruals_for_sale NUMERIC NOT NULL DEFAULT 0,
		sale_commission NUMERIC NOT NULL DEFAULT 0,
		delivery_charge NUMERIC NOT NULL DEFAULT 0,
		return_delivery_charge NUMERIC NOT NULL DEFAULT 0,
		services TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, operation_id)
	)`,
	postingTable("fbo_orders", ""),
	postingTable("fbs_orders", "shipment_date DATETIME,"),
	itemTable("fbo_order_items"),
	itemTable("fbs_order_items"),
	`CREATE TABLE selfbuys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		order_ref TEXT NOT NULL,
		bought_on DATE,
		taken_on DATE,
		offer_id TEXT,
		name TEXT,
		status TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, order_ref)
	)`,
	`CREATE TABLE campaigns (
		id INTEGER PRIMARY KEY,
		shop_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		adv_object_type TEXT NOT NULL DEFAULT '',
		payment_type TEXT NOT NULL DEFAULT '',
		from_date TEXT NOT NULL DEFAULT '',
		to_date TEXT NOT NULL DEFAULT '',
		daily_budget NUMERIC NOT NULL DEFAULT 0,
		budget NUMERIC NOT NULL DEFAULT 0,
		launched_at DATETIME,
		changed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE campaign_products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		sku INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		bid NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (campaign_id, sku)
	)`,
	`CREATE TABLE campaign_product_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date DATE NOT NULL,
		product_id INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL,
		bid NUMERIC NOT NULL DEFAULT 0,
		visibility_idx INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (date, product_id, campaign_id)
	)`,
	`CREATE TABLE statistics_campaigns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL,
		date DATE NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		clicks INTEGER NOT NULL DEFAULT 0,
		expense NUMERIC NOT NULL DEFAULT 0,
		orders INTEGER NOT NULL DEFAULT 0,
		revenue NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, date, campaign_id)
	)`,
	`CREATE TABLE statistics_campaign_products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL,
		date DATE NOT NULL,
		sku INTEGER NOT NULL,
		page TEXT NOT NULL,
		condition TEXT NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		views INTEGER NOT NULL DEFAULT 0,
		clicks INTEGER NOT NULL DEFAULT 0,
		expense NUMERIC NOT NULL DEFAULT 0,
		orders INTEGER NOT NULL DEFAULT 0,
		revenue NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (campaign_id, date, sku, page, condition)
	)`,
	`CREATE TABLE statistics_campaign_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL,
		date DATE NOT NULL,
		order_id TEXT NOT NULL,
		sale_product_sku INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL DEFAULT 0,
		rate_amount NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (campaign_id, order_id, sale_product_sku)
	)`,
	`CREATE TABLE reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		uuid TEXT,
		conditions TEXT NOT NULL,
		campaign_ids TEXT,
		date_from DATE NOT NULL,
		date_to DATE NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		response TEXT,
		is_parsed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE daily (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		date DATE NOT NULL,
		sku INTEGER NOT NULL,
		stocks INTEGER NOT NULL DEFAULT 0,
		selfbuy_cnt INTEGER NOT NULL DEFAULT 0,
		selfbuy_amount NUMERIC NOT NULL DEFAULT 0,
		premium NUMERIC NOT NULL DEFAULT 0,
		installment NUMERIC NOT NULL DEFAULT 0,
		adv_promo_bid NUMERIC NOT NULL DEFAULT 0,
		adv_promo_visibility INTEGER NOT NULL DEFAULT 0,
		UNIQUE (shop_id, date, sku)
	)`,
}

func postingTable(name, extra string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shop_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		order_number TEXT NOT NULL,
		posting_number TEXT NOT NULL,
		status TEXT NOT NULL,
		ordered_at DATETIME NOT NULL,
		in_process_at DATETIME,
		%s
		warehouse TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (shop_id, order_id, posting_number)
	)`, name, extra)
}

func itemTable(name string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		posting_id INTEGER NOT NULL,
		product_id INTEGER,
		sku INTEGER NOT NULL,
		offer_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0,
		price NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (posting_id, sku)
	)`, name)
}

// Open returns a private in-memory database with every sync table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
