// Package app assembles the sync services and the job runner from
// configuration. The worker binaries and the one-shot CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/analytics"
	"github.com/angelmondragon/mpsync/internal/campaigns"
	"github.com/angelmondragon/mpsync/internal/credentials"
	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/internal/orders"
	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/reports"
	"github.com/angelmondragon/mpsync/internal/rollup"
	"github.com/angelmondragon/mpsync/internal/stocks"
	"github.com/angelmondragon/mpsync/internal/transactions"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/lock"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
	"github.com/angelmondragon/mpsync/pkg/redis"
)

type RunnerParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Locks      redis.LockStore
	Registerer prometheus.Registerer
	// Clients overrides the marketplace HTTP clients.
	Clients jobs.Clients
}

// NewServices builds every sync service over db.
func NewServices(cfg *config.Config, db *gorm.DB, logg *logger.Logger, observer *metrics.ReconcileMetrics) (jobs.Services, error) {
	var svc jobs.Services
	boundary, err := window.ParseBoundary(cfg.Sync.WindowBoundary)
	if err != nil {
		return svc, err
	}
	mp := cfg.Marketplace

	roll, err := rollup.NewService(db)
	if err != nil {
		return svc, fmt.Errorf("rollup: %w", err)
	}
	if svc.Products, err = products.NewService(products.ServiceParams{
		DB: db, Logger: logg, ChunkSize: mp.ProductChunkSize, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("products: %w", err)
	}
	if svc.Stocks, err = stocks.NewService(stocks.ServiceParams{
		DB: db, Logger: logg, Products: svc.Products, Rollup: roll,
		ChunkSize: mp.ProductChunkSize, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("stocks: %w", err)
	}
	if svc.Analytics, err = analytics.NewService(analytics.ServiceParams{
		DB: db, Logger: logg, MaxDays: mp.APILimitDays, MetricsLimit: mp.APILimitMetrics,
		Boundary: boundary, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("analytics: %w", err)
	}
	if svc.Transactions, err = transactions.NewService(transactions.ServiceParams{
		DB: db, Logger: logg, Rollup: roll, MaxDays: mp.TransactionDays,
		ChunkSize: cfg.Sync.TransactionChunkSize, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("transactions: %w", err)
	}
	if svc.Orders, err = orders.NewService(orders.ServiceParams{
		DB: db, Logger: logg, Products: svc.Products, Rollup: roll,
		MaxDays: mp.APILimitDays, InitialDays: cfg.Sync.InitialOrderDays,
		ChunkSize: cfg.Sync.OrderChunkSize, Boundary: boundary, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("orders: %w", err)
	}
	if svc.Campaigns, err = campaigns.NewService(campaigns.ServiceParams{
		DB: db, Logger: logg, Products: svc.Products, Rollup: roll,
		MaxDays: mp.APILimitDays, MaxStatisticsDays: cfg.Sync.MaxStatisticsDays,
		LimitCampaigns: mp.LimitCampaigns, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("campaigns: %w", err)
	}
	if svc.Reports, err = reports.NewService(reports.ServiceParams{
		DB: db, Logger: logg, LimitDays: mp.ReportLimitDays, LimitCampaigns: mp.LimitCampaigns,
		Retention: cfg.Sync.ReportRetention, CheckBatch: cfg.Sync.ReportCheckBatch, Observer: observer,
	}); err != nil {
		return svc, fmt.Errorf("reports: %w", err)
	}
	return svc, nil
}

// NewRunner wires the services, credential bookkeeping and redis locks
// into a job runner.
func NewRunner(p RunnerParams) (*jobs.Runner, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("database required")
	case p.Locks == nil:
		return nil, errors.New("lock store required")
	}
	cfg := p.Config

	svc, err := NewServices(cfg, p.DB, p.Logger, metrics.NewReconcileMetrics(p.Registerer))
	if err != nil {
		return nil, err
	}
	creds, err := credentials.NewService(credentials.NewRepository(p.DB))
	if err != nil {
		return nil, err
	}
	clients := p.Clients
	if clients == nil {
		clients = jobs.NewMarketplaceClients(cfg.Marketplace)
	}

	lockMetrics := metrics.NewLockMetrics(p.Registerer)
	lockOpts := lock.Options{
		Timeout:     cfg.Lock.Timeout,
		Expire:      cfg.Lock.Expire,
		MinimumLife: cfg.Lock.MinimumLife,
		Recorder:    lockMetrics,
	}
	factory := func(ctx context.Context, name string) (jobs.Locker, error) {
		l, err := lock.New(ctx, p.Locks, name, lockOpts)
		if err != nil {
			return nil, err
		}
		return l, nil
	}

	return jobs.NewRunner(jobs.RunnerParams{
		Logger:      p.Logger,
		Credentials: creds,
		Clients:     clients,
		Locks:       factory,
		Services:    svc,
		Metrics:     metrics.NewSyncJobMetrics(p.Registerer),
		CoolDown:    cfg.Sync.CoolDown,
		DefaultDays: cfg.Sync.DefaultDays,
	})
}
