package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/mpsync/internal/jobs"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	"github.com/angelmondragon/mpsync/pkg/logger"
)

// Enqueuer publishes job tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, job enums.JobName, params jobs.Params) (uuid.UUID, error)
}

type credentialSource interface {
	SelectPerShop(ctx context.Context, credType enums.CredentialType) ([]models.APIKey, error)
}

// EnqueueJob fans a sync job out to one usable credential per shop.
type EnqueueJob struct {
	job   enums.JobName
	days  int
	creds credentialSource
	queue Enqueuer
	logg  *logger.Logger
}

func NewEnqueueJob(job enums.JobName, days int, creds credentialSource, queue Enqueuer, logg *logger.Logger) *EnqueueJob {
	return &EnqueueJob{job: job, days: days, creds: creds, queue: queue, logg: logg}
}

func (j *EnqueueJob) Name() string { return j.job.String() }

func (j *EnqueueJob) Run(ctx context.Context) error {
	keys, err := j.creds.SelectPerShop(ctx, j.job.CredentialType())
	if err != nil {
		return fmt.Errorf("select credentials: %w", err)
	}
	var errs error
	queued := 0
	for _, key := range keys {
		params := jobs.Params{CredentialID: key.ID, ShopID: key.ShopID, Days: j.days}
		if _, err := j.queue.Enqueue(ctx, j.job, params); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("credential %d: %w", key.ID, err))
			continue
		}
		queued++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"queued": queued, "credentials": len(keys)}), "tasks enqueued")
	return errs
}

// NewSchedule registers the periodic sync entries.
func NewSchedule(cfg config.CronConfig, sync config.SyncConfig, creds credentialSource, queue Enqueuer, logg *logger.Logger) *Registry {
	registry := NewRegistry()
	add := func(job enums.JobName, days int, every time.Duration) {
		registry.Register(NewEnqueueJob(job, days, creds, queue, logg), every)
	}
	add(enums.JobUpdateStocks, 0, cfg.StocksEvery)
	add(enums.JobUpdateAnalytics, sync.DefaultDays, cfg.AnalyticsEvery)
	add(enums.JobUpdateTransactions, sync.DefaultDays, cfg.TransactionsEvery)
	add(enums.JobUpdateOrders, sync.DefaultDays, cfg.OrdersEvery)
	add(enums.JobUpdateCampaigns, 0, cfg.CampaignsEvery)
	add(enums.JobUpdateCampaignStatistics, cfg.CampaignStatisticsDays, cfg.CampaignsEvery)
	add(enums.JobCreateCampaignReports, sync.DefaultDays, cfg.CampaignReportsEvery)
	add(enums.JobCheckCampaignReports, 0, cfg.CheckReportsEvery)
	return registry
}
