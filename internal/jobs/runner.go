// Package jobs runs the synchronization entry points for one credential:
// validation, the per-credential lock, credential bookkeeping on failure
// and job metrics.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/mpsync/internal/analytics"
	"github.com/angelmondragon/mpsync/internal/campaigns"
	"github.com/angelmondragon/mpsync/internal/credentials"
	"github.com/angelmondragon/mpsync/internal/orders"
	"github.com/angelmondragon/mpsync/internal/products"
	"github.com/angelmondragon/mpsync/internal/reports"
	"github.com/angelmondragon/mpsync/internal/stocks"
	"github.com/angelmondragon/mpsync/internal/transactions"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
)

const defaultCoolDown = 15 * time.Minute

// Locker is the distributed lock held for the duration of a job.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
	SetState(ctx context.Context, text string) error
}

// LockFactory returns the lock named name.
type LockFactory func(ctx context.Context, name string) (Locker, error)

// LockName is the lock guarding every job of a credential.
func LockName(key *models.APIKey) string {
	return "credential:" + key.ClientID
}

// Services are the sync services the entry points drive.
type Services struct {
	Products     *products.Service
	Stocks       *stocks.Service
	Analytics    *analytics.Service
	Transactions *transactions.Service
	Orders       *orders.Service
	Campaigns    *campaigns.Service
	Reports      *reports.Service
}

type RunnerParams struct {
	Logger      *logger.Logger
	Credentials *credentials.Service
	Clients     Clients
	Locks       LockFactory
	Services    Services
	Metrics     *metrics.SyncJobMetrics
	CoolDown    time.Duration
	DefaultDays int
}

type Runner struct {
	logg        *logger.Logger
	creds       *credentials.Service
	clients     Clients
	locks       LockFactory
	svc         Services
	metrics     *metrics.SyncJobMetrics
	coolDown    time.Duration
	defaultDays int
}

func NewRunner(params RunnerParams) (*Runner, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("jobs logger required")
	case params.Credentials == nil:
		return nil, fmt.Errorf("jobs credentials service required")
	case params.Clients == nil:
		return nil, fmt.Errorf("jobs clients required")
	case params.Locks == nil:
		return nil, fmt.Errorf("jobs lock factory required")
	}
	coolDown := params.CoolDown
	if coolDown <= 0 {
		coolDown = defaultCoolDown
	}
	days := params.DefaultDays
	if days <= 0 {
		days = 1
	}
	return &Runner{
		logg:        params.Logger,
		creds:       params.Credentials,
		clients:     params.Clients,
		locks:       params.Locks,
		svc:         params.Services,
		metrics:     params.Metrics,
		coolDown:    coolDown,
		defaultDays: days,
	}, nil
}

// Run executes job for the credential in p and reports the outcome.
func (r *Runner) Run(ctx context.Context, job enums.JobName, p Params) Result {
	start := time.Now()
	ctx = r.logg.WithJob(ctx, job.String())
	ctx = r.logg.WithCredentialID(ctx, p.CredentialID)

	res := r.run(ctx, job, p)

	elapsed := time.Since(start)
	r.metrics.ObserveDuration(job.String(), elapsed)
	ctx = r.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if res.OK() {
		r.metrics.IncSuccess(job.String())
		r.logg.Info(ctx, "job.complete: "+res.Message)
	} else {
		r.metrics.IncFailure(job.String(), string(res.Code))
		r.logg.Warn(r.logg.WithFields(ctx, pkgerrors.Dump(res.Err()).Fields()), "job.failed: "+res.Message)
	}
	return res
}

func (r *Runner) run(ctx context.Context, job enums.JobName, p Params) Result {
	if !job.IsValid() {
		return failure(pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown job %q", job)))
	}
	if err := p.Validate(); err != nil {
		return failure(err)
	}
	key, err := r.creds.Usable(ctx, p.CredentialID, job.CredentialType())
	if err != nil {
		return failure(err)
	}
	if p.ShopID != 0 && p.ShopID != key.ShopID {
		return failure(pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("credential %d does not belong to shop %d", key.ID, p.ShopID)))
	}
	ctx = r.logg.WithShopID(ctx, key.ShopID)

	l, err := r.locks(ctx, LockName(key))
	if err != nil {
		return failure(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create lock"))
	}
	if err := l.Acquire(ctx); err != nil {
		return failure(err)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			r.logg.Error(ctx, "release lock", err)
		}
	}()
	if err := l.SetState(ctx, "running "+job.String()); err != nil {
		r.logg.Warn(ctx, "set lock state: "+err.Error())
	}

	msg, err := r.execute(ctx, job, key, p)
	if err != nil {
		res := failure(err)
		res.RetryAt = r.settle(ctx, key, err)
		return res
	}
	return success(msg)
}

// settle records what a failure means for the credential: rejected keys
// are deactivated, rate-limited keys cool down. It returns the end of the
// cool-down, if any.
func (r *Runner) settle(ctx context.Context, key *models.APIKey, err error) *time.Time {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeBadCredential):
		if derr := r.creds.Deactivate(ctx, key.ID); derr != nil {
			r.logg.Error(ctx, "deactivate credential", derr)
		}
	case pkgerrors.IsCode(err, pkgerrors.CodeRateLimited):
		until, cerr := r.creds.CoolDown(ctx, key.ID, r.coolDown)
		if cerr != nil {
			r.logg.Error(ctx, "cool down credential", cerr)
			return nil
		}
		return &until
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, job enums.JobName, key *models.APIKey, p Params) (msg string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("job panicked: %v", rec))
		}
	}()
	days := p.Days
	if days <= 0 {
		days = r.defaultDays
	}

	if job.CredentialType() == enums.CredentialTypePerformance {
		api, err := r.clients.Performance(key)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeBadCredential, err, "build performance client")
		}
		return r.performanceJob(ctx, job, key.ShopID, api, days)
	}
	api, err := r.clients.Seller(key)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeBadCredential, err, "build seller client")
	}
	return r.sellerJob(ctx, job, key.ShopID, api, days, p.DaysStep)
}

func (r *Runner) sellerJob(ctx context.Context, job enums.JobName, shopID int64, api SellerAPI, days, step int) (string, error) {
	switch job {
	case enums.JobUpdateProducts:
		s, err := r.svc.Products.Sync(ctx, shopID, api)
		return s.String(), err
	case enums.JobUpdateStocks:
		s, err := r.svc.Stocks.Sync(ctx, shopID, api)
		return s.String(), err
	case enums.JobUpdateAnalytics:
		s, err := r.svc.Analytics.Sync(ctx, shopID, api, days, step)
		return s.String(), err
	case enums.JobUpdateTransactions:
		s, err := r.svc.Transactions.Sync(ctx, shopID, api, days)
		return s.String(), err
	case enums.JobUpdateOrders:
		s, err := r.svc.Orders.Sync(ctx, shopID, api, days)
		return s.String(), err
	case enums.JobUpdateAll:
		return r.updateAll(ctx, shopID, api, days, step)
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no seller handler for %s", job))
}

func (r *Runner) performanceJob(ctx context.Context, job enums.JobName, shopID int64, api PerformanceAPI, days int) (string, error) {
	switch job {
	case enums.JobUpdateCampaigns:
		s, err := r.svc.Campaigns.Sync(ctx, shopID, api)
		return s.String(), err
	case enums.JobUpdateCampaignStatistics:
		s, err := r.svc.Campaigns.SyncStatistics(ctx, shopID, api, days)
		return s.String(), err
	case enums.JobCreateCampaignReports:
		n, err := r.svc.Reports.Create(ctx, shopID, days)
		return fmt.Sprintf("%d report requests filed", n), err
	case enums.JobCheckCampaignReports:
		res, err := r.svc.Reports.Check(ctx, shopID, api)
		return fmt.Sprintf("requested %d / polled %d / parsed %d / failed %d", res.Requested, res.Polled, res.Parsed, res.Failed), err
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no performance handler for %s", job))
}

type step struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// updateAll runs stocks, analytics, transactions, campaign statistics and
// orders in that order. Products come first through stocks because the sku
// map the later steps rely on is derived from them. A failed step does not
// stop the run unless the seller credential itself is unusable.
func (r *Runner) updateAll(ctx context.Context, shopID int64, api SellerAPI, days, daysStep int) (string, error) {
	steps := []step{
		{"stocks", func(ctx context.Context) (string, error) {
			s, err := r.svc.Stocks.Sync(ctx, shopID, api)
			return s.String(), err
		}},
		{"analytics", func(ctx context.Context) (string, error) {
			s, err := r.svc.Analytics.Sync(ctx, shopID, api, days, daysStep)
			return s.String(), err
		}},
		{"transactions", func(ctx context.Context) (string, error) {
			s, err := r.svc.Transactions.Sync(ctx, shopID, api, days)
			return s.String(), err
		}},
		{"campaign statistics", func(ctx context.Context) (string, error) {
			return r.campaignStatistics(ctx, shopID, days)
		}},
		{"orders", func(ctx context.Context) (string, error) {
			s, err := r.svc.Orders.Sync(ctx, shopID, api, days)
			return s.String(), err
		}},
	}

	var (
		errs     error
		messages []string
	)
	for _, st := range steps {
		msg, err := st.run(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", st.name, err))
			if abortsRun(err) {
				return strings.Join(messages, "; "), pkgerrors.Wrap(pkgerrors.CodeOf(err), errs, "update all aborted at "+st.name)
			}
			continue
		}
		messages = append(messages, st.name+": "+msg)
	}
	if errs != nil {
		return strings.Join(messages, "; "), pkgerrors.Wrap(pkgerrors.CodeOf(errs), errs, "update all finished with errors")
	}
	return strings.Join(messages, "; "), nil
}

func abortsRun(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeBadCredential) ||
		pkgerrors.IsCode(err, pkgerrors.CodeRateLimited) ||
		pkgerrors.IsCode(err, pkgerrors.CodeLockHeld) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// campaignStatistics runs under the shop's performance credential and its
// own lock. Failures of that credential are settled on it and reported as
// plain text so they never touch the seller credential.
func (r *Runner) campaignStatistics(ctx context.Context, shopID int64, days int) (string, error) {
	key, err := r.creds.ForShop(ctx, shopID, enums.CredentialTypePerformance)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return "skipped, no performance credential", nil
	}
	if err != nil {
		return "", err
	}
	ctx = r.logg.WithField(ctx, "performance_credential_id", key.ID)

	l, err := r.locks(ctx, LockName(key))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create lock")
	}
	if err := l.Acquire(ctx); err != nil {
		return "", fmt.Errorf("performance credential %d: %s", key.ID, err.Error())
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			r.logg.Error(ctx, "release lock", err)
		}
	}()

	msg, err := r.execute(ctx, enums.JobUpdateCampaignStatistics, key, Params{CredentialID: key.ID, Days: days})
	if err != nil {
		r.settle(ctx, key, err)
		return "", fmt.Errorf("performance credential %d: %s", key.ID, err.Error())
	}
	return msg, nil
}
