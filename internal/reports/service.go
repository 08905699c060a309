// Package reports drives asynchronous advertising statistics reports from
// request to parsed rows.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/reconcile"
	"github.com/angelmondragon/mpsync/internal/window"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/marketplace"
)

const (
	defaultCheckBatch = 5
	defaultRetention  = 72 * time.Hour
)

type Source interface {
	CreateReport(ctx context.Context, campaignIDs []int64, from, to time.Time) (string, error)
	ReportState(ctx context.Context, uuid string) (marketplace.ReportStatus, error)
	DownloadReport(ctx context.Context, uuid string) (map[string]marketplace.Item, error)
}

type ServiceParams struct {
	DB             *gorm.DB
	Logger         *logger.Logger
	LimitDays      int
	LimitCampaigns int
	Retention      time.Duration
	CheckBatch     int
	Observer       reconcile.Observer
}

type Service struct {
	db             *gorm.DB
	repo           Repository
	logg           *logger.Logger
	limitDays      int
	limitCampaigns int
	retention      time.Duration
	checkBatch     int
	observer       reconcile.Observer
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("reports db required")
	case params.Logger == nil:
		return nil, fmt.Errorf("reports logger required")
	case params.LimitDays <= 0 || params.LimitCampaigns <= 0:
		return nil, fmt.Errorf("reports limits must be positive")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	batch := params.CheckBatch
	if batch <= 0 {
		batch = defaultCheckBatch
	}
	return &Service{
		db:             params.DB,
		repo:           NewRepository(params.DB),
		logg:           params.Logger,
		limitDays:      params.LimitDays,
		limitCampaigns: params.LimitCampaigns,
		retention:      retention,
		checkBatch:     batch,
		observer:       params.Observer,
		now:            time.Now,
	}, nil
}

type conditions struct {
	Campaigns []int64 `json:"campaigns"`
	DateFrom  string  `json:"dateFrom"`
	DateTo    string  `json:"dateTo"`
}

// Create files one report request per window and campaign chunk over the
// last days. Requests identical to a stored one are not filed again, and
// requests older than the retention are purged first. It returns how many
// requests were filed.
func (s *Service) Create(ctx context.Context, shopID int64, days int) (int, error) {
	now := s.now().UTC()
	purged, err := s.repo.Purge(ctx, shopID, now.Add(-s.retention))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge reports")
	}
	if purged > 0 {
		s.logg.Info(s.logg.WithField(ctx, "purged", purged), "old reports purged")
	}

	ids, err := s.repo.CampaignIDs(ctx, shopID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list campaigns")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	stored, err := s.repo.Conditions(ctx, shopID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load report conditions")
	}
	known := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		if key, err := canonical(r.Conditions); err == nil {
			known[key] = struct{}{}
		}
	}

	y, m, d := now.Date()
	plan := window.Plan{
		TotalDays: days,
		MaxDays:   s.limitDays,
		Until:     time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Boundary:  window.BoundaryContiguous,
	}
	filed := 0
	for _, w := range plan.Windows() {
		for _, chunk := range window.Chunk(ids, s.limitCampaigns) {
			cond := conditions{Campaigns: chunk, DateFrom: w.From.Format(time.DateOnly), DateTo: w.To.Format(time.DateOnly)}
			raw, err := json.Marshal(cond)
			if err != nil {
				return filed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode report conditions")
			}
			key, err := canonical(raw)
			if err != nil {
				return filed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "canonical report conditions")
			}
			if _, dup := known[key]; dup {
				continue
			}
			report := &models.Report{
				ShopID:      shopID,
				Conditions:  datatypes.JSON(raw),
				CampaignIDs: pq.Int64Array(chunk),
				DateFrom:    w.From,
				DateTo:      w.To,
				State:       enums.ReportStateNew,
			}
			if err := s.repo.Create(ctx, report); err != nil {
				return filed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "file report request")
			}
			known[key] = struct{}{}
			filed++
		}
	}
	return filed, nil
}

// CheckResult counts what one pass over the queue did.
type CheckResult struct {
	Requested int
	Polled    int
	Parsed    int
	Failed    int
}

// Check advances the oldest unparsed reports. At most one new remote report
// is requested per pass. A rate limit stops the pass and is returned.
func (s *Service) Check(ctx context.Context, shopID int64, src Source) (CheckResult, error) {
	var res CheckResult
	queue, err := s.repo.Queue(ctx, shopID, s.checkBatch)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load report queue")
	}
	types, err := s.repo.CampaignTypes(ctx, shopID)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign types")
	}

	requested := false
	for i := range queue {
		report := &queue[i]
		rctx := s.logg.WithField(ctx, "report_id", report.ID)

		if !report.HasRemote() {
			if requested {
				continue
			}
			requested = true
			if err := s.request(rctx, src, report); err != nil {
				return res, err
			}
			res.Requested++
			continue
		}

		status, err := src.ReportState(rctx, *report.UUID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeReportNotFound):
			if err := s.fail(rctx, report, err); err != nil {
				return res, err
			}
			res.Failed++
			continue
		case err != nil:
			return res, err
		}
		res.Polled++

		state := enums.ReportState(status.State)
		switch {
		case state == enums.ReportStateOK:
			if err := s.download(rctx, shopID, src, report, status, types); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeReportNotFound) {
					if err := s.fail(rctx, report, err); err != nil {
						return res, err
					}
					res.Failed++
					continue
				}
				return res, err
			}
			res.Parsed++
		case state == enums.ReportStateError:
			if err := s.repo.Update(rctx, report.ID, map[string]any{
				"state":     state,
				"response":  encodeStatus(status),
				"is_parsed": true,
			}); err != nil {
				return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark report error")
			}
			s.logg.Warn(s.logg.WithField(rctx, "upstream_error", status.Error), "report failed upstream")
			res.Failed++
		default:
			if state != report.State {
				if err := s.repo.Update(rctx, report.ID, map[string]any{"state": state}); err != nil {
					return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update report state")
				}
			}
		}
	}
	return res, nil
}

func (s *Service) request(ctx context.Context, src Source, report *models.Report) error {
	uuid, err := src.CreateReport(ctx, []int64(report.CampaignIDs), report.DateFrom, report.DateTo)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, report.ID, map[string]any{
		"uuid":  uuid,
		"state": enums.ReportStateNotStarted,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save report uuid")
	}
	s.logg.Info(s.logg.WithField(ctx, "uuid", uuid), "report requested")
	return nil
}

func (s *Service) download(ctx context.Context, shopID int64, src Source, report *models.Report, status marketplace.ReportStatus, types map[int64]string) error {
	body, err := src.DownloadReport(ctx, *report.UUID)
	if err != nil {
		return err
	}
	rows := s.parse(ctx, body, types)

	summary, err := reconcile.Reconcile(ctx, s.db, productStatSchema, rows.products, reconcile.Options[productStat]{
		ShopID:   shopID,
		Observer: s.observer,
	})
	if err != nil {
		return err
	}
	s.logg.Info(ctx, summary.String())
	summary, err = reconcile.Reconcile(ctx, s.db, orderStatSchema, rows.orders, reconcile.Options[orderStat]{
		ShopID:   shopID,
		Observer: s.observer,
	})
	if err != nil {
		return err
	}
	s.logg.Info(ctx, summary.String())
	if rows.skipped > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "skipped_rows", rows.skipped), "report rows skipped")
	}

	if err := s.repo.Update(ctx, report.ID, map[string]any{
		"state":     enums.ReportStateOK,
		"response":  encodeStatus(status),
		"is_parsed": true,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark report parsed")
	}
	return nil
}

// fail marks a report whose remote copy is gone as terminal.
func (s *Service) fail(ctx context.Context, report *models.Report, cause error) error {
	s.logg.Warn(ctx, "report not found upstream: "+cause.Error())
	if err := s.repo.Update(ctx, report.ID, map[string]any{
		"state":     enums.ReportStateFail,
		"is_parsed": true,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark report failed")
	}
	return nil
}

func encodeStatus(status marketplace.ReportStatus) datatypes.JSON {
	raw, err := json.Marshal(status)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// canonical re-encodes stored conditions so key order and spacing do not
// defeat deduplication.
func canonical(raw []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
