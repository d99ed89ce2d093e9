package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tienbob/Tubex-sub001/internal/billing"
	jobmetrics "github.com/tienbob/Tubex-sub001/internal/jobs"
)

// AgingReporter computes the outstanding-invoice aging report for a company.
type AgingReporter interface {
	Aging(ctx context.Context, companyID int64, asOf time.Time) (*billing.AgingReport, error)
}

// AgingSnapshotJob persists a per-company aging report for every company that
// still has open invoices.
type AgingSnapshotJob struct {
	Billing AgingReporter
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAgingSnapshotJob wires dependencies for the aging snapshot handler.
func NewAgingSnapshotJob(billingSvc AgingReporter, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgingSnapshotJob {
	return &AgingSnapshotJob{
		Billing: billingSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes aging snapshot tasks.
func (j *AgingSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Billing == nil || j.Pool == nil {
		return errors.New("aging snapshot: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskAgingSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companyIDs, err := j.listCompanies(ctx)
	if err != nil {
		j.logger().Error("list companies with open invoices", slog.Any("error", err))
		resultErr = err
		return err
	}

	snapshots := 0
	for _, companyID := range companyIDs {
		report, err := j.Billing.Aging(ctx, companyID, asOf)
		if err != nil {
			j.logger().Error("build aging report",
				slog.Int64("company_id", companyID),
				slog.Any("error", err))
			resultErr = err
			continue
		}
		if err := j.storeSnapshot(ctx, report); err != nil {
			j.logger().Error("store aging snapshot",
				slog.Int64("company_id", companyID),
				slog.Any("error", err))
			resultErr = err
			continue
		}
		snapshots++
	}

	j.metrics().AddProcessed(TaskAgingSnapshot, snapshots)
	j.logger().Info("persisted aging snapshots",
		slog.Int("companies", len(companyIDs)),
		slog.Int("snapshots", snapshots),
		slog.Time("as_of", asOf))
	return resultErr
}

func (j *AgingSnapshotJob) listCompanies(ctx context.Context) ([]int64, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT DISTINCT company_id FROM invoices
		WHERE status NOT IN ('DRAFT', 'PAID', 'VOID')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *AgingSnapshotJob) storeSnapshot(ctx context.Context, report *billing.AgingReport) error {
	buckets, err := json.Marshal(report.Buckets)
	if err != nil {
		return err
	}
	_, err = j.Pool.Exec(ctx, `
		INSERT INTO invoice_aging_snapshots (company_id, as_of, buckets, total_outstanding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id, as_of) DO UPDATE
		SET buckets = EXCLUDED.buckets, total_outstanding = EXCLUDED.total_outstanding`,
		report.CompanyID, report.AsOf, buckets, report.TotalOutstanding)
	return err
}

func (j *AgingSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAgingSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskAgingSnapshot))
}

func (j *AgingSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AgingSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
