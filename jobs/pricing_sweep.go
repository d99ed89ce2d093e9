package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tienbob/Tubex-sub001/internal/jobs"
)

// PricingSweeper deactivates pricing rows outside their validity window.
type PricingSweeper interface {
	SweepExpiredPricing(ctx context.Context, asOf time.Time) (int, error)
}

// PricingSweepJob retires pricing entries whose effective window has closed.
type PricingSweepJob struct {
	Pricing PricingSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPricingSweepJob wires dependencies for the pricing sweep handler.
func NewPricingSweepJob(pricing PricingSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *PricingSweepJob {
	return &PricingSweepJob{
		Pricing: pricing,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes pricing sweep tasks.
func (j *PricingSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pricing == nil {
		return errors.New("pricing sweep: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskPricingSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	swept, err := j.Pricing.SweepExpiredPricing(ctx, asOf)
	if err != nil {
		j.logger().Error("sweep pricing windows", slog.Any("error", err))
		resultErr = err
		return err
	}
	j.metrics().AddProcessed(TaskPricingSweep, swept)
	j.logger().Info("deactivated expired pricing",
		slog.Int("count", swept),
		slog.Time("as_of", asOf))
	return nil
}

func (j *PricingSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPricingSweep))
	}
	return slog.Default().With(slog.String("job", TaskPricingSweep))
}

func (j *PricingSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PricingSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
