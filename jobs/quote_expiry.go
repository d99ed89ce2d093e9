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

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuoteExpirer marks stale quotes as expired.
type QuoteExpirer interface {
	ExpireStaleQuotes(ctx context.Context, asOf time.Time) (int, error)
}

// QuoteExpiryJob expires quotes whose validity date has passed.
type QuoteExpiryJob struct {
	Quotes  QuoteExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewQuoteExpiryJob wires dependencies for the quote expiry handler.
func NewQuoteExpiryJob(quotes QuoteExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuoteExpiryJob {
	return &QuoteExpiryJob{
		Quotes:  quotes,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes quote expiry tasks.
func (j *QuoteExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Quotes == nil {
		return errors.New("quote expiry: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskQuoteExpiry)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	expired, err := j.Quotes.ExpireStaleQuotes(ctx, asOf)
	if err != nil {
		j.logger().Error("expire quotes", slog.Any("error", err))
		resultErr = err
		return err
	}
	j.metrics().AddProcessed(TaskQuoteExpiry, expired)
	j.logger().Info("expired stale quotes",
		slog.Int("count", expired),
		slog.Time("as_of", asOf))
	return nil
}

func (j *QuoteExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuoteExpiry))
	}
	return slog.Default().With(slog.String("job", TaskQuoteExpiry))
}

func (j *QuoteExpiryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *QuoteExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
