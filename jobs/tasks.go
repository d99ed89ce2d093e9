package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskQuoteExpiry marks stale quotes as expired.
	TaskQuoteExpiry = "quotes:expire"
	// TaskPricingSweep deactivates pricing rows whose validity window closed.
	TaskPricingSweep = "pricing:window-sweep"
	// TaskAgingSnapshot persists per-company invoice aging snapshots.
	TaskAgingSnapshot = "billing:aging-snapshot"
)

// SweepPayload carries the reference time for sweep-style jobs. A zero AsOf
// means "now" at execution time.
type SweepPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewQuoteExpiryTask constructs a quote expiry task.
func NewQuoteExpiryTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteExpiry, data), nil
}

// NewPricingSweepTask constructs a pricing window sweep task.
func NewPricingSweepTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPricingSweep, data), nil
}

// NewAgingSnapshotTask constructs an invoice aging snapshot task.
func NewAgingSnapshotTask(asOf time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgingSnapshot, data), nil
}
