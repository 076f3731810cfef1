package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerVerify compares stock rows against their adjustment ledger.
	TaskLedgerVerify = "inventory:ledger_verify"
)

// LedgerVerifyPayload carries scheduling metadata for a verification run.
type LedgerVerifyPayload struct {
	RequestedBy  int64     `json:"requested_by,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerVerifyTask constructs an Asynq task for ledger verification.
func NewLedgerVerifyTask(payload LedgerVerifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}
