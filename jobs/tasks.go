package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryReconcile compares maintained stock balances with the record sums.
	TaskInventoryReconcile = "inventory:reconcile"
	// TaskLedgerIntegrity compares account balances with their posted document lines.
	TaskLedgerIntegrity = "ledger:integrity"
)

// ScanPayload carries scheduling metadata. Repair asks the reconcile job to
// rewrite drifted balances from the records.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	Repair       bool      `json:"repair,omitempty"`
}

// NewInventoryReconcileTask constructs an Asynq task for stock reconciliation.
func NewInventoryReconcileTask(at time.Time, repair bool) (*asynq.Task, error) {
	return newScanTask(TaskInventoryReconcile, ScanPayload{ScheduledFor: at, Repair: repair})
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger integrity scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newScanTask(TaskLedgerIntegrity, ScanPayload{ScheduledFor: at})
}

func newScanTask(taskType string, payload ScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func decodeScanPayload(t *asynq.Task) (ScanPayload, error) {
	var payload ScanPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return ScanPayload{}, err
	}
	return payload, nil
}
