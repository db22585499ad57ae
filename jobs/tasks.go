package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-po/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPODocument renders and stores the PDF of an approved purchase order.
	TaskPODocument = "procurement:po_document"
	// TaskInventorySnapshot recomputes the cached inventory snapshot.
	TaskInventorySnapshot = "inventory:snapshot"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// snapshotUniqueWindow collapses bursts of snapshot requests into one run.
const snapshotUniqueWindow = 30 * time.Second

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PODocumentPayload identifies the order to render.
type PODocumentPayload struct {
	POID string `json:"po_id"`
}

// InventorySnapshotPayload records why the snapshot was requested.
type InventorySnapshotPayload struct {
	Reason string `json:"reason,omitempty"`
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewPODocumentTask builds a PO document task.
func NewPODocumentTask(poID string) (*asynq.Task, error) {
	if poID == "" {
		return nil, errors.New("jobs: po id required")
	}
	body, err := json.Marshal(PODocumentPayload{POID: poID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPODocument, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewInventorySnapshotTask builds a snapshot refresh task.
func NewInventorySnapshotTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(InventorySnapshotPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventorySnapshot, body, asynq.Queue(QueueDefault), asynq.Unique(snapshotUniqueWindow)), nil
}

// NewIdempotencyCleanupTask builds the retention task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	hours := int(retention / time.Hour)
	if hours <= 0 {
		hours = 72
	}
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: hours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
