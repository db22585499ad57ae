package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-po/internal/documents"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-po/internal/jobs"
)

// DocumentGenerator renders and stores purchase order documents.
type DocumentGenerator interface {
	GeneratePO(ctx context.Context, poID string) (documents.Document, error)
}

// SnapshotRefresher recomputes the inventory snapshot.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (inventory.Snapshot, error)
}

// KeyCleaner purges idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Handlers bundles the task handlers of the worker.
type Handlers struct {
	Documents DocumentGenerator
	Snapshots SnapshotRefresher
	Keys      KeyCleaner
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Register returns the task handlers whose dependencies are configured.
func (h *Handlers) Register() []TaskHandler {
	var out []TaskHandler
	if h.Documents != nil {
		out = append(out, TaskHandler{Type: TaskPODocument, Handler: h.HandlePODocument})
	}
	if h.Snapshots != nil {
		out = append(out, TaskHandler{Type: TaskInventorySnapshot, Handler: h.HandleInventorySnapshot})
	}
	if h.Keys != nil {
		out = append(out, TaskHandler{Type: TaskIdempotencyCleanup, Handler: h.HandleIdempotencyCleanup})
	}
	return out
}

// HandlePODocument renders the PDF of an approved order.
func (h *Handlers) HandlePODocument(ctx context.Context, task *asynq.Task) (err error) {
	if h.Documents == nil {
		return errors.New("po document: generator not configured")
	}
	var payload PODocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.POID == "" {
		return fmt.Errorf("po document: bad payload: %w", asynq.SkipRetry)
	}
	tracker := h.metrics().Track(TaskPODocument)
	defer func() { err = tracker.End(err) }()

	doc, err := h.Documents.GeneratePO(ctx, payload.POID)
	if err != nil {
		h.log(TaskPODocument).Error("generate po document", slog.String("po_id", payload.POID), slog.Any("error", err))
		return err
	}
	h.log(TaskPODocument).Info("po document stored", slog.String("po_id", payload.POID), slog.String("url", doc.URL), slog.Int64("size", doc.Size))
	return nil
}

// HandleInventorySnapshot refreshes the cached snapshot.
func (h *Handlers) HandleInventorySnapshot(ctx context.Context, task *asynq.Task) (err error) {
	if h.Snapshots == nil {
		return errors.New("inventory snapshot: refresher not configured")
	}
	var payload InventorySnapshotPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("inventory snapshot: bad payload: %w", asynq.SkipRetry)
		}
	}
	tracker := h.metrics().Track(TaskInventorySnapshot)
	defer func() { err = tracker.End(err) }()

	snap, err := h.Snapshots.Refresh(ctx)
	if err != nil {
		return err
	}
	h.metrics().SetSnapshotUnits(snap.TotalUnits)
	h.log(TaskInventorySnapshot).Info("inventory snapshot refreshed",
		slog.String("reason", payload.Reason),
		slog.Int64("variants", snap.TotalVariants),
		slog.Int64("below_safety", snap.BelowSafetyCount))
	return nil
}

// HandleIdempotencyCleanup purges old idempotency keys.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, task *asynq.Task) (err error) {
	if h.Keys == nil {
		return errors.New("idempotency cleanup: store not configured")
	}
	payload := IdempotencyCleanupPayload{RetentionHours: 72}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: bad payload: %w", asynq.SkipRetry)
		}
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	tracker := h.metrics().Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := h.Keys.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		return err
	}
	h.metrics().AddPurged(TaskIdempotencyCleanup, removed)
	h.log(TaskIdempotencyCleanup).Info("idempotency keys purged", slog.Int64("removed", removed), slog.Int("retention_hours", payload.RetentionHours))
	return nil
}

func (h *Handlers) metrics() *jobmetrics.Metrics {
	if h.Metrics != nil {
		return h.Metrics
	}
	return defaultJobMetrics
}

func (h *Handlers) log(job string) *slog.Logger {
	if h.Logger != nil {
		return h.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}
