package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) error
	List(ctx context.Context, filter ListFilter) ([]Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

// ListFilter narrows notification listings.
type ListFilter struct {
	Role       shared.Role
	UnreadOnly bool
	Limit      int
}

// FailureCounter counts notifications that could not be persisted.
type FailureCounter interface {
	NotificationFailed(kind string)
}

// Emitter records notifications on behalf of the domain services. Emit is
// fire-and-forget: persistence failures are logged and counted, never returned.
type Emitter struct {
	store    Store
	logger   *slog.Logger
	failures FailureCounter
	now      func() time.Time
}

// NewEmitter constructs an Emitter. failures may be nil.
func NewEmitter(store Store, logger *slog.Logger, failures FailureCounter) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, logger: logger, failures: failures, now: func() time.Time { return time.Now().UTC() }}
}

// Emit persists n.
func (e *Emitter) Emit(ctx context.Context, n Notification) {
	if e == nil || e.store == nil {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.now()
	}
	if err := e.store.Insert(ctx, n); err != nil {
		e.logger.Warn("notification not stored", slog.String("type", string(n.Type)), slog.Any("error", err))
		if e.failures != nil {
			e.failures.NotificationFailed(string(n.Type))
		}
		return
	}
	e.logger.Debug("notification stored", slog.String("type", string(n.Type)), slog.String("id", n.ID))
}

// List returns notifications visible to filter.Role, newest first.
func (e *Emitter) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return e.store.List(ctx, filter)
}

// MarkRead flags a notification as read.
func (e *Emitter) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return shared.ErrValidation
	}
	return e.store.MarkRead(ctx, id, e.now())
}
