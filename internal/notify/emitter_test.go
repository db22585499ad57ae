package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

type memoryStore struct {
	mu    sync.Mutex
	items []Notification
	fail  error
}

func (m *memoryStore) Insert(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.items = append(m.items, n)
	return nil
}

func (m *memoryStore) List(_ context.Context, filter ListFilter) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if filter.Role != "" && !n.Targets(filter.Role) {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryStore) MarkRead(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Read = true
			m.items[i].ReadAt = &at
			return nil
		}
	}
	return ErrNotificationNotFound
}

type countingFailures struct{ kinds []string }

func (c *countingFailures) NotificationFailed(kind string) { c.kinds = append(c.kinds, kind) }

var manager = shared.CurrentActor{ID: "u-1", Name: "Maya", Role: shared.RoleInventoryManager}

func TestEmitAssignsIdentityAndTimestamp(t *testing.T) {
	store := &memoryStore{}
	emitter := NewEmitter(store, nil, nil)

	emitter.Emit(context.Background(), POCreated("po-1", "PO-2501-0001", "Acme", decimal.NewFromInt(250), manager))

	require.Len(t, store.items, 1)
	got := store.items[0]
	require.NotEmpty(t, got.ID)
	require.False(t, got.CreatedAt.IsZero())
	require.Equal(t, TypePOCreated, got.Type)
	require.Equal(t, "250.00", got.Details["totalAmount"])
	require.Contains(t, got.Message, "Maya")
}

func TestEmitSwallowsStoreFailure(t *testing.T) {
	store := &memoryStore{fail: errors.New("db down")}
	failures := &countingFailures{}
	emitter := NewEmitter(store, nil, failures)

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), ReleaseCompleted("p-1", "v-1", "Milk 1L", 5, 12, 2, manager))
	})
	require.Empty(t, store.items)
	require.Equal(t, []string{string(TypeReleaseCompleted)}, failures.kinds)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *Emitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), PODecided("po-1", "PO-2501-0001", true, "", manager))
	})
}

func TestListFiltersByRoleAndUnread(t *testing.T) {
	store := &memoryStore{}
	emitter := NewEmitter(store, nil, nil)
	ctx := context.Background()

	emitter.Emit(ctx, POSubmitted("po-1", "PO-2501-0001", []shared.Role{shared.RoleAdmin}, manager))
	emitter.Emit(ctx, ReceivingCompleted("po-1", "PO-2501-0001", "rt-1", 8, 2, false, manager))

	adminItems, err := emitter.List(ctx, ListFilter{Role: shared.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, adminItems, 2)

	cashierItems, err := emitter.List(ctx, ListFilter{Role: shared.RoleCashier})
	require.NoError(t, err)
	require.Empty(t, cashierItems)

	require.NoError(t, emitter.MarkRead(ctx, store.items[0].ID))
	unread, err := emitter.List(ctx, ListFilter{Role: shared.RoleAdmin, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, TypeReceivingCompleted, unread[0].Type)
}

func TestMarkReadUnknown(t *testing.T) {
	emitter := NewEmitter(&memoryStore{}, nil, nil)
	err := emitter.MarkRead(context.Background(), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPODecidedCarriesNotes(t *testing.T) {
	n := PODecided("po-9", "PO-2501-0009", false, "price too high", manager)
	require.Equal(t, TypePORejected, n.Type)
	require.Equal(t, "price too high", n.Details["notes"])

	approved := PODecided("po-9", "PO-2501-0009", true, "", manager)
	require.Equal(t, TypePOApproved, approved.Type)
	_, hasNotes := approved.Details["notes"]
	require.False(t, hasNotes)
}
