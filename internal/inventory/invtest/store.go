// Package invtest provides an in-memory inventory store for tests of the
// inventory service and of modules that compose inventory writes.
package invtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-po/internal/inventory"
)

// Store implements inventory.RepositoryPort. A failed unit of work restores
// the state captured when it began.
type Store struct {
	mu        sync.Mutex
	Variants  map[string]inventory.Variant
	Products  map[string]inventory.Product
	Movements []inventory.StockMovement
	Restocks  map[string]inventory.RestockingRequest

	// FailMovementAfter makes InsertMovement fail once this many movements were
	// written in the current store lifetime. Zero disables it.
	FailMovementAfter int
	FailErr           error
	inserted          int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		Variants: map[string]inventory.Variant{},
		Products: map[string]inventory.Product{},
		Restocks: map[string]inventory.RestockingRequest{},
	}
}

// AddVariant seeds a variant.
func (s *Store) AddVariant(v inventory.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Variants[v.ID] = v
}

// AddRestock seeds a restocking request.
func (s *Store) AddRestock(r inventory.RestockingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Restocks[r.ID] = r
}

// Variant returns the stored variant.
func (s *Store) Variant(id string) inventory.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Variants[id]
}

// Restock returns the stored request.
func (s *Store) Restock(id string) inventory.RestockingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Restocks[id]
}

// MovementCount returns the number of ledger entries.
func (s *Store) MovementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Movements)
}

// Checkpoint captures the current state. The returned func restores it. The
// caller must hold the unit of work.
func (s *Store) Checkpoint() (restore func()) {
	variants := make(map[string]inventory.Variant, len(s.Variants))
	for k, v := range s.Variants {
		variants[k] = v
	}
	products := make(map[string]inventory.Product, len(s.Products))
	for k, v := range s.Products {
		products[k] = v
	}
	restocks := make(map[string]inventory.RestockingRequest, len(s.Restocks))
	for k, v := range s.Restocks {
		restocks[k] = v
	}
	movements := len(s.Movements)
	return func() {
		s.Variants = variants
		s.Products = products
		s.Restocks = restocks
		s.Movements = s.Movements[:movements]
	}
}

// Tx returns a transactional view without locking; use it only inside a unit
// of work that already serialises access.
func (s *Store) Tx() inventory.TxRepository {
	return &tx{s: s}
}

// WithTx runs fn atomically.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := s.Checkpoint()
	if err := fn(ctx, s.Tx()); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) GetVariant(_ context.Context, id string) (inventory.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Variants[id]
	if !ok {
		return inventory.Variant{}, inventory.ErrVariantNotFound
	}
	return v, nil
}

func (s *Store) ListVariantsByProduct(_ context.Context, productID string) ([]inventory.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byProduct(productID), nil
}

func (s *Store) byProduct(productID string) []inventory.Variant {
	var out []inventory.Variant
	for _, v := range s.Variants {
		if v.ParentProductID == productID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SearchVariantsByName(_ context.Context, name string, limit int) ([]inventory.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(name))
	var out []inventory.Variant
	for _, v := range s.Variants {
		if strings.Contains(strings.ToLower(v.Name), needle) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListVariants(_ context.Context, filter inventory.VariantFilter) ([]inventory.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Variant
	for _, v := range s.Variants {
		if filter.ProductID != "" && v.ParentProductID != filter.ProductID {
			continue
		}
		if filter.Warehouse != "" && v.Location.Warehouse != filter.Warehouse {
			continue
		}
		if filter.BelowRestock && v.Quantity > v.RestockLevel {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.StockMovement
	for i := len(s.Movements) - 1; i >= 0; i-- {
		m := s.Movements[i]
		if filter.VariantID != "" && m.VariantID != filter.VariantID {
			continue
		}
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.RefID != "" && m.RefID != filter.RefID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) ListRestockRequests(_ context.Context, filter inventory.RestockFilter) ([]inventory.RestockingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.RestockingRequest
	for _, r := range s.Restocks {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ProductID != "" && r.ProductID != filter.ProductID {
			continue
		}
		if filter.Priority != "" && r.Priority != filter.Priority {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SnapshotTotals(_ context.Context) (inventory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap inventory.Snapshot
	for _, v := range s.Variants {
		snap.TotalVariants++
		snap.TotalUnits += v.Quantity
		snap.TotalSafetyStock += v.SafetyStock
		if v.Quantity <= v.RestockLevel {
			snap.LowStockCount++
		}
		if v.Quantity < v.SafetyStock {
			snap.BelowSafetyCount++
		}
	}
	for _, r := range s.Restocks {
		if r.Status.Open() {
			snap.OpenRestockCount++
		}
	}
	return snap, nil
}

type tx struct {
	s *Store
}

func (t *tx) GetVariantForUpdate(_ context.Context, id string) (inventory.Variant, error) {
	v, ok := t.s.Variants[id]
	if !ok {
		return inventory.Variant{}, inventory.ErrVariantNotFound
	}
	return v, nil
}

func (t *tx) UpdateVariantStock(_ context.Context, id string, quantity, safetyStock int64, at time.Time) error {
	v, ok := t.s.Variants[id]
	if !ok {
		return inventory.ErrVariantNotFound
	}
	v.Quantity = quantity
	v.SafetyStock = safetyStock
	v.UpdatedAt = at
	t.s.Variants[id] = v
	return nil
}

func (t *tx) InsertMovement(_ context.Context, m inventory.StockMovement) error {
	if t.s.FailMovementAfter > 0 && t.s.inserted >= t.s.FailMovementAfter {
		return t.s.FailErr
	}
	t.s.inserted++
	t.s.Movements = append(t.s.Movements, m)
	return nil
}

func (t *tx) ListVariantsByProduct(_ context.Context, productID string) ([]inventory.Variant, error) {
	return t.s.byProduct(productID), nil
}

func (t *tx) UpdateProductStats(_ context.Context, productID string, stats inventory.ProductStats, at time.Time) error {
	p := t.s.Products[productID]
	p.ID = productID
	p.TotalStock = stats.TotalStock
	p.TotalVariants = stats.TotalVariants
	p.MinPrice = stats.MinPrice
	p.MaxPrice = stats.MaxPrice
	p.StatsUpdatedAt = at
	t.s.Products[productID] = p
	return nil
}

func (t *tx) ListRestockRequestsByProduct(_ context.Context, productID string) ([]inventory.RestockingRequest, error) {
	var out []inventory.RestockingRequest
	for _, r := range t.s.Restocks {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetRestockRequestForUpdate(_ context.Context, id string) (inventory.RestockingRequest, error) {
	r, ok := t.s.Restocks[id]
	if !ok {
		return inventory.RestockingRequest{}, inventory.ErrRestockNotFound
	}
	return r, nil
}

func (t *tx) UpdateRestockStatus(_ context.Context, id string, status inventory.RestockStatus, poID, note string, at time.Time) error {
	r, ok := t.s.Restocks[id]
	if !ok {
		return inventory.ErrRestockNotFound
	}
	r.Status = status
	if poID != "" {
		r.PurchaseOrderID = poID
	}
	if note != "" {
		r.Note = note
	}
	if status.Open() {
		r.ResolvedAt = nil
	} else {
		resolved := at
		r.ResolvedAt = &resolved
	}
	t.s.Restocks[id] = r
	return nil
}

func (t *tx) UpsertVariant(_ context.Context, v inventory.Variant) error {
	t.s.Variants[v.ID] = v
	p := t.s.Products[v.ParentProductID]
	if p.Name == "" {
		p.ID = v.ParentProductID
		p.Name = v.Name
		t.s.Products[v.ParentProductID] = p
	}
	return nil
}

func (t *tx) UpsertRestockRequest(_ context.Context, r inventory.RestockingRequest) error {
	t.s.Restocks[r.ID] = r
	return nil
}
