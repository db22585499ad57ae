package procurement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-po/internal/changefeed"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/inventory/invtest"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

var (
	manager = shared.CurrentActor{ID: "u-mgr", Name: "Rina", Role: shared.RoleInventoryManager}
	admin   = shared.CurrentActor{ID: "u-adm", Name: "Dewi", Role: shared.RoleAdmin}
	cashier = shared.CurrentActor{ID: "u-cash", Name: "Budi", Role: shared.RoleCashier}
)

// memoryRepo keeps orders in maps and composes the inventory store so one
// unit of work spans both, restoring both on failure.
type memoryRepo struct {
	mu         sync.Mutex
	inv        *invtest.Store
	pos        map[string]PurchaseOrder
	approvals  map[string]Approval
	receivings []ReceivingTransaction

	failReceivingInsert error
}

func newMemoryRepo(inv *invtest.Store) *memoryRepo {
	return &memoryRepo{inv: inv, pos: map[string]PurchaseOrder{}, approvals: map[string]Approval{}}
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.Items = append([]LineItem(nil), po.Items...)
	return po
}

func cloneApproval(a Approval) Approval {
	a.Steps = append([]ApprovalStep(nil), a.Steps...)
	return a
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := make(map[string]PurchaseOrder, len(r.pos))
	for k, v := range r.pos {
		pos[k] = clonePO(v)
	}
	approvals := make(map[string]Approval, len(r.approvals))
	for k, v := range r.approvals {
		approvals[k] = cloneApproval(v)
	}
	receivings := len(r.receivings)
	restoreInventory := r.inv.Checkpoint()
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.pos = pos
		r.approvals = approvals
		r.receivings = r.receivings[:receivings]
		restoreInventory()
		return err
	}
	return nil
}

func (r *memoryRepo) GetPO(_ context.Context, id string) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return clonePO(po), nil
}

func (r *memoryRepo) ListPOs(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PurchaseOrder
	for _, po := range r.pos {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		if filter.SupplierID != "" && po.SupplierID != filter.SupplierID {
			continue
		}
		out = append(out, clonePO(po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if filter.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) GetApproval(_ context.Context, id string) (Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok {
		return Approval{}, ErrApprovalNotFound
	}
	return cloneApproval(a), nil
}

func (r *memoryRepo) ListReceivingTransactions(_ context.Context, poID string) ([]ReceivingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ReceivingTransaction
	for _, rt := range r.receivings {
		if rt.POID == poID {
			out = append(out, rt)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetReceivingTransaction(_ context.Context, id string) (ReceivingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.receivings {
		if rt.ID == id {
			return rt, nil
		}
	}
	return ReceivingTransaction{}, ErrReceivingNotFound
}

func (r *memoryRepo) po(id string) PurchaseOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clonePO(r.pos[id])
}

type memoryTx struct {
	r *memoryRepo
}

func (t *memoryTx) Inventory() inventory.TxRepository { return t.r.inv.Tx() }

func (t *memoryTx) CountPOsCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, po := range t.r.pos {
		if !po.CreatedAt.Before(from) && po.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InsertPO(_ context.Context, po PurchaseOrder) error {
	for _, existing := range t.r.pos {
		if existing.PONumber == po.PONumber {
			return errors.New("duplicate po number")
		}
	}
	t.r.pos[po.ID] = clonePO(po)
	return nil
}

func (t *memoryTx) GetPOForUpdate(_ context.Context, id string) (PurchaseOrder, error) {
	po, ok := t.r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return clonePO(po), nil
}

func (t *memoryTx) UpdatePO(_ context.Context, po PurchaseOrder) error {
	existing, ok := t.r.pos[po.ID]
	if !ok {
		return ErrPONotFound
	}
	po.Items = existing.Items
	t.r.pos[po.ID] = clonePO(po)
	return nil
}

func (t *memoryTx) ReplaceItems(_ context.Context, poID string, items []LineItem) error {
	po, ok := t.r.pos[poID]
	if !ok {
		return ErrPONotFound
	}
	po.Items = append([]LineItem(nil), items...)
	t.r.pos[poID] = po
	return nil
}

func (t *memoryTx) SetItemReceived(_ context.Context, poID, lineID string, received int64) error {
	po, ok := t.r.pos[poID]
	if !ok {
		return ErrPONotFound
	}
	po = clonePO(po)
	for i := range po.Items {
		if po.Items[i].ID == lineID {
			po.Items[i].ReceivedQuantity = received
			t.r.pos[poID] = po
			return nil
		}
	}
	return ErrLineNotOnOrder
}

func (t *memoryTx) DeletePO(_ context.Context, id string) error {
	if _, ok := t.r.pos[id]; !ok {
		return ErrPONotFound
	}
	delete(t.r.pos, id)
	return nil
}

func (t *memoryTx) InsertApproval(_ context.Context, a Approval) error {
	t.r.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (t *memoryTx) GetApprovalForUpdate(_ context.Context, id string) (Approval, error) {
	a, ok := t.r.approvals[id]
	if !ok {
		return Approval{}, ErrApprovalNotFound
	}
	return cloneApproval(a), nil
}

func (t *memoryTx) UpdateApproval(_ context.Context, a Approval) error {
	t.r.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (t *memoryTx) InsertReceivingTransaction(_ context.Context, rt ReceivingTransaction) error {
	if t.r.failReceivingInsert != nil {
		return t.r.failReceivingInsert
	}
	t.r.receivings = append(t.r.receivings, rt)
	return nil
}

type memoryIdempotency struct {
	keys    map[string]string
	deleted []string
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type recordingNotifier struct{ items []notify.Notification }

func (r *recordingNotifier) Emit(_ context.Context, n notify.Notification) {
	r.items = append(r.items, n)
}

func (r *recordingNotifier) types() []notify.Type {
	out := make([]notify.Type, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Type)
	}
	return out
}

type recordingJobs struct {
	documents []string
	snapshots int
}

func (j *recordingJobs) EnqueuePODocument(_ context.Context, poID string) error {
	j.documents = append(j.documents, poID)
	return nil
}

func (j *recordingJobs) EnqueueInventorySnapshot(context.Context) error {
	j.snapshots++
	return nil
}

type recordingFeed struct{ changes []changefeed.Change }

func (f *recordingFeed) Publish(_ context.Context, c changefeed.Change) error {
	f.changes = append(f.changes, c)
	return nil
}

type countingMetrics struct {
	receiving map[string]int
	approvals map[string]int
}

func (m *countingMetrics) ReceivingProcessed(outcome string) { m.receiving[outcome]++ }
func (m *countingMetrics) ApprovalDecided(decision string)   { m.approvals[decision]++ }

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	inv      *invtest.Store
	idem     *memoryIdempotency
	notifier *recordingNotifier
	jobs     *recordingJobs
	feed     *recordingFeed
	metrics  *countingMetrics
	clock    *time.Time
}

func newFixture(roles ...shared.Role) *fixture {
	store := invtest.New()
	store.AddVariant(inventory.Variant{ID: "v-rice-5kg", ParentProductID: "p-rice", Name: "Rice", Size: "5 kg", Unit: "sack",
		Quantity: 20, SafetyStock: 4, RestockLevel: 10, UnitPrice: decimal.RequireFromString("5")})
	store.AddVariant(inventory.Variant{ID: "v-oil-1l", ParentProductID: "p-oil", Name: "Cooking Oil", Size: "1 L", Unit: "bottle",
		Quantity: 3, RestockLevel: 8, UnitPrice: decimal.RequireFromString("2.40")})

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	f := &fixture{
		repo:     newMemoryRepo(store),
		inv:      store,
		idem:     &memoryIdempotency{keys: map[string]string{}},
		notifier: &recordingNotifier{},
		jobs:     &recordingJobs{},
		feed:     &recordingFeed{},
		metrics:  &countingMetrics{receiving: map[string]int{}, approvals: map[string]int{}},
		clock:    &now,
	}
	invSvc := inventory.NewService(store, inventory.Options{Now: f.now})
	f.svc = NewService(Deps{
		Repo:        f.repo,
		Inventory:   invSvc,
		Resolver:    invSvc.Resolver(),
		Idempotency: f.idem,
		Jobs:        f.jobs,
		Feed:        f.feed,
		Notifier:    f.notifier,
		Metrics:     f.metrics,
		Now:         f.now,
	}, Config{ApprovalRoles: roles})
	return f
}

func (f *fixture) now() time.Time { return *f.clock }

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func riceOrder(qty int64) CreatePOInput {
	return CreatePOInput{
		SupplierID:   "sup-1",
		SupplierName: "Sumber Makmur",
		DeliveryDate: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		PaymentTerms: "NET 30",
		Items: []LineInput{{
			ProductID:   "p-rice",
			ProductName: "Rice",
			VariantID:   "v-rice-5kg",
			Size:        "5 kg",
			Unit:        "sack",
			Quantity:    qty,
			UnitPrice:   decimal.RequireFromString("5"),
		}},
	}
}

// approvedOrder creates, submits and approves a single-line rice order.
func (f *fixture) approvedOrder(qty int64) PurchaseOrder {
	ctx := context.Background()
	po, err := f.svc.CreatePO(ctx, manager, riceOrder(qty))
	if err != nil {
		panic(err)
	}
	po, approval, err := f.svc.SubmitPO(ctx, manager, po.ID)
	if err != nil {
		panic(err)
	}
	res, err := f.svc.ProcessApprovalStep(ctx, admin, po.ID, approval.ID, ActionApprove, "")
	if err != nil {
		panic(err)
	}
	return res.Order
}
