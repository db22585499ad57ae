package inventory

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-po/internal/platform/cache"
)

// Snapshot summarises stock levels across all variants.
type Snapshot struct {
	TotalVariants    int64     `json:"totalVariants"`
	TotalUnits       int64     `json:"totalUnits"`
	TotalSafetyStock int64     `json:"totalSafetyStock"`
	LowStockCount    int64     `json:"lowStockCount"`
	BelowSafetyCount int64     `json:"belowSafetyCount"`
	OpenRestockCount int64     `json:"openRestockCount"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// SnapshotService computes and caches the inventory snapshot.
type SnapshotService struct {
	repo  RepositoryPort
	cache *cache.JSONCache
	group singleflight.Group
	now   func() time.Time
}

// NewSnapshotService constructs the service. cache may be nil.
func NewSnapshotService(repo RepositoryPort, c *cache.JSONCache) *SnapshotService {
	return &SnapshotService{repo: repo, cache: c, now: func() time.Time { return time.Now().UTC() }}
}

// Refresh recomputes the snapshot and replaces the cached copy. Concurrent
// refreshes share one computation.
func (s *SnapshotService) Refresh(ctx context.Context) (Snapshot, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		snap, err := s.repo.SnapshotTotals(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		snap.GeneratedAt = s.now()
		if err := s.cache.Bump(ctx); err != nil {
			return Snapshot{}, err
		}
		key, err := s.cache.BuildKey(ctx, "current")
		if err != nil {
			return Snapshot{}, err
		}
		if err := s.cache.Put(ctx, key, snap); err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Current returns the cached snapshot, computing it on a miss.
func (s *SnapshotService) Current(ctx context.Context) (Snapshot, error) {
	key, err := s.cache.BuildKey(ctx, "current")
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	hit, err := s.cache.Get(ctx, key, &snap)
	if err != nil {
		return Snapshot{}, err
	}
	if hit {
		return snap, nil
	}
	return s.Refresh(ctx)
}
