package changefeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Ref identifies one row of a polled snapshot.
type Ref struct {
	ID        string
	UpdatedAt time.Time
}

// SnapshotFunc returns the current ordered rows of a topic.
type SnapshotFunc func(ctx context.Context) ([]Ref, error)

// Poller is the fallback when no pub/sub backend is available: it re-runs a
// snapshot query on an interval and emits a change whenever the ordered
// id/updated-at fingerprint differs from the previous run.
type Poller struct {
	topic    string
	snapshot SnapshotFunc
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewPoller constructs a poller for topic.
func NewPoller(topic string, snapshot SnapshotFunc, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{topic: topic, snapshot: snapshot, interval: interval, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Fingerprint hashes the ordered refs.
func Fingerprint(refs []Ref) string {
	h := sha256.New()
	for _, r := range refs {
		h.Write([]byte(r.ID))
		h.Write([]byte{0})
		h.Write([]byte(r.UpdatedAt.UTC().Format(time.RFC3339Nano)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Publish is a no-op: the poller observes the store directly.
func (p *Poller) Publish(context.Context, Change) error { return nil }

// Subscribe starts a polling loop for topic. The first snapshot is the
// baseline and emits nothing.
func (p *Poller) Subscribe(ctx context.Context, topic string, fn Handler) (Unsubscribe, error) {
	if topic != p.topic {
		return func() {}, nil
	}
	refs, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	last := Fingerprint(refs)
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refs, err := p.snapshot(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Warn("changefeed: poll failed", slog.String("topic", p.topic), slog.Any("error", err))
					}
					continue
				}
				fp := Fingerprint(refs)
				if fp == last {
					continue
				}
				last = fp
				change := Change{Topic: p.topic, Kind: "snapshot", At: p.now()}
				if len(refs) > 0 {
					change.ID = refs[0].ID
				}
				fn(change)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}
