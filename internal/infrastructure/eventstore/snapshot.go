package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/ledger/internal/infrastructure/event"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is the captured state of a stream at a version
type Snapshot struct {
	Stream    event.Stream
	Version   int64
	State     []byte
	CreatedAt time.Time
}

// SnapshotStore keeps the latest snapshot per stream
type SnapshotStore interface {
	// Latest returns the newest snapshot, or nil when there is none
	Latest(ctx context.Context, stream event.Stream) (*Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// SnapshotStrategy decides when a snapshot is taken
type SnapshotStrategy interface {
	ShouldSnapshot(previousVersion, currentVersion int64) bool
}

// DefaultSnapshotInterval is the number of events between snapshots
const DefaultSnapshotInterval = 100

// IntervalSnapshotStrategy snapshots every time the version crosses a multiple of Interval
type IntervalSnapshotStrategy struct {
	Interval int64
}

// NewIntervalSnapshotStrategy returns a strategy; a non-positive interval uses the default
func NewIntervalSnapshotStrategy(interval int64) IntervalSnapshotStrategy {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	return IntervalSnapshotStrategy{Interval: interval}
}

// ShouldSnapshot reports whether a save from previousVersion to currentVersion crossed a boundary
func (s IntervalSnapshotStrategy) ShouldSnapshot(previousVersion, currentVersion int64) bool {
	if s.Interval <= 0 || currentVersion <= previousVersion {
		return false
	}
	return currentVersion/s.Interval > previousVersion/s.Interval
}

// GormSnapshotStore persists snapshots in ledger_snapshots
type GormSnapshotStore struct {
	db *gorm.DB
}

// NewGormSnapshotStore creates a new snapshot store
func NewGormSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{db: db}
}

// Latest returns the stored snapshot for the stream
func (s *GormSnapshotStore) Latest(ctx context.Context, stream event.Stream) (*Snapshot, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("stream_id = ? AND tenant_id = ?", stream.ID(), stream.TenantID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &Snapshot{
		Stream:    stream,
		Version:   rec.Version,
		State:     rec.State,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Save replaces the stream's snapshot
func (s *GormSnapshotStore) Save(ctx context.Context, snapshot Snapshot) error {
	rec := SnapshotRecord{
		StreamID:      snapshot.Stream.ID(),
		TenantID:      snapshot.Stream.TenantID,
		AggregateType: snapshot.Stream.AggregateType,
		AggregateID:   snapshot.Stream.AggregateID,
		Version:       snapshot.Version,
		State:         snapshot.State,
		CreatedAt:     snapshot.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "state", "created_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// MemorySnapshotStore keeps snapshots in process memory
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewMemorySnapshotStore creates an empty snapshot store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

// Latest returns the stored snapshot for the stream
func (s *MemorySnapshotStore) Latest(_ context.Context, stream event.Stream) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[stream.ID()]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// Save replaces the stream's snapshot
func (s *MemorySnapshotStore) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Stream.ID()] = snapshot
	return nil
}
