package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEventStore implements Store on a relational database
type GormEventStore struct {
	db         *gorm.DB
	serializer *event.EventSerializer
	logger     *zap.Logger
	metrics    *telemetry.LedgerMetrics

	mu        sync.RWMutex
	notifiers []event.Notifier
}

// GormEventStoreOption configures a GormEventStore
type GormEventStoreOption func(*GormEventStore)

// WithStoreMetrics sets the metrics sink
func WithStoreMetrics(metrics *telemetry.LedgerMetrics) GormEventStoreOption {
	return func(s *GormEventStore) {
		s.metrics = metrics
	}
}

// NewGormEventStore creates a new event store
func NewGormEventStore(db *gorm.DB, serializer *event.EventSerializer, logger *zap.Logger, opts ...GormEventStoreOption) *GormEventStore {
	s := &GormEventStore{
		db:         db,
		serializer: serializer,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNotifier registers a callback run after every successful append
func (s *GormEventStore) AddNotifier(n event.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Append writes events in one transaction: version check, unique claims, insert
func (s *GormEventStore) Append(ctx context.Context, stream event.Stream, expectedVersion int64, events []shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := validateAppend(stream, expectedVersion, events); err != nil {
		return err
	}

	records, err := s.toRecords(stream, events)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int64
		if err := tx.Model(&EventRecord{}).
			Where("stream_id = ?", stream.ID()).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error; err != nil {
			return fmt.Errorf("failed to read stream version: %w", err)
		}
		if current != expectedVersion {
			return conflictError(stream, expectedVersion, current)
		}

		if err := s.claim(tx, stream, claimsOf(events)); err != nil {
			return err
		}

		if err := tx.Create(&records).Error; err != nil {
			if isUniqueViolation(err) {
				// a concurrent writer took the same version between our read and insert
				return conflictError(stream, expectedVersion, expectedVersion+1)
			}
			return fmt.Errorf("failed to insert events: %w", err)
		}
		return nil
	})
	if err != nil {
		if shared.IsConflict(err) {
			s.metrics.RecordConflict(ctx, stream.AggregateType)
		}
		return err
	}

	s.metrics.RecordAppend(ctx, stream.AggregateType, len(events))
	s.logger.Debug("events appended",
		zap.String("stream_id", stream.ID()),
		zap.Int64("from_version", expectedVersion+1),
		zap.Int("count", len(events)),
	)
	s.notify()
	return nil
}

// claim reserves each value for the stream; a value that is already claimed fails the append
func (s *GormEventStore) claim(tx *gorm.DB, stream event.Stream, claims []shared.UniqueClaim) error {
	now := time.Now().UTC()
	for _, c := range claims {
		rec := UniqueClaimRecord{
			TenantID:  stream.TenantID,
			Scope:     c.Scope,
			Value:     c.Value,
			StreamID:  stream.ID(),
			ClaimedAt: now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return fmt.Errorf("failed to claim %s %q: %w", c.Scope, c.Value, res.Error)
		}
		if res.RowsAffected == 0 {
			return claimTakenError(stream.TenantID.String(), c)
		}
	}
	return nil
}

func (s *GormEventStore) notify() {
	s.mu.RLock()
	notifiers := append([]event.Notifier(nil), s.notifiers...)
	s.mu.RUnlock()
	for _, n := range notifiers {
		n.Notify()
	}
}

func (s *GormEventStore) toRecords(stream event.Stream, events []shared.DomainEvent) ([]EventRecord, error) {
	now := time.Now().UTC()
	records := make([]EventRecord, 0, len(events))
	for _, e := range events {
		payload, err := s.serializer.Serialize(e)
		if err != nil {
			return nil, err
		}
		records = append(records, EventRecord{
			StreamID:      stream.ID(),
			Version:       e.Sequence(),
			EventID:       e.EventID(),
			TenantID:      e.TenantID(),
			AggregateID:   e.AggregateID(),
			AggregateType: e.AggregateType(),
			EventType:     e.EventType(),
			SchemaVersion: e.SchemaVersion(),
			Payload:       payload,
			OccurredAt:    e.OccurredAt(),
			RecordedAt:    now,
		})
	}
	return records, nil
}

// Load returns a stream's full history in sequence order
func (s *GormEventStore) Load(ctx context.Context, stream event.Stream) ([]shared.DomainEvent, error) {
	return s.LoadFrom(ctx, stream, 0)
}

// LoadFrom returns the events after afterVersion
func (s *GormEventStore) LoadFrom(ctx context.Context, stream event.Stream, afterVersion int64) ([]shared.DomainEvent, error) {
	envs, err := s.loadStream(ctx, stream, afterVersion)
	if err != nil {
		return nil, err
	}
	events := make([]shared.DomainEvent, len(envs))
	for i, env := range envs {
		events[i] = env.Event
	}
	return events, nil
}

// LoadStreamEnvelopes returns one stream's history with global positions
func (s *GormEventStore) LoadStreamEnvelopes(ctx context.Context, stream event.Stream) ([]event.Envelope, error) {
	return s.loadStream(ctx, stream, 0)
}

func (s *GormEventStore) loadStream(ctx context.Context, stream event.Stream, afterVersion int64) ([]event.Envelope, error) {
	var records []EventRecord
	if err := s.db.WithContext(ctx).
		Where("stream_id = ? AND version > ?", stream.ID(), afterVersion).
		Order("version ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load stream %s: %w", stream.ID(), err)
	}

	envs := make([]event.Envelope, 0, len(records))
	for i := range records {
		if records[i].TenantID != stream.TenantID {
			return nil, shared.ErrTenantMismatch.WithDetail("stream_id", stream.ID())
		}
		env, err := s.toEnvelope(&records[i])
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// LoadAll returns up to limit events after the given global position
func (s *GormEventStore) LoadAll(ctx context.Context, afterPosition int64, limit int) ([]event.Envelope, error) {
	var records []EventRecord
	if err := s.db.WithContext(ctx).
		Where("position > ?", afterPosition).
		Order("position ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load events after %d: %w", afterPosition, err)
	}

	envs := make([]event.Envelope, 0, len(records))
	for i := range records {
		env, err := s.toEnvelope(&records[i])
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// StreamVersion returns the stream's current version
func (s *GormEventStore) StreamVersion(ctx context.Context, stream event.Stream) (int64, error) {
	var version int64
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).
		Where("stream_id = ?", stream.ID()).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("failed to read stream version: %w", err)
	}
	return version, nil
}

// HeadPosition returns the highest global position, 0 for an empty log
func (s *GormEventStore) HeadPosition(ctx context.Context) (int64, error) {
	var head int64
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).
		Select("COALESCE(MAX(position), 0)").
		Scan(&head).Error; err != nil {
		return 0, fmt.Errorf("failed to read head position: %w", err)
	}
	return head, nil
}

func (s *GormEventStore) toEnvelope(rec *EventRecord) (event.Envelope, error) {
	e, err := s.serializer.Deserialize(rec.EventType, rec.Payload)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("failed to decode event %s at position %d: %w", rec.EventID, rec.Position, err)
	}
	if e.EventID() != rec.EventID {
		return event.Envelope{}, errors.New("stored payload does not match event id " + rec.EventID.String())
	}
	return event.Envelope{
		Position:   rec.Position,
		StreamID:   rec.StreamID,
		Event:      e,
		RecordedAt: rec.RecordedAt,
	}, nil
}

var _ Store = (*GormEventStore)(nil)
