package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/event"
)

type claimKey struct {
	tenant string
	scope  string
	value  string
}

// MemoryEventStore implements Store in process memory. It keeps the same
// version, claim and tenant rules as GormEventStore.
type MemoryEventStore struct {
	mu        sync.RWMutex
	log       []event.Envelope
	streams   map[string][]int // stream id -> indexes into log
	claims    map[claimKey]string
	notifiers []event.Notifier

	// appendHook runs inside Append before the version check; tests use it to race writers
	appendHook func(stream event.Stream)
}

// NewMemoryEventStore creates an empty store
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams: make(map[string][]int),
		claims:  make(map[claimKey]string),
	}
}

// AddNotifier registers a callback run after every successful append
func (s *MemoryEventStore) AddNotifier(n event.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Append writes events if the stream is at expectedVersion
func (s *MemoryEventStore) Append(ctx context.Context, stream event.Stream, expectedVersion int64, events []shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := validateAppend(stream, expectedVersion, events); err != nil {
		return err
	}
	if s.appendHook != nil {
		s.appendHook(stream)
	}

	s.mu.Lock()
	id := stream.ID()
	current := int64(len(s.streams[id]))
	if current != expectedVersion {
		s.mu.Unlock()
		return conflictError(stream, expectedVersion, current)
	}

	claims := claimsOf(events)
	pending := make(map[claimKey]bool, len(claims))
	for _, c := range claims {
		key := claimKey{stream.TenantID.String(), c.Scope, c.Value}
		if _, taken := s.claims[key]; taken || pending[key] {
			s.mu.Unlock()
			return claimTakenError(stream.TenantID.String(), c)
		}
		pending[key] = true
	}
	for key := range pending {
		s.claims[key] = id
	}

	now := time.Now().UTC()
	for _, e := range events {
		s.log = append(s.log, event.Envelope{
			Position:   int64(len(s.log) + 1),
			StreamID:   id,
			Event:      e,
			RecordedAt: now,
		})
		s.streams[id] = append(s.streams[id], len(s.log)-1)
	}
	notifiers := append([]event.Notifier(nil), s.notifiers...)
	s.mu.Unlock()

	for _, n := range notifiers {
		n.Notify()
	}
	return nil
}

// Load returns a stream's full history
func (s *MemoryEventStore) Load(ctx context.Context, stream event.Stream) ([]shared.DomainEvent, error) {
	return s.LoadFrom(ctx, stream, 0)
}

// LoadFrom returns the events after afterVersion
func (s *MemoryEventStore) LoadFrom(ctx context.Context, stream event.Stream, afterVersion int64) ([]shared.DomainEvent, error) {
	envs, err := s.loadStream(stream, afterVersion)
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
func (s *MemoryEventStore) LoadStreamEnvelopes(ctx context.Context, stream event.Stream) ([]event.Envelope, error) {
	return s.loadStream(stream, 0)
}

func (s *MemoryEventStore) loadStream(stream event.Stream, afterVersion int64) ([]event.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var envs []event.Envelope
	for _, idx := range s.streams[stream.ID()] {
		env := s.log[idx]
		if env.Event.TenantID() != stream.TenantID {
			return nil, shared.ErrTenantMismatch.WithDetail("stream_id", stream.ID())
		}
		if env.Event.Sequence() > afterVersion {
			envs = append(envs, env)
		}
	}
	return envs, nil
}

// LoadAll returns up to limit events after the given global position
func (s *MemoryEventStore) LoadAll(ctx context.Context, afterPosition int64, limit int) ([]event.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if afterPosition >= int64(len(s.log)) {
		return nil, nil
	}
	if afterPosition < 0 {
		afterPosition = 0
	}
	end := int64(len(s.log))
	if limit > 0 && afterPosition+int64(limit) < end {
		end = afterPosition + int64(limit)
	}
	out := make([]event.Envelope, end-afterPosition)
	copy(out, s.log[afterPosition:end])
	return out, nil
}

// StreamVersion returns the stream's current version
func (s *MemoryEventStore) StreamVersion(ctx context.Context, stream event.Stream) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.streams[stream.ID()])), nil
}

// Len returns the number of stored events
func (s *MemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

var _ Store = (*MemoryEventStore)(nil)
