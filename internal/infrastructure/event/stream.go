package event

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Stream identifies one aggregate's event stream within a tenant
type Stream struct {
	TenantID      uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
}

// StreamOf returns the stream an aggregate writes to
func StreamOf(agg shared.AggregateRoot) Stream {
	return Stream{
		TenantID:      agg.TenantID(),
		AggregateType: agg.AggregateType(),
		AggregateID:   agg.AggregateID(),
	}
}

// StreamOfEvent returns the stream an event belongs to
func StreamOfEvent(e shared.DomainEvent) Stream {
	return Stream{
		TenantID:      e.TenantID(),
		AggregateType: e.AggregateType(),
		AggregateID:   e.AggregateID(),
	}
}

// ID renders the stream id as tenant::Type-uuid
func (s Stream) ID() string {
	return s.TenantID.String() + "::" + s.AggregateType + "-" + s.AggregateID.String()
}

func (s Stream) String() string {
	return s.ID()
}

// ParseStream parses a stream id produced by Stream.ID
func ParseStream(id string) (Stream, error) {
	tenantPart, rest, ok := strings.Cut(id, "::")
	if !ok {
		return Stream{}, fmt.Errorf("invalid stream id %q: missing tenant separator", id)
	}
	// uuid text form is fixed width, the aggregate type is whatever precedes it
	if len(rest) < 38 || rest[len(rest)-37] != '-' {
		return Stream{}, fmt.Errorf("invalid stream id %q", id)
	}
	tenantID, err := uuid.Parse(tenantPart)
	if err != nil {
		return Stream{}, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	aggID, err := uuid.Parse(rest[len(rest)-36:])
	if err != nil {
		return Stream{}, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	return Stream{
		TenantID:      tenantID,
		AggregateType: rest[:len(rest)-37],
		AggregateID:   aggID,
	}, nil
}

// Envelope is a committed event with its global log position
type Envelope struct {
	Position   int64
	StreamID   string
	Event      shared.DomainEvent
	RecordedAt time.Time
}

// EventSource reads committed events in global order
type EventSource interface {
	// LoadAll returns up to limit events with a position greater than afterPosition
	LoadAll(ctx context.Context, afterPosition int64, limit int) ([]Envelope, error)
	// LoadStreamEnvelopes returns one stream's full history with positions
	LoadStreamEnvelopes(ctx context.Context, stream Stream) ([]Envelope, error)
}

// Notifier is told when new events have been committed
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func()

// Notify calls f
func (f NotifierFunc) Notify() { f() }

// Checkpoint is the last position a consumer has fully dispatched
type Checkpoint struct {
	Name      string
	Position  int64
	UpdatedAt time.Time
}

// CheckpointStore persists consumer checkpoints
type CheckpointStore interface {
	// Load returns the stored position, 0 when none is stored
	Load(ctx context.Context, name string) (int64, error)
	Save(ctx context.Context, name string, position int64) error
	Delete(ctx context.Context, name string) error
}

// MemoryCheckpointStore keeps checkpoints in process memory
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewMemoryCheckpointStore creates an empty checkpoint store
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: make(map[string]Checkpoint)}
}

// Load returns the stored position
func (s *MemoryCheckpointStore) Load(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[name].Position, nil
}

// Save stores the position
func (s *MemoryCheckpointStore) Save(_ context.Context, name string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[name] = Checkpoint{Name: name, Position: position, UpdatedAt: time.Now().UTC()}
	return nil
}

// Delete forgets the checkpoint
func (s *MemoryCheckpointStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, name)
	return nil
}

type positionKey struct{}

// WithPosition attaches the global log position of the event being dispatched
func WithPosition(ctx context.Context, position int64) context.Context {
	return context.WithValue(ctx, positionKey{}, position)
}

// PositionFromContext returns the position set by WithPosition, 0 if unset
func PositionFromContext(ctx context.Context) int64 {
	if p, ok := ctx.Value(positionKey{}).(int64); ok {
		return p
	}
	return 0
}
