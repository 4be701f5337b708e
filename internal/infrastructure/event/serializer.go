package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/erp/ledger/internal/domain/shared"
)

// EventUpgrader transforms an event payload from one schema version to the next.
type EventUpgrader interface {
	SourceVersion() int
	TargetVersion() int
	Upgrade(payload []byte) ([]byte, error)
}

// EventSerializer handles JSON serialization/deserialization of domain events.
// Stored payloads written under an older schema version are upgraded through
// the registered upgrader chain before they are decoded.
type EventSerializer struct {
	mu        sync.RWMutex
	registry  map[string]reflect.Type          // eventType -> Go type
	current   map[string]int                   // eventType -> latest schema version
	upgraders map[string]map[int]EventUpgrader // eventType -> source version -> upgrader
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry:  make(map[string]reflect.Type),
		current:   make(map[string]int),
		upgraders: make(map[string]map[int]EventUpgrader),
	}
}

// Register registers an event type for deserialization at schema version 1
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
	if _, ok := s.current[eventType]; !ok {
		s.current[eventType] = 1
	}
}

// RegisterUpgrader adds one step to an event type's upgrade chain and moves
// its current schema version to the upgrader's target.
func (s *EventSerializer) RegisterUpgrader(eventType string, u EventUpgrader) error {
	if u.TargetVersion() != u.SourceVersion()+1 {
		return fmt.Errorf("upgrader must be sequential: got %d -> %d", u.SourceVersion(), u.TargetVersion())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry[eventType]; !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	if s.upgraders[eventType] == nil {
		s.upgraders[eventType] = make(map[int]EventUpgrader)
	}
	s.upgraders[eventType][u.SourceVersion()] = u
	if u.TargetVersion() > s.current[eventType] {
		s.current[eventType] = u.TargetVersion()
	}
	return nil
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize deserializes JSON bytes to a domain event, upgrading old payloads first
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	current := s.current[eventType]
	chain := s.upgraders[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	payload := data
	for v := ExtractVersion(data); v < current; v++ {
		u, ok := chain[v]
		if !ok {
			return nil, fmt.Errorf("missing upgrader for version %d -> %d for event type %s", v, v+1, eventType)
		}
		var err error
		if payload, err = u.Upgrade(payload); err != nil {
			return nil, fmt.Errorf("failed to upgrade %s from v%d to v%d: %w", eventType, v, v+1, err)
		}
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(payload, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// CurrentVersion returns the latest schema version for an event type
func (s *EventSerializer) CurrentVersion(eventType string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.current[eventType]
	return v, ok
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ExtractVersion reads schema_version from raw event JSON.
// Returns 1 when the field is missing or the payload cannot be parsed.
func ExtractVersion(payload []byte) int {
	var info struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(payload, &info); err != nil || info.SchemaVersion == 0 {
		return 1
	}
	return info.SchemaVersion
}

// FuncUpgrader upgrades a payload by transforming its decoded JSON object
type FuncUpgrader struct {
	source    int
	transform func(data map[string]any) error
}

// NewFuncUpgrader creates an upgrader from source to source+1
func NewFuncUpgrader(source int, transform func(data map[string]any) error) *FuncUpgrader {
	return &FuncUpgrader{source: source, transform: transform}
}

// SourceVersion returns the version this upgrader reads
func (u *FuncUpgrader) SourceVersion() int { return u.source }

// TargetVersion returns the version this upgrader produces
func (u *FuncUpgrader) TargetVersion() int { return u.source + 1 }

// Upgrade applies the transform and stamps the target schema version
func (u *FuncUpgrader) Upgrade(payload []byte) ([]byte, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if err := u.transform(data); err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}
	data["schema_version"] = u.TargetVersion()
	return json.Marshal(data)
}

var _ EventUpgrader = (*FuncUpgrader)(nil)
