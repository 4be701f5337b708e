package eventstore

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord is one row of the event log
type EventRecord struct {
	Position      int64     `gorm:"primaryKey;autoIncrement"`
	StreamID      string    `gorm:"size:200;not null;uniqueIndex:uq_ledger_events_stream_version,priority:1"`
	Version       int64     `gorm:"not null;uniqueIndex:uq_ledger_events_stream_version,priority:2"`
	EventID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null"`
	AggregateType string    `gorm:"size:50;not null;index"`
	EventType     string    `gorm:"size:100;not null"`
	SchemaVersion int       `gorm:"not null;default:1"`
	Payload       []byte    `gorm:"not null"`
	OccurredAt    time.Time `gorm:"not null"`
	RecordedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EventRecord) TableName() string {
	return "ledger_events"
}

// UniqueClaimRecord reserves a value within a tenant for one stream
type UniqueClaimRecord struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Scope     string    `gorm:"size:50;primaryKey"`
	Value     string    `gorm:"size:200;primaryKey"`
	StreamID  string    `gorm:"size:200;not null"`
	ClaimedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UniqueClaimRecord) TableName() string {
	return "ledger_unique_claims"
}

// SnapshotRecord holds the latest captured state of a stream
type SnapshotRecord struct {
	StreamID      string    `gorm:"size:200;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	AggregateType string    `gorm:"size:50;not null"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null"`
	Version       int64     `gorm:"not null"`
	State         []byte    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SnapshotRecord) TableName() string {
	return "ledger_snapshots"
}

// CheckpointRecord stores how far a consumer has read the log
type CheckpointRecord struct {
	Name      string    `gorm:"size:100;primaryKey"`
	Position  int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CheckpointRecord) TableName() string {
	return "projection_checkpoints"
}

// Models returns every model owned by the event store, for AutoMigrate
func Models() []any {
	return []any{
		&EventRecord{},
		&UniqueClaimRecord{},
		&SnapshotRecord{},
		&CheckpointRecord{},
	}
}
