package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/infrastructure/event"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCheckpointStore persists consumer checkpoints in projection_checkpoints
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore creates a new checkpoint store
func NewGormCheckpointStore(db *gorm.DB) *GormCheckpointStore {
	return &GormCheckpointStore{db: db}
}

// Load returns the stored position, 0 when none is stored
func (s *GormCheckpointStore) Load(ctx context.Context, name string) (int64, error) {
	var rec CheckpointRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load checkpoint %s: %w", name, err)
	}
	return rec.Position, nil
}

// Save upserts the position
func (s *GormCheckpointStore) Save(ctx context.Context, name string, position int64) error {
	rec := CheckpointRecord{Name: name, Position: position, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", name, err)
	}
	return nil
}

// Delete removes the checkpoint
func (s *GormCheckpointStore) Delete(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Where("name = ?", name).Delete(&CheckpointRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", name, err)
	}
	return nil
}

var _ event.CheckpointStore = (*GormCheckpointStore)(nil)
