package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
)

// IdentityStore is the durable connection-to-hackathon mapping shared by all
// gateway and worker instances.
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) (*IdentityStore, error) {
	if err := db.AutoMigrate(&models.ConnectionIdentity{}); err != nil {
		return nil, err
	}
	return &IdentityStore{db: db}, nil
}

// Upsert records the connection's hackathon membership. Re-joining with the
// same connection id is a no-op update, which makes join idempotent.
func (s *IdentityStore) Upsert(ctx context.Context, connectionID, hackathonID string) error {
	row := models.ConnectionIdentity{
		ConnectionID: connectionID,
		HackathonID:  hackathonID,
		JoinedAt:     time.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "connection_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"hackathon_id", "joined_at"}),
		}).Create(&row).Error
}

// Clear removes the mapping for a disconnected connection.
func (s *IdentityStore) Clear(ctx context.Context, connectionID string) error {
	return s.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Delete(&models.ConnectionIdentity{}).Error
}

// Resolve returns the ids of every live connection for the hackathon.
func (s *IdentityStore) Resolve(ctx context.Context, hackathonID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.ConnectionIdentity{}).
		Where("hackathon_id = ?", hackathonID).
		Pluck("connection_id", &ids).Error
	return ids, err
}
