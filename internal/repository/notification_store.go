package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/karthiknadar1204/Multi-Tenant-Notification-Engine/internal/models"
)

// NotificationStore persists notifications and their delivery accounting.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) (*NotificationStore, error) {
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		return nil, err
	}
	return &NotificationStore{db: db}, nil
}

// Insert persists a new notification and fills in its database-assigned ID.
func (s *NotificationStore) Insert(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

// IncrementDelivered applies a single atomic increment to the delivered
// count. Scoping by hackathon guards against cross-tenant id collisions, and
// the expression form avoids read-modify-write races across worker instances.
func (s *NotificationStore) IncrementDelivered(ctx context.Context, id uint, hackathonID string, n int64) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND hackathon_id = ?", id, hackathonID).
		UpdateColumn("delivered_count", gorm.Expr("delivered_count + ?", n)).Error
}

// Recent returns up to limit notifications for the hackathon, newest first.
func (s *NotificationStore) Recent(ctx context.Context, hackathonID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := s.db.WithContext(ctx).
		Where("hackathon_id = ?", hackathonID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
