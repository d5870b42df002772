package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/models"
)

// AggregateQuery selects the open notification an incoming event may merge
// into. Zero-valued ActorID and UpdatedAfter are not constrained.
type AggregateQuery struct {
	ReceiverID   uint
	Kind         models.NotificationKind
	SubjectID    *string
	ActorID      uint
	UpdatedAfter time.Time
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	// Transaction runs fn against a repository bound to one database
	// transaction.
	Transaction(ctx context.Context, fn func(tx NotificationRepository) error) error
	// FindForUpdate returns the newest row matching q, locked until the
	// surrounding transaction ends, or nil when none matches.
	FindForUpdate(ctx context.Context, q AggregateQuery) (*models.Notification, error)
	Create(ctx context.Context, notification *models.Notification) error
	Save(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Notification, error)
	GetByReceiverID(ctx context.Context, receiverID uint, page, limit int) ([]models.Notification, int64, error)
	GetUnreadCount(ctx context.Context, receiverID uint) (int64, error)
	MarkAsRead(ctx context.Context, receiverID uint, ids []uint) (int64, error)
	MarkAllAsRead(ctx context.Context, receiverID uint) (int64, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) Transaction(ctx context.Context, fn func(tx NotificationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&postgresNotificationRepository{db: tx})
	})
}

func (r *postgresNotificationRepository) FindForUpdate(ctx context.Context, q AggregateQuery) (*models.Notification, error) {
	db := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("receiver_id = ? AND kind = ?", q.ReceiverID, q.Kind)
	if q.SubjectID != nil {
		db = db.Where("subject_id = ?", *q.SubjectID)
	} else {
		db = db.Where("subject_id IS NULL")
	}
	if q.ActorID != 0 {
		db = db.Where("actor_id = ?", q.ActorID)
	}
	if !q.UpdatedAfter.IsZero() {
		db = db.Where("updated_at > ?", q.UpdatedAfter)
	}

	var n models.Notification
	err := db.Order("updated_at DESC").Order("id DESC").First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *postgresNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// Save persists a merged row. UpdatedAt is written as given so the caller's
// clock stays the merge-window anchor.
func (r *postgresNotificationRepository) Save(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", n.ID).Updates(map[string]interface{}{
		"actor_id":   n.ActorID,
		"actor_ids":  n.ActorIDs,
		"content":    n.Content,
		"is_read":    n.IsRead,
		"updated_at": n.UpdatedAt,
	}).Error
}

func (r *postgresNotificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("notification %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &n, nil
}

func (r *postgresNotificationRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Notification, error) {
	var out []models.Notification
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *postgresNotificationRepository) GetByReceiverID(ctx context.Context, receiverID uint, page, limit int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Notification{}).Where("receiver_id = ?", receiverID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := db.Where("receiver_id = ?", receiverID).
		Order("updated_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&notifications).Error

	return notifications, total, err
}

func (r *postgresNotificationRepository) GetUnreadCount(ctx context.Context, receiverID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&count).Error
	return count, err
}

// MarkAsRead flags the given rows of receiverID as read. Reading does not
// move updated_at.
func (r *postgresNotificationRepository) MarkAsRead(ctx context.Context, receiverID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("receiver_id = ? AND id IN ?", receiverID, ids).
		UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *postgresNotificationRepository) MarkAllAsRead(ctx context.Context, receiverID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}
