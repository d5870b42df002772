package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anonto42/threadline/backend/internal/models"
)

// FollowRepository defines the interface for follow data operations. Every
// mutation keeps the denormalized counters on users in the same transaction
// as the edge itself.
type FollowRepository interface {
	Toggle(ctx context.Context, followerID, followingID uint) (bool, error)
	Remove(ctx context.Context, followerID, followingID uint) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error)
	GetFollowers(ctx context.Context, userID uint) ([]models.User, error)
	GetFollowing(ctx context.Context, userID uint) ([]models.User, error)
	GetFollowingIDs(ctx context.Context, userID uint) ([]uint, error)
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

// Toggle flips the follow edge and reports whether followerID follows
// followingID afterwards.
func (r *PostgresFollowRepository) Toggle(ctx context.Context, followerID, followingID uint) (bool, error) {
	var following bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := unfollow(tx, followerID, followingID)
		if err != nil || removed {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Follow{FollowerID: followerID, FollowingID: followingID})
		if res.Error != nil {
			return res.Error
		}
		following = true
		if res.RowsAffected == 0 {
			// a concurrent toggle inserted the same edge and already counted it
			return nil
		}
		return adjustCounts(tx, followerID, followingID, 1)
	})
	if err != nil {
		return false, err
	}
	return following, nil
}

// Remove deletes the edge if present and reports whether it existed.
func (r *PostgresFollowRepository) Remove(ctx context.Context, followerID, followingID uint) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = unfollow(tx, followerID, followingID)
		return err
	})
	return removed, err
}

func unfollow(tx *gorm.DB, followerID, followingID uint) (bool, error) {
	res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.Follow{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, adjustCounts(tx, followerID, followingID, -1)
}

// adjustCounts moves following_count of the follower and followers_count of
// the followed user by delta. Decrements never go below zero.
func adjustCounts(tx *gorm.DB, followerID, followingID uint, delta int) error {
	if err := tx.Model(&models.User{}).Where("id = ?", followerID).
		UpdateColumn("following_count", counterExpr("following_count", delta)).Error; err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", followingID).
		UpdateColumn("followers_count", counterExpr("followers_count", delta)).Error
}

func counterExpr(column string, delta int) clause.Expr {
	if delta >= 0 {
		return gorm.Expr(column+" + ?", delta)
	}
	return gorm.Expr("CASE WHEN "+column+" >= ? THEN "+column+" - ? ELSE 0 END", -delta, -delta)
}

func (r *PostgresFollowRepository) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetFollowers lists the users following userID, most recent edge first
func (r *PostgresFollowRepository) GetFollowers(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.following_id = ?", userID).
		Order("follows.id DESC").
		Find(&users).Error
	return users, err
}

// GetFollowing lists the users userID follows, most recent edge first
func (r *PostgresFollowRepository) GetFollowing(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON follows.following_id = users.id").
		Where("follows.follower_id = ?", userID).
		Order("follows.id DESC").
		Find(&users).Error
	return users, err
}

func (r *PostgresFollowRepository) GetFollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
