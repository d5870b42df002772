package services

import (
	"context"
	"fmt"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/metrics"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// GraphService manages follow edges
type GraphService struct {
	users    repositories.UserRepository
	follows  repositories.FollowRepository
	notifier Notifier
}

// NewGraphService creates a new GraphService
func NewGraphService(users repositories.UserRepository, follows repositories.FollowRepository, notifier Notifier) *GraphService {
	return &GraphService{users: users, follows: follows, notifier: notifier}
}

// ToggleFollow follows targetID, or unfollows it when actorID already does.
// The edge and both counters change in one transaction; a new follow then
// notifies the target.
func (s *GraphService) ToggleFollow(ctx context.Context, actorID, targetID uint) (*models.GraphSummary, error) {
	if actorID == targetID {
		return nil, fmt.Errorf("cannot follow yourself: %w", apperrors.ErrInvalidArgument)
	}
	if _, err := s.users.GetUserByID(ctx, actorID); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return nil, err
	}

	following, err := s.follows.Toggle(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}

	if following {
		metrics.FollowsToggled.WithLabelValues("followed").Inc()
		err := s.notifier.Notify(ctx, NotificationEvent{
			ActorID:    actorID,
			ReceiverID: targetID,
			Kind:       models.NotificationFollow,
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Uint("target_id", targetID).Msg("follow notification failed")
		}
	} else {
		metrics.FollowsToggled.WithLabelValues("unfollowed").Inc()
	}

	return s.summary(ctx, actorID, targetID, following)
}

func (s *GraphService) summary(ctx context.Context, actorID, targetID uint, following bool) (*models.GraphSummary, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	list, err := s.Following(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return &models.GraphSummary{
		Following:      following,
		FollowersCount: target.FollowersCount,
		FollowingCount: actor.FollowingCount,
		FollowingList:  list,
	}, nil
}

// RemoveFollower drops followerID from the followers of userID
func (s *GraphService) RemoveFollower(ctx context.Context, userID, followerID uint) error {
	removed, err := s.follows.Remove(ctx, followerID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("user %d does not follow %d: %w", followerID, userID, apperrors.ErrNotFound)
	}
	metrics.FollowsToggled.WithLabelValues("unfollowed").Inc()
	return nil
}

// Followers lists who follows userID
func (s *GraphService) Followers(ctx context.Context, userID uint) ([]models.UserCompact, error) {
	users, err := s.follows.GetFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	return compactAll(users), nil
}

// Following lists whom userID follows
func (s *GraphService) Following(ctx context.Context, userID uint) ([]models.UserCompact, error) {
	users, err := s.follows.GetFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	return compactAll(users), nil
}

func compactAll(users []models.User) []models.UserCompact {
	out := make([]models.UserCompact, len(users))
	for i := range users {
		out[i] = users[i].ToCompact()
	}
	return out
}
