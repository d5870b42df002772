package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/metrics"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// ReactionService toggles likes and reposts
type ReactionService struct {
	threads   repositories.ThreadRepository
	users     repositories.UserRepository
	follows   repositories.FollowRepository
	interest  *InterestService
	notifier  Notifier
	summaries *summarizer
	rates     LearningRates
}

// NewReactionService creates a new ReactionService
func NewReactionService(
	threads repositories.ThreadRepository,
	users repositories.UserRepository,
	follows repositories.FollowRepository,
	interest *InterestService,
	notifier Notifier,
	rates LearningRates,
) *ReactionService {
	return &ReactionService{
		threads:   threads,
		users:     users,
		follows:   follows,
		interest:  interest,
		notifier:  notifier,
		summaries: &summarizer{users: users, threads: threads},
		rates:     rates,
	}
}

// Toggle flips actorID's reaction of the given kind on a thread.
//
// The thread mutation is persisted first, then the actor's interest profile.
// If the profile update fails the thread mutation is reverted, so a retry
// starts from the same state. Adding a reaction to someone else's thread finally notifies its author; a
// failed notification is logged and does not undo the reaction.
func (s *ReactionService) Toggle(ctx context.Context, actorID uint, threadID string, kind models.ReactionKind) (*models.ThreadSummary, error) {
	if kind != models.ReactionLike && kind != models.ReactionRepost {
		return nil, fmt.Errorf("reaction %q: %w", kind, apperrors.ErrInvalidArgument)
	}
	if _, err := s.users.GetUserByID(ctx, actorID); err != nil {
		return nil, err
	}
	current, err := s.threads.GetThreadByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	visible, err := canView(ctx, s.follows, actorID, current)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("thread %s: %w", threadID, apperrors.ErrForbidden)
	}

	thread, added, err := s.threads.ToggleReactor(ctx, current.ID, kind, actorID)
	if err != nil {
		return nil, err
	}

	if _, err := s.interest.Apply(ctx, actorID, thread.Topic(), s.rateFor(kind, added)); err != nil {
		if _, _, undoErr := s.threads.ToggleReactor(ctx, current.ID, kind, actorID); undoErr != nil {
			logging.Ctx(ctx).Error().Err(undoErr).Str("thread_id", threadID).Uint("user_id", actorID).Msg("reaction rollback failed")
		}
		return nil, fmt.Errorf("update interest profile: %w", err)
	}

	state := "removed"
	if added {
		state = "added"
	}
	metrics.ReactionsToggled.WithLabelValues(strings.ToLower(string(kind)), state).Inc()

	if added && thread.AuthorID != actorID {
		subject := thread.ID.Hex()
		err := s.notifier.Notify(ctx, NotificationEvent{
			ActorID:    actorID,
			ReceiverID: thread.AuthorID,
			Kind:       models.NotificationKindFor(kind),
			SubjectID:  &subject,
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("thread_id", subject).Msg("reaction notification failed")
		}
	}

	return s.summaries.one(ctx, actorID, thread)
}

func (s *ReactionService) rateFor(kind models.ReactionKind, added bool) float64 {
	switch {
	case kind == models.ReactionRepost && added:
		return s.rates.Repost
	case kind == models.ReactionRepost:
		return s.rates.Unrepost
	case added:
		return s.rates.Like
	default:
		return s.rates.Unlike
	}
}
