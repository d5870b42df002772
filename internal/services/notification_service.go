package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/metrics"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// DefaultFollowCooldown is the window in which a repeated follow refreshes
// the previous FOLLOW notification instead of opening a new one.
const DefaultFollowCooldown = 2 * time.Hour

const snippetLength = 100

// NotificationEvent is one social interaction addressed to ReceiverID.
// SubjectID is the thread hex id: the reacted-to thread for LIKE and REPOST,
// the new comment for COMMENT, nil for FOLLOW.
type NotificationEvent struct {
	ActorID    uint
	ReceiverID uint
	Kind       models.NotificationKind
	SubjectID  *string
}

// Notifier accepts notification events
type Notifier interface {
	Notify(ctx context.Context, ev NotificationEvent) error
}

// Pusher delivers a payload to the live sessions of a user
type Pusher interface {
	Push(ctx context.Context, userID uint, payload interface{}) error
}

// NotificationService aggregates social events into inbox rows and pushes
// every change to the receiver's live sessions.
type NotificationService struct {
	repo           repositories.NotificationRepository
	users          repositories.UserRepository
	threads        repositories.ThreadRepository
	pusher         Pusher
	locks          *keyedMutex
	followCooldown time.Duration
	now            func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	repo repositories.NotificationRepository,
	users repositories.UserRepository,
	threads repositories.ThreadRepository,
	pusher Pusher,
	followCooldown time.Duration,
) *NotificationService {
	if followCooldown <= 0 {
		followCooldown = DefaultFollowCooldown
	}
	return &NotificationService{
		repo:           repo,
		users:          users,
		threads:        threads,
		pusher:         pusher,
		locks:          newKeyedMutex(),
		followCooldown: followCooldown,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Notify records ev, either as a new row or merged into the open row for the
// same key:
//
//	LIKE, REPOST  (receiver, subject thread, kind), whatever its read state
//	FOLLOW        (receiver, actor), only if updated within the cool-down
//	COMMENT       never merged; every comment is its own subject
//
// Self-interactions are dropped. Merges for one key are serialized.
func (s *NotificationService) Notify(ctx context.Context, ev NotificationEvent) error {
	if ev.ActorID == ev.ReceiverID {
		metrics.Notifications.WithLabelValues(string(ev.Kind), "suppressed").Inc()
		return nil
	}

	now := s.now()
	query := repositories.AggregateQuery{ReceiverID: ev.ReceiverID, Kind: ev.Kind}
	switch ev.Kind {
	case models.NotificationLike, models.NotificationRepost, models.NotificationComment:
		if ev.SubjectID == nil {
			return fmt.Errorf("%s notification without subject: %w", ev.Kind, apperrors.ErrInvalidArgument)
		}
		query.SubjectID = ev.SubjectID
	case models.NotificationFollow:
		ev.SubjectID = nil
		query.ActorID = ev.ActorID
		query.UpdatedAfter = now.Add(-s.followCooldown)
	default:
		return fmt.Errorf("notification kind %q: %w", ev.Kind, apperrors.ErrInvalidArgument)
	}

	unlock := s.locks.Lock(aggregateKey(query))
	var (
		row     *models.Notification
		outcome string
	)
	err := s.repo.Transaction(ctx, func(tx repositories.NotificationRepository) error {
		if ev.Kind != models.NotificationComment {
			existing, err := tx.FindForUpdate(ctx, query)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := merge(existing, ev.ActorID, now); err != nil {
					return err
				}
				row, outcome = existing, "merged"
				return tx.Save(ctx, existing)
			}
		}

		fresh := &models.Notification{
			ReceiverID: ev.ReceiverID,
			SubjectID:  ev.SubjectID,
			Kind:       ev.Kind,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := merge(fresh, ev.ActorID, now); err != nil {
			return err
		}
		row, outcome = fresh, "created"
		return tx.Create(ctx, fresh)
	})
	unlock()
	if err != nil {
		return err
	}

	metrics.Notifications.WithLabelValues(string(ev.Kind), outcome).Inc()
	s.deliver(ctx, row)
	return nil
}

func aggregateKey(q repositories.AggregateQuery) string {
	subject := ""
	if q.SubjectID != nil {
		subject = *q.SubjectID
	}
	return fmt.Sprintf("%d|%s|%s|%d", q.ReceiverID, q.Kind, subject, q.ActorID)
}

// merge folds actorID into n: latest actor first, unread again, window
// anchor moved to now and the label pluralized once several actors share it.
func merge(n *models.Notification, actorID uint, now time.Time) error {
	if _, err := n.AddActor(actorID); err != nil {
		return err
	}
	actors, err := n.Actors()
	if err != nil {
		return err
	}
	n.IsRead = false
	n.UpdatedAt = now
	n.Content = contentLabel(n.Kind, len(actors))
	return nil
}

func contentLabel(kind models.NotificationKind, actors int) string {
	label := "notification." + strings.ToLower(string(kind))
	if actors > 1 {
		label += "s"
	}
	return label
}

// deliver pushes the hydrated row to the receiver. Failures are only logged:
// the persisted row is the durable copy.
func (s *NotificationService) deliver(ctx context.Context, n *models.Notification) {
	summaries, err := s.hydrate(ctx, []models.Notification{*n})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint("notification_id", n.ID).Msg("notification hydrate failed")
		return
	}
	event := models.LiveEvent{Type: models.LiveEventNotification, Data: summaries[0]}
	if err := s.pusher.Push(ctx, n.ReceiverID, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Uint("receiver_id", n.ReceiverID).Msg("notification push failed")
	}
}

// hydrate resolves actor display data and subject snippets in bulk
func (s *NotificationService) hydrate(ctx context.Context, rows []models.Notification) ([]models.NotificationSummary, error) {
	var actorIDs []uint
	seen := make(map[uint]bool)
	actorSets := make([][]uint, len(rows))
	for i := range rows {
		actorSets[i] = actorsOf(ctx, &rows[i])
		for _, id := range actorSets[i] {
			if !seen[id] {
				seen[id] = true
				actorIDs = append(actorIDs, id)
			}
		}
	}
	users, err := s.users.GetUsersByIDs(ctx, actorIDs)
	if err != nil {
		return nil, err
	}

	subjects := make(map[string]*models.ThreadSnippet)
	out := make([]models.NotificationSummary, 0, len(rows))
	for i := range rows {
		n := &rows[i]
		actors := actorSets[i]
		summary := models.NotificationSummary{
			ID:         n.ID,
			Kind:       n.Kind,
			Content:    n.Content,
			IsRead:     n.IsRead,
			Actor:      compactOf(users, n.ActorID),
			Actors:     make([]models.UserCompact, 0, len(actors)),
			ActorCount: len(actors),
			CreatedAt:  n.CreatedAt,
			UpdatedAt:  n.UpdatedAt,
		}
		// newest actor first
		for j := len(actors) - 1; j >= 0; j-- {
			summary.Actors = append(summary.Actors, compactOf(users, actors[j]))
		}
		if n.SubjectID != nil {
			summary.Subject = s.subject(ctx, subjects, *n.SubjectID)
		}
		out = append(out, summary)
	}
	return out, nil
}

// actorsOf falls back to the latest actor when the stored set is unreadable
func actorsOf(ctx context.Context, n *models.Notification) []uint {
	actors, err := n.Actors()
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Uint("notification_id", n.ID).Msg("corrupt notification actor set")
		return []uint{n.ActorID}
	}
	return actors
}

func (s *NotificationService) subject(ctx context.Context, cache map[string]*models.ThreadSnippet, id string) *models.ThreadSnippet {
	if snippet, ok := cache[id]; ok {
		return snippet
	}
	var snippet *models.ThreadSnippet
	// a deleted subject leaves the notification without a snippet
	if t, err := s.threads.GetThreadByID(ctx, id); err == nil {
		snippet = &models.ThreadSnippet{ID: id, Content: truncateRunes(t.Content, snippetLength)}
	}
	cache[id] = snippet
	return snippet
}

func compactOf(users map[uint]models.User, id uint) models.UserCompact {
	if u, ok := users[id]; ok {
		return u.ToCompact()
	}
	return models.UserCompact{ID: id}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// List returns one page of the inbox, most recently updated first
func (s *NotificationService) List(ctx context.Context, receiverID uint, page, limit int) ([]models.NotificationSummary, int64, error) {
	rows, total, err := s.repo.GetByReceiverID(ctx, receiverID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	summaries, err := s.hydrate(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// Grouped buckets the latest notifications by how long ago they changed
func (s *NotificationService) Grouped(ctx context.Context, receiverID uint) (*models.GroupedNotifications, error) {
	summaries, _, err := s.List(ctx, receiverID, 1, 100)
	if err != nil {
		return nil, err
	}
	now := s.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	grouped := &models.GroupedNotifications{
		Today:     []models.NotificationSummary{},
		Yesterday: []models.NotificationSummary{},
		ThisWeek:  []models.NotificationSummary{},
		Older:     []models.NotificationSummary{},
	}
	for _, n := range summaries {
		at := n.UpdatedAt.In(now.Location())
		switch {
		case !at.Before(todayStart):
			grouped.Today = append(grouped.Today, n)
		case !at.Before(yesterdayStart):
			grouped.Yesterday = append(grouped.Yesterday, n)
		case !at.Before(weekStart):
			grouped.ThisWeek = append(grouped.ThisWeek, n)
		default:
			grouped.Older = append(grouped.Older, n)
		}
	}
	return grouped, nil
}

// MarkRead marks one notification of receiverID as read
func (s *NotificationService) MarkRead(ctx context.Context, receiverID, id uint) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.ReceiverID != receiverID {
		return fmt.Errorf("notification %d: %w", id, apperrors.ErrForbidden)
	}
	_, err = s.repo.MarkAsRead(ctx, receiverID, []uint{id})
	return err
}

// MarkManyRead marks a batch as read. If any id belongs to another receiver
// nothing is updated. Unknown ids are ignored.
func (s *NotificationService) MarkManyRead(ctx context.Context, receiverID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var updated int64
	err := s.repo.Transaction(ctx, func(tx repositories.NotificationRepository) error {
		rows, err := tx.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, n := range rows {
			if n.ReceiverID != receiverID {
				return fmt.Errorf("notification %d: %w", n.ID, apperrors.ErrForbidden)
			}
		}
		updated, err = tx.MarkAsRead(ctx, receiverID, ids)
		return err
	})
	return updated, err
}

// MarkAllRead marks the whole inbox of receiverID as read
func (s *NotificationService) MarkAllRead(ctx context.Context, receiverID uint) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, receiverID)
}

// UnreadCount counts unread rows of receiverID
func (s *NotificationService) UnreadCount(ctx context.Context, receiverID uint) (int64, error) {
	return s.repo.GetUnreadCount(ctx, receiverID)
}
