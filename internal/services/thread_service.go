package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

const (
	profileListLimit = 50
	searchListLimit  = 50
)

// ThreadService handles thread and comment lifecycles
type ThreadService struct {
	threads   repositories.ThreadRepository
	users     repositories.UserRepository
	follows   repositories.FollowRepository
	embedder  Embedder
	interest  *InterestService
	notifier  Notifier
	summaries *summarizer
	rates     LearningRates
	now       func() time.Time
}

// NewThreadService creates a new ThreadService
func NewThreadService(
	threads repositories.ThreadRepository,
	users repositories.UserRepository,
	follows repositories.FollowRepository,
	embedder Embedder,
	interest *InterestService,
	notifier Notifier,
	rates LearningRates,
) *ThreadService {
	if embedder == nil {
		embedder = NoopEmbedder{}
	}
	return &ThreadService{
		threads:   threads,
		users:     users,
		follows:   follows,
		embedder:  embedder,
		interest:  interest,
		notifier:  notifier,
		summaries: &summarizer{users: users, threads: threads},
		rates:     rates,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create posts a thread, or a comment when req.ParentID is set. Comments are
// always PUBLIC and notify the parent's author.
func (s *ThreadService) Create(ctx context.Context, authorID uint, req models.CreateThreadRequest) (*models.ThreadSummary, error) {
	if _, err := s.users.GetUserByID(ctx, authorID); err != nil {
		return nil, err
	}

	var parent *models.Thread
	visibility := req.Visibility
	if req.ParentID != "" {
		var err error
		if parent, err = s.visibleThread(ctx, authorID, req.ParentID); err != nil {
			return nil, err
		}
		visibility = models.VisibilityPublic
	}

	now := s.now()
	thread := &models.Thread{
		AuthorID:   authorID,
		Content:    req.Content,
		Visibility: visibility,
		Media:      req.Media,
		Embedding:  embedOrEmpty(ctx, s.embedder, req.Content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if parent != nil {
		thread.ParentID = &parent.ID
	}
	if err := s.threads.CreateThread(ctx, thread); err != nil {
		return nil, err
	}

	if parent != nil && parent.AuthorID != authorID {
		subject := thread.ID.Hex()
		err := s.notifier.Notify(ctx, NotificationEvent{
			ActorID:    authorID,
			ReceiverID: parent.AuthorID,
			Kind:       models.NotificationComment,
			SubjectID:  &subject,
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("thread_id", subject).Msg("comment notification failed")
		}
	}

	return s.summaries.one(ctx, authorID, thread)
}

// Comment is Create with a parent
func (s *ThreadService) Comment(ctx context.Context, authorID uint, parentID string, req models.CreateCommentRequest) (*models.ThreadSummary, error) {
	return s.Create(ctx, authorID, models.CreateThreadRequest{
		Content:    req.Content,
		Visibility: models.VisibilityPublic,
		ParentID:   parentID,
		Media:      req.Media,
	})
}

// Edit rewrites a thread of actorID. A content change recomputes the
// embedding.
func (s *ThreadService) Edit(ctx context.Context, actorID uint, id string, req models.UpdateThreadRequest) (*models.ThreadSummary, error) {
	thread, err := s.ownedThread(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	if req.Content != thread.Content {
		thread.Content = req.Content
		thread.Embedding = embedOrEmpty(ctx, s.embedder, req.Content)
	}
	thread.Media = req.Media
	if thread.Media == nil {
		thread.Media = []models.Media{}
	}
	if thread.ParentID == nil {
		thread.Visibility = req.Visibility
	}
	thread.UpdatedAt = s.now()

	if err := s.threads.UpdateThread(ctx, thread); err != nil {
		return nil, err
	}
	return s.summaries.one(ctx, actorID, thread)
}

// Delete removes a thread of actorID. Its comments stay, detached.
func (s *ThreadService) Delete(ctx context.Context, actorID uint, id string) error {
	thread, err := s.ownedThread(ctx, actorID, id)
	if err != nil {
		return err
	}
	if err := s.threads.DeleteThread(ctx, thread.ID); err != nil {
		return err
	}
	if _, err := s.threads.ReparentChildren(ctx, thread.ID); err != nil {
		return fmt.Errorf("detach comments of %s: %w", id, err)
	}
	return nil
}

// Detail returns a thread with its parent and comments. Viewing someone
// else's thread counts as a weak interest signal.
func (s *ThreadService) Detail(ctx context.Context, viewerID uint, id string) (*models.ThreadDetail, error) {
	thread, err := s.visibleThread(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}

	if thread.AuthorID != viewerID {
		if _, err := s.interest.Apply(ctx, viewerID, thread.Topic(), s.rates.View); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Uint("user_id", viewerID).Msg("view interest update failed")
		}
	}

	main, err := s.summaries.one(ctx, viewerID, thread)
	if err != nil {
		return nil, err
	}
	detail := &models.ThreadDetail{Main: *main}

	if thread.ParentID != nil {
		parent, err := s.visibleThread(ctx, viewerID, thread.ParentID.Hex())
		switch {
		case err == nil:
			if detail.Parent, err = s.summaries.one(ctx, viewerID, parent); err != nil {
				return nil, err
			}
		case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrForbidden):
			// parent deleted or hidden from this viewer
		default:
			return nil, err
		}
	}

	comments, err := s.threads.ListComments(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	if detail.Comments, err = s.summaries.many(ctx, viewerID, comments); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListUserThreads lists what viewerID may see of a profile: the user's own
// threads and the threads they reshared.
func (s *ThreadService) ListUserThreads(ctx context.Context, viewerID uint, username string) (*models.UserThreads, error) {
	owner, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	followingIDs, err := s.follows.GetFollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	following := make(map[uint]bool, len(followingIDs))
	for _, id := range followingIDs {
		following[id] = true
	}
	visible := func(threads []models.Thread) []models.Thread {
		out := threads[:0]
		for _, t := range threads {
			if t.VisibleTo(viewerID, following[t.AuthorID]) {
				out = append(out, t)
			}
		}
		return out
	}

	own, err := s.threads.ListByAuthor(ctx, owner.ID, profileListLimit)
	if err != nil {
		return nil, err
	}
	reshared, err := s.threads.ListResharedBy(ctx, owner.ID, profileListLimit)
	if err != nil {
		return nil, err
	}

	result := &models.UserThreads{}
	if result.Threads, err = s.summaries.many(ctx, viewerID, visible(own)); err != nil {
		return nil, err
	}
	if result.Reshared, err = s.summaries.many(ctx, viewerID, visible(reshared)); err != nil {
		return nil, err
	}
	return result, nil
}

// Search finds threads containing query (case-insensitive, literal) among the
// PUBLIC threads and the FOLLOWERS_ONLY threads of authors viewerID follows.
func (s *ThreadService) Search(ctx context.Context, viewerID uint, query string) ([]models.ThreadSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required: %w", apperrors.ErrInvalidArgument)
	}
	followingIDs, err := s.follows.GetFollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	threads, err := s.threads.Search(ctx, repositories.SearchQuery{
		Text:      query,
		ViewerID:  viewerID,
		FriendIDs: followingIDs,
		Limit:     searchListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}
	return s.summaries.many(ctx, viewerID, threads)
}

// BackfillEmbeddings computes embeddings for up to limit threads that have
// none and returns how many were stored.
func (s *ThreadService) BackfillEmbeddings(ctx context.Context, limit int64) (int, error) {
	threads, err := s.threads.ListWithoutEmbedding(ctx, limit)
	if err != nil {
		return 0, err
	}
	updated := 0
	for i := range threads {
		t := &threads[i]
		embedding, err := s.embedder.Embed(ctx, t.Content)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("thread_id", t.ID.Hex()).Msg("backfill embedding failed")
			continue
		}
		if embedding.IsEmpty() {
			continue
		}
		if err := s.threads.SetEmbedding(ctx, t.ID, embedding); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *ThreadService) visibleThread(ctx context.Context, viewerID uint, id string) (*models.Thread, error) {
	thread, err := s.threads.GetThreadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := canView(ctx, s.follows, viewerID, thread)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, apperrors.ErrForbidden)
	}
	return thread, nil
}

func (s *ThreadService) ownedThread(ctx context.Context, actorID uint, id string) (*models.Thread, error) {
	thread, err := s.threads.GetThreadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if thread.AuthorID != actorID {
		return nil, fmt.Errorf("thread %s: %w", id, apperrors.ErrForbidden)
	}
	return thread, nil
}
