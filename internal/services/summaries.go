package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
)

// summarizer hydrates threads for a viewer: author display data, comment
// counts and the viewer's own reactions.
type summarizer struct {
	users   repositories.UserRepository
	threads repositories.ThreadRepository
}

func (s *summarizer) many(ctx context.Context, viewerID uint, threads []models.Thread) ([]models.ThreadSummary, error) {
	out := make([]models.ThreadSummary, 0, len(threads))
	if len(threads) == 0 {
		return out, nil
	}

	authorIDs := make([]uint, 0, len(threads))
	threadIDs := make([]primitive.ObjectID, 0, len(threads))
	seen := make(map[uint]bool, len(threads))
	for _, t := range threads {
		threadIDs = append(threadIDs, t.ID)
		if !seen[t.AuthorID] {
			seen[t.AuthorID] = true
			authorIDs = append(authorIDs, t.AuthorID)
		}
	}

	authors, err := s.users.GetUsersByIDs(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	comments, err := s.threads.CountComments(ctx, threadIDs)
	if err != nil {
		return nil, err
	}

	for i := range threads {
		t := &threads[i]
		author, ok := authors[t.AuthorID]
		compact := models.UserCompact{ID: t.AuthorID}
		if ok {
			compact = author.ToCompact()
		}
		out = append(out, summarize(t, viewerID, compact, comments[t.ID]))
	}
	return out, nil
}

func (s *summarizer) one(ctx context.Context, viewerID uint, thread *models.Thread) (*models.ThreadSummary, error) {
	list, err := s.many(ctx, viewerID, []models.Thread{*thread})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}

func summarize(t *models.Thread, viewerID uint, author models.UserCompact, comments int64) models.ThreadSummary {
	var parentID *string
	if t.ParentID != nil {
		hex := t.ParentID.Hex()
		parentID = &hex
	}
	media := t.Media
	if media == nil {
		media = []models.Media{}
	}
	return models.ThreadSummary{
		ID:          t.ID.Hex(),
		ParentID:    parentID,
		Content:     t.Content,
		Visibility:  t.Visibility,
		Media:       media,
		ReactionNum: t.ReactionNum,
		SharedNum:   t.SharedNum,
		CommentNum:  comments,
		IsLiked:     t.HasReactor(models.ReactionLike, viewerID),
		IsReshared:  t.HasReactor(models.ReactionRepost, viewerID),
		Author:      author,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// canView applies thread visibility for viewerID, consulting the follow
// graph only for FOLLOWERS_ONLY threads of other authors.
func canView(ctx context.Context, follows repositories.FollowRepository, viewerID uint, t *models.Thread) (bool, error) {
	if t.AuthorID == viewerID || t.Visibility == models.VisibilityPublic {
		return true, nil
	}
	if t.Visibility != models.VisibilityFollowersOnly {
		return false, nil
	}
	following, err := follows.IsFollowing(ctx, viewerID, t.AuthorID)
	if err != nil {
		return false, err
	}
	return t.VisibleTo(viewerID, following), nil
}
