package services

import (
	"context"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/threadline/backend/internal/metrics"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/internal/vector"
)

const (
	DefaultFeedPageSize = 5
	MaxFeedPageSize     = 50
)

// Scorer reorders feed candidates before the page is cut. Candidates arrive
// newest first; Overfetch is how many candidates per page slot it wants.
type Scorer interface {
	Overfetch() int
	Rank(interest vector.Vector, friends map[uint]bool, candidates []models.Thread) []models.Thread
}

// RecencyScorer keeps the newest-first order
type RecencyScorer struct{}

func (RecencyScorer) Overfetch() int { return 1 }

func (RecencyScorer) Rank(_ vector.Vector, _ map[uint]bool, candidates []models.Thread) []models.Thread {
	return candidates
}

// SimilarityScorer orders candidates by cosine similarity between the
// viewer's interest profile and the thread embedding. Ties go to followed
// authors, then to newer threads.
type SimilarityScorer struct{}

func (SimilarityScorer) Overfetch() int { return 3 }

func (SimilarityScorer) Rank(interest vector.Vector, friends map[uint]bool, candidates []models.Thread) []models.Thread {
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = vector.Cosine(interest, candidates[i].Topic())
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		fi, fj := friends[candidates[i].AuthorID], friends[candidates[j].AuthorID]
		if fi != fj {
			return fi
		}
		// candidates are already newest first
		return i < j
	})
	out := make([]models.Thread, len(candidates))
	for k, i := range idx {
		out[k] = candidates[i]
	}
	return out
}

// NewScorer resolves a ranking name; anything but "similarity" is recency.
func NewScorer(name string) Scorer {
	if strings.EqualFold(name, "similarity") {
		return SimilarityScorer{}
	}
	return RecencyScorer{}
}

// FeedService builds personalized feed pages
type FeedService struct {
	threads         repositories.ThreadRepository
	users           repositories.UserRepository
	follows         repositories.FollowRepository
	scorer          Scorer
	summaries       *summarizer
	defaultPageSize int
}

// NewFeedService creates a new FeedService
func NewFeedService(
	threads repositories.ThreadRepository,
	users repositories.UserRepository,
	follows repositories.FollowRepository,
	scorer Scorer,
	defaultPageSize int,
) *FeedService {
	if scorer == nil {
		scorer = RecencyScorer{}
	}
	if defaultPageSize <= 0 || defaultPageSize > MaxFeedPageSize {
		defaultPageSize = DefaultFeedPageSize
	}
	return &FeedService{
		threads:         threads,
		users:           users,
		follows:         follows,
		scorer:          scorer,
		summaries:       &summarizer{users: users, threads: threads},
		defaultPageSize: defaultPageSize,
	}
}

// GetFeed returns the next page for viewerID. excludedIDs is the cursor:
// every id returned so far. An empty page means the feed is exhausted.
func (s *FeedService) GetFeed(ctx context.Context, viewerID uint, excludedIDs []string, pageSize int) ([]models.ThreadSummary, error) {
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if pageSize > MaxFeedPageSize {
		pageSize = MaxFeedPageSize
	}

	excluded := make([]primitive.ObjectID, 0, len(excludedIDs))
	for _, id := range excludedIDs {
		oid, err := repositories.ParseThreadID(id)
		if err != nil {
			return nil, err
		}
		excluded = append(excluded, oid)
	}

	viewer, err := s.users.GetUserByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	friendIDs, err := s.follows.GetFollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.threads.QueryFeed(ctx, repositories.FeedQuery{
		ViewerID:    viewerID,
		FriendIDs:   friendIDs,
		ExcludedIDs: excluded,
		Limit:       int64(pageSize * s.scorer.Overfetch()),
	})
	if err != nil {
		return nil, err
	}

	friends := make(map[uint]bool, len(friendIDs))
	for _, id := range friendIDs {
		friends[id] = true
	}
	ranked := s.scorer.Rank(viewer.Interest(), friends, candidates)
	if len(ranked) > pageSize {
		ranked = ranked[:pageSize]
	}
	metrics.FeedPageSize.Observe(float64(len(ranked)))

	return s.summaries.many(ctx, viewerID, ranked)
}
