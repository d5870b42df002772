package services

import (
	"context"
	"fmt"

	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/internal/vector"
)

// LearningRates are the signed step sizes applied to an interest profile per
// implicit signal.
type LearningRates struct {
	Like     float64
	Unlike   float64
	Repost   float64
	Unrepost float64
	View     float64
}

// DefaultLearningRates returns the stock rates.
func DefaultLearningRates() LearningRates {
	return LearningRates{
		Like:     0.1,
		Unlike:   -0.1,
		Repost:   0.2,
		Unrepost: -0.2,
		View:     0.05,
	}
}

// InterestService maintains per-user interest profiles
type InterestService struct {
	users repositories.UserRepository
	locks *keyedMutex
}

// NewInterestService creates a new InterestService
func NewInterestService(users repositories.UserRepository) *InterestService {
	return &InterestService{users: users, locks: newKeyedMutex()}
}

// Apply nudges the profile of userID toward (rate > 0) or away from
// (rate < 0) embedding and returns the stored profile. Updates for the same
// user are serialized.
//
// A user without a profile adopts a copy of the embedding on a positive
// signal and is left alone on a negative one. An empty embedding changes
// nothing.
func (s *InterestService) Apply(ctx context.Context, userID uint, embedding vector.Vector, rate float64) (vector.Vector, error) {
	unlock := s.locks.Lock(fmt.Sprintf("interest:%d", userID))
	defer unlock()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := user.Interest()

	next, changed := nextInterest(current, embedding, rate)
	if !changed {
		return current, nil
	}
	if err := s.users.UpdateInterest(ctx, userID, next); err != nil {
		return nil, err
	}
	return next, nil
}

func nextInterest(current, embedding vector.Vector, rate float64) (vector.Vector, bool) {
	if embedding.IsEmpty() || rate == 0 {
		return current, false
	}
	if current.IsEmpty() {
		if rate < 0 {
			return current, false
		}
		return embedding.Clone(), true
	}
	return vector.UpdateInterest(current, embedding, rate), true
}
