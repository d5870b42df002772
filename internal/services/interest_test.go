package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/vector"
)

func TestNextInterest(t *testing.T) {
	tests := []struct {
		name      string
		current   vector.Vector
		embedding vector.Vector
		rate      float64
		want      vector.Vector
		changed   bool
	}{
		{"cold start adopts embedding", nil, vector.Vector{1, 0, 0}, 0.1, vector.Vector{1, 0, 0}, true},
		{"cold start ignores negative signal", nil, vector.Vector{1, 0, 0}, -0.1, nil, false},
		{"empty embedding is a no-op", vector.Vector{1, 2}, vector.Vector{}, 0.1, vector.Vector{1, 2}, false},
		{"zero rate is a no-op", vector.Vector{1, 2}, vector.Vector{3, 4}, 0, vector.Vector{1, 2}, false},
		{"positive step", vector.Vector{1, 0}, vector.Vector{0, 1}, 0.5, vector.Vector{1, 0.5}, true},
		{"negative step", vector.Vector{1, 1}, vector.Vector{1, 0}, -0.25, vector.Vector{0.75, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := nextInterest(tt.current, tt.embedding, tt.rate)
			assert.Equal(t, tt.changed, changed)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}
}

func TestNextInterest_ColdStartCopiesEmbedding(t *testing.T) {
	embedding := vector.Vector{1, 2, 3}
	got, _ := nextInterest(nil, embedding, 0.1)
	got[0] = 42
	assert.Equal(t, 1.0, embedding[0])
}

func TestInterestService_Apply(t *testing.T) {
	users := newFakeUsers()
	u := users.add("alice")
	svc := NewInterestService(users)
	ctx := context.Background()

	got, err := svc.Apply(ctx, u.ID, vector.Vector{1, 0, 0}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, vector.Vector{1, 0, 0}, got)
	assert.Equal(t, vector.Vector{1, 0, 0}, users.interest(u.ID))

	got, err = svc.Apply(ctx, u.ID, vector.Vector{0, 1, 0}, 0.2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.2, 0}, got, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 0.2, 0}, users.interest(u.ID), 1e-9)
}

func TestInterestService_ApplyUnknownUser(t *testing.T) {
	svc := NewInterestService(newFakeUsers())
	_, err := svc.Apply(context.Background(), 99, vector.Vector{1}, 0.1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInterestService_ConcurrentUpdatesAreNotLost(t *testing.T) {
	users := newFakeUsers()
	u := users.add("alice")
	require.NoError(t, users.UpdateInterest(context.Background(), u.ID, vector.Vector{1, 0}))
	svc := NewInterestService(users)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), u.ID, vector.Vector{1, 0}, 0.1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.InDeltaSlice(t, []float64{3, 0}, users.interest(u.ID), 1e-9)
}
