package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/repo"
	"github.com/geocoder89/hotchoc/internal/repo/memory"
	"github.com/geocoder89/hotchoc/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store {
		return memory.New()
	})
}

func TestStore_FailedPersistLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	fail := false

	s := memory.NewFromSnapshot(memory.Snapshot{}, func(memory.Snapshot) error {
		if fail {
			return errors.New("disk full")
		}
		return nil
	})

	kept, err := s.CreateRating(ctx, repotest.NewRating("u1", "kept"))
	require.NoError(t, err)

	fail = true

	_, err = s.CreateUser(ctx, repotest.NewUser("a@example.com"))
	require.Error(t, err)
	_, err = s.GetUserByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = s.CreateRating(ctx, repotest.NewRating("u1", "lost"))
	require.Error(t, err)

	ok, err := s.DeleteRating(ctx, kept.ID)
	require.Error(t, err)
	assert.False(t, ok)

	all, err := s.ListRatings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.ID, all[0].ID)

	fail = false
	_, err = s.CreateUser(ctx, repotest.NewUser("a@example.com"))
	require.NoError(t, err)
}

func TestStore_PersistSeesNextState(t *testing.T) {
	ctx := context.Background()
	var last memory.Snapshot

	s := memory.NewFromSnapshot(memory.Snapshot{}, func(snap memory.Snapshot) error {
		last = snap
		return nil
	})

	_, err := s.CreateUser(ctx, repotest.NewUser("a@example.com"))
	require.NoError(t, err)
	r, err := s.CreateRating(ctx, repotest.NewRating("u1", "x"))
	require.NoError(t, err)

	require.Len(t, last.Users, 1)
	require.Len(t, last.Ratings, 1)

	_, err = s.DeleteRating(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, last.Ratings)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	r, err := s.CreateRating(ctx, repotest.NewRating("u1", "x"))
	require.NoError(t, err)
	r.Ratings["temperature"] = 0

	got, err := s.GetRatingByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Ratings["temperature"])
}

func TestNewFromSnapshot_FirstEmailWins(t *testing.T) {
	ctx := context.Background()
	first := repotest.NewUser("dup@example.com")
	second := repotest.NewUser("dup@example.com")

	s := memory.NewFromSnapshot(memory.Snapshot{Users: []user.User{first, second}}, nil)

	got, err := s.GetUserByEmail(ctx, "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.CreateUser(ctx, repotest.NewUser("dup@example.com"))
	assert.ErrorIs(t, err, user.ErrEmailTaken)
}
