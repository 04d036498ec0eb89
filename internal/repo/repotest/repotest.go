// Package repotest is the behaviour every repo.Store backend must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/repo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It registers its own cleanup.
type Factory func(t *testing.T) repo.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("UserRoundTrip", func(t *testing.T) { testUserRoundTrip(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("ConcurrentDuplicateEmail", func(t *testing.T) { testConcurrentDuplicateEmail(t, newStore(t)) })
	t.Run("EmailIsCaseSensitive", func(t *testing.T) { testEmailCaseSensitive(t, newStore(t)) })
	t.Run("RatingOrder", func(t *testing.T) { testRatingOrder(t, newStore(t)) })
	t.Run("RatingFidelity", func(t *testing.T) { testRatingFidelity(t, newStore(t)) })
	t.Run("DeleteRating", func(t *testing.T) { testDeleteRating(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

// subMillisecondNow carries nanoseconds no store keeps, so a store that
// returns its input instead of what it persisted fails the round trips.
func subMillisecondNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond).Add(123456 * time.Nanosecond)
}

func NewUser(email string) user.User {
	return user.User{
		ID:           uuid.NewString(),
		Name:         "Ada",
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		CreatedAt:    subMillisecondNow(),
	}
}

func NewRating(userID, location string) rating.Rating {
	return rating.Rating{
		ID:        uuid.NewString(),
		UserID:    userID,
		Location:  rating.Location{Name: location},
		Ratings:   map[string]int{"temperature": 4, "sweetness": 3},
		Notes:     "rich",
		Timestamp: subMillisecondNow(),
	}
}

func testUserRoundTrip(t *testing.T, s repo.Store) {
	ctx := context.Background()
	u := NewUser("ada@example.com")

	created, err := s.CreateUser(ctx, u)
	require.NoError(t, err)

	byEmail, err := s.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, u.Name, byEmail.Name)
	assert.Equal(t, u.PasswordHash, byEmail.PasswordHash)
	assert.True(t, created.CreatedAt.Equal(byEmail.CreatedAt), "createdAt %v != %v", created.CreatedAt, byEmail.CreatedAt)
	assert.WithinDuration(t, u.CreatedAt, byEmail.CreatedAt, time.Millisecond)

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = s.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s repo.Store) {
	ctx := context.Background()

	_, err := s.CreateUser(ctx, NewUser("dup@example.com"))
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, NewUser("dup@example.com"))
	assert.ErrorIs(t, err, user.ErrEmailTaken)
}

func testConcurrentDuplicateEmail(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const n = 16

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		taken int
		other []error
	)

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, NewUser("race@example.com"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, user.ErrEmailTaken):
				taken++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)
}

func testEmailCaseSensitive(t *testing.T, s repo.Store) {
	ctx := context.Background()

	_, err := s.CreateUser(ctx, NewUser("Case@example.com"))
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, NewUser("case@example.com"))
	require.NoError(t, err)
}

func testRatingOrder(t *testing.T, s repo.Store) {
	ctx := context.Background()

	empty, err := s.ListRatings(ctx)
	require.NoError(t, err)
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	a, b := uuid.NewString(), uuid.NewString()
	var created []rating.Rating
	for i, owner := range []string{a, b, a, a, b} {
		r, err := s.CreateRating(ctx, NewRating(owner, fmt.Sprintf("cafe-%d", i)))
		require.NoError(t, err)
		created = append(created, r)
	}

	all, err := s.ListRatings(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(created))
	for i := range created {
		assert.Equal(t, created[i].ID, all[i].ID)
	}

	mine, err := s.ListRatingsByUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, []string{created[0].ID, created[2].ID, created[3].ID},
		[]string{mine[0].ID, mine[1].ID, mine[2].ID})
	for _, r := range mine {
		assert.Equal(t, a, r.UserID)
	}

	none, err := s.ListRatingsByUser(ctx, uuid.NewString())
	require.NoError(t, err)
	require.NotNil(t, none)
	assert.Empty(t, none)
}

func testRatingFidelity(t *testing.T, s repo.Store) {
	ctx := context.Background()

	lat, lng := 51.5072, -0.1276
	r := NewRating(uuid.NewString(), "Hot Chocolate House")
	r.Location.Lat = &lat
	r.Location.Lng = &lng
	r.Photo = "data:image/jpeg;base64," + strings.Repeat("A", 200_000)
	r.Ratings = map[string]int{
		"temperature":  5,
		"sweetness":    0,
		"texture":      3,
		"chocolate":    4,
		"creaminess":   2,
		"presentation": 1,
	}

	created, err := s.CreateRating(ctx, r)
	require.NoError(t, err)

	got, err := s.GetRatingByID(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.UserID, got.UserID)
	assert.Equal(t, len(r.Photo), len(got.Photo))
	assert.Equal(t, r.Photo, got.Photo)
	assert.Equal(t, r.Location.Name, got.Location.Name)
	require.NotNil(t, got.Location.Lat)
	require.NotNil(t, got.Location.Lng)
	assert.InDelta(t, lat, *got.Location.Lat, 1e-9)
	assert.InDelta(t, lng, *got.Location.Lng, 1e-9)
	assert.Equal(t, r.Ratings, got.Ratings)
	assert.Equal(t, r.Notes, got.Notes)
	assert.True(t, created.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", created.Timestamp, got.Timestamp)
	assert.WithinDuration(t, r.Timestamp, got.Timestamp, time.Millisecond)

	_, err = s.GetRatingByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, rating.ErrNotFound)
}

func testDeleteRating(t *testing.T, s repo.Store) {
	ctx := context.Background()
	owner := uuid.NewString()

	keep, err := s.CreateRating(ctx, NewRating(owner, "keep"))
	require.NoError(t, err)
	drop, err := s.CreateRating(ctx, NewRating(owner, "drop"))
	require.NoError(t, err)

	deleted, err := s.DeleteRating(ctx, drop.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteRating(ctx, drop.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetRatingByID(ctx, drop.ID)
	assert.ErrorIs(t, err, rating.ErrNotFound)

	all, err := s.ListRatings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)

	mine, err := s.ListRatingsByUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, keep.ID, mine[0].ID)
}
