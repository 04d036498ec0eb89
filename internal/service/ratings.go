// Package service holds the business rules of users and ratings, between the
// HTTP handlers and the persistence store.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/hotchoc/internal/cache"
	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/geocoder89/hotchoc/internal/service")

type RatingStore interface {
	CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error)
	ListRatings(ctx context.Context) ([]rating.Rating, error)
	ListRatingsByUser(ctx context.Context, userID string) ([]rating.Rating, error)
	GetRatingByID(ctx context.Context, id string) (rating.Rating, error)
	DeleteRating(ctx context.Context, id string) (bool, error)
}

type Ratings struct {
	store RatingStore
	cache cache.Cache
	group singleflight.Group
	now   func() time.Time

	// fillMu keeps a cache fill from racing a delete: a fill holds it shared
	// across read-then-set, a delete holds it exclusively across
	// delete-then-invalidate.
	fillMu sync.RWMutex
}

func NewRatings(store RatingStore, c cache.Cache) *Ratings {
	if c == nil {
		c = cache.Nop{}
	}
	return &Ratings{store: store, cache: c, now: time.Now}
}

func (s *Ratings) ListAll(ctx context.Context) ([]rating.Rating, error) {
	ctx, span := tracer.Start(ctx, "ratings.list")
	defer span.End()

	return s.store.ListRatings(ctx)
}

func (s *Ratings) ListForUser(ctx context.Context, userID string) ([]rating.Rating, error) {
	ctx, span := tracer.Start(ctx, "ratings.list_for_user", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	return s.store.ListRatingsByUser(ctx, userID)
}

// Create stores a new rating owned by userID. Identity, id and timestamp are
// always assigned here.
func (s *Ratings) Create(ctx context.Context, userID string, req rating.CreateRequest) (rating.Rating, error) {
	ctx, span := tracer.Start(ctx, "ratings.create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	r := rating.NewFromCreateRequest(uuid.NewString(), userID, req, s.now())

	created, err := s.store.CreateRating(context.WithoutCancel(ctx), r)
	if err != nil {
		return rating.Rating{}, fmt.Errorf("create rating: %w", err)
	}
	return created, nil
}

func (s *Ratings) Get(ctx context.Context, id string) (rating.Rating, error) {
	ctx, span := tracer.Start(ctx, "ratings.get", trace.WithAttributes(attribute.String("rating.id", id)))
	defer span.End()

	key := cache.RatingKey(id)

	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Default().WarnContext(ctx, "rating.cache_get_failed", "rating_id", id, "err", err)
	}
	if ok {
		var r rating.Rating
		if err := json.Unmarshal(b, &r); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return r, nil
		}
	}

	// the fill is shared by every waiter, so it must not die with the first caller
	fillCtx := context.WithoutCancel(ctx)

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.fillMu.RLock()
		defer s.fillMu.RUnlock()

		r, err := s.store.GetRatingByID(fillCtx, id)
		if err != nil {
			return rating.Rating{}, err
		}

		if b, err := json.Marshal(r); err == nil {
			if err := s.cache.Set(fillCtx, key, b); err != nil {
				slog.Default().WarnContext(fillCtx, "rating.cache_set_failed", "rating_id", id, "err", err)
			}
		}
		return r, nil
	})
	if err != nil {
		return rating.Rating{}, err
	}

	return v.(rating.Rating), nil
}

// Delete removes a rating owned by userID. The owner is checked against the
// store, never the cache.
func (s *Ratings) Delete(ctx context.Context, userID, id string) error {
	ctx, span := tracer.Start(ctx, "ratings.delete", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("rating.id", id),
	))
	defer span.End()

	ctx = context.WithoutCancel(ctx)

	r, err := s.store.GetRatingByID(ctx, id)
	if err != nil {
		if errors.Is(err, rating.ErrNotFound) {
			return err
		}
		return fmt.Errorf("load rating: %w", err)
	}
	if r.UserID != userID {
		return rating.ErrForbidden
	}

	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	deleted, err := s.store.DeleteRating(ctx, id)
	if err != nil {
		return fmt.Errorf("delete rating: %w", err)
	}

	if err := s.cache.Delete(ctx, cache.RatingKey(id)); err != nil {
		slog.Default().WarnContext(ctx, "rating.cache_delete_failed", "rating_id", id, "err", err)
	}

	if !deleted {
		// lost a race with another delete of the same rating
		return rating.ErrNotFound
	}
	return nil
}

func (s *Ratings) Stats(ctx context.Context, userID string) (rating.Stats, error) {
	ratings, err := s.ListForUser(ctx, userID)
	if err != nil {
		return rating.Stats{}, err
	}
	return rating.ComputeStats(ratings), nil
}
