package repo

import (
	"context"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/observability"
)

type instrumented struct {
	next Store
	prom *observability.Prom
}

// Instrumented records latency and error class of every store call.
func Instrumented(s Store, p *observability.Prom) Store {
	if p == nil {
		return s
	}
	return &instrumented{next: s, prom: p}
}

func (s *instrumented) CreateUser(ctx context.Context, u user.User) (out user.User, err error) {
	err = s.prom.ObserveStore("users.create", func() error {
		out, err = s.next.CreateUser(ctx, u)
		return err
	})
	return out, err
}

func (s *instrumented) GetUserByEmail(ctx context.Context, email string) (out user.User, err error) {
	err = s.prom.ObserveStore("users.get_by_email", func() error {
		out, err = s.next.GetUserByEmail(ctx, email)
		return err
	})
	return out, err
}

func (s *instrumented) GetUserByID(ctx context.Context, id string) (out user.User, err error) {
	err = s.prom.ObserveStore("users.get_by_id", func() error {
		out, err = s.next.GetUserByID(ctx, id)
		return err
	})
	return out, err
}

func (s *instrumented) CreateRating(ctx context.Context, r rating.Rating) (out rating.Rating, err error) {
	err = s.prom.ObserveStore("ratings.create", func() error {
		out, err = s.next.CreateRating(ctx, r)
		return err
	})
	return out, err
}

func (s *instrumented) ListRatings(ctx context.Context) (out []rating.Rating, err error) {
	err = s.prom.ObserveStore("ratings.list", func() error {
		out, err = s.next.ListRatings(ctx)
		return err
	})
	return out, err
}

func (s *instrumented) ListRatingsByUser(ctx context.Context, userID string) (out []rating.Rating, err error) {
	err = s.prom.ObserveStore("ratings.list_by_user", func() error {
		out, err = s.next.ListRatingsByUser(ctx, userID)
		return err
	})
	return out, err
}

func (s *instrumented) GetRatingByID(ctx context.Context, id string) (out rating.Rating, err error) {
	err = s.prom.ObserveStore("ratings.get", func() error {
		out, err = s.next.GetRatingByID(ctx, id)
		return err
	})
	return out, err
}

func (s *instrumented) DeleteRating(ctx context.Context, id string) (ok bool, err error) {
	err = s.prom.ObserveStore("ratings.delete", func() error {
		ok, err = s.next.DeleteRating(ctx, id)
		return err
	})
	return ok, err
}

func (s *instrumented) Ping(ctx context.Context) error {
	return s.prom.ObserveStore("ping", func() error { return s.next.Ping(ctx) })
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
