// Package repo defines the persistence contract of the service and opens the
// backend selected by configuration.
package repo

import (
	"context"
	"fmt"

	"github.com/geocoder89/hotchoc/internal/config"
	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/repo/jsonfile"
	"github.com/geocoder89/hotchoc/internal/repo/memory"
	"github.com/geocoder89/hotchoc/internal/repo/mongodb"
	"github.com/geocoder89/hotchoc/internal/repo/postgres"
	"github.com/geocoder89/hotchoc/internal/repo/sqlite"
)

// Store is implemented by every backend. A successful mutation is durable
// and visible to the next read. List methods return records in insertion
// order and never return a nil slice.
type Store interface {
	// CreateUser fails with user.ErrEmailTaken when the email is already
	// registered. The check and the insert are atomic.
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByID(ctx context.Context, id string) (user.User, error)

	CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error)
	ListRatings(ctx context.Context) ([]rating.Rating, error)
	ListRatingsByUser(ctx context.Context, userID string) ([]rating.Rating, error)
	GetRatingByID(ctx context.Context, id string) (rating.Rating, error)
	// DeleteRating reports false when no rating had that id.
	DeleteRating(ctx context.Context, id string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*jsonfile.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*mongodb.Store)(nil)
)

func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return memory.New(), nil
	case "file", "":
		return jsonfile.Open(cfg.DataFile)
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath)
	case "postgres":
		return postgres.Open(ctx, cfg.DBURL)
	case "mongo":
		return mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
