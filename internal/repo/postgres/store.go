package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/repo/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open migrates the database, then connects the pool used for queries.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	if err := Migrate(ctx, dbURL); err != nil {
		return nil, err
	}

	pool, err := NewPool(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	return New(pool), nil
}

// Migrate applies the embedded schema through a short-lived database/sql handle.
func Migrate(ctx context.Context, dbURL string) error {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("db open error: %w", err)
	}
	defer db.Close()

	return migrations.UpPostgres(ctx, db)
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt,
	).Scan(&u.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "users_email_uniq" {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (user.User, error) {
	var u user.User

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	if r.Ratings == nil {
		r.Ratings = map[string]int{}
	}

	loc, err := json.Marshal(r.Location)
	if err != nil {
		return rating.Rating{}, err
	}
	scores, err := json.Marshal(r.Ratings)
	if err != nil {
		return rating.Rating{}, err
	}

	// return the column's value so callers see what a later read will
	err = s.pool.QueryRow(ctx,
		`INSERT INTO ratings (id, user_id, photo, location, scores, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		r.ID, r.UserID, r.Photo, loc, scores, r.Notes, r.Timestamp,
	).Scan(&r.Timestamp)
	if err != nil {
		return rating.Rating{}, err
	}

	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

const ratingColumns = `id, user_id, photo, location, scores, notes, created_at`

func (s *Store) ListRatings(ctx context.Context) ([]rating.Rating, error) {
	return s.queryRatings(ctx, `SELECT `+ratingColumns+` FROM ratings ORDER BY seq`)
}

func (s *Store) ListRatingsByUser(ctx context.Context, userID string) ([]rating.Rating, error) {
	return s.queryRatings(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE user_id = $1 ORDER BY seq`, userID)
}

func (s *Store) queryRatings(ctx context.Context, query string, args ...any) ([]rating.Rating, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []rating.Rating{}
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetRatingByID(ctx context.Context, id string) (rating.Rating, error) {
	r, err := scanRating(s.pool.QueryRow(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rating.Rating{}, rating.ErrNotFound
		}
		return rating.Rating{}, err
	}
	return r, nil
}

func (s *Store) DeleteRating(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ratings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRating(row pgx.Row) (rating.Rating, error) {
	var (
		r           rating.Rating
		loc, scores []byte
	)

	err := row.Scan(&r.ID, &r.UserID, &r.Photo, &loc, &scores, &r.Notes, &r.Timestamp)
	if err != nil {
		return rating.Rating{}, err
	}

	if err := json.Unmarshal(loc, &r.Location); err != nil {
		return rating.Rating{}, fmt.Errorf("rating %s location: %w", r.ID, err)
	}
	if err := json.Unmarshal(scores, &r.Ratings); err != nil {
		return rating.Rating{}, fmt.Errorf("rating %s scores: %w", r.ID, err)
	}

	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}
