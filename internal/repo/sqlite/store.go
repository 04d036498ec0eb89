package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/repo/migrations"
	modsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database file at path and migrates it.
// Every commit is fsynced before it returns.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_txlock=immediate",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	if err := migrations.UpSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// one writer; sqlite serializes writes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	return New(db), nil
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) && strings.Contains(err.Error(), "users.email") {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (user.User, error) {
	var (
		u       user.User
		created string
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	u.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return user.User{}, fmt.Errorf("user %s created_at: %w", u.ID, err)
	}
	return u, nil
}

func (s *Store) CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	loc, err := json.Marshal(r.Location)
	if err != nil {
		return rating.Rating{}, err
	}
	if r.Ratings == nil {
		r.Ratings = map[string]int{}
	}
	scores, err := json.Marshal(r.Ratings)
	if err != nil {
		return rating.Rating{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ratings (id, user_id, photo, location, scores, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Photo, string(loc), string(scores), r.Notes, r.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return rating.Rating{}, fmt.Errorf("insert rating: %w", err)
	}
	return r, nil
}

const ratingColumns = `id, user_id, photo, location, scores, notes, created_at`

func (s *Store) ListRatings(ctx context.Context) ([]rating.Rating, error) {
	return s.queryRatings(ctx, `SELECT `+ratingColumns+` FROM ratings ORDER BY rowid`)
}

func (s *Store) ListRatingsByUser(ctx context.Context, userID string) ([]rating.Rating, error) {
	return s.queryRatings(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE user_id = ? ORDER BY rowid`, userID)
}

func (s *Store) queryRatings(ctx context.Context, query string, args ...any) ([]rating.Rating, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

	return out, rows.Err()
}

func (s *Store) GetRatingByID(ctx context.Context, id string) (rating.Rating, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE id = ?`, id)

	r, err := scanRating(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rating.Rating{}, rating.ErrNotFound
	}
	return r, err
}

func (s *Store) DeleteRating(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ratings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRating(sc scanner) (rating.Rating, error) {
	var (
		r           rating.Rating
		loc, scores string
		created     string
	)

	if err := sc.Scan(&r.ID, &r.UserID, &r.Photo, &loc, &scores, &r.Notes, &created); err != nil {
		return rating.Rating{}, err
	}

	if err := json.Unmarshal([]byte(loc), &r.Location); err != nil {
		return rating.Rating{}, fmt.Errorf("rating %s location: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(scores), &r.Ratings); err != nil {
		return rating.Rating{}, fmt.Errorf("rating %s scores: %w", r.ID, err)
	}

	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return rating.Rating{}, fmt.Errorf("rating %s created_at: %w", r.ID, err)
	}
	r.Timestamp = ts

	return r, nil
}

func isUniqueViolation(err error) bool {
	var se *modsqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
