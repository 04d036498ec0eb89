// Package jsonfile keeps users and ratings in a single JSON document on disk,
// in the same shape as the data.json written by earlier versions of the API.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/repo/memory"
)

// document is the layout written to disk. Users keep their bcrypt hash under
// "password".
type document struct {
	Users   []fileUser      `json:"users"`
	Ratings []rating.Rating `json:"ratings"`
}

type fileUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// rawDocument is what load reads. Records are decoded one at a time so a
// single bad entry costs that entry, not the whole file.
type rawDocument struct {
	Users   []json.RawMessage `json:"users"`
	Ratings []json.RawMessage `json:"ratings"`
}

// legacyUser and legacyRating accept what older writers produced: numeric
// ids, epoch-millisecond timestamps and fractional or quoted scores.
type legacyUser struct {
	ID        looseString `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	CreatedAt looseTime   `json:"createdAt"`
}

type legacyRating struct {
	ID        looseString           `json:"id"`
	UserID    looseString           `json:"userId"`
	Photo     string                `json:"photo"`
	Location  rating.Location       `json:"location"`
	Ratings   map[string]looseScore `json:"ratings"`
	Notes     string                `json:"notes"`
	Timestamp looseTime             `json:"timestamp"`
}

// Store is a memory.Store whose every mutation is written through to path
// before it becomes visible.
type Store struct {
	*memory.Store
	path string
}

func Open(path string) (*Store, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}

	f := &file{path: path}

	snap := memory.Snapshot{
		Users:   make([]user.User, 0, len(doc.Users)),
		Ratings: make([]rating.Rating, 0, len(doc.Ratings)),
	}
	for i, raw := range doc.Users {
		u, err := decodeUser(raw)
		if err != nil {
			slog.Warn("store_user_skipped", "path", path, "index", i, "err", err)
			continue
		}
		snap.Users = append(snap.Users, u)
	}
	for i, raw := range doc.Ratings {
		r, err := decodeRating(raw)
		if err != nil {
			slog.Warn("store_rating_skipped", "path", path, "index", i, "err", err)
			continue
		}
		snap.Ratings = append(snap.Ratings, r)
	}

	return &Store{
		Store: memory.NewFromSnapshot(snap, f.write),
		path:  path,
	}, nil
}

func (s *Store) Path() string { return s.path }

// load fails only when the file as a whole is unreadable or not a JSON
// document.
func load(path string) (rawDocument, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return rawDocument{}, nil
	}
	if err != nil {
		return rawDocument{}, fmt.Errorf("read %s: %w", path, err)
	}

	var doc rawDocument
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return rawDocument{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

func decodeUser(raw json.RawMessage) (user.User, error) {
	var lu legacyUser
	if err := json.Unmarshal(raw, &lu); err != nil {
		return user.User{}, err
	}
	if lu.ID == "" || lu.Email == "" {
		return user.User{}, errors.New("user without id or email")
	}

	return user.User{
		ID:           string(lu.ID),
		Name:         lu.Name,
		Email:        lu.Email,
		PasswordHash: lu.Password,
		CreatedAt:    time.Time(lu.CreatedAt),
	}, nil
}

func decodeRating(raw json.RawMessage) (rating.Rating, error) {
	var lr legacyRating
	if err := json.Unmarshal(raw, &lr); err != nil {
		return rating.Rating{}, err
	}
	if lr.ID == "" || lr.UserID == "" {
		return rating.Rating{}, errors.New("rating without id or owner")
	}

	scores := make(map[string]int, len(lr.Ratings))
	for k, v := range lr.Ratings {
		scores[k] = int(math.Round(float64(v)))
	}

	return rating.Rating{
		ID:        string(lr.ID),
		UserID:    string(lr.UserID),
		Photo:     lr.Photo,
		Location:  lr.Location,
		Ratings:   scores,
		Notes:     lr.Notes,
		Timestamp: time.Time(lr.Timestamp),
	}, nil
}

// looseString takes a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("want string or number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

// looseScore takes a JSON number or a numeric string.
type looseScore float64

func (f *looseScore) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", str, err)
		}
		*f = looseScore(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("want score, got %s", b)
	}
	*f = looseScore(v)
	return nil
}

// looseTime takes an RFC 3339 string or epoch milliseconds.
type looseTime time.Time

func (t *looseTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return err
		}
		*t = looseTime(parsed.UTC())
		return nil
	}

	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("want timestamp string or epoch millis, got %s", b)
	}
	*t = looseTime(time.UnixMilli(int64(ms)).UTC())
	return nil
}

// file is only written under the memory store's write lock.
type file struct {
	path string
}

// write replaces the file atomically: temp file in the same directory,
// fsync, rename, then fsync of the directory so the rename itself survives a
// crash.
func (f *file) write(snap memory.Snapshot) error {
	doc := document{
		Users:   make([]fileUser, 0, len(snap.Users)),
		Ratings: snap.Ratings,
	}
	for _, u := range snap.Users {
		doc.Users = append(doc.Users, fileUser{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Password:  u.PasswordHash,
			CreatedAt: u.CreatedAt,
		})
	}
	if doc.Ratings == nil {
		doc.Ratings = []rating.Rating{}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	committed = true

	// the new document is in place; from here on the mutation is committed
	if err := syncDir(dir); err != nil {
		slog.Warn("store_dir_sync_failed", "path", f.path, "err", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}
