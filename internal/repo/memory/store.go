package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
)

// Snapshot is the full store state handed to a persist hook.
type Snapshot struct {
	Users   []user.User
	Ratings []rating.Rating
}

// PersistFunc durably writes the next state. The store only commits the
// mutation in memory once it returns nil.
type PersistFunc func(Snapshot) error

type Store struct {
	mu sync.RWMutex

	users       []user.User
	userByID    map[string]int
	userByEmail map[string]int

	ratings   []rating.Rating
	ratingIdx map[string]int

	persist PersistFunc
}

func New() *Store {
	return NewFromSnapshot(Snapshot{}, nil)
}

// NewFromSnapshot seeds the store from previously persisted state. When the
// snapshot holds the same email twice, the first record owns the email.
func NewFromSnapshot(snap Snapshot, persist PersistFunc) *Store {
	s := &Store{
		users:   slices.Clone(snap.Users),
		ratings: slices.Clone(snap.Ratings),
		persist: persist,
	}
	if s.users == nil {
		s.users = []user.User{}
	}
	if s.ratings == nil {
		s.ratings = []rating.Rating{}
	}

	s.reindexUsers()
	s.reindexRatings()
	return s
}

func (s *Store) reindexUsers() {
	s.userByID = make(map[string]int, len(s.users))
	s.userByEmail = make(map[string]int, len(s.users))

	for i, u := range s.users {
		if _, ok := s.userByID[u.ID]; !ok {
			s.userByID[u.ID] = i
		}
		if _, ok := s.userByEmail[u.Email]; !ok {
			s.userByEmail[u.Email] = i
		}
	}
}

func (s *Store) reindexRatings() {
	s.ratingIdx = make(map[string]int, len(s.ratings))
	for i, r := range s.ratings {
		if _, ok := s.ratingIdx[r.ID]; !ok {
			s.ratingIdx[r.ID] = i
		}
	}
}

func (s *Store) commit(users []user.User, ratings []rating.Rating) error {
	if s.persist == nil {
		return nil
	}
	return s.persist(Snapshot{Users: users, Ratings: ratings})
}

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.userByEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	// append may write past len into the shared backing array, which is
	// invisible to readers until s.users is reassigned.
	next := append(s.users, u)
	if err := s.commit(next, s.ratings); err != nil {
		return user.User{}, err
	}

	s.users = next
	s.userByID[u.ID] = len(next) - 1
	s.userByEmail[u.Email] = len(next) - 1
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.userByEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return s.users[i], nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.userByID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return s.users[i], nil
}

func (s *Store) CreateRating(_ context.Context, r rating.Rating) (rating.Rating, error) {
	r = cloneRating(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(s.ratings, r)
	if err := s.commit(s.users, next); err != nil {
		return rating.Rating{}, err
	}

	s.ratings = next
	if _, ok := s.ratingIdx[r.ID]; !ok {
		s.ratingIdx[r.ID] = len(next) - 1
	}
	return cloneRating(r), nil
}

func (s *Store) ListRatings(_ context.Context) ([]rating.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rating.Rating, 0, len(s.ratings))
	for _, r := range s.ratings {
		out = append(out, cloneRating(r))
	}
	return out, nil
}

func (s *Store) ListRatingsByUser(_ context.Context, userID string) ([]rating.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []rating.Rating{}
	for _, r := range s.ratings {
		if r.UserID == userID {
			out = append(out, cloneRating(r))
		}
	}
	return out, nil
}

func (s *Store) GetRatingByID(_ context.Context, id string) (rating.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.ratingIdx[id]
	if !ok {
		return rating.Rating{}, rating.ErrNotFound
	}
	return cloneRating(s.ratings[i]), nil
}

func (s *Store) DeleteRating(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.ratingIdx[id]
	if !ok {
		return false, nil
	}

	// fresh backing array so a failed persist leaves s.ratings intact
	next := slices.Concat(s.ratings[:i], s.ratings[i+1:])
	if err := s.commit(s.users, next); err != nil {
		return false, err
	}

	s.ratings = next
	s.reindexRatings()
	return true, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func cloneRating(r rating.Rating) rating.Rating {
	r.Ratings = maps.Clone(r.Ratings)
	if r.Ratings == nil {
		r.Ratings = map[string]int{}
	}
	if r.Location.Lat != nil {
		lat := *r.Location.Lat
		r.Location.Lat = &lat
	}
	if r.Location.Lng != nil {
		lng := *r.Location.Lng
		r.Location.Lng = &lng
	}
	return r
}
