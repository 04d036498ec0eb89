package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type locationDoc struct {
	Name string   `bson:"name"`
	Lat  *float64 `bson:"lat,omitempty"`
	Lng  *float64 `bson:"lng,omitempty"`
}

type ratingDoc struct {
	ID        string         `bson:"_id"`
	Seq       int64          `bson:"seq"`
	UserID    string         `bson:"userId"`
	Photo     string         `bson:"photo"`
	Location  locationDoc    `bson:"location"`
	Ratings   map[string]int `bson:"ratings"`
	Notes     string         `bson:"notes"`
	Timestamp time.Time      `bson:"timestamp"`
}

type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	ratings  *mongo.Collection
	counters *mongo.Collection
}

// Open connects to uri and prepares the indexes of database. Writes are
// acknowledged by a majority and journaled.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s, err := New(ctx, client, database)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func New(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	journal := true
	wc := writeconcern.Majority()
	wc.Journal = &journal

	db := client.Database(database, options.Database().SetWriteConcern(wc))

	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		ratings:  db.Collection("ratings"),
		counters: db.Collection("counters"),
	}

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("users email index: %w", err)
	}

	if _, err := s.ratings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "seq", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("ratings indexes: %w", err)
	}

	return s, nil
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	u.CreatedAt = bsonTime(u.CreatedAt)

	_, err := s.users.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (user.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("failed to fetch user: %w", err)
	}

	return user.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

// bsonTime cuts t to the millisecond a BSON date keeps.
func bsonTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// nextSeq hands out the storage order of ratings.
func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "ratings"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)

	return counter.Seq, err
}

func (s *Store) CreateRating(ctx context.Context, r rating.Rating) (rating.Rating, error) {
	if r.Ratings == nil {
		r.Ratings = map[string]int{}
	}

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return rating.Rating{}, fmt.Errorf("rating sequence: %w", err)
	}
	r.Timestamp = bsonTime(r.Timestamp)

	_, err = s.ratings.InsertOne(ctx, ratingDoc{
		ID:     r.ID,
		Seq:    seq,
		UserID: r.UserID,
		Photo:  r.Photo,
		Location: locationDoc{
			Name: r.Location.Name,
			Lat:  r.Location.Lat,
			Lng:  r.Location.Lng,
		},
		Ratings:   r.Ratings,
		Notes:     r.Notes,
		Timestamp: r.Timestamp,
	})
	if err != nil {
		return rating.Rating{}, fmt.Errorf("failed to create rating: %w", err)
	}

	return r, nil
}

func (s *Store) ListRatings(ctx context.Context) ([]rating.Rating, error) {
	return s.findRatings(ctx, bson.M{})
}

func (s *Store) ListRatingsByUser(ctx context.Context, userID string) ([]rating.Rating, error) {
	return s.findRatings(ctx, bson.M{"userId": userID})
}

func (s *Store) findRatings(ctx context.Context, filter bson.M) ([]rating.Rating, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	cursor, err := s.ratings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ratings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ratingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode ratings: %w", err)
	}

	out := make([]rating.Rating, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toRating())
	}
	return out, nil
}

func (s *Store) GetRatingByID(ctx context.Context, id string) (rating.Rating, error) {
	var d ratingDoc
	if err := s.ratings.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return rating.Rating{}, rating.ErrNotFound
		}
		return rating.Rating{}, fmt.Errorf("failed to fetch rating: %w", err)
	}
	return d.toRating(), nil
}

func (s *Store) DeleteRating(ctx context.Context, id string) (bool, error) {
	res, err := s.ratings.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete rating: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d ratingDoc) toRating() rating.Rating {
	scores := d.Ratings
	if scores == nil {
		scores = map[string]int{}
	}

	return rating.Rating{
		ID:     d.ID,
		UserID: d.UserID,
		Photo:  d.Photo,
		Location: rating.Location{
			Name: d.Location.Name,
			Lat:  d.Location.Lat,
			Lng:  d.Location.Lng,
		},
		Ratings:   scores,
		Notes:     d.Notes,
		Timestamp: d.Timestamp.UTC(),
	}
}
