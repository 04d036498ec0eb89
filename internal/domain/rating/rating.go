package rating

import (
	"errors"
	"time"
)

// Rating is one hot chocolate review. UserID is always taken from the
// authenticated identity, never from the request body.
type Rating struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Photo     string         `json:"photo,omitempty"`
	Location  Location       `json:"location"`
	Ratings   map[string]int `json:"ratings"`
	Notes     string         `json:"notes"`
	Timestamp time.Time      `json:"timestamp"`
}

type Location struct {
	Name string   `json:"name" binding:"required,max=200"`
	Lat  *float64 `json:"lat,omitempty" binding:"omitempty,min=-90,max=90"`
	Lng  *float64 `json:"lng,omitempty" binding:"omitempty,min=-180,max=180"`
}

var (
	ErrNotFound  = errors.New("rating not found")
	ErrForbidden = errors.New("rating belongs to another user")
)

// CreateRequest is the client payload for a new rating. Photo carries a data
// URI and is only bounded by the transport body limit.
type CreateRequest struct {
	Photo    string         `json:"photo"`
	Location Location       `json:"location"`
	Ratings  map[string]int `json:"ratings" binding:"required,min=1,dive,keys,required,max=40,endkeys,min=0,max=5"`
	Notes    string         `json:"notes" binding:"omitempty,max=5000"`
}

// TimestampPrecision is the coarsest resolution any store keeps. Timestamps
// are cut to it on creation so a stored rating reads back as it was returned.
const TimestampPrecision = time.Millisecond

func NewFromCreateRequest(id, userID string, req CreateRequest, now time.Time) Rating {
	scores := make(map[string]int, len(req.Ratings))
	for k, v := range req.Ratings {
		scores[k] = v
	}

	return Rating{
		ID:        id,
		UserID:    userID,
		Photo:     req.Photo,
		Location:  req.Location,
		Ratings:   scores,
		Notes:     req.Notes,
		Timestamp: now.UTC().Truncate(TimestampPrecision),
	}
}

// Average is the mean of the rating's scores, 0 when it has none.
func (r Rating) Average() float64 {
	if len(r.Ratings) == 0 {
		return 0
	}

	sum := 0
	for _, v := range r.Ratings {
		sum += v
	}

	return float64(sum) / float64(len(r.Ratings))
}
