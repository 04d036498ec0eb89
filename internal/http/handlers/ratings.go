package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type RatingService interface {
	ListAll(ctx context.Context) ([]rating.Rating, error)
	ListForUser(ctx context.Context, userID string) ([]rating.Rating, error)
	Create(ctx context.Context, userID string, req rating.CreateRequest) (rating.Rating, error)
	Get(ctx context.Context, id string) (rating.Rating, error)
	Delete(ctx context.Context, userID, id string) error
	Stats(ctx context.Context, userID string) (rating.Stats, error)
}

type RatingsHandler struct {
	svc RatingService
}

func NewRatingsHandler(svc RatingService) *RatingsHandler {
	return &RatingsHandler{svc: svc}
}

// currentUser is only empty when a route forgot RequireAuth.
func currentUser(ctx *gin.Context) (string, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Invalid token")
	}
	return id, ok
}

func (h *RatingsHandler) List(ctx *gin.Context) {
	ratings, err := h.svc.ListAll(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, "Could not list ratings", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, ratings)
}

func (h *RatingsHandler) ListMine(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	ratings, err := h.svc.ListForUser(ctx.Request.Context(), userID)
	if err != nil {
		RespondInternal(ctx, "Could not list ratings", err)
		return
	}

	ctx.JSON(http.StatusOK, ratings)
}

func (h *RatingsHandler) Stats(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(ctx.Request.Context(), userID)
	if err != nil {
		RespondInternal(ctx, "Could not compute stats", err)
		return
	}

	ctx.JSON(http.StatusOK, stats)
}

func (h *RatingsHandler) Create(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req rating.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	r, err := h.svc.Create(ctx.Request.Context(), userID, req)
	if err != nil {
		RespondInternal(ctx, "Could not create rating", err)
		return
	}

	ctx.JSON(http.StatusOK, r)
}

func (h *RatingsHandler) Get(ctx *gin.Context) {
	r, err := h.svc.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, rating.ErrNotFound) {
			RespondNotFound(ctx, "Not found")
			return
		}
		RespondInternal(ctx, "Could not fetch rating", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, r)
}

func (h *RatingsHandler) Delete(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	err := h.svc.Delete(ctx.Request.Context(), userID, ctx.Param("id"))
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{"message": "Rating deleted"})
	case errors.Is(err, rating.ErrNotFound):
		RespondNotFound(ctx, "Not found")
	case errors.Is(err, rating.ErrForbidden):
		RespondForbidden(ctx, "You can only delete your own ratings")
	default:
		RespondInternal(ctx, "Could not delete rating", err)
	}
}
