package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	"github.com/geocoder89/hotchoc/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

// Fake implementations of handlers.AuthService and handlers.RatingService

type fakeAuthService struct {
	registerFn func(ctx context.Context, req user.RegisterRequest) (user.Public, error)
	loginFn    func(ctx context.Context, req user.LoginRequest) (user.LoginResult, error)
}

func (f *fakeAuthService) Register(ctx context.Context, req user.RegisterRequest) (user.Public, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, req)
	}
	return user.Public{}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, req user.LoginRequest) (user.LoginResult, error) {
	if f.loginFn != nil {
		return f.loginFn(ctx, req)
	}
	return user.LoginResult{}, nil
}

type fakeRatingService struct {
	listAllFn     func(ctx context.Context) ([]rating.Rating, error)
	listForUserFn func(ctx context.Context, userID string) ([]rating.Rating, error)
	createFn      func(ctx context.Context, userID string, req rating.CreateRequest) (rating.Rating, error)
	getFn         func(ctx context.Context, id string) (rating.Rating, error)
	deleteFn      func(ctx context.Context, userID, id string) error
	statsFn       func(ctx context.Context, userID string) (rating.Stats, error)
}

func (f *fakeRatingService) ListAll(ctx context.Context) ([]rating.Rating, error) {
	if f.listAllFn != nil {
		return f.listAllFn(ctx)
	}
	return []rating.Rating{}, nil
}

func (f *fakeRatingService) ListForUser(ctx context.Context, userID string) ([]rating.Rating, error) {
	if f.listForUserFn != nil {
		return f.listForUserFn(ctx, userID)
	}
	return []rating.Rating{}, nil
}

func (f *fakeRatingService) Create(ctx context.Context, userID string, req rating.CreateRequest) (rating.Rating, error) {
	if f.createFn != nil {
		return f.createFn(ctx, userID, req)
	}
	return rating.Rating{}, nil
}

func (f *fakeRatingService) Get(ctx context.Context, id string) (rating.Rating, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return rating.Rating{}, nil
}

func (f *fakeRatingService) Delete(ctx context.Context, userID, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID, id)
	}
	return nil
}

func (f *fakeRatingService) Stats(ctx context.Context, userID string) (rating.Stats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, userID)
	}
	return rating.Stats{}, nil
}

// small helper function which returns the gin engine to mount one handler per test

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

// setupAuthedRouter mounts h behind a stand-in for RequireAuth that trusts userID.
func setupAuthedRouter(method, path, userID string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, func(ctx *gin.Context) {
		if userID != "" {
			ctx.Set(middlewares.CtxUserID, userID)
		}
		ctx.Next()
	}, h)

	return r
}

func doJSON(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorResponse struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}
	return resp
}
