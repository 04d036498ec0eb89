package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/hotchoc/internal/auth"
	"github.com/geocoder89/hotchoc/internal/cache"
	"github.com/geocoder89/hotchoc/internal/domain/rating"
	"github.com/geocoder89/hotchoc/internal/domain/user"
	apphttp "github.com/geocoder89/hotchoc/internal/http"
	"github.com/geocoder89/hotchoc/internal/observability"
	"github.com/geocoder89/hotchoc/internal/repo"
	"github.com/geocoder89/hotchoc/internal/repo/jsonfile"
	"github.com/geocoder89/hotchoc/internal/repo/memory"
	"github.com/geocoder89/hotchoc/internal/repo/sqlite"
	"github.com/geocoder89/hotchoc/internal/security"
	"github.com/geocoder89/hotchoc/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key"

func newRouter(t *testing.T, store repo.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prom := observability.NewProm()
	store = repo.Instrumented(store, prom)
	tokens := auth.NewManager(testSecret, time.Hour)

	return apphttp.NewRouter(apphttp.RouterDeps{
		Env:                "test",
		Auth:               service.NewAuth(store, security.NewHasher(bcrypt.MinCost), tokens),
		Ratings:            service.NewRatings(store, cache.NewMemory(time.Minute, 0)),
		Tokens:             tokens,
		Ping:               store.Ping,
		Prom:               prom,
		MaxBodyBytes:       16 << 20,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		AuthRateLimit:      1000,
	})
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	mustReadJSON(t, w, &resp)
	return resp.Error.Code
}

func register(t *testing.T, r http.Handler, name, email, password string) user.Public {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/register",
		fmt.Sprintf(`{"name":%q,"email":%q,"password":%q}`, name, email, password), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var u user.Public
	mustReadJSON(t, w, &u)
	return u
}

func login(t *testing.T, r http.Handler, email, password string) string {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/login", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res user.LoginResult
	mustReadJSON(t, w, &res)
	require.NotEmpty(t, res.Token)
	return res.Token
}

func createRating(t *testing.T, r http.Handler, token, body string) rating.Rating {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/ratings", body, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out rating.Rating
	mustReadJSON(t, w, &out)
	return out
}

func TestRatingLifecycle(t *testing.T) {
	r := newRouter(t, memory.New())

	ada := register(t, r, "Ada", "ada@example.com", "pass")
	assert.NotEmpty(t, ada.ID)

	w := doRequest(r, http.MethodPost, "/api/register", `{"name":"Ada2","email":"ada@example.com","password":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email_exists", errorCode(t, w))

	w = doRequest(r, http.MethodPost, "/api/register", `{"name":"","email":"x@example.com","password":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))

	w = doRequest(r, http.MethodPost, "/api/login", `{"email":"ada@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, w))

	w = doRequest(r, http.MethodPost, "/api/login", `{"email":"nobody@example.com","password":"pass"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, w))

	adaToken := login(t, r, "ada@example.com", "pass")

	body := `{"userId":"forged","location":{"name":"Cafe Cacao","lat":51.5,"lng":-0.12},"ratings":{"temperature":4,"sweetness":3},"notes":"silky"}`

	w = doRequest(r, http.MethodPost, "/api/ratings", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", errorCode(t, w))

	w = doRequest(r, http.MethodPost, "/api/ratings", body, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_token", errorCode(t, w))

	first := createRating(t, r, adaToken, body)
	assert.Equal(t, ada.ID, first.UserID)
	assert.NotEmpty(t, first.ID)
	assert.WithinDuration(t, time.Now(), first.Timestamp, time.Minute)

	second := createRating(t, r, adaToken, `{"location":{"name":"Bean Bar"},"ratings":{"temperature":2}}`)

	bob := register(t, r, "Bob", "bob@example.com", "hunter2")
	bobToken := login(t, r, "bob@example.com", "hunter2")
	bobs := createRating(t, r, bobToken, `{"location":{"name":"Cafe Cacao"},"ratings":{"temperature":5}}`)
	assert.Equal(t, bob.ID, bobs.UserID)

	// public list, storage order
	w = doRequest(r, http.MethodGet, "/api/ratings", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []rating.Rating
	mustReadJSON(t, w, &all)
	require.Len(t, all, 3)
	assert.Equal(t, []string{first.ID, second.ID, bobs.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	// own list
	w = doRequest(r, http.MethodGet, "/api/user/ratings", "", adaToken)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []rating.Rating
	mustReadJSON(t, w, &mine)
	require.Len(t, mine, 2)
	for _, m := range mine {
		assert.Equal(t, ada.ID, m.UserID)
	}

	w = doRequest(r, http.MethodGet, "/api/user/stats", "", adaToken)
	require.Equal(t, http.StatusOK, w.Code)
	var stats rating.Stats
	mustReadJSON(t, w, &stats)
	assert.Equal(t, rating.Stats{TotalRatings: 2, AverageRating: 2.8, TotalLocations: 2, FavoriteLocation: "Cafe Cacao"}, stats)

	// public get, fills the cache
	w = doRequest(r, http.MethodGet, "/api/ratings/"+first.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got rating.Rating
	mustReadJSON(t, w, &got)
	assert.Equal(t, "silky", got.Notes)

	// only the owner may delete
	w = doRequest(r, http.MethodDelete, "/api/ratings/"+first.ID, "", bobToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorCode(t, w))

	w = doRequest(r, http.MethodDelete, "/api/ratings/"+first.ID, "", adaToken)
	require.Equal(t, http.StatusOK, w.Code)
	var msg map[string]string
	mustReadJSON(t, w, &msg)
	assert.Equal(t, "Rating deleted", msg["message"])

	// gone everywhere, including the cache
	w = doRequest(r, http.MethodGet, "/api/ratings/"+first.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/ratings/"+first.ID, "", adaToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/api/ratings", "", "")
	mustReadJSON(t, w, &all)
	assert.Len(t, all, 2)
}

func TestConcurrentRegistration_OneWinner(t *testing.T) {
	r := newRouter(t, memory.New())

	const n = 10
	codes := make([]int, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := doRequest(r, http.MethodPost, "/api/register", `{"name":"Race","email":"race@example.com","password":"p"}`, "")
			codes[i] = w.Code
		}()
	}
	wg.Wait()

	ok := 0
	for _, c := range codes {
		if c == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, c)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestLargePhotoRoundTrip(t *testing.T) {
	r := newRouter(t, memory.New())

	register(t, r, "Ada", "ada@example.com", "pass")
	token := login(t, r, "ada@example.com", "pass")

	photo := "data:image/jpeg;base64," + strings.Repeat("A", 10<<20)
	body, err := json.Marshal(map[string]any{
		"photo":    photo,
		"location": map[string]any{"name": "Cafe"},
		"ratings":  map[string]int{"temperature": 4},
	})
	require.NoError(t, err)

	created := createRating(t, r, token, string(body))

	w := doRequest(r, http.MethodGet, "/api/ratings/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got rating.Rating
	mustReadJSON(t, w, &got)
	assert.Equal(t, len(photo), len(got.Photo))
}

func TestOversizeBodyRejected(t *testing.T) {
	r := newRouter(t, memory.New())

	register(t, r, "Ada", "ada@example.com", "pass")
	token := login(t, r, "ada@example.com", "pass")

	body := `{"photo":"` + strings.Repeat("A", 17<<20) + `","location":{"name":"Cafe"},"ratings":{"x":1}}`
	w := doRequest(r, http.MethodPost, "/api/ratings", body, token)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "payload_too_large", errorCode(t, w))
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	store, err := jsonfile.Open(path)
	require.NoError(t, err)
	r := newRouter(t, store)

	register(t, r, "Ada", "ada@example.com", "pass")
	token := login(t, r, "ada@example.com", "pass")
	created := createRating(t, r, token, `{"location":{"name":"Cafe"},"ratings":{"temperature":4}}`)
	require.NoError(t, store.Close())

	reopened, err := jsonfile.Open(path)
	require.NoError(t, err)
	r = newRouter(t, reopened)

	token = login(t, r, "ada@example.com", "pass")
	w := doRequest(r, http.MethodGet, "/api/user/ratings", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []rating.Rating
	mustReadJSON(t, w, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)
}

func TestSQLiteBackedAPI(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "hotchoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r := newRouter(t, store)

	register(t, r, "Ada", "ada@example.com", "pass")
	token := login(t, r, "ada@example.com", "pass")
	created := createRating(t, r, token, `{"location":{"name":"Cafe","lat":1.5},"ratings":{"temperature":4}}`)

	w := doRequest(r, http.MethodGet, "/api/ratings/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/ratings/"+created.ID, "", token)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOpsEndpoints(t *testing.T) {
	r := newRouter(t, memory.New())

	w := doRequest(r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	doRequest(r, http.MethodGet, "/api/ratings", "", "")
	w = doRequest(r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `hotchoc_http_requests_total{method="GET",route="/api/ratings",status="200"}`)
	assert.Contains(t, w.Body.String(), `hotchoc_store_op_duration_seconds`)

	w = doRequest(r, http.MethodGet, "/docs/openapi.yaml", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/ratings/{id}")

	w = doRequest(r, http.MethodPost, "/api/login", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireJSONOnPost(t *testing.T) {
	r := newRouter(t, memory.New())

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"name":"a","email":"b","password":"c"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	store := memory.New()
	r := newRouter(t, failingPing{store})

	w := doRequest(r, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type failingPing struct {
	*memory.Store
}

func (failingPing) Ping(context.Context) error {
	return fmt.Errorf("store down")
}

func TestCreateResponseMatchesLaterReads(t *testing.T) {
	stores := map[string]func(t *testing.T) repo.Store{
		"memory": func(t *testing.T) repo.Store { return memory.New() },
		"file": func(t *testing.T) repo.Store {
			s, err := jsonfile.Open(filepath.Join(t.TempDir(), "data.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) repo.Store {
			s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "hotchoc.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			r := newRouter(t, open(t))

			register(t, r, "Ada", "ada@example.com", "pass")
			token := login(t, r, "ada@example.com", "pass")

			w := doRequest(r, http.MethodPost, "/api/ratings",
				`{"location":{"name":"Cafe","lat":51.5},"ratings":{"temperature":4},"notes":"rich"}`, token)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			posted := w.Body.String()

			var created rating.Rating
			mustReadJSON(t, w, &created)
			assert.Equal(t, created.Timestamp, created.Timestamp.Truncate(time.Millisecond))

			w = doRequest(r, http.MethodGet, "/api/ratings/"+created.ID, "", "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, posted, w.Body.String())

			w = doRequest(r, http.MethodGet, "/api/user/ratings", "", token)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "["+posted+"]", w.Body.String())
		})
	}
}

func TestMultibytePasswordOverBcryptLimit(t *testing.T) {
	r := newRouter(t, memory.New())

	// 40 runes pass the rune-counting max=72 binding but are 80 bytes
	w := doRequest(r, http.MethodPost, "/api/register",
		fmt.Sprintf(`{"name":"Zoé","email":"zoe@example.com","password":%q}`, strings.Repeat("é", 40)), "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "invalid_request", errorCode(t, w))

	w = doRequest(r, http.MethodPost, "/api/login",
		fmt.Sprintf(`{"email":"zoe@example.com","password":%q}`, strings.Repeat("é", 40)), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, w))

	register(t, r, "Zoé", "zoe@example.com", strings.Repeat("é", 36))
	login(t, r, "zoe@example.com", strings.Repeat("é", 36))
}
