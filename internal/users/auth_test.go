package users_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperflow/paperflow/internal/users"
	_ "github.com/paperflow/paperflow/testing"
)

type stubRepo struct {
	user    users.User
	hashHit int
	idHit   int
}

func (r *stubRepo) GetByAPIKeyHash(_ context.Context, hash string) (users.User, error) {
	r.hashHit++
	if hash != r.user.APIKeyHash {
		return users.User{}, users.ErrUserNotFound
	}
	return r.user, nil
}

func (r *stubRepo) Get(_ context.Context, id uuid.UUID) (users.User, error) {
	r.idHit++
	if id != r.user.ID {
		return users.User{}, users.ErrUserNotFound
	}
	return r.user, nil
}

func (r *stubRepo) DeleteExpiredMailTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newAuth(t *testing.T) (*users.Authenticator, *stubRepo, string) {
	t.Helper()
	apiKey := "test-key-123"
	repo := &stubRepo{user: users.User{
		ID:         uuid.New(),
		Email:      "u@test.example",
		APIKeyHash: users.HashAPIKey(apiKey),
	}}
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return users.NewAuthenticator(repo, redisClient, nil), repo, apiKey
}

func echoUser(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := users.UserFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-User", user.Email)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	auth, _, _ := newAuth(t)
	handler := auth.Middleware(echoUser(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsUnknownKey(t *testing.T) {
	auth, _, _ := newAuth(t)
	handler := auth.Middleware(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsValidKey(t *testing.T) {
	auth, _, apiKey := newAuth(t)
	handler := auth.Middleware(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u@test.example", rec.Header().Get("X-User"))
}

func TestMiddlewareCachesResolvedKey(t *testing.T) {
	auth, repo, apiKey := newAuth(t)
	handler := auth.Middleware(echoUser(t))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
		req.Header.Set("Authorization", "Bearer "+apiKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Only the first request should hit the hash lookup; the rest resolve
	// through the cache by user id.
	assert.Equal(t, 1, repo.hashHit)
	assert.Equal(t, 2, repo.idHit)
}

func TestHashAPIKeyIsStable(t *testing.T) {
	assert.Equal(t, users.HashAPIKey("abc"), users.HashAPIKey("abc"))
	assert.NotEqual(t, users.HashAPIKey("abc"), users.HashAPIKey("abd"))
}
