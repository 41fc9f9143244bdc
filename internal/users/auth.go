package users

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/paperflow/paperflow/internal/platform/httpx"
)

type contextKey struct{}

// ContextWithUser stores the authenticated user in the context.
func ContextWithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}

// Authenticator resolves API keys to users, caching hits in Redis so the
// hot path avoids a database round trip.
type Authenticator struct {
	repo     Repository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewAuthenticator constructs Authenticator.
func NewAuthenticator(repo Repository, cache *redis.Client, logger *slog.Logger) *Authenticator {
	return &Authenticator{repo: repo, cache: cache, cacheTTL: 5 * time.Minute, logger: logger}
}

// HashAPIKey derives the stored hash for a raw API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Middleware authenticates requests via "Authorization: Bearer <api key>".
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		key, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || key == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}

		user, err := a.resolve(r.Context(), HashAPIKey(key))
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (a *Authenticator) resolve(ctx context.Context, hash string) (User, error) {
	cacheKey := "apikey:" + hash
	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, cacheKey).Result(); err == nil {
			if id, err := uuid.Parse(cached); err == nil {
				return a.repo.Get(ctx, id)
			}
		}
	}

	user, err := a.repo.GetByAPIKeyHash(ctx, hash)
	if err != nil {
		return User{}, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, user.ID.String(), a.cacheTTL).Err(); err != nil && a.logger != nil {
			a.logger.Warn("cache api key", slog.Any("error", err))
		}
	}
	return user, nil
}
