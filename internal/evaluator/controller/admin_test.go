package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/common/http/middleware"
	"neurojudge/internal/evaluator/auth"
	appErr "neurojudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func adminRouter(t *testing.T, tokens *auth.TokenService, limit int) *gin.Engine {
	t.Helper()
	_, repo := setup(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	limiter := auth.NewRateLimiter(rc, time.Minute, time.Second)
	return NewRouter(NewStatusController(repo), RouterOptions{
		Admin: []gin.HandlerFunc{
			middleware.AuthMiddleware(tokens, middleware.AuthPolicy{Roles: []string{auth.RoleAdmin}}),
			middleware.RateLimitMiddleware(limiter, "status.clear", middleware.RateLimitPolicy{OperatorMax: limit}),
		},
	})
}

func post(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClearRequiresAdminToken(t *testing.T) {
	tokens := auth.NewTokenService("s3cret", "neurojudge")
	r := adminRouter(t, tokens, 0)
	const path = "/api/v1/submissions/12/status/validated/clear"

	admin, err := tokens.Issue("ada", auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	viewer, err := tokens.Issue("bob", auth.RoleViewer, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	forged, err := auth.NewTokenService("other", "neurojudge").Issue("eve", auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong secret", token: forged, want: http.StatusUnauthorized},
		{name: "viewer", token: viewer, want: http.StatusForbidden},
		{name: "admin", token: admin, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := post(r, path, tt.token); w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	// Reads stay open.
	if code, _ := do(t, r, http.MethodGet, "/api/v1/submissions/12/status"); code != http.StatusOK {
		t.Fatalf("read status = %d", code)
	}
}

func TestClearRateLimitedPerOperator(t *testing.T) {
	tokens := auth.NewTokenService("s3cret", "")
	r := adminRouter(t, tokens, 2)
	token, err := tokens.Issue("ada", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	const path = "/api/v1/submissions/12/status/executed/clear"
	for i := 0; i < 2; i++ {
		if w := post(r, path, token); w.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i+1, w.Code)
		}
	}
	w := post(r, path, token)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	rc, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	limiter := auth.NewRateLimiter(rc, time.Minute, time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "k", 3, 0); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "k", 3, 0); !appErr.Is(err, appErr.TooManyRequests) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := limiter.Allow(ctx, "k", 3, 0); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}
