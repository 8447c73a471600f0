package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelevents/internal/shared/middleware"
)

func newTestLimiter(t *testing.T, cfg *Config) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, cfg), mr
}

func testConfig() *Config {
	return &Config{
		Enabled:           true,
		WindowDuration:    time.Minute,
		DefaultRequests:   5,
		AdmissionRequests: 2,
		OrganizerRequests: 10,
		InboxRequests:     3,
		HealthRequests:    100,
		WhitelistedIPs:    []string{"10.0.0.1"},
	}
}

func TestIsAllowedCountsEveryRequest(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// many requests land in the same millisecond, each must count
	for i := 0; i < 2; i++ {
		result, err := limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeAdmission)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2, result.Limit)
		assert.Equal(t, 1-i, result.Remaining)
	}

	result, err := limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)

	// budgets are per type and per client
	result, err = limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeInbox)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.IsAllowed(ctx, Subject{IP: "5.6.7.8"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestWindowSlides(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeAdmission)
		require.NoError(t, err)
	}
	result, err := limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	now = now.Add(61 * time.Second)
	result, err = limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestDisabledAndWhitelisted(t *testing.T) {
	cfg := testConfig()
	limiter, mr := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.IsAllowed(ctx, Subject{IP: "10.0.0.1"}, RateLimitTypeAdmission)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	cfg.Enabled = false
	mr.Close()
	result, err := limiter.IsAllowed(ctx, Subject{IP: "1.2.3.4"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestGetRateLimitType(t *testing.T) {
	cases := []struct {
		path   string
		method string
		want   RateLimitType
	}{
		{"/health", http.MethodGet, RateLimitTypeHealth},
		{"/api/v1/waitlists/:event_id/join", http.MethodPost, RateLimitTypeAdmission},
		{"/api/v1/waitlists/:event_id/join", http.MethodDelete, RateLimitTypeAdmission},
		{"/api/v1/waitlists/:event_id/respond", http.MethodPost, RateLimitTypeAdmission},
		{"/api/v1/waitlists/:event_id/size", http.MethodGet, RateLimitTypeDefault},
		{"/api/v1/waitlists", http.MethodPost, RateLimitTypeOrganizer},
		{"/api/v1/lottery/:event_id/draw", http.MethodPost, RateLimitTypeOrganizer},
		{"/api/v1/notifications", http.MethodGet, RateLimitTypeInbox},
		{"/api/v1/notifications/broadcast/:event_id", http.MethodPost, RateLimitTypeOrganizer},
		{"/api/v1/admin/notifications/logs", http.MethodGet, RateLimitTypeOrganizer},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, getRateLimitType(tc.path, tc.method), "%s %s", tc.method, tc.path)
	}
}

func TestEntrantBudgetFollowsEntrant(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for _, ip := range []string{"1.1.1.1", "2.2.2.2"} {
		result, err := limiter.IsAllowed(ctx, Subject{IP: ip, EntrantID: "alice"}, RateLimitTypeAdmission)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	result, err := limiter.IsAllowed(ctx, Subject{IP: "3.3.3.3", EntrantID: "alice"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// another entrant behind the same address has a separate budget
	result, err = limiter.IsAllowed(ctx, Subject{IP: "1.1.1.1", EntrantID: "bob"}, RateLimitTypeAdmission)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, mr := newTestLimiter(t, testConfig())

	engine := gin.New()
	engine.Use(Middleware(limiter, nil))
	engine.POST("/api/v1/waitlists/:event_id/join", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(entrant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/waitlists/evt-1/join", nil)
		req.Header.Set(middleware.EntrantHeader, entrant)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("alice").Code)
	rec := send("alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice").Code)
	assert.Equal(t, http.StatusOK, send("bob").Code)

	// an unreachable limiter lets traffic through
	mr.Close()
	assert.Equal(t, http.StatusOK, send("alice").Code)
}
