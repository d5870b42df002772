package config

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "AUTH_MODE", "FEED_PAGE_SIZE", "RATE_LIMIT", "FOLLOW_COOLDOWN", "LEARNING_RATE_LIKE", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "jwt", cfg.AuthMode)
	assert.Equal(t, 5, cfg.FeedPageSize)
	assert.Equal(t, 20.0, cfg.RateLimit)
	assert.Equal(t, 2*time.Hour, cfg.FollowCooldown)
	assert.Equal(t, LearningRates{Like: 0.1, Unlike: -0.1, Repost: 0.2, Unrepost: -0.2, View: 0.05}, cfg.LearningRates)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("FEED_RANKING", "similarity")
	t.Setenv("FEED_PAGE_SIZE", "12")
	t.Setenv("FOLLOW_COOLDOWN", "30m")
	t.Setenv("LEARNING_RATE_REPOST", "0.5")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "similarity", cfg.FeedRanking)
	assert.Equal(t, 12, cfg.FeedPageSize)
	assert.Equal(t, 30*time.Minute, cfg.FollowCooldown)
	assert.Equal(t, 0.5, cfg.LearningRates.Repost)
}

func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FEED_PAGE_SIZE", "many")
	t.Setenv("RATE_LIMIT", "fast")
	t.Setenv("FOLLOW_COOLDOWN", "soon")

	cfg := Load()
	assert.Equal(t, 5, cfg.FeedPageSize)
	assert.Equal(t, 20.0, cfg.RateLimit)
	assert.Equal(t, 2*time.Hour, cfg.FollowCooldown)
}

func TestInitRedis_DisabledWithoutAddr(t *testing.T) {
	rdb, err := InitRedis(&Config{})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestSetupMiddleware_SetsRequestID(t *testing.T) {
	e := echo.New()
	SetupMiddleware(e)
	var seen string
	e.GET("/ping", func(c echo.Context) error {
		seen = c.Response().Header().Get(echo.HeaderXRequestID)
		return c.String(http.StatusOK, "pong")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))
}
