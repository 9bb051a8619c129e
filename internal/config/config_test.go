package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MATCH_POLL_INTERVAL", "")
	t.Setenv("REDIS_DB", "")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.MatchPollInterval)
	assert.Equal(t, 5*time.Minute, cfg.QueueEntryTTL)
	assert.Equal(t, 4*time.Hour, cfg.SessionMarkerTTL)
	assert.Equal(t, "0 3 * * *", cfg.RecoverySchedule)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("MATCH_POLL_INTERVAL", "500ms")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SKIP_COOLDOWN", "not-a-duration")

	cfg := Load()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 500*time.Millisecond, cfg.MatchPollInterval)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 10*time.Second, cfg.SkipCooldown, "invalid values fall back to the default")
}

func TestFeedbackDeltas_CoverAllRatings(t *testing.T) {
	for rating := 1; rating <= 5; rating++ {
		_, ok := FeedbackDeltas[rating]
		assert.True(t, ok, "rating %d", rating)
	}
}
