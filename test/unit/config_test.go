package unit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hideout-chat/hideout-server/internal/server"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := server.NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 500, cfg.MaxMessageLen)
	assert.Empty(t, cfg.Denylist)
	assert.Equal(t, 5, cfg.RateLimit.Messages)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 8, cfg.Admission.MaxPerIP)
	assert.Equal(t, 1000, cfg.Admission.MaxTotal)
	assert.Equal(t, 2*time.Minute, cfg.RoomGracePeriod)
	assert.Equal(t, time.Hour, cfg.RoomSweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.RoomMaxIdle)
	assert.Equal(t, 3*time.Second, cfg.TypingQuietPeriod)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://staging.example.com")
	t.Setenv("MESSAGE_DENYLIST", "spam,scam")
	t.Setenv("MAX_MESSAGE_LEN", "200")
	t.Setenv("RATE_LIMIT_MESSAGES", "10")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("MAX_CONNS_PER_IP", "4")
	t.Setenv("MAX_CONNS_TOTAL", "256")
	t.Setenv("ROOM_GRACE_PERIOD", "60")
	t.Setenv("TYPING_QUIET_PERIOD", "5")

	cfg := server.NewConfigFromEnv()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "https://staging.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"spam", "scam"}, cfg.Denylist)
	assert.Equal(t, 200, cfg.MaxMessageLen)
	assert.Equal(t, 10, cfg.RateLimit.Messages)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 4, cfg.Admission.MaxPerIP)
	assert.Equal(t, 256, cfg.Admission.MaxTotal)
	assert.Equal(t, time.Minute, cfg.RoomGracePeriod)
	assert.Equal(t, 5*time.Second, cfg.TypingQuietPeriod)
}

func TestNewConfigFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_LEN", "not-a-number")
	t.Setenv("RATE_LIMIT_MESSAGES", "-3")
	t.Setenv("RATE_LIMIT_WINDOW", "0")

	cfg := server.NewConfigFromEnv()

	assert.Equal(t, 500, cfg.MaxMessageLen)
	assert.Equal(t, 5, cfg.RateLimit.Messages)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
}

func TestSetConfigSanitizesZeroValues(t *testing.T) {
	server.SetConfig(&server.Config{})
	t.Cleanup(func() { server.SetConfig(nil) })

	// The hub must come up with working limits even from an empty Config.
	h := server.NewHub()
	assert.True(t, h.AdmitConnection("192.0.2.1:1001"))

	c := h.Register(nil, "192.0.2.1:1001")
	assert.NotEmpty(t, c.Nickname())
	h.Disconnect(c)
}
