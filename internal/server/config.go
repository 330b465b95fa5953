// Package server provides configuration helpers that define runtime
// defaults, validation, and the rate/admission/expiry parameters for the
// chat service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the fixed-window message quota applied per
// connection.
type RateLimitConfig struct {
	Messages int
	Window   time.Duration
}

// AdmissionConfig caps concurrent connections per remote address and
// server-wide.
type AdmissionConfig struct {
	MaxPerIP int
	MaxTotal int
}

// Config holds the server configuration settings including security
// controls and expiry timings.
type Config struct {
	Port              string
	AllowedOrigins    []string
	MaxMessageLen     int
	Denylist          []string
	RateLimit         RateLimitConfig
	Admission         AdmissionConfig
	RoomGracePeriod   time.Duration
	RoomSweepInterval time.Duration
	RoomMaxIdle       time.Duration
	RateSweepInterval time.Duration
	TypingQuietPeriod time.Duration
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageLen: 500,
		RateLimit: RateLimitConfig{
			Messages: 5,
			Window:   10 * time.Second,
		},
		Admission: AdmissionConfig{
			MaxPerIP: 8,
			MaxTotal: 1000,
		},
		RoomGracePeriod:   2 * time.Minute,
		RoomSweepInterval: time.Hour,
		RoomMaxIdle:       24 * time.Hour,
		RateSweepInterval: 5 * time.Minute,
		TypingQuietPeriod: 3 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 500
	}

	if cfg.RateLimit.Messages <= 0 {
		cfg.RateLimit.Messages = 5
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = 10 * time.Second
	}

	if cfg.Admission.MaxPerIP <= 0 {
		cfg.Admission.MaxPerIP = 8
	}
	if cfg.Admission.MaxTotal <= 0 {
		cfg.Admission.MaxTotal = 1000
	}

	if cfg.RoomGracePeriod <= 0 {
		cfg.RoomGracePeriod = 2 * time.Minute
	}
	if cfg.RoomSweepInterval <= 0 {
		cfg.RoomSweepInterval = time.Hour
	}
	if cfg.RoomMaxIdle <= 0 {
		cfg.RoomMaxIdle = 24 * time.Hour
	}
	if cfg.RateSweepInterval <= 0 {
		cfg.RateSweepInterval = 5 * time.Minute
	}
	if cfg.TypingQuietPeriod <= 0 {
		cfg.TypingQuietPeriod = 3 * time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitized.Denylist = append([]string(nil), cfg.Denylist...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.Denylist = append([]string(nil), cfg.Denylist...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	if words := os.Getenv("MESSAGE_DENYLIST"); words != "" {
		cfg.Denylist = parseList(words)
	}

	if maxLen := os.Getenv("MAX_MESSAGE_LEN"); maxLen != "" {
		cfg.MaxMessageLen = parseIntValue(maxLen, cfg.MaxMessageLen)
	}

	if messages := os.Getenv("RATE_LIMIT_MESSAGES"); messages != "" {
		cfg.RateLimit.Messages = parseIntValue(messages, cfg.RateLimit.Messages)
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		cfg.RateLimit.Window = parseSeconds(window, cfg.RateLimit.Window)
	}

	if perIP := os.Getenv("MAX_CONNS_PER_IP"); perIP != "" {
		cfg.Admission.MaxPerIP = parseIntValue(perIP, cfg.Admission.MaxPerIP)
	}

	if total := os.Getenv("MAX_CONNS_TOTAL"); total != "" {
		cfg.Admission.MaxTotal = parseIntValue(total, cfg.Admission.MaxTotal)
	}

	if grace := os.Getenv("ROOM_GRACE_PERIOD"); grace != "" {
		cfg.RoomGracePeriod = parseSeconds(grace, cfg.RoomGracePeriod)
	}

	if quiet := os.Getenv("TYPING_QUIET_PERIOD"); quiet != "" {
		cfg.TypingQuietPeriod = parseSeconds(quiet, cfg.TypingQuietPeriod)
	}

	return &cfg
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
