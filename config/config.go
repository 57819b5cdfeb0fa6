package config

import (
	"strings"
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Config holds everything the session server reads from the environment.
type Config struct {
	Port           string `config:"PORT"`
	DatabaseURL    string `config:"DATABASE_URL"`
	AllowedOrigins string `config:"ALLOWED_ORIGINS"`
	LogLevel       string `config:"LOG_LEVEL"`

	RedisAddress  string `config:"REDIS_ADDRESS"`
	RedisPassword string `config:"REDIS_PASSWORD"`

	AuthJWTSecret    string `config:"AUTH_JWT_SECRET"`
	AuthServiceURL   string `config:"AUTH_SERVICE_URL"`
	GameServiceToken string `config:"GAME_SERVICE_TOKEN"`

	MatchTokenSecret     string `config:"MATCH_TOKEN_SECRET"`
	MatchTokenTTLSeconds int    `config:"MATCH_TOKEN_TTL_SECONDS"`
	MatchJoinBaseURL     string `config:"MATCH_JOIN_BASE_URL"`
	RequireMatchToken    bool   `config:"REQUIRE_MATCH_TOKEN"`

	// AcceptTimeoutSeconds must stay longer than the client accept countdown.
	AcceptTimeoutSeconds  int `config:"ACCEPT_TIMEOUT_SECONDS"`
	KillThreshold         int `config:"KILL_THRESHOLD"`
	PersistTimeoutSeconds int `config:"PERSIST_TIMEOUT_SECONDS"`
	SendBuffer            int `config:"SEND_BUFFER"`
	PresenceSyncSeconds   int `config:"PRESENCE_SYNC_SECONDS"`

	CloudflareAccountID string `config:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `config:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `config:"R2_ACCESS_KEY_SECRET"`
	R2BucketName        string `config:"R2_BUCKET_NAME"`
}

const (
	DefaultPort                  = "5200"
	DefaultAcceptTimeoutSeconds  = 11
	DefaultKillThreshold         = 25
	DefaultMatchTokenTTLSeconds  = 300
	DefaultPersistTimeoutSeconds = 5
	DefaultSendBuffer            = 64
	DefaultPresenceSyncSeconds   = 30
	DefaultMatchJoinBaseURL      = "/match"
)

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "failed to load config from environment")
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = "http://localhost:3000"
	}
	if c.AcceptTimeoutSeconds <= 0 {
		c.AcceptTimeoutSeconds = DefaultAcceptTimeoutSeconds
	}
	if c.KillThreshold <= 0 {
		c.KillThreshold = DefaultKillThreshold
	}
	if c.MatchTokenTTLSeconds <= 0 {
		c.MatchTokenTTLSeconds = DefaultMatchTokenTTLSeconds
	}
	if c.PersistTimeoutSeconds <= 0 {
		c.PersistTimeoutSeconds = DefaultPersistTimeoutSeconds
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.PresenceSyncSeconds <= 0 {
		c.PresenceSyncSeconds = DefaultPresenceSyncSeconds
	}
	if c.MatchJoinBaseURL == "" {
		c.MatchJoinBaseURL = DefaultMatchJoinBaseURL
	}
	c.MatchJoinBaseURL = strings.TrimRight(c.MatchJoinBaseURL, "/")
	if c.MatchTokenSecret == "" {
		c.MatchTokenSecret = c.AuthJWTSecret
	}
}

// OriginList splits ALLOWED_ORIGINS and trims each entry.
func (c Config) OriginList() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) AcceptTimeout() time.Duration {
	return time.Duration(c.AcceptTimeoutSeconds) * time.Second
}

func (c Config) MatchTokenTTL() time.Duration {
	return time.Duration(c.MatchTokenTTLSeconds) * time.Second
}

func (c Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutSeconds) * time.Second
}

func (c Config) PresenceSyncInterval() time.Duration {
	return time.Duration(c.PresenceSyncSeconds) * time.Second
}

// ArchiveEnabled reports whether R2 match archiving is configured.
func (c Config) ArchiveEnabled() bool {
	return c.R2BucketName != "" && c.CloudflareAccountID != ""
}
