package infra

import (
	"fmt"
	"time"

	"github.com/babysteps/progression/internal/calendar"
	"github.com/babysteps/progression/internal/domain"
	"github.com/caarlos0/env/v11"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"babysteps"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"babysteps"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"progression"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns  int32  `env:"PG_MIN_CONNS" envDefault:"2"`

	ApplicationName string `env:"APP_NAME" envDefault:"progression"`

	// Redis snapshot cache
	RedisURL         string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	CacheEnabled     bool          `env:"CACHE_ENABLED" envDefault:"false"`
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"5m"`

	// JWT
	JWTSecret        string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTUserExpiry    string `env:"JWT_USER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry   string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`
	JWTServiceExpiry string `env:"JWT_SERVICE_EXPIRY" envDefault:"720h"`

	// Server
	APIPort            int    `env:"API_PORT" envDefault:"3200"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Kafka
	KafkaBrokers       string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled       bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaActivityTopic string `env:"KAFKA_ACTIVITY_TOPIC" envDefault:"babysteps.activity"`
	KafkaGroupID       string `env:"KAFKA_GROUP_ID" envDefault:"progression"`
	KafkaTopicPrefix   string `env:"KAFKA_TOPIC_PREFIX" envDefault:"babysteps"`

	// Calendar policy
	DefaultTimezone string `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`
	WeekStart       string `env:"WEEK_START" envDefault:"monday"`

	// Engine sizing
	DailyMissionCap      int `env:"DAILY_MISSION_CAP" envDefault:"3"`
	WeeklyChallengeCount int `env:"WEEKLY_CHALLENGE_COUNT" envDefault:"3"`
	RankingLimit         int `env:"RANKING_LIMIT" envDefault:"10"`
	RuleCacheSize        int `env:"RULE_CACHE_SIZE" envDefault:"256"`

	// Points per activity
	PointsActivity  int64 `env:"POINTS_ACTIVITY" envDefault:"10"`
	PointsMemory    int64 `env:"POINTS_MEMORY" envDefault:"50"`
	PointsMilestone int64 `env:"POINTS_MILESTONE" envDefault:"100"`
	PointsLogin     int64 `env:"POINTS_LOGIN" envDefault:"5"`

	// AI rewards collaborator
	AIRewardsBaseURL string        `env:"AI_REWARDS_BASE_URL"`
	AIRewardsTimeout time.Duration `env:"AI_REWARDS_TIMEOUT" envDefault:"5s"`

	// Shop guard
	PurchaseRateLimit  int           `env:"PURCHASE_RATE_LIMIT" envDefault:"10"`
	PurchaseRateWindow time.Duration `env:"PURCHASE_RATE_WINDOW" envDefault:"1m"`

	// Background loops
	SchedulerInterval  time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configuration the engine cannot run with. The JWT secret
// check can be bypassed with ALLOW_INSECURE_DEFAULTS=true (local dev only).
func (c *Config) Validate() error {
	if !c.AllowInsecureDefaults {
		if c.JWTSecret == insecureJWTSecret {
			return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
		}
	}
	if _, err := c.Calendar(); err != nil {
		return err
	}
	if c.DailyMissionCap <= 0 {
		return fmt.Errorf("DAILY_MISSION_CAP must be positive, got %d", c.DailyMissionCap)
	}
	if c.WeeklyChallengeCount <= 0 {
		return fmt.Errorf("WEEKLY_CHALLENGE_COUNT must be positive, got %d", c.WeeklyChallengeCount)
	}
	if c.RankingLimit <= 0 {
		return fmt.Errorf("RANKING_LIMIT must be positive, got %d", c.RankingLimit)
	}
	if c.PGMaxConns <= 0 {
		return fmt.Errorf("PG_MAX_CONNS must be positive, got %d", c.PGMaxConns)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}
	p := c.Points()
	if p.Activity < 0 || p.Memory < 0 || p.Milestone < 0 || p.Login < 0 {
		return fmt.Errorf("POINTS_* values must not be negative")
	}
	return nil
}

// Calendar builds the day and week boundary policy.
func (c *Config) Calendar() (calendar.Policy, error) {
	p, err := calendar.NewPolicy(c.DefaultTimezone, c.WeekStart)
	if err != nil {
		return calendar.Policy{}, fmt.Errorf("calendar policy: %w", err)
	}
	return p, nil
}

// Points returns the points granted per inbound activity.
func (c *Config) Points() domain.PointsConfig {
	return domain.PointsConfig{
		Activity:  c.PointsActivity,
		Memory:    c.PointsMemory,
		Milestone: c.PointsMilestone,
		Login:     c.PointsLogin,
	}
}

// UserTokenExpiry parses JWT_USER_EXPIRY, defaulting to 24h.
func (c *Config) UserTokenExpiry() time.Duration {
	return parseExpiry(c.JWTUserExpiry, 24*time.Hour)
}

// AdminTokenExpiry parses JWT_ADMIN_EXPIRY, defaulting to 8h.
func (c *Config) AdminTokenExpiry() time.Duration {
	return parseExpiry(c.JWTAdminExpiry, 8*time.Hour)
}

// ServiceTokenExpiry parses JWT_SERVICE_EXPIRY, defaulting to 30 days.
func (c *Config) ServiceTokenExpiry() time.Duration {
	return parseExpiry(c.JWTServiceExpiry, 720*time.Hour)
}

func parseExpiry(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
