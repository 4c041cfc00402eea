package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	TxTimeout         time.Duration `mapstructure:"TX_TIMEOUT"`
	LockTimeout       time.Duration `mapstructure:"LOCK_TIMEOUT"`

	HardDeletePolicy           string `mapstructure:"HARD_DELETE_POLICY"`
	RejectInactiveSlotBookings bool   `mapstructure:"REJECT_INACTIVE_SLOT_BOOKINGS"`

	RedisAddr            string        `mapstructure:"REDIS_ADDR"`
	RedisPassword        string        `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB         int           `mapstructure:"REDIS_CACHE_DB"`
	AvailabilityCacheTTL time.Duration `mapstructure:"AVAILABILITY_CACHE_TTL"`

	RateLimitPerMin int `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst  int `mapstructure:"RATE_LIMIT_BURST"`

	AuditSchedule    string        `mapstructure:"AUDIT_SCHEDULE"`
	CORSAllowOrigins string        `mapstructure:"CORS_ALLOW_ORIGINS"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads .env (if present), then config.yaml (if present), then the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "clinic-booking")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("TX_TIMEOUT", "10s")
	v.SetDefault("LOCK_TIMEOUT", "3s")
	v.SetDefault("HARD_DELETE_POLICY", "cascade")
	v.SetDefault("REJECT_INACTIVE_SLOT_BOOKINGS", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "2s")
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("AUDIT_SCHEDULE", "*/10 * * * *")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch strings.ToLower(c.HardDeletePolicy) {
	case "cascade", "block":
	default:
		problems = append(problems, fmt.Sprintf("HARD_DELETE_POLICY must be cascade or block, got %q", c.HardDeletePolicy))
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 {
		problems = append(problems, "DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative")
	}
	if c.TxTimeout < 0 || c.LockTimeout < 0 {
		problems = append(problems, "TX_TIMEOUT and LOCK_TIMEOUT must not be negative")
	}
	if c.RateLimitPerMin < 0 || c.RateLimitBurst < 0 {
		problems = append(problems, "RATE_LIMIT_PER_MIN and RATE_LIMIT_BURST must not be negative")
	}
	if c.AvailabilityCacheTTL < 0 {
		problems = append(problems, "AVAILABILITY_CACHE_TTL must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
