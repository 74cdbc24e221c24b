package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	AppEnv       string `mapstructure:"APP_ENV"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	CORSOrigins  string `mapstructure:"CORS_ORIGINS"`
	AutoMigrate  bool   `mapstructure:"AUTO_MIGRATE"`

	RateLimitShort       int           `mapstructure:"RATE_LIMIT_SHORT"`
	RateLimitShortWindow time.Duration `mapstructure:"RATE_LIMIT_SHORT_WINDOW"`
	RateLimitLong        int           `mapstructure:"RATE_LIMIT_LONG"`
	RateLimitLongWindow  time.Duration `mapstructure:"RATE_LIMIT_LONG_WINDOW"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "3000")
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("DATABASE_PATH", "patients.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "demo-secret-key-123")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("RATE_LIMIT_SHORT", 3)
	v.SetDefault("RATE_LIMIT_SHORT_WINDOW", "1s")
	v.SetDefault("RATE_LIMIT_LONG", 100)
	v.SetDefault("RATE_LIMIT_LONG_WINDOW", "1m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("APP_ENV")
	v.BindEnv("DATABASE_PATH")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTO_MIGRATE")
	v.BindEnv("RATE_LIMIT_SHORT")
	v.BindEnv("RATE_LIMIT_SHORT_WINDOW")
	v.BindEnv("RATE_LIMIT_LONG")
	v.BindEnv("RATE_LIMIT_LONG_WINDOW")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsLocal reports whether introspection conveniences (playground) are
// exposed.
func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

// OriginList splits the comma-separated CORS_ORIGINS value, trimming
// whitespace around each entry.
func (c *Config) OriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.RateLimitShort <= 0 || c.RateLimitLong <= 0 {
		return fmt.Errorf("rate limit budgets must be positive")
	}
	if c.RateLimitShortWindow <= 0 || c.RateLimitLongWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	return nil
}
