package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port           int
	DatabaseURL    string
	JWTSecret      string
	JWTTTL         time.Duration
	ScenarioFile   string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	// SaveInterval is how often every live game is written back to the
	// database regardless of recent activity.
	SaveInterval time.Duration

	// GameRetention is how long finished games are kept before cleanup.
	GameRetention time.Duration
}

// Load reads configuration from the environment (a .env file in the working
// directory is loaded first, without overriding real variables).
func Load() (Config, error) {
	cfg := Config{
		Port:           8080,
		JWTTTL:         12 * time.Hour,
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
		LogFormat:      "console",
		SaveInterval:   30 * time.Second,
		GameRetention:  30 * 24 * time.Hour,
	}

	var errs []error

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT: invalid port %q", v))
		} else {
			cfg.Port = port
		}
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL: required"))
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if len(cfg.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET: must be at least 32 characters"))
	}

	cfg.JWTTTL = durationEnv("JWT_TTL", cfg.JWTTTL, &errs)
	cfg.SaveInterval = durationEnv("SAVE_INTERVAL", cfg.SaveInterval, &errs)
	cfg.GameRetention = durationEnv("GAME_RETENTION", cfg.GameRetention, &errs)

	cfg.ScenarioFile = os.Getenv("SCENARIO_FILE")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg, errors.Join(errs...)
}

func durationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
