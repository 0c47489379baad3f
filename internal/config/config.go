package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	ABHAIntrospectURL  string   `mapstructure:"ABHA_INTROSPECTION_URL"`
	ABHADevSecret      string   `mapstructure:"ABHA_DEV_SECRET"`
	ICD11BaseURL       string   `mapstructure:"ICD11_BASE_URL"`
	ICD11TokenURL      string   `mapstructure:"ICD11_TOKEN_URL"`
	ICD11ClientID      string   `mapstructure:"ICD11_CLIENT_ID"`
	ICD11ClientSecret  string   `mapstructure:"ICD11_CLIENT_SECRET"`
	NamasteCSVPath     string   `mapstructure:"NAMASTE_CSV_PATH"`
	MaxSearchResults   int      `mapstructure:"MAX_SEARCH_RESULTS"`
	DefaultSearchLimit int      `mapstructure:"DEFAULT_SEARCH_LIMIT"`
	RateLimitRPS       float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeoutSecs int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ICD11_BASE_URL", "https://id.who.int/icd/release/11/2025-01/mms")
	v.SetDefault("ICD11_TOKEN_URL", "https://icdaccessmanagement.who.int/connect/token")
	v.SetDefault("NAMASTE_CSV_PATH", "./data/namaste.csv")
	v.SetDefault("MAX_SEARCH_RESULTS", 100)
	v.SetDefault("DEFAULT_SEARCH_LIMIT", 10)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ABHA_INTROSPECTION_URL")
	v.BindEnv("ABHA_DEV_SECRET")
	v.BindEnv("ICD11_BASE_URL")
	v.BindEnv("ICD11_TOKEN_URL")
	v.BindEnv("ICD11_CLIENT_ID")
	v.BindEnv("ICD11_CLIENT_SECRET")
	v.BindEnv("NAMASTE_CSV_PATH")
	v.BindEnv("MAX_SEARCH_RESULTS")
	v.BindEnv("DEFAULT_SEARCH_LIMIT")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ==========================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: The ABHA dev token 'test' is accepted for all requests.")
		log.Println("WARNING: Set ENV=production and ABHA_INTROSPECTION_URL in production.")
		log.Println("WARNING: ==========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
