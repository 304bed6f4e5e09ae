package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"

	AuthClerk    = "clerk"
	AuthFirebase = "firebase"
	AuthDev      = "dev"
)

// Config holds all application configuration
type Config struct {
	Port string `env:"PORT" envDefault:"3333"`

	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"`

	// Firebase (Firestore, Auth, Cloud Messaging)
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE" envDefault:"./serviceAccountKey.json"`
	FirebaseCredentialsJSON string `env:"FCM_SERVICE_ACCOUNT_JSON"`
	PushEnabled             bool   `env:"PUSH_ENABLED" envDefault:"false"`

	// Identity
	AuthProvider       string        `env:"AUTH_PROVIDER" envDefault:"clerk"`
	ClerkSecretKey     string        `env:"CLERK_SECRET_KEY"`
	ClerkWebhookSecret string        `env:"CLERK_WEBHOOK_SECRET"`
	DevJWTSecret       string        `env:"DEV_JWT_SECRET"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Leaderboard
	LiveTopLimit int `env:"LIVE_TOP_LIMIT" envDefault:"10"`

	// HTTP
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"30"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MetricsUser    string   `env:"METRICS_USER"`
	MetricsPass    string   `env:"METRICS_PASS"`
	PprofSecret    string   `env:"PPROF_SECRET"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverFirestore, DriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	switch c.AuthProvider {
	case AuthClerk:
		if c.ClerkSecretKey == "" {
			return fmt.Errorf("CLERK_SECRET_KEY is required for clerk auth")
		}
	case AuthDev:
		if c.DevJWTSecret == "" {
			return fmt.Errorf("DEV_JWT_SECRET is required for dev auth")
		}
	case AuthFirebase:
	default:
		return fmt.Errorf("unsupported AUTH_PROVIDER: %s", c.AuthProvider)
	}

	if c.LiveTopLimit <= 0 {
		return fmt.Errorf("LIVE_TOP_LIMIT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

// NeedsFirebase reports whether any configured component talks to Firebase.
func (c *Config) NeedsFirebase() bool {
	return c.StoreDriver == DriverFirestore || c.AuthProvider == AuthFirebase || c.PushEnabled
}
