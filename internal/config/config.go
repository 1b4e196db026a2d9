package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        int
	Database    DatabaseConfig
	JWTSecret   string
	Environment string
	AppURL      string
	CORSOrigins []string
	Google      OAuthApp
	Ahrefs      OAuthApp
	Sync        SyncConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// OAuthApp holds the OAuth client registration for one upstream provider.
type OAuthApp struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
}

// SyncConfig holds tunables for the sync pipeline.
type SyncConfig struct {
	DefaultDays    int           // date range when a trigger omits days
	RequestTimeout time.Duration // per provider HTTP call
	MaxAttempts    int           // per page fetch, rate-limit/transient retries
}

// Load loads configuration from environment variables
func Load() *Config {
	env := getEnv("ENVIRONMENT", "production")
	jwtSecret := loadJWTSecret(env)

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			DSN:          getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWTSecret:   jwtSecret,
		Environment: env,
		AppURL:      getAppURL(),
		CORSOrigins: loadCORSOrigins(env),
		Google:      loadOAuthApp("GOOGLE"),
		Ahrefs:      loadOAuthApp("AHREFS"),
		Sync: SyncConfig{
			DefaultDays:    getEnvInt("SYNC_DEFAULT_DAYS", 28),
			RequestTimeout: time.Duration(getEnvInt("SYNC_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxAttempts:    getEnvInt("SYNC_MAX_ATTEMPTS", 3),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "seopulse")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "seopulse")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}

		// Check for insecure default secrets
		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value. Please set a strong random secret")
			}
		}
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Sync.DefaultDays < 1 || c.Sync.DefaultDays > 365 {
		return fmt.Errorf("SYNC_DEFAULT_DAYS must be between 1 and 365")
	}

	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// CallbackURL returns the redirect URL registered with the upstream
// provider for the given integration.
func (c *Config) CallbackURL(provider string) string {
	base := c.AppURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	return base + "/api/integrations/" + provider + "/callback"
}

// StatusURL returns the integrations status page the callback redirects to.
func (c *Config) StatusURL() string {
	base := c.AppURL
	if base == "" {
		base = "http://localhost:3000"
	}
	return base + "/integrations"
}

func loadJWTSecret(env string) string {
	secret := os.Getenv("JWT_SECRET")

	// If JWT_SECRET is not set, generate a random one for development
	if secret == "" {
		if env == "production" {
			log.Fatal("FATAL: JWT_SECRET environment variable is required in production")
		}

		log.Println("WARNING: JWT_SECRET not set. Generating random secret for development.")
		log.Println("WARNING: This secret will change on restart. Set JWT_SECRET in production!")
		return generateRandomSecret()
	}

	if len(secret) < 16 {
		log.Fatal("FATAL: JWT_SECRET must be at least 16 characters long")
	}

	return secret
}

func loadCORSOrigins(env string) []string {
	if appURL := getAppURL(); appURL != "" {
		return []string{appURL}
	}

	if env == "development" {
		return []string{"http://localhost:3000", "http://localhost:8080"}
	}

	log.Println("WARNING: APP_URL not set. Using default localhost origins.")
	log.Println("WARNING: Set APP_URL environment variable for production deployments.")
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func loadOAuthApp(prefix string) OAuthApp {
	clientID := os.Getenv(prefix + "_CLIENT_ID")
	clientSecret := os.Getenv(prefix + "_CLIENT_SECRET")

	if clientID == "" || clientSecret == "" {
		if clientID != "" || clientSecret != "" {
			log.Printf("WARNING: %s_CLIENT_ID or %s_CLIENT_SECRET is missing. Integration will be disabled.", prefix, prefix)
		}
		return OAuthApp{Enabled: false}
	}

	return OAuthApp{
		Enabled:      true,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate random secret:", err)
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

func getAppURL() string {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		return ""
	}
	return strings.TrimRight(appURL, "/")
}
