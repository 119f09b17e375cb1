package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Backend API Configuration
	API APIConfig

	// Portal (route guard) Configuration
	Portal PortalConfig

	// CLI client Configuration
	CLI CLIConfig

	// Logging Configuration
	Logging LoggingConfig
}

// APIConfig holds the remote backend configuration
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PortalConfig holds the portal server configuration
type PortalConfig struct {
	Port        string
	JWTSecret   string
	RoutesFile  string   // optional YAML file overriding the guarded prefix table
	UpstreamURL string   // frontend to proxy guarded pages to
	StaticDir   string   // used when UpstreamURL is empty
	CORSOrigins []string
}

// CLIConfig holds client-side settings
type CLIConfig struct {
	StateFile    string // SQLite file for client-only state
	PollSchedule string // cron spec for polling views
	UseKeyring   bool
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	apiURL := strings.TrimRight(getEnv("COLLEGEOS_API_URL", "http://localhost:5000/api"), "/")

	timeout := 30 * time.Second
	if raw := os.Getenv("COLLEGEOS_API_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid COLLEGEOS_API_TIMEOUT %q: %w", raw, err)
		}
		timeout = d
	}

	var origins []string
	for _, o := range strings.Split(getEnv("PORTAL_CORS_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	stateFile := os.Getenv("COLLEGEOS_STATE_FILE")
	if stateFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		stateFile = dir + string(os.PathSeparator) + "collegeos" + string(os.PathSeparator) + "state.sqlite"
	}

	return &Config{
		API: APIConfig{
			BaseURL: apiURL,
			Timeout: timeout,
		},
		Portal: PortalConfig{
			Port:        getEnv("PORT", "8080"),
			JWTSecret:   os.Getenv("JWT_SECRET"),
			RoutesFile:  os.Getenv("PORTAL_ROUTES_FILE"),
			UpstreamURL: os.Getenv("PORTAL_UPSTREAM_URL"),
			StaticDir:   getEnv("PORTAL_STATIC_DIR", "./web"),
			CORSOrigins: origins,
		},
		CLI: CLIConfig{
			StateFile:    stateFile,
			PollSchedule: getEnv("COLLEGEOS_POLL_SCHEDULE", "@every 30s"),
			UseKeyring:   os.Getenv("COLLEGEOS_NO_KEYRING") == "",
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

// ValidatePortal reports configuration that would make the route guard fail
// every request closed.
func (c *Config) ValidatePortal() error {
	if c.Portal.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required: the portal verifies session tokens with the secret shared with the backend")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
