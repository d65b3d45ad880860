package shared

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvAddr          = "DAIRY_ADDR"
	EnvPort          = "PORT"
	EnvDBDriver      = "DAIRY_DB_DRIVER"
	EnvDBDSN         = "DAIRY_DB_DSN"
	EnvWebhookSecret = "DAIRY_WEBHOOK_SECRET"
	EnvIdentityURL   = "DAIRY_IDENTITY_URL"
	EnvIdentityKey   = "DAIRY_IDENTITY_KEY"
	EnvLogLevel      = "DAIRY_LOG_LEVEL"
	EnvLogFormat     = "DAIRY_LOG_FORMAT"

	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config holds server configuration. It is read once at startup and passed
// down explicitly; nothing below cmd/ reads the environment.
type Config struct {
	Addr          string
	DBDriver      string
	DBDSN         string
	WebhookSecret string
	IdentityURL   string
	IdentityKey   string
	LogLevel      string
	LogFormat     string
}

// LoadConfig reads configuration from the environment with dev defaults.
// It does not validate; call Validate once flags have been applied.
func LoadConfig() Config {
	addr := envOr(EnvAddr, "")
	if addr == "" {
		if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	return Config{
		Addr:          addr,
		DBDriver:      envOr(EnvDBDriver, DriverSQLite),
		DBDSN:         envOr(EnvDBDSN, "./data/dairyops.db"),
		WebhookSecret: os.Getenv(EnvWebhookSecret),
		IdentityURL:   envOr(EnvIdentityURL, ""),
		IdentityKey:   envOr(EnvIdentityKey, ""),
		LogLevel:      envOr(EnvLogLevel, "info"),
		LogFormat:     envOr(EnvLogFormat, LogFormatJSON),
	}
}

// ValidateStore checks the subset of settings needed to open the database.
func (c Config) ValidateStore() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvDBDriver, DriverSQLite, DriverPostgres)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvDBDSN)
	}
	return nil
}

// Validate checks everything the HTTP server needs. An empty webhook secret
// is allowed here; the webhook route reports it as a misconfiguration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvAddr)
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.IdentityURL == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvIdentityURL)
	}
	if !strings.HasPrefix(c.IdentityURL, "http://") && !strings.HasPrefix(c.IdentityURL, "https://") {
		return fmt.Errorf("invalid %s: must be an http(s) URL", EnvIdentityURL)
	}
	if c.IdentityKey == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvIdentityKey)
	}
	switch c.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvLogFormat, LogFormatJSON, LogFormatConsole)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
