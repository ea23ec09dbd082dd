package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"offer-filter/internal"
)

const AppName = "offer-filter"

// DismissAction selects what the panel's close button does.
type DismissAction string

const (
	// DismissHidePanel persists showSummary=false and leaves filtering on.
	DismissHidePanel DismissAction = "hide-panel"
	// DismissDisable persists enabled=false.
	DismissDisable DismissAction = "disable"
)

type Config struct {
	// DatabaseURL maps to env var DB_URL.
	// When set, settings and pass reports live in Postgres instead of the settings file.
	DatabaseURL string `envconfig:"DB_URL"`

	// SettingsFile maps to SETTINGS_FILE. Empty means $XDG_CONFIG_HOME/offer-filter/settings.yaml.
	SettingsFile string `envconfig:"SETTINGS_FILE"`

	// StartURL maps to START_URL.
	StartURL string `envconfig:"START_URL" default:"https://allegro.pl/listing?string=sluchawki%20bezprzewodowe"`

	// ChromeWSURL attaches to a running Chrome (ws://host:9222/devtools/browser/...) instead of launching one.
	ChromeWSURL string `envconfig:"CHROME_WS_URL"`

	Headless       bool          `envconfig:"HEADLESS" default:"false"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"OfferFilter/1.0"`
	BrowserTimeout time.Duration `envconfig:"BROWSER_TIMEOUT" default:"15s"`

	// BrowserUserAgent overrides the browser's own user agent when set.
	BrowserUserAgent string `envconfig:"BROWSER_USER_AGENT"`

	// Engine timings.
	PollInterval    time.Duration `envconfig:"URL_POLL_INTERVAL" default:"1s"`
	BootDelay       time.Duration `envconfig:"BOOT_DELAY" default:"750ms"`
	RefilterDelay   time.Duration `envconfig:"REFILTER_DELAY" default:"400ms"`
	SettleDelay     time.Duration `envconfig:"SETTLE_DELAY" default:"1200ms"`
	PaginationDelay time.Duration `envconfig:"PAGINATION_DELAY" default:"800ms"`
	ReapplyDelay    time.Duration `envconfig:"REAPPLY_DELAY" default:"50ms"`

	// RateLimit is the minimum spacing between automated page advances on one host.
	RateLimit     time.Duration `envconfig:"RATE_LIMIT" default:"2s"`
	RespectRobots bool          `envconfig:"RESPECT_ROBOTS" default:"false"`

	DismissAction DismissAction `envconfig:"DISMISS_ACTION" default:"hide-panel"`

	// ControlAddr maps to CONTROL_ADDR, e.g. "127.0.0.1:8787". Empty disables the control endpoint.
	ControlAddr string `envconfig:"CONTROL_ADDR"`

	// BatchSize maps to BATCH_SIZE.
	BatchSize int `envconfig:"BATCH_SIZE" default:"20"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load processes environment variables and populates the Config struct.
func Load() (*Config, error) {
	// A missing .env is normal outside development; only complain when it exists but is broken.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			internal.Log.WithError(err).Warn(".env file found but could not be loaded")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the options and fills in DISMISS_ACTION when it is set but empty.
func (c *Config) Validate() error {
	if c.DismissAction == "" {
		c.DismissAction = DismissHidePanel
	}
	switch c.DismissAction {
	case DismissHidePanel, DismissDisable:
	default:
		return fmt.Errorf("DISMISS_ACTION must be %q or %q, got %q", DismissHidePanel, DismissDisable, c.DismissAction)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("URL_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}

// SettingsPath returns the settings file to use, creating its directory when it is the default one.
func (c *Config) SettingsPath() (string, error) {
	if c.SettingsFile != "" {
		return c.SettingsFile, nil
	}
	path, err := xdg.ConfigFile(filepath.Join(AppName, "settings.yaml"))
	if err != nil {
		return "", fmt.Errorf("resolve settings path: %w", err)
	}
	return path, nil
}
