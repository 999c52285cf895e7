package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPollInterval    = "EW_POLL_INTERVAL"
	envAPIBaseURL      = "EW_CF_API_URL"
	envAPIToken        = "EW_CF_API_TOKEN"
	envZoneID          = "EW_CF_ZONE_ID"
	envAccountID       = "EW_CF_ACCOUNT_ID"
	envZoneName        = "EW_ZONE_NAME"
	envGCPProject      = "EW_GCP_PROJECT"
	envStandupURL      = "EW_STANDUP_URL"
	envStandupToken    = "EW_STANDUP_TOKEN"
	envSlackWebhookURL = "EW_SLACK_WEBHOOK_URL"
	envWebhookURL      = "EW_WEBHOOK_URL"
	envAdminToken      = "EW_ADMIN_TOKEN"
	envAdminPort       = "EW_ADMIN_PORT"
	envHealthPort      = "EW_HEALTH_PORT"
	envMetricsPort     = "EW_METRICS_PORT"
	envStatePath       = "EW_STATE_PATH"
	envMarkerPath      = "EW_MARKER_PATH"
	envCatalogFile     = "EW_CATALOG_FILE"
	envWarnPct         = "EW_WARN_PCT"
	envFailPct         = "EW_FAIL_PCT"
	envDryRun          = "EW_DRY_RUN"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultAPIBaseURL   = "https://api.cloudflare.com/client/v4"
	defaultAdminPort    = 8080
	defaultStatePath    = "data/watchdog-state.json"
	defaultMarkerPath   = "data/standup-markers.json"
	defaultWarnPct      = 60
	defaultFailPct      = 80
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	PollInterval    time.Duration
	APIBaseURL      string
	APIToken        string
	ZoneID          string
	AccountID       string
	ZoneName        string
	GCPProject      string
	StandupURL      string
	StandupToken    string
	SlackWebhookURL string
	WebhookURL      string
	AdminToken      string
	AdminPort       int
	HealthPort      int
	MetricsPort     int
	StatePath       string
	MarkerPath      string
	CatalogFile     string
	WarnPct         float64
	FailPct         float64
	DryRun          bool
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval: defaultPollInterval,
		APIBaseURL:   defaultAPIBaseURL,
		AdminPort:    defaultAdminPort,
		StatePath:    defaultStatePath,
		MarkerPath:   defaultMarkerPath,
		WarnPct:      defaultWarnPct,
		FailPct:      defaultFailPct,
	}

	if value, ok := lookupTrimmed(envPollInterval); ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPollInterval, err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envPollInterval)
		}
		cfg.PollInterval = interval
	}

	if value, ok := lookupTrimmed(envAPIBaseURL); ok {
		cfg.APIBaseURL = value
	}
	if value, ok := lookupTrimmed(envAPIToken); ok {
		cfg.APIToken = value
	}
	if value, ok := lookupTrimmed(envZoneID); ok {
		cfg.ZoneID = value
	}
	if value, ok := lookupTrimmed(envAccountID); ok {
		cfg.AccountID = value
	}
	if value, ok := lookupTrimmed(envZoneName); ok {
		cfg.ZoneName = value
	}
	if value, ok := lookupTrimmed(envGCPProject); ok {
		cfg.GCPProject = value
	}
	if value, ok := lookupTrimmed(envStandupURL); ok {
		cfg.StandupURL = value
	}
	if value, ok := lookupTrimmed(envStandupToken); ok {
		cfg.StandupToken = value
	}
	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envAdminToken); ok {
		cfg.AdminToken = value
	}
	if value, ok := lookupTrimmed(envStatePath); ok {
		cfg.StatePath = value
	}
	if value, ok := lookupTrimmed(envMarkerPath); ok {
		cfg.MarkerPath = value
	}
	if value, ok := lookupTrimmed(envCatalogFile); ok {
		cfg.CatalogFile = value
	}

	var err error
	if cfg.AdminPort, err = parsePort(envAdminPort, cfg.AdminPort); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = parsePort(envHealthPort, cfg.HealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = parsePort(envMetricsPort, cfg.MetricsPort); err != nil {
		return Config{}, err
	}
	if cfg.WarnPct, err = parsePct(envWarnPct, cfg.WarnPct); err != nil {
		return Config{}, err
	}
	if cfg.FailPct, err = parsePct(envFailPct, cfg.FailPct); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envDryRun); ok {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	if cfg.ZoneName == "" {
		return Config{}, errors.New("EW_ZONE_NAME is required")
	}
	if cfg.WarnPct >= cfg.FailPct {
		return Config{}, fmt.Errorf("%s must be below %s", envWarnPct, envFailPct)
	}

	if err := validateURL(cfg.APIBaseURL, envAPIBaseURL); err != nil {
		return Config{}, err
	}
	for name, value := range map[string]string{
		envStandupURL:      cfg.StandupURL,
		envSlackWebhookURL: cfg.SlackWebhookURL,
		envWebhookURL:      cfg.WebhookURL,
	} {
		if value == "" {
			continue
		}
		if err := validateURL(value, name); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func parsePort(key string, fallback int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return fallback, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return port, nil
}

func parsePct(key string, fallback float64) (float64, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return fallback, nil
	}
	pct, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if pct <= 0 || pct >= 90 {
		return 0, fmt.Errorf("%s must be above 0 and below the critical cutoff of 90", key)
	}
	return pct, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
