// Package config defines process configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load() layers defaults, an optional YAML file, and environment variables.
// - External errors must be wrapped via this package's error helpers.
package config

import "time"

// Config contains everything the pipeline needs to reach both remote
// services. It is built once at start-up and passed by reference to the
// client constructors; nothing reads configuration ambiently.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// OTXURL is the feed API base, e.g. "https://otx.alienvault.com/api/v1".
	OTXURL string `koanf:"otx_url"`

	// OTXAPIKey is sent as the X-OTX-API-KEY header on every feed request.
	OTXAPIKey string `koanf:"otx_api_key"`

	// OTXProxy is an optional proxy URL for feed requests.
	OTXProxy string `koanf:"otx_proxy"`

	// PageSize is the feed page size. The feed misbehaves without an
	// explicit limit, so this is always sent.
	PageSize int `koanf:"page_size"`

	// MaxAgeDays, when positive, restricts the run to pulses modified in
	// the last N days via the feed's modified_since filter.
	MaxAgeDays int `koanf:"max_age_days"`

	// CRITs connection, production and dev variants. Dev selects the dev
	// URL and dev API key.
	CRITsURL       string `koanf:"crits_url"`
	CRITsDevURL    string `koanf:"crits_dev_url"`
	CRITsUsername  string `koanf:"crits_username"`
	CRITsAPIKey    string `koanf:"crits_api_key"`
	CRITsDevAPIKey string `koanf:"crits_dev_api_key"`
	CRITsProxy     string `koanf:"crits_proxy"`
	CRITsVerify    bool   `koanf:"crits_verify"`
	Dev            bool   `koanf:"dev"`

	// Source is the CRITs source label stamped on every event and
	// indicator this process creates.
	Source string `koanf:"source"`

	// DedupeSize bounds the in-process seen-pulse cache.
	DedupeSize int `koanf:"dedupe_size"`

	// PollInterval, when positive, repeats the sync on a ticker instead of
	// exiting after one run.
	PollInterval time.Duration `koanf:"poll_interval"`

	// MetricsAddr, when set, serves Prometheus metrics on this address for
	// the lifetime of the process. Only useful together with PollInterval.
	MetricsAddr string `koanf:"metrics_addr"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		OTXURL:      "https://otx.alienvault.com/api/v1",
		PageSize:    10,
		CRITsVerify: true,
		Source:      "OpenThreatExchange",
		DedupeSize:  50_000,
	}
}

// BaseURL returns the CRITs base URL for the selected variant, without a
// trailing slash.
func (c *Config) BaseURL() string {
	u := c.CRITsURL
	if c.Dev {
		u = c.CRITsDevURL
	}
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// APIKey returns the CRITs API key for the selected variant.
func (c *Config) APIKey() string {
	if c.Dev {
		return c.CRITsDevAPIKey
	}
	return c.CRITsAPIKey
}
