package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/aluiziolira/go-scrape-fuel/models"
)

// Config holds collector configuration.
type Config struct {
	BaseURL    string
	Source     string
	Categories []string

	MaxPages    int
	Parallelism int

	Hours     int
	Latitude  float64
	Longitude float64
	RadiusKm  int
	Order     string

	PaceInterval       time.Duration
	Timeout            time.Duration
	RateLimitRetries   int
	ServerErrorRetries int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	JitterMin          float64
	JitterMax          float64

	OutputDir          string
	SessionCookie      string
	TokenPatterns      []string
	ScanBundles        bool
	MaxScriptBundles   int
	BundleCacheSize    int
	BundleDelay        time.Duration
	DebugBootstrapFile string

	UserAgent   string
	MetricsAddr string
	Schedule    string
}

// DefaultConfig returns the production defaults for the precodahora target.
func DefaultConfig() *Config {
	defaults := models.DefaultCategories()
	categories := make([]string, len(defaults))
	for i, cat := range defaults {
		categories[i] = string(cat)
	}

	return &Config{
		BaseURL:            "https://precodahora.ba.gov.br/produtos/",
		Source:             "precodahora",
		Categories:         categories,
		MaxPages:           50,
		Parallelism:        1,
		Hours:              72,
		Latitude:           -12.97111,
		Longitude:          -38.51083,
		RadiusKm:           100,
		Order:              "preco.asc",
		PaceInterval:       1200 * time.Millisecond,
		Timeout:            30 * time.Second,
		RateLimitRetries:   6,
		ServerErrorRetries: 4,
		RetryBackoff:       2 * time.Second,
		RetryBackoffMax:    60 * time.Second,
		JitterMin:          0.25,
		JitterMax:          0.75,
		OutputDir:          "data/raw",
		SessionCookie:      "session",
		ScanBundles:        true,
		MaxScriptBundles:   25,
		BundleCacheSize:    64,
		BundleDelay:        100 * time.Millisecond,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36",
		MetricsAddr: "",
		Schedule:    "",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if cat == "" {
			return fmt.Errorf("categories cannot contain empty entries")
		}
		if _, dup := seen[cat]; dup {
			return fmt.Errorf("duplicate category %q", cat)
		}
		seen[cat] = struct{}{}
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Hours <= 0 {
		return fmt.Errorf("hours window must be positive")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	if c.RadiusKm <= 0 {
		return fmt.Errorf("radius must be positive")
	}
	if c.Order == "" {
		return fmt.Errorf("order cannot be empty")
	}
	if c.PaceInterval < 0 {
		return fmt.Errorf("pace interval cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RateLimitRetries < 0 {
		return fmt.Errorf("rate limit retries cannot be negative")
	}
	if c.ServerErrorRetries < 0 {
		return fmt.Errorf("server error retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.JitterMin < 0 || c.JitterMax < 0 {
		return fmt.Errorf("jitter bounds cannot be negative")
	}
	if c.JitterMin > c.JitterMax {
		return fmt.Errorf("jitter min (%v) cannot exceed jitter max (%v)", c.JitterMin, c.JitterMax)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.SessionCookie == "" {
		return fmt.Errorf("session cookie name cannot be empty")
	}
	for _, pattern := range c.TokenPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid token pattern %q: %w", pattern, err)
		}
	}
	if c.ScanBundles {
		if c.MaxScriptBundles <= 0 {
			return fmt.Errorf("max script bundles must be positive when bundle scanning is enabled")
		}
		if c.BundleCacheSize <= 0 {
			return fmt.Errorf("bundle cache size must be positive when bundle scanning is enabled")
		}
		if c.BundleDelay < 0 {
			return fmt.Errorf("bundle delay cannot be negative")
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
