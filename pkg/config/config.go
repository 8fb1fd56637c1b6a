// Package config loads the client configuration: a YAML file overlaid
// with CHATFEED_* environment variables. Flags on the binaries win over
// both.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL   string  `yaml:"base_url"`
		Token     string  `yaml:"token"`
		TimeoutMS int     `yaml:"timeout_ms"`
		RPS       float64 `yaml:"rps"`
		Burst     int     `yaml:"burst"`
	} `yaml:"api"`
	Cache struct {
		PageSize       int `yaml:"page_size"`
		MaxPagesPerKey int `yaml:"max_pages_per_key"`
		// IntakeCapacity bounds the raw event frame queue between the
		// transport and the reconciler.
		IntakeCapacity int `yaml:"intake_capacity"`
	} `yaml:"cache"`
	SignedURLs struct {
		RefreshBufferSec int `yaml:"refresh_buffer_sec"`
	} `yaml:"signed_urls"`
	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"archive"`
	Sweep struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"sweep"`
	Identity struct {
		UserID string `yaml:"user_id"`
	} `yaml:"identity"`
	Debug struct {
		// Addr enables the local debug/metrics server when non-empty,
		// e.g. "127.0.0.1:8790".
		Addr string `yaml:"addr"`
	} `yaml:"debug"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.API.TimeoutMS = 10000
	c.API.RPS = 5
	c.API.Burst = 10
	c.Cache.PageSize = 50
	c.Cache.MaxPagesPerKey = 5
	c.Cache.IntakeCapacity = 4096
	c.SignedURLs.RefreshBufferSec = 300
	c.Sweep.Cron = "0 * * * *"
	c.Logging.Level = "info"
	c.Logging.Format = "text"
	return c
}

// Load reads the file at path (when non-empty) over the defaults, then
// overlays environment variables.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("CHATFEED_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CHATFEED_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("CHATFEED_USER_ID"); v != "" {
		c.Identity.UserID = v
	}
	if v := os.Getenv("CHATFEED_ARCHIVE_PATH"); v != "" {
		c.Archive.Path = v
		c.Archive.Enabled = true
	}
	if v := os.Getenv("CHATFEED_DEBUG_ADDR"); v != "" {
		c.Debug.Addr = v
	}
	if v := os.Getenv("CHATFEED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHATFEED_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CHATFEED_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.PageSize = n
		}
	}
}

// APITimeout returns the fetch timeout as a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutMS) * time.Millisecond
}

// RefreshBuffer returns the signed-URL freshness window as a duration.
func (c Config) RefreshBuffer() time.Duration {
	return time.Duration(c.SignedURLs.RefreshBufferSec) * time.Second
}

// Validate rejects configurations the app cannot start with.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Identity.UserID == "" {
		return fmt.Errorf("identity.user_id is required")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive.enabled")
	}
	return nil
}
