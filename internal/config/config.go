package config

import (
	"errors"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:5000"

type Config struct {
	// ServerURL is the base URL the channel and REST endpoints hang off
	ServerURL string `yaml:"serverUrl"`

	// CachePath is where the local fallback cache lives
	CachePath string `yaml:"cachePath"`

	Logging Logging `yaml:"logging"`
}

type Logging struct {
	Debug bool `yaml:"debug"`
}

// Load reads the optional YAML config file named by COLLAB_CONFIG, then
// applies environment overrides and defaults.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("COLLAB_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("COLLAB_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("COLLAB_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("serverUrl must be http or https")
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.CachePath == "" {
		c.CachePath = "./data/collab.db"
	}
	return nil
}

// WebSocketURL derives the channel endpoint from the base URL
func (c *Config) WebSocketURL() string {
	ws := c.ServerURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws"
}
