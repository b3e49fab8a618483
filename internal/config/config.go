package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "500ms" style values in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Server struct {
	ListenAddress string   `yaml:"listen_address"`
	ReadTimeout   Duration `yaml:"read_timeout"`
	WriteTimeout  Duration `yaml:"write_timeout"`
	IdleTimeout   Duration `yaml:"idle_timeout"`
}

type Poll struct {
	// ShortDelay separates requests while a connector has no full snapshot
	// yet; LongDelay applies once it does.
	ShortDelay     Duration `yaml:"short_delay"`
	LongDelay      Duration `yaml:"long_delay"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

type Storage struct {
	Type string `yaml:"type"` // sqlite | memory
	Path string `yaml:"path"`
}

type PriceProvider struct {
	Type      string   `yaml:"type"`
	BaseURL   string   `yaml:"base_url"`
	APIKey    string   `yaml:"api_key"`
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type Price struct {
	Enabled  bool          `yaml:"enabled"`
	Currency string        `yaml:"currency"`
	CacheTTL Duration      `yaml:"cache_ttl"`
	Provider PriceProvider `yaml:"provider"`
}

type Config struct {
	Server  Server  `yaml:"server"`
	Poll    Poll    `yaml:"poll"`
	Storage Storage `yaml:"storage"`
	Price   Price   `yaml:"price"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":9142"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(5 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(5 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(60 * time.Second)
	}
	if c.Poll.ShortDelay == 0 {
		c.Poll.ShortDelay = Duration(500 * time.Millisecond)
	}
	if c.Poll.LongDelay == 0 {
		c.Poll.LongDelay = Duration(time.Minute)
	}
	if c.Poll.RequestTimeout == 0 {
		c.Poll.RequestTimeout = Duration(30 * time.Second)
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "walletwatch.db"
	}
	if c.Price.Currency == "" {
		c.Price.Currency = "EUR"
	}
	if c.Price.Provider.Type == "" {
		c.Price.Provider.Type = "coingecko"
	}
	if c.Price.Provider.Timeout == 0 {
		c.Price.Provider.Timeout = Duration(4 * time.Second)
	}
	if c.Price.CacheTTL == 0 {
		c.Price.CacheTTL = Duration(60 * time.Second)
	}
	if c.Price.Provider.BaseURL == "" {
		c.Price.Provider.BaseURL = "https://api.coingecko.com/api/v3"
	}
}
