package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.ListenAddress != ":9142" {
		t.Errorf("listen address = %q", c.Server.ListenAddress)
	}
	if c.Poll.ShortDelay.Std() != 500*time.Millisecond {
		t.Errorf("short delay = %v", c.Poll.ShortDelay)
	}
	if c.Poll.LongDelay.Std() != time.Minute {
		t.Errorf("long delay = %v", c.Poll.LongDelay)
	}
	if c.Storage.Type != "sqlite" || c.Storage.Path != "walletwatch.db" {
		t.Errorf("storage = %+v", c.Storage)
	}
	if c.Price.Currency != "EUR" || c.Price.Provider.Type != "coingecko" {
		t.Errorf("price = %+v", c.Price)
	}
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load(writeConfig(t, `
server:
  listen_address: ":9000"
poll:
  short_delay: 250ms
  long_delay: 5m
storage:
  type: memory
price:
  enabled: true
  currency: USD
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.ListenAddress != ":9000" {
		t.Errorf("listen address = %q", c.Server.ListenAddress)
	}
	if c.Poll.ShortDelay.Std() != 250*time.Millisecond || c.Poll.LongDelay.Std() != 5*time.Minute {
		t.Errorf("poll = %+v", c.Poll)
	}
	if c.Storage.Type != "memory" {
		t.Errorf("storage type = %q", c.Storage.Type)
	}
	if !c.Price.Enabled || c.Price.Currency != "USD" {
		t.Errorf("price = %+v", c.Price)
	}
	// Unset fields still get defaults.
	if c.Poll.RequestTimeout.Std() != 30*time.Second {
		t.Errorf("request timeout = %v", c.Poll.RequestTimeout)
	}
}

func TestDefaultMatchesEmptyFile(t *testing.T) {
	fromFile, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if def := Default(); *def != *fromFile {
		t.Errorf("Default() = %+v, want %+v", def, fromFile)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "::not yaml::")); err == nil {
		t.Fatal("expected an error for invalid yaml")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	if _, err := Load(writeConfig(t, "poll:\n  short_delay: fast\n")); err == nil {
		t.Fatal("expected an error for an invalid duration")
	}
}
