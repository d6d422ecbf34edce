// Package config loads sneakercart settings from a YAML file with
// SNEAKERCART_* environment overrides.
package config

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	API      APIConfig   `yaml:"api"`
	Auth     AuthConfig  `yaml:"auth"`
	Local    LocalConfig `yaml:"local"`
	View     ViewConfig  `yaml:"view"`
	Currency string      `yaml:"currency"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	AuthScheme string        `yaml:"auth_scheme"`
	Retry      RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

type AuthConfig struct {
	// Token selects the signed-in cart when set.
	Token string `yaml:"token"`
}

type LocalConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite, a connection string for postgres and
	// an address or redis:// URL for redis.
	DSN      string `yaml:"dsn"`
	Slot     string `yaml:"slot"`
	DeviceID string `yaml:"device_id"`
}

type ViewConfig struct {
	Concurrency int `yaml:"concurrency"`
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    10 * time.Second,
			AuthScheme: "Token",
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 200 * time.Millisecond,
			},
		},
		Local: LocalConfig{
			Driver: DriverSQLite,
			DSN:    "sneakercart.db",
			Slot:   "cart",
		},
		View: ViewConfig{
			Concurrency: 4,
		},
		Currency: "RUB",
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("os.ReadFile: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("yaml.Unmarshal: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applyEnvOverrides: %w", err)
	}

	if cfg.Local.DeviceID == "" {
		cfg.Local.DeviceID = defaultDeviceID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SNEAKERCART_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("SNEAKERCART_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SNEAKERCART_API_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv("SNEAKERCART_AUTH_SCHEME"); v != "" {
		c.API.AuthScheme = v
	}
	if v := os.Getenv("SNEAKERCART_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SNEAKERCART_RETRY_ATTEMPTS: %w", err)
		}
		c.API.Retry.MaxAttempts = n
	}
	if v := os.Getenv("SNEAKERCART_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("SNEAKERCART_LOCAL_DRIVER"); v != "" {
		c.Local.Driver = v
	}
	if v := os.Getenv("SNEAKERCART_LOCAL_DSN"); v != "" {
		c.Local.DSN = v
	}
	if v := os.Getenv("SNEAKERCART_DEVICE_ID"); v != "" {
		c.Local.DeviceID = v
	}
	if v := os.Getenv("SNEAKERCART_CURRENCY"); v != "" {
		c.Currency = v
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Local.Driver {
	case DriverSQLite, DriverPostgres, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("local.driver[%s] is not supported", c.Local.Driver)
	}

	if c.Local.Driver != DriverMemory && c.Local.DSN == "" {
		return fmt.Errorf("local.dsn is empty")
	}
	if c.Local.Slot == "" {
		return fmt.Errorf("local.slot is empty")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is empty")
	}
	if c.API.Retry.MaxAttempts < 1 {
		return fmt.Errorf("api.retry.max_attempts must be at least 1")
	}
	if c.View.Concurrency < 1 {
		return fmt.Errorf("view.concurrency must be at least 1")
	}
	if _, err := c.CurrencyUnit(); err != nil {
		return err
	}

	return nil
}

func (c *Config) CurrencyUnit() (currency.Unit, error) {
	unit, err := currency.ParseISO(c.Currency)
	if err != nil {
		return currency.Unit{}, fmt.Errorf("currency[%s] is not valid: %w", c.Currency, err)
	}
	return unit, nil
}

// SlotName scopes the guest slot to this device, so that shared stores
// such as postgres and redis keep one guest cart per device.
func (c *Config) SlotName() string {
	if c.Local.DeviceID == "" {
		return c.Local.Slot
	}
	return c.Local.Slot + ":" + c.Local.DeviceID
}

func defaultDeviceID() string {
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(host+"/"+name)).String()
}
