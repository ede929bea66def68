// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read at startup when no -config flag is given.
const DefaultPath = "config.yaml"

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App struct {
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Database struct {
		Driver string `yaml:"driver"`
		// URI takes precedence over the individual host fields. For the
		// postgres driver it is the lib/pq DSN.
		URI  string `yaml:"uri"`
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Name string `yaml:"name"`
		User string `yaml:"user"`
		Pass string `yaml:"pass"`
	} `yaml:"database"`

	Pool struct {
		Min            int           `yaml:"min"`
		Max            int           `yaml:"max"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	} `yaml:"pool"`

	RabbitMQ struct {
		URL string `yaml:"url"`
	} `yaml:"rabbitmq"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Port = 3000
	cfg.App.Env = "development"

	cfg.Database.Driver = DriverMongo
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 27017
	cfg.Database.Name = "myApp"

	cfg.Pool.Min = 1
	cfg.Pool.Max = 5
	cfg.Pool.ConnectTimeout = 30 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig reads path on top of the defaults and applies environment
// overrides. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is LoadConfig for a file that may not exist. A missing
// file yields the defaults with environment overrides applied.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = ""
	}
	return LoadConfig(path)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", v, err)
		}
		c.App.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Pool.Max < 1 {
		return fmt.Errorf("pool.max must be at least 1, got %d", c.Pool.Max)
	}
	if c.Pool.Min < 0 || c.Pool.Min > c.Pool.Max {
		return fmt.Errorf("pool.min must be between 0 and pool.max (%d), got %d", c.Pool.Max, c.Pool.Min)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app.port %d", c.App.Port)
	}
	return nil
}

// MongoURI builds the connection string the same way for every pooled client.
func (c *Config) MongoURI() string {
	if c.Database.URI != "" {
		return c.Database.URI
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.Name,
	}
	if c.Database.User != "" && c.Database.Pass != "" {
		u.User = url.UserPassword(c.Database.User, c.Database.Pass)
	}
	return u.String()
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}
