package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const EnvPrefix = "USERS"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"

	EventsNone  = "none"
	EventsLog   = "log"
	EventsKafka = "kafka"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr            string
		AllowReset      bool
		ShutdownTimeout time.Duration
	}
	Store struct {
		Driver     string
		SQLitePath string
	}
	Log struct {
		Level  string
		Format string
	}
	Events struct {
		Driver  string
		Brokers []string
		Topic   string
	}
}

// NewViper returns a viper instance with defaults, env binding and, when
// configFile is empty, an optional config.* file from the working directory.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.allowreset", false)
	v.SetDefault("server.shutdowntimeout", "10s")
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.sqlitepath", ":memory:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("events.driver", EventsNone)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "users.events")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	return v
}

// FromViper exports ./.env, reads the config file (required only when one was
// named explicitly) and decodes the result.
func FromViper(v *viper.Viper) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	return FromViper(NewViper(""))
}

func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))

	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Events.Driver {
	case EventsNone, EventsLog:
	case EventsKafka:
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("events.brokers is required for the kafka driver")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// NewLogger builds the process logger described by the log section.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if strings.EqualFold(c.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// loadDotEnv exports variables from path that are not already set. A missing
// file is fine; a malformed one is not.
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
