package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Stats    StatsConfig    `yaml:"stats"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
	Environment    string   `yaml:"environment"`
}

type RealtimeConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
	Sampler  string        `yaml:"sampler"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	Seed        bool   `yaml:"seed"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	SamplerSynthetic = "synthetic"
	SamplerHost      = "host"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        5000,
			Host:        "127.0.0.1",
			Environment: "development",
		},
		Realtime: RealtimeConfig{
			SendBuffer:   64,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			PongTimeout:  60 * time.Second,
		},
		Stats: StatsConfig{
			Interval: 5 * time.Second,
			Sampler:  SamplerSynthetic,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Seed:   true,
		},
		Redis: RedisConfig{
			Channel: "apexops:events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = defaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("APEXOPS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APEXOPS_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("APEXOPS_AUTH_TOKEN"); ok {
		c.Server.AuthToken = v
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		c.Store.DatabaseURL = v
		c.Store.Driver = DriverPostgres
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("server.max_connections must not be negative")
	}
	if c.Realtime.SendBuffer <= 0 {
		return errors.New("realtime.send_buffer must be positive")
	}
	if c.Realtime.PingInterval >= c.Realtime.PongTimeout {
		return errors.New("realtime.ping_interval must be shorter than realtime.pong_timeout")
	}
	if c.Stats.Interval <= 0 {
		return errors.New("stats.interval must be positive")
	}
	switch c.Stats.Sampler {
	case SamplerSynthetic, SamplerHost:
	default:
		return fmt.Errorf("unknown stats.sampler %q", c.Stats.Sampler)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Redis.URL != "" && c.Redis.Channel == "" {
		return errors.New("redis.channel is required when redis.url is set")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
