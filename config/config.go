// Package config loads the layered application settings: embedded defaults,
// an environment-specific YAML file, and APP_-prefixed environment variable
// overrides, in that order.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultConfig enumerates every key with its default value. Viper only
// applies environment overrides to keys it already knows, so a key missing
// here cannot be set from the environment either.
//
//go:embed config.default.yaml
var defaultConfig []byte

// Settings is the full application configuration.
type Settings struct {
	App         AppSettings         `mapstructure:"app"`
	TodoHandler TodoHandlerSettings `mapstructure:"todo_handler"`
	Session     SessionSettings     `mapstructure:"session"`
	Store       StoreSettings       `mapstructure:"store"`
	Log         LogSettings         `mapstructure:"log"`
}

type AppSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port the server binds to.
func (a AppSettings) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type TodoHandlerSettings struct {
	// StoreInterval is the write-behind cadence in seconds.
	StoreInterval int `mapstructure:"store_interval"`
}

// Interval returns the write-behind cadence as a duration.
func (t TodoHandlerSettings) Interval() time.Duration {
	return time.Duration(t.StoreInterval) * time.Second
}

type SessionSettings struct {
	SecretFile string `mapstructure:"secret_file"`
}

type StoreSettings struct {
	// Driver selects the backend: postgres, redis, sqlite or memory.
	Driver   string           `mapstructure:"driver"`
	Postgres PostgresSettings `mapstructure:"postgres"`
	Redis    RedisSettings    `mapstructure:"redis"`
	SQLite   SQLiteSettings   `mapstructure:"sqlite"`
}

type PostgresSettings struct {
	URI string `mapstructure:"uri"`
}

type RedisSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the host:port of the redis server.
func (r RedisSettings) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type SQLiteSettings struct {
	Path string `mapstructure:"path"`
}

type LogSettings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Environment names the running deployment flavour.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvProduction Environment = "production"
)

// ParseEnvironment validates an APP_ENVIRONMENT value. Empty means local.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(s) {
	case "", "local":
		return EnvLocal, nil
	case "production":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("%q is not a supported environment, use either local or production", s)
	}
}

// Load reads the settings for the environment named by APP_ENVIRONMENT.
// dir holds the per-environment files (local.yaml, production.yaml); they
// layer over the embedded defaults, and APP_-prefixed environment variables
// layer over both, with __ separating nesting levels, so APP_APP__PORT=5001
// sets app.port.
func Load(dir string) (*Settings, error) {
	env, err := ParseEnvironment(os.Getenv("APP_ENVIRONMENT"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultConfig)); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}

	v.SetConfigFile(filepath.Join(dir, string(env)+".yaml"))
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("read %s config: %w", env, err)
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &s, nil
}
