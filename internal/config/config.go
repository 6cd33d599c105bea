package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrUnknownBackend is returned for a token backend other than badger or redis.
var ErrUnknownBackend = errors.New("unknown token backend")

const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	API   APIConfig
	Token TokenConfig
	Log   LogConfig
}

// APIConfig points at the article service.
type APIConfig struct {
	URL     string
	Timeout time.Duration
}

// TokenConfig selects where the session token is kept.
type TokenConfig struct {
	Backend   string
	Path      string
	RedisAddr string `mapstructure:"redis_addr"`
	Key       string
}

type LogConfig struct {
	Verbose bool
}

// New returns a viper instance with defaults, the config file (if any) and
// DESK_* environment overrides applied. Callers bind flags on top of it.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.url", "http://localhost:9000/api")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("token.backend", BackendBadger)
	v.SetDefault("token.path", filepath.Join(dataDir(), "token"))
	v.SetDefault("token.redis_addr", "localhost:6379")
	v.SetDefault("token.key", "token")
	v.SetDefault("log.verbose", false)

	v.SetConfigType("yaml")
	if cfgPath := os.Getenv("DESK_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "article-desk"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file when present and decodes v into a Config.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("api.url must not be empty")
	}
	switch c.Token.Backend {
	case BackendBadger, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Token.Backend)
	}
	return nil
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "article-desk")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "article-desk")
}
