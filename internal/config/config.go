package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrMissingAPIKey = errors.New("OpenWeatherMap API key is not set")
	ErrTooManyArgs   = errors.New("too many arguments")
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the immutable startup configuration. It is built once by Load and
// passed by value into the components that need it.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	OpenWeatherMap OpenWeatherMapConfig `mapstructure:"openweathermap"`
	Weather        WeatherConfig        `mapstructure:"weather"`
	RateLimiter    RateLimiterConfig    `mapstructure:"rate_limiter"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Log            LogConfig            `mapstructure:"log"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              string        `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type OpenWeatherMapConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	Units   string        `mapstructure:"units"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WeatherConfig struct {
	Path        string `mapstructure:"path"`
	DefaultCity string `mapstructure:"default_city"`
}

// LimitConfig describes a token bucket. Rate is in requests per minute.
type LimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type RateLimiterConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Backend        string        `mapstructure:"backend"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout"`
	Global         LimitConfig   `mapstructure:"global"`
	Param          LimitConfig   `mapstructure:"param"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_header_timeout", 15*time.Second)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("openweathermap.api_url", "https://api.openweathermap.org/data/2.5/weather")
	v.SetDefault("openweathermap.api_key", "")
	v.SetDefault("openweathermap.units", "metric")
	v.SetDefault("openweathermap.timeout", 10*time.Second)

	v.SetDefault("weather.path", "/weather")
	v.SetDefault("weather.default_city", "")

	v.SetDefault("rate_limiter.enabled", false)
	v.SetDefault("rate_limiter.backend", BackendMemory)
	v.SetDefault("rate_limiter.cleanup_timeout", 3*time.Minute)
	v.SetDefault("rate_limiter.global.rate", 10.0)
	v.SetDefault("rate_limiter.global.burst", 10)
	v.SetDefault("rate_limiter.param.rate", 2.0)
	v.SetDefault("rate_limiter.param.burst", 2)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"api-key":          "openweathermap.api_key",
	"api-url":          "openweathermap.api_url",
	"city":             "weather.default_city",
	"host":             "server.host",
	"port":             "server.port",
	"upstream-timeout": "openweathermap.timeout",
	"log-level":        "log.level",
	"rate-limit":       "rate_limiter.enabled",
}

// NewFlagSet declares the command line flags understood by Load. Usage and
// help go to output.
func NewFlagSet(name string, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.String("config", "", "path to a YAML config file")
	fs.String("api-key", "", "OpenWeatherMap API key")
	fs.String("api-url", "", "OpenWeatherMap current weather endpoint")
	fs.String("city", "", "city used when a request has no city parameter")
	fs.String("host", "", "listen host")
	fs.String("port", "", "listen port")
	fs.Duration("upstream-timeout", 0, "timeout of the upstream request")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Bool("rate-limit", false, "enable per-client rate limiting")
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [flags] <API_KEY> [CITY]\n\nFlags:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// ApplyArgs maps the positional arguments <API_KEY> [CITY] onto their flags.
// Explicit flags win over positional arguments.
func ApplyArgs(fs *pflag.FlagSet) error {
	args := fs.Args()
	if len(args) > 2 {
		return fmt.Errorf("%w: got %d, want at most 2", ErrTooManyArgs, len(args))
	}
	names := []string{"api-key", "city"}
	for i, arg := range args {
		if fs.Changed(names[i]) {
			continue
		}
		if err := fs.Set(names[i], arg); err != nil {
			return err
		}
	}
	return nil
}

// Load resolves the configuration from defaults, config.yaml, .env, the
// environment and the parsed flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	_ = godotenv.Load()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	v.SetConfigType("yaml")
	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		if root, err := getProjectRoot(); err == nil {
			v.AddConfigPath(root)
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OpenWeatherMap.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.OpenWeatherMap.APIURL == "" {
		return errors.New("openweathermap.api_url must not be empty")
	}
	if c.OpenWeatherMap.Timeout <= 0 {
		return fmt.Errorf("openweathermap.timeout must be positive, got %s", c.OpenWeatherMap.Timeout)
	}
	if !strings.HasPrefix(c.Weather.Path, "/") {
		return fmt.Errorf("weather.path must start with '/', got %q", c.Weather.Path)
	}
	if c.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	switch c.RateLimiter.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("rate_limiter.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.RateLimiter.Backend)
	}
	return nil
}

func getProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}
