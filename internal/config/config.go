package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pitscout/internal/analyzer"
	"pitscout/internal/backtest"
	"pitscout/internal/logging"
	"pitscout/internal/publish"
	"pitscout/internal/report"
	"pitscout/internal/scanner"
)

// Config represents the application configuration
type Config struct {
	Log      logging.Config  `yaml:"log"`
	Provider ProviderConfig  `yaml:"provider"`
	Stocks   StocksConfig    `yaml:"stocks"`
	Cache    CacheConfig     `yaml:"cache"`
	Scanner  scanner.Config  `yaml:"scanner"`
	Pattern  analyzer.Config `yaml:"pattern"`
	Backtest backtest.Config `yaml:"backtest"`
	Report   report.Config   `yaml:"report"`
	Gitee    publish.Config  `yaml:"gitee"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	Server   ServerConfig    `yaml:"server"`
}

// ProviderConfig selects the bar sources
type ProviderConfig struct {
	Primary      string `yaml:"primary" default:"xuangubao" validate:"oneof=xuangubao yahoo"`
	Fallback     bool   `yaml:"fallback"` // also try the other source when the primary fails
	XuangubaoURL string `yaml:"xuangubao_url" validate:"omitempty,url"`
	YahooURL     string `yaml:"yahoo_url" validate:"omitempty,url"`
	RateLimit    int    `yaml:"rate_limit" default:"120" validate:"gte=1"` // requests per minute
}

// StocksConfig locates the stock list
type StocksConfig struct {
	File        string `yaml:"file" default:"sources/stock_list.csv"`
	LimitUpFile string `yaml:"limit_up_file" default:"sources/stock_limitup.csv"`
}

// CacheConfig holds bar cache settings
type CacheConfig struct {
	MemoryDays int           `yaml:"memory_days" default:"730" validate:"gte=0"` // 0 disables the in-process cache
	Redis      bool          `yaml:"redis"`
	RedisAddr  string        `yaml:"redis_addr" default:"localhost:6379" validate:"required_if=Redis true"`
	Password   string        `yaml:"redis_password"`
	DB         int           `yaml:"redis_db" validate:"gte=0"`
	TTL        time.Duration `yaml:"ttl" default:"6h" validate:"gt=0"`
}

// ScheduleConfig drives the daemon
type ScheduleConfig struct {
	Spec       string   `yaml:"spec" default:"0 30 15 * * 1-5" validate:"required"` // cron with seconds
	Timezone   string   `yaml:"timezone" default:"Asia/Shanghai" validate:"required"`
	RunOnStart bool     `yaml:"run_on_start"`
	DataDir    string   `yaml:"data_dir" default:"data"` // run log
	Holidays   []string `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Addr      string `yaml:"addr" default:":8080" validate:"required"`
	AccessLog bool   `yaml:"access_log"`
	JWTSecret string `yaml:"jwt_secret"` // empty leaves the API open
}

var structValidator = validator.New()

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	// Every default is a literal tag, Set cannot fail on them
	_ = defaults.Set(cfg)
	return cfg
}

// Load loads configuration from a YAML file, fills fields the file leaves out with
// defaults and applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	var doc map[string]interface{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	parsed := *cfg
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	// defaults.Set treats zero as unset; zeros written in the file stand
	keepFileValues(reflect.ValueOf(cfg).Elem(), reflect.ValueOf(parsed), doc)
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GITEE_TOKEN"); v != "" {
		c.Gitee.Token = v
	}
	if v := os.Getenv("GITEE_REPO"); v != "" {
		c.Gitee.Repo = v
	}
	if v := os.Getenv("PITSCOUT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PITSCOUT_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("PITSCOUT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PITSCOUT_WORKERS: %w", err)
		}
		c.Scanner.Workers = n
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Pattern.Validate(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}
	return nil
}
