package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"StockCast/pkg/cache"
	"StockCast/pkg/clickhouse"
	xhttp "StockCast/pkg/http"
	"StockCast/pkg/kafka"
	"StockCast/pkg/logger"
	"StockCast/pkg/queue"
	"StockCast/pkg/util"
)

type Config struct {
	Environment string                  `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         logger.Config           `yaml:"log"`
	Server      xhttp.ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig           `yaml:"metrics"`
	RateLimit   RateLimitConfig         `yaml:"rate_limit"`
	ClickHouse  clickhouse.ClientConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig             `yaml:"kafka"`
	Redis       cache.RedisConfig       `yaml:"redis"`
	Queue       queue.Config            `yaml:"queue"`
	Predictor   PredictorConfig         `yaml:"predictor"`
	Forecast    ForecastConfig          `yaml:"forecast"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// RateLimitConfig is a per client token bucket on the forecast routes.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	Burst   float64 `yaml:"burst" default:"20" validate:"gt=0"`
	PerSec  float64 `yaml:"per_sec" default:"5" validate:"gt=0"`

	// Buckets untouched for IdleTTL are dropped every PruneEvery.
	PruneEvery time.Duration `yaml:"prune_every" default:"1m" validate:"gt=0"`
	IdleTTL    time.Duration `yaml:"idle_ttl" default:"10m" validate:"gt=0"`
}

type KafkaConfig struct {
	Enabled  bool                 `yaml:"enabled" default:"true"`
	Brokers  []string             `yaml:"brokers" default:"[\"localhost:9092\"]"`
	Topics   KafkaTopics          `yaml:"topics"`
	Producer kafka.ProducerConfig `yaml:"producer"`
	Consumer kafka.ConsumerConfig `yaml:"consumer"`
}

type KafkaTopics struct {
	Published string `yaml:"published" default:"forecast.published" validate:"required"`
	Requests  string `yaml:"requests" default:"forecast.requests"`
}

type PredictorConfig struct {
	Type         string        `yaml:"type" default:"http" validate:"oneof=http last drift"`
	Name         string        `yaml:"name" default:"lstm"`
	URL          string        `yaml:"url" default:"http://localhost:8000"`
	Timeout      time.Duration `yaml:"timeout" default:"5s"`
	Retries      int           `yaml:"retries" default:"2" validate:"gte=0"`
	RetryBackoff time.Duration `yaml:"retry_backoff" default:"200ms"`
}

type TickTier struct {
	Below float64 `yaml:"below" json:"below"`
	Tick  float64 `yaml:"tick" json:"tick"`
}

type SessionConfig struct {
	Open     string   `yaml:"open" default:"09:00"`
	Close    string   `yaml:"close" default:"14:45"`
	Timezone string   `yaml:"timezone" default:"Asia/Ho_Chi_Minh"`
	Holidays []string `yaml:"holidays"`
}

type ForecastConfig struct {
	WindowSize     int           `yaml:"window_size" default:"60" validate:"gte=1"`
	DefaultHorizon int           `yaml:"default_horizon" default:"12" validate:"gte=1"`
	MaxHorizon     int           `yaml:"max_horizon" default:"500" validate:"gte=1"`
	Step           time.Duration `yaml:"step" default:"5m" validate:"gt=0"`
	Timeframe      string        `yaml:"timeframe" default:"5m"`
	FitSample      string        `yaml:"fit_sample" default:"window" validate:"oneof=window history"`
	// HistorySize is how many candles are loaded per forecast; at least WindowSize.
	HistorySize    int           `yaml:"history_size" default:"240"`
	UpperFactor    float64       `yaml:"upper_factor" default:"1.07" validate:"gt=1"`
	LowerFactor    float64       `yaml:"lower_factor" default:"0.93" validate:"gt=0,lt=1"`
	StayInBand     bool          `yaml:"stay_in_band"`
	TickTable      []TickTier    `yaml:"tick_table" default:"[{\"below\":10000,\"tick\":10},{\"below\":50000,\"tick\":50},{\"tick\":100}]" validate:"min=1"`
	Session        SessionConfig `yaml:"session"`
	PredictTimeout time.Duration `yaml:"predict_timeout" default:"30s"`
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"1m"`
	BackfillLock   time.Duration `yaml:"backfill_lock" default:"10m"`
	BatchWorkers   int           `yaml:"batch_workers" default:"4" validate:"gte=1"`
	Symbols        []string      `yaml:"symbols"`
}

var validate = validator.New()

// Load reads a YAML file over the tag defaults and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env file, then config from YAML, then
// applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STOCKCAST_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		c.Predictor.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Forecast.Symbols = util.SplitCSV(v)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	c.Forecast.Symbols = util.UpperAll(c.Forecast.Symbols)

	f := c.Forecast
	if f.DefaultHorizon > f.MaxHorizon {
		return fmt.Errorf("forecast.default_horizon %d exceeds max_horizon %d", f.DefaultHorizon, f.MaxHorizon)
	}
	if f.HistorySize < f.WindowSize {
		return fmt.Errorf("forecast.history_size %d must be >= window_size %d", f.HistorySize, f.WindowSize)
	}
	if c.Predictor.Type == "http" && c.Predictor.URL == "" {
		return fmt.Errorf("predictor.url is required for the http predictor")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
