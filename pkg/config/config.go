package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Version     string `yaml:"version" default:"1.0.0"`
	Server      struct {
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level        string        `yaml:"level" default:"info"`
		Format       string        `yaml:"format" default:"json"`
		Output       string        `yaml:"output" default:"stdout"`
		CollectTopic string        `yaml:"collect_topic"`
		FlushEvery   time.Duration `yaml:"flush_every" default:"30s"`
	} `yaml:"logging"`
	Signals struct {
		CacheTTL      time.Duration `yaml:"cache_ttl" default:"60s"`
		CacheBackend  string        `yaml:"cache_backend" default:"memory"` // memory, redis, layered
		CacheMaxSize  int           `yaml:"cache_max_size" default:"10000"`
		DefaultWindow int           `yaml:"default_window" default:"100"`
		EventsTopic   string        `yaml:"events_topic"`
	} `yaml:"signals"`
	Models struct {
		DefaultVersion string `yaml:"default_version" default:"1.0.0"`
		Store          string `yaml:"store" default:"file"` // file or clickhouse
		Dir            string `yaml:"dir" default:"./models"`
		Estimators     int    `yaml:"estimators" default:"100"`
		MaxDepth       int    `yaml:"max_depth" default:"10"`
		Seed           int64  `yaml:"seed" default:"42"`
	} `yaml:"models"`
	Training struct {
		Queue           string        `yaml:"queue" default:"memory"`     // memory or redis
		QueueConsumer   string        `yaml:"queue_consumer"`             // stable per-process name, defaults to the hostname
		JobStore        string        `yaml:"job_store" default:"memory"` // memory or redis
		Workers         int           `yaml:"workers" default:"1"`
		QueueSize       int           `yaml:"queue_size" default:"64"`
		RetryLimit      int           `yaml:"retry_limit" default:"3"`
		RetryDelay      time.Duration `yaml:"retry_delay" default:"2s"`
		DefaultEpisodes int           `yaml:"default_episodes" default:"100"`
		JobTTL          time.Duration `yaml:"job_ttl" default:"24h"`
		RateLimit       float64       `yaml:"rate_limit" default:"1"`
		RateBurst       int           `yaml:"rate_burst" default:"5"`
		EventsTopic     string        `yaml:"events_topic"`
	} `yaml:"training"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"tradesync"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		MinIdle  int    `yaml:"min_idle" default:"2"`

		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		IOTimeout   time.Duration `yaml:"io_timeout" default:"3s"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled       bool          `yaml:"enabled"`
		Host          string        `yaml:"host" default:"localhost"`
		Port          int           `yaml:"port" default:"9000"`
		Database      string        `yaml:"database" default:"tradesync"`
		User          string        `yaml:"user" default:"default"`
		Password      string        `yaml:"password"`
		CandlesPrefix string        `yaml:"candles_prefix" default:"candles"`
		ArtifactTable string        `yaml:"artifact_table" default:"model_artifacts"`
		DialTimeout   time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout   time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecTime   time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Sentiment struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"sentiment"`
}

// Default returns a config populated only from struct-tag defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills unset fields with defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML (or defaults when path is empty) and
// overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("MODEL_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("SENTIMENT_URL"); v != "" {
		c.Sentiment.URL = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Signals.CacheTTL <= 0 {
		return fmt.Errorf("signals.cache_ttl must be positive")
	}
	switch c.Signals.CacheBackend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("signals.cache_backend must be 'memory', 'redis' or 'layered', got '%s'", c.Signals.CacheBackend)
	}
	switch c.Models.Store {
	case "file", "clickhouse":
	default:
		return fmt.Errorf("models.store must be 'file' or 'clickhouse', got '%s'", c.Models.Store)
	}
	if c.Models.Store == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("models.store 'clickhouse' requires clickhouse.enabled")
	}
	if c.Models.Estimators <= 0 || c.Models.MaxDepth <= 0 {
		return fmt.Errorf("models.estimators and models.max_depth must be positive")
	}
	if c.Training.Queue != "memory" && c.Training.Queue != "redis" {
		return fmt.Errorf("training.queue must be 'memory' or 'redis', got '%s'", c.Training.Queue)
	}
	if c.Training.JobStore != "memory" && c.Training.JobStore != "redis" {
		return fmt.Errorf("training.job_store must be 'memory' or 'redis', got '%s'", c.Training.JobStore)
	}
	// A shared queue hands jobs to other processes, which must see the same records.
	if c.Training.Queue == "redis" && c.Training.JobStore != "redis" {
		return fmt.Errorf("training.job_store must be 'redis' when training.queue is 'redis'")
	}
	if c.Training.Workers <= 0 {
		return fmt.Errorf("training.workers must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Signals.CacheBackend != "memory" || c.Training.Queue == "redis" || c.Training.JobStore == "redis"
}
