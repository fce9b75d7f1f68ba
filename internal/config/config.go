package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Firestore     FirestoreConfig     `yaml:"firestore"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ElasticsearchConfig struct {
	Addresses         []string             `yaml:"addresses"`
	Username          string               `yaml:"username"`
	Password          string               `yaml:"password"`
	MaxRetries        int                  `yaml:"max_retries"`
	RequestTimeout    time.Duration        `yaml:"request_timeout"`
	Index             string               `yaml:"index"`
	NumShards         int                  `yaml:"num_shards"`
	NumReplicas       int                  `yaml:"num_replicas"`
	BulkSize          int                  `yaml:"bulk_size"`
	BulkFlushInterval time.Duration        `yaml:"bulk_flush_interval"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry             RetryConfig          `yaml:"retry"`
}

type RedisConfig struct {
	Addresses    []string       `yaml:"addresses"`
	Password     string         `yaml:"password"`
	DB           int            `yaml:"db"`
	PoolSize     int            `yaml:"pool_size"`
	MinIdleConns int            `yaml:"min_idle_conns"`
	DialTimeout  time.Duration  `yaml:"dial_timeout"`
	ReadTimeout  time.Duration  `yaml:"read_timeout"`
	WriteTimeout time.Duration  `yaml:"write_timeout"`
	TTL          CacheTTLConfig `yaml:"ttl"`
}

type CacheTTLConfig struct {
	Decisions time.Duration `yaml:"decisions"`
	Suggest   time.Duration `yaml:"suggest"`
	Trending  time.Duration `yaml:"trending"`
}

type ClickHouseConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

type FirestoreConfig struct {
	ProjectID       string        `yaml:"project_id"`
	CredentialsFile string        `yaml:"credentials_file"`
	Collection      string        `yaml:"collection"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	TopicChanges  string        `yaml:"topic_changes"`
	TopicEvents   string        `yaml:"topic_events"`
	TopicDLQ      string        `yaml:"topic_dlq"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
}

// ResolverConfig holds the two confidence knobs governing the redirect/SERP
// trade-off plus the redirect registry source.
type ResolverConfig struct {
	MinRedirectScore float64       `yaml:"min_redirect_score"`
	MinRedirectGap   float64       `yaml:"min_redirect_gap"`
	SearchLimit      int           `yaml:"search_limit"`
	RedirectsFile    string        `yaml:"redirects_file"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	SlowWarning      time.Duration `yaml:"slow_warning"`
	SlowCritical     time.Duration `yaml:"slow_critical"`
}

type EventsConfig struct {
	Dir string `yaml:"dir"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	ServiceName string `yaml:"service_name"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:         []string{"http://localhost:9200"},
			MaxRetries:        3,
			RequestTimeout:    500 * time.Millisecond,
			Index:             "re_entities_v1",
			NumShards:         1,
			NumReplicas:       1,
			BulkSize:          1000,
			BulkFlushInterval: 5 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      100,
				Interval:         30 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
			Retry: RetryConfig{
				MaxAttempts: 2,
				InitialWait: 50 * time.Millisecond,
				MaxWait:     500 * time.Millisecond,
				Multiplier:  2.0,
			},
		},
		Redis: RedisConfig{
			Addresses:    []string{"localhost:6379"},
			PoolSize:     100,
			MinIdleConns: 10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			TTL: CacheTTLConfig{
				Decisions: 2 * time.Minute,
				Suggest:   10 * time.Minute,
				Trending:  60 * time.Second,
			},
		},
		ClickHouse: ClickHouseConfig{
			Addresses:    []string{"localhost:9000"},
			Database:     "search_analytics",
			DialTimeout:  5 * time.Second,
			QueryTimeout: 2 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Firestore: FirestoreConfig{
			Collection:     "redirects",
			RequestTimeout: 2 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			TopicChanges:  "entities.changes",
			TopicEvents:   "search.events",
			TopicDLQ:      "entities.changes.dlq",
			ConsumerGroup: "entity-indexer",
			BatchSize:     500,
			BatchTimeout:  1 * time.Second,
			MaxRetries:    3,
		},
		Resolver: ResolverConfig{
			MinRedirectScore: 7.0,
			MinRedirectGap:   0.35,
			SearchLimit:      10,
			QueryTimeout:     800 * time.Millisecond,
			SlowWarning:      200 * time.Millisecond,
			SlowCritical:     500 * time.Millisecond,
		},
		Events: EventsConfig{
			Dir: ".events",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			ServiceName: "realestate-search",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("at least one elasticsearch address required")
	}
	if c.Elasticsearch.Index == "" {
		return fmt.Errorf("elasticsearch index name required")
	}
	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("at least one redis address required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker required")
	}
	if c.Resolver.MinRedirectScore < 0 {
		return fmt.Errorf("min_redirect_score must be non-negative")
	}
	if c.Resolver.MinRedirectGap < 0 || c.Resolver.MinRedirectGap > 1 {
		return fmt.Errorf("min_redirect_gap must be within [0, 1]")
	}
	if c.Resolver.SearchLimit <= 0 || c.Resolver.SearchLimit > 50 {
		return fmt.Errorf("search_limit must be between 1 and 50")
	}
	return nil
}
