package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Meli     MeliConfig     `yaml:"meli"`
	Recon    ReconConfig    `yaml:"recon"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
	// OrderCreatedTopicName: входящий поток регистраций. Пусто — intake выключен.
	OrderCreatedTopicName string `yaml:"order_created_topic_name"`
	ConsumerGroup         string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MeliAccount struct {
	AccountID   uint64 `yaml:"account_id"`
	AccessToken string `yaml:"access_token"`
}

type MeliConfig struct {
	BaseURL string `yaml:"base_url"`
	// Mode: "http" — живой API платформы, всё остальное — локальный fake.
	Mode            string        `yaml:"mode"`
	Accounts        []MeliAccount `yaml:"accounts"`
	TokenTTLSeconds int           `yaml:"token_ttl_seconds"`
}

type ReconConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	// Scheduling (optional, defaults are prod-like).
	ResyncActiveSeconds   int `yaml:"resync_active_seconds"`
	ResyncTerminalSeconds int `yaml:"resync_terminal_seconds"`
	Backoff1Seconds       int `yaml:"backoff_1_seconds"`
	Backoff2Seconds       int `yaml:"backoff_2_seconds"`
	Backoff3Seconds       int `yaml:"backoff_3_seconds"`
	Backoff4Seconds       int `yaml:"backoff_4_seconds"`

	// Heuristic tables (reverse-engineered vendor behavior, hence tunable).
	NoiseGenericDetail     string   `yaml:"noise_generic_detail"`
	NoiseWindowStartHour   int      `yaml:"noise_window_start_hour"`
	NoiseWindowEndHour     int      `yaml:"noise_window_end_hour"`
	NoiseFreshnessMinutes  int      `yaml:"noise_freshness_minutes"`
	NoiseTimezone          string   `yaml:"noise_timezone"`
	ResolverRecencyHours   int      `yaml:"resolver_recency_hours"`
	ResolverSpecificCodes  []string `yaml:"resolver_specific_codes"`
	ResolverIncidentCodes  []string `yaml:"resolver_incident_codes"`
	ResolverTerminalCodes  []string `yaml:"resolver_terminal_codes"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
