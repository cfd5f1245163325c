package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database" envPrefix:"DATABASE_"`
	Kafka       KafkaConfig       `yaml:"kafka" envPrefix:"KAFKA_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	CampaignBox CampaignBoxConfig `yaml:"campaignbox" envPrefix:"CAMPAIGNBOX_"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

type KafkaConfig struct {
	Host              string `yaml:"host" env:"HOST"`
	Port              int    `yaml:"port" env:"PORT"`
	ActivityTopicName string `yaml:"activity_topic_name" env:"ACTIVITY_TOPIC_NAME"`
}

type RedisConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

type CampaignBoxConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	// PublicBaseURL is the backend origin embedded into rewritten campaign HTML
	// (asset URLs, click wrappers, open pixel).
	PublicBaseURL       string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	FallbackRedirectURL string `yaml:"fallback_redirect_url" env:"FALLBACK_REDIRECT_URL"`
	OperatorToken       string `yaml:"operator_token" env:"OPERATOR_TOKEN"`
	KafkaConsumerGroup  string `yaml:"kafka_consumer_group" env:"KAFKA_CONSUMER_GROUP"`
	AnalyticsTTLSeconds int    `yaml:"analytics_ttl_seconds" env:"ANALYTICS_TTL_SECONDS"`

	SendConcurrency    int `yaml:"send_concurrency" env:"SEND_CONCURRENCY"`
	SendTimeoutSeconds int `yaml:"send_timeout_seconds" env:"SEND_TIMEOUT_SECONDS"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`

	MailProviderBaseURL string `yaml:"mail_provider_base_url" env:"MAIL_PROVIDER_BASE_URL"`
	MailProviderAPIKey  string `yaml:"mail_provider_api_key" env:"MAIL_PROVIDER_API_KEY"`

	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds" env:"WORKER_POLL_INTERVAL_SECONDS"`
	WorkerBatchSize           int    `yaml:"worker_batch_size" env:"WORKER_BATCH_SIZE"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr" env:"WORKER_HTTP_ADDR"`
}

// LoadConfig reads the YAML file and then applies environment overrides.
// A .env file in the working directory, if any, is loaded into the process
// environment first; variables that are already set win over it.
func LoadConfig(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}

// PostgresConnString builds a pgx connection string from the database section.
func (c *Config) PostgresConnString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (c *Config) ActivityTopic() string {
	if c.Kafka.ActivityTopicName == "" {
		return "campaign.activity"
	}
	return c.Kafka.ActivityTopicName
}
