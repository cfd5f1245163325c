package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  activity_topic_name: "campaign.activity"
redis:
  host: "localhost"
  port: 6379
campaignbox:
  http_addr: ":8080"
  public_base_url: "https://crm.example.com"
  kafka_consumer_group: "campaign-api"
  analytics_ttl_seconds: 30
  send_concurrency: 4
`

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sampleYAML), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "campaign.activity", cfg.Kafka.ActivityTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.CampaignBox.HTTPAddr)
	require.Equal(t, "https://crm.example.com", cfg.CampaignBox.PublicBaseURL)
	require.Equal(t, 4, cfg.CampaignBox.SendConcurrency)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CAMPAIGNBOX_PUBLIC_BASE_URL", "https://api.example.org")
	t.Setenv("DATABASE_PORT", "6543")

	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "https://api.example.org", cfg.CampaignBox.PublicBaseURL)
	require.Equal(t, 6543, cfg.Database.Port)
	// untouched keys keep the file values
	require.Equal(t, "db", cfg.Database.DBName)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_Helpers(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.PostgresConnString())
	require.Equal(t, "localhost:6379", cfg.RedisAddr())
	require.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers())
	require.Equal(t, "campaign.activity", cfg.ActivityTopic())

	require.Equal(t, "campaign.activity", (&Config{}).ActivityTopic())
}
