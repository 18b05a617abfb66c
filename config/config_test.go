package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "zupply"
kafka:
  host: "localhost"
  port: 9092
  status_changed_topic_name: "shipments.status.changed"
redis:
  host: "localhost"
  port: 6379
meli:
  base_url: "https://api.mercadolibre.com"
  mode: "http"
  token_ttl_seconds: 600
  accounts:
    - account_id: 42
      access_token: "APP_USR-x"
recon:
  http_addr: ":8082"
  worker_batch_size: 50
  worker_rate_limit_per_minute: 90
  noise_window_start_hour: 21
  noise_window_end_hour: 24
  resolver_specific_codes: ["receiver_absent", "bad_address"]
  resolver_incident_codes: ["receiver_absent"]
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "shipments.status.changed", cfg.Kafka.StatusChangedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Len(t, cfg.Meli.Accounts, 1)
	require.Equal(t, uint64(42), cfg.Meli.Accounts[0].AccountID)
	require.Equal(t, 50, cfg.Recon.WorkerBatchSize)
	require.Equal(t, 21, cfg.Recon.NoiseWindowStartHour)
	require.Equal(t, []string{"receiver_absent", "bad_address"}, cfg.Recon.ResolverSpecificCodes)
	require.Equal(t, []string{"receiver_absent"}, cfg.Recon.ResolverIncidentCodes)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
