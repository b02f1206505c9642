package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
http:
  address: ":9090"
database:
  host: "db"
  port: 5432
  user: "u"
  password: "p"
  name: "dispatcher"
  ssl_mode: "disable"
kafka:
  brokers:
    - "broker:9092"
  dispatch_topic: "dispatch-events"
dispatch:
  offer_ttl_seconds: 120
worker:
  sweep_interval_seconds: 10
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=dispatcher sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, []string{"broker:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 120*time.Second, cfg.Dispatch.OfferTTL())
	assert.Equal(t, 10*time.Second, cfg.Worker.SweepInterval())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	var d DispatchConfig
	assert.Equal(t, 90*time.Second, d.OfferTTL())
	assert.Equal(t, 30*time.Minute, d.QueueTTL())
	assert.Equal(t, 500*time.Millisecond, d.RetryBackoff())

	var w WorkerConfig
	assert.Equal(t, 5*time.Second, w.SweepInterval())
}
