package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: endorsements
    user: app
notifications:
  links:
    verify_url: https://example.org/verify
    status_url: https://example.org/status
workers:
  endorsement-verify:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Endorsement.TokenTTL)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 20, cfg.Notifications.Dispatcher.BatchSize)
	assert.Equal(t, 8, cfg.Notifications.Dispatcher.MaxAttempts)
	assert.Equal(t, "endorsement-showcase", cfg.Showcase.IndexName)
	assert.Equal(t, ":8080", cfg.Observability.HTTPAddr)

	w := cfg.Workers["endorsement-verify"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
}

func TestLoadFromFile_ParsesDurations(t *testing.T) {
	body := minimalConfig + `
endorsement:
  token_ttl: 24h
showcase:
  cache_ttl: 30s
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Endorsement.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Showcase.CacheTTL)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_BROKER_ADDRESS", "zeebe:26500")
	body := `
camunda:
  broker_address: ${TEST_BROKER_ADDRESS}
database:
  postgres:
    host: localhost
    database: endorsements
    user: app
notifications:
  links:
    verify_url: https://example.org/verify
    status_url: https://example.org/status
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "zeebe:26500", cfg.Camunda.BrokerAddress)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  postgres:\n    host: x\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name: "cache without redis",
			body: minimalConfig + `
showcase:
  cache_enabled: true
`,
			wantErr: "database.redis.address is required",
		},
		{
			name: "email without sender",
			body: `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: endorsements
    user: app
notifications:
  email:
    enabled: true
  links:
    verify_url: https://example.org/verify
    status_url: https://example.org/status
`,
			wantErr: "from_email is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}
	w := GetWorkerConfig(cfg, "unknown")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
}
