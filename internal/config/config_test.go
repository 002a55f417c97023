package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, Init(v, ""))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, store.BackendSQL, cfg.Store.Backend)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.True(t, cfg.Store.FallbackPassthrough)
	assert.Equal(t, service.DefaultBaseURL, cfg.Upstream.BaseURL)
	assert.Equal(t, 4, cfg.Upstream.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Sync.TTL.Deputy)
	assert.Equal(t, 15*time.Minute, cfg.Sync.TTL.RecentVotes)
	assert.Equal(t, 40, cfg.Sync.RecentMaxSessions)
	assert.Equal(t, 2*time.Second, cfg.Store.FlushInterval)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/votos")
	t.Setenv("VOTODB_TTL_RECENT_VOTES", "5m")
	t.Setenv("VOTODB_SYNC_CONCURRENCY", "8")
	t.Setenv("VOTODB_DEBUG", "true")

	v := viper.New()
	require.NoError(t, Init(v, ""))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://u:p@db:5432/votos", cfg.Store.URL)
	assert.Equal(t, 5*time.Minute, cfg.Sync.TTL.RecentVotes)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Sync.Debug)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votodb.yaml")
	content := `store:
  backend: file
  file: /tmp/votodb.json
  flush_interval: 30s
upstream:
  base_url: http://localhost:9999/api/v2/
ttl:
  deputy: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, store.BackendFile, cfg.Store.Backend)
	assert.Equal(t, "/tmp/votodb.json", cfg.Store.File)
	assert.Equal(t, 30*time.Second, cfg.Store.FlushInterval)
	assert.Equal(t, "http://localhost:9999/api/v2", cfg.Upstream.BaseURL)
	assert.Equal(t, time.Hour, cfg.Sync.TTL.Deputy)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown backend", "VOTODB_STORE_BACKEND", "redis"},
		{"unknown driver", "VOTODB_DATABASE_DRIVER", "mysql"},
		{"zero ttl", "VOTODB_TTL_SESSIONS", "0s"},
		{"no attempts", "VOTODB_UPSTREAM_MAX_ATTEMPTS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			v := viper.New()
			require.NoError(t, Init(v, ""))

			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsFileStoreWithoutFlushInterval(t *testing.T) {
	t.Setenv("VOTODB_STORE_BACKEND", "file")
	t.Setenv("VOTODB_STORE_FLUSH_INTERVAL", "0s")

	v := viper.New()
	require.NoError(t, Init(v, ""))

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush_interval")
}
