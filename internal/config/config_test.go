package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"GRIDSRV_CONFIG", "GRIDSRV_HOST", "GRIDSRV_PORT", "GRIDSRV_WORKERS",
		"GRIDSRV_DATA_FILE", "GRIDSRV_INTERPOLATION", "GRIDSRV_MAX_DATA_POINTS",
		"GRIDSRV_ARROW_BATCH_ROWS", "GRIDSRV_DISCOVERY_URL", "GRIDSRV_REDIS_URL",
		"GRIDSRV_KAFKA_BROKERS", "GRIDSRV_KAFKA_TOPIC", "GRIDSRV_WASM_COLORMAP",
		"GRIDSRV_POSTGRES_DSN", "GRIDSRV_FLIGHT_PORT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadRequiresDataFile(t *testing.T) {
	clearEnv(t)
	_, err := Load([]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data file is required")
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load([]string{"--data-file", "/tmp/grid.nc"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(10_000_000), cfg.MaxDataPoints)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRIDSRV_PORT", "9090")
	t.Setenv("GRIDSRV_KAFKA_BROKERS", "a:9092,b:9092")
	cfg, err := Load([]string{"--data-file", "/tmp/grid.nc"})
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRIDSRV_PORT", "9090")
	cfg, err := Load([]string{"--data-file", "/tmp/grid.nc", "--port", "7070"})
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadYAMLFileIsOverriddenByEnvAndFlags(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "gridserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 127.0.0.1\nport: 6000\ndata_file: /data/a.nc\n"), 0o644))

	t.Setenv("GRIDSRV_PORT", "6500")
	cfg, err := Load([]string{"--config", path, "--port", "7000"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host) // from file, untouched by env/flag
	assert.Equal(t, 7000, cfg.Port)        // flag wins over env wins over file
	assert.Equal(t, "/data/a.nc", cfg.DataFile)
}
