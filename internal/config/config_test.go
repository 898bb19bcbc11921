package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/payping-sync-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.UseSupabase)
	assert.Equal(t, []string{"demo@payping.com:demo1234"}, cfg.DevUsers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("USE_SUPABASE", "false")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("DEV_USERS", "a@b.com:x, c@d.com:y")

	cfg := config.Load()

	assert.Equal(t, 9191, cfg.Port)
	assert.False(t, cfg.UseSupabase)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"a@b.com:x", "c@d.com:y"}, cfg.DevUsers)
}

func TestLoadDotEnv_DoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PAYPING_TEST_A=from-file\nPAYPING_TEST_B=\"quoted\"\n"), 0o600))
	t.Setenv("PAYPING_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("PAYPING_TEST_B") })

	require.NoError(t, config.LoadDotEnv(path))

	assert.Equal(t, "from-env", os.Getenv("PAYPING_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("PAYPING_TEST_B"))
}
