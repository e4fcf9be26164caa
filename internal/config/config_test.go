package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"DB_URL", "WORKERS", "BATCH_SIZE", "RATE_LIMIT", "CHROME_URL", "LISTEN", "RULES_FILE", "LOG_LEVEL", "HOST_SUFFIX"} {
		// registers the restore, defaults apply only to unset variables
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.RateLimit)
	assert.Equal(t, "127.0.0.1:8087", cfg.Listen)
	assert.Equal(t, "normal", cfg.LogLevel)
	assert.Equal(t, "amazon.co.jp", cfg.HostSuffix)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORKERS", "3")
	t.Setenv("RATE_LIMIT", "250ms")
	t.Setenv("CHROME_URL", "ws://127.0.0.1:9222/devtools/browser/x")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.ChromeURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("LOG_LEVEL", "loud")
	_, err := Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")

	t.Setenv("LOG_LEVEL", "normal")
	t.Setenv("WORKERS", "zero")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("WORKERS", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "WORKERS")
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, NewLogger("none", "x"))
	l := NewLogger("debug", "x")
	assert.True(t, l.Core().Enabled(-1))
	l = NewLogger("normal", "x")
	assert.False(t, l.Core().Enabled(-1))
}

func TestConfig_Logging(t *testing.T) {
	assert.False(t, (&Config{LogLevel: "none"}).Logging())
	assert.True(t, (&Config{LogLevel: "normal"}).Logging())
	assert.True(t, (&Config{LogLevel: "debug"}).Logging())
}
