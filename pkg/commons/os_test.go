//go:build unit

package commons

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetenvOrDefault(t *testing.T) {
	t.Setenv("TEST_GETENV_VALUE", "value")
	t.Setenv("TEST_GETENV_BLANK", "   ")

	assert.Equal(t, "value", GetenvOrDefault("TEST_GETENV_VALUE", "default"))
	assert.Equal(t, "default", GetenvOrDefault("TEST_GETENV_BLANK", "default"), "whitespace-only string should return default")
	assert.Equal(t, "default", GetenvOrDefault("TEST_GETENV_MISSING_XYZ", "default"))
}

func TestSetConfigFromEnvVars(t *testing.T) {
	type Config struct {
		Name    string        `env:"TEST_CFG_NAME"`
		Enabled bool          `env:"TEST_CFG_ENABLED"`
		Count   int64         `env:"TEST_CFG_COUNT"`
		DB      int           `env:"TEST_CFG_DB"`
		TTL     time.Duration `env:"TEST_CFG_TTL"`
		Scopes  []string      `env:"TEST_CFG_SCOPES"`
		Kept    string        `env:"TEST_CFG_KEPT_MISSING"`
		NoTag   string
	}

	t.Setenv("TEST_CFG_NAME", "beneficiary-pay")
	t.Setenv("TEST_CFG_ENABLED", "true")
	t.Setenv("TEST_CFG_COUNT", "123")
	t.Setenv("TEST_CFG_DB", "2")
	t.Setenv("TEST_CFG_TTL", "24h")
	t.Setenv("TEST_CFG_SCOPES", "payments.write, beneficiaries.write,")
	os.Unsetenv("TEST_CFG_KEPT_MISSING")

	cfg := &Config{Kept: "from-file", NoTag: "untouched"}
	require.NoError(t, SetConfigFromEnvVars(cfg))

	assert.Equal(t, "beneficiary-pay", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, int64(123), cfg.Count)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
	assert.Equal(t, []string{"payments.write", "beneficiaries.write"}, cfg.Scopes)
	assert.Equal(t, "from-file", cfg.Kept, "missing env var keeps the existing value")
	assert.Equal(t, "untouched", cfg.NoTag)
}

func TestSetConfigFromEnvVarsErrors(t *testing.T) {
	type Config struct {
		Count int64 `env:"TEST_CFG_BAD_COUNT"`
	}

	assert.ErrorIs(t, SetConfigFromEnvVars(Config{}), ErrNotPointer)

	t.Setenv("TEST_CFG_BAD_COUNT", "many")
	err := SetConfigFromEnvVars(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_CFG_BAD_COUNT")
}
