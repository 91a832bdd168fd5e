package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MIDTRANS_SERVER_KEY", "SB-Mid-server-test")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "IDR", cfg.Currency)
	assert.Equal(t, int64(1000), cfg.MinChargeAmount)
	assert.Equal(t, 15*time.Minute, cfg.HoldWindow)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, uint64(3), cfg.RetryAttempts)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "restored-after-test")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	t.Setenv("MIDTRANS_SERVER_KEY", "key")
	t.Setenv("STORE_DRIVER", "memory")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: StoreDriverPostgres, DBDSN: "postgres://x", HoldWindow: time.Minute}
	require.NoError(t, base.Validate())

	noDSN := base
	noDSN.DBDSN = ""
	assert.Error(t, noDSN.Validate())

	unknown := base
	unknown.StoreDriver = "sqlite"
	assert.Error(t, unknown.Validate())

	noHold := base
	noHold.HoldWindow = 0
	assert.Error(t, noHold.Validate())
}

func TestLoad_CurrencyUppercased(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MIDTRANS_SERVER_KEY", "SB-Mid-server-test")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CURRENCY", "idr")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "IDR", cfg.Currency)
}
