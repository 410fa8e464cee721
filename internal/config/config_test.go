package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, ":8080", cfg.OpsAddr)
	assert.Equal(t, "txlog.jsonl", cfg.TxLogPath)
	assert.Equal(t, 5*time.Minute, cfg.OrderLifetime)
	assert.NotEmpty(t, cfg.DatabaseURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("ORDER_LIFETIME", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.OrderLifetime)
}
