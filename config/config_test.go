package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Defaults(t *testing.T) {
	cfg, err := build(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "consignment-ledger", cfg.App.Name)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "ledger.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.NotEmpty(t, cfg.HTTP.CORSAllowOrigins)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.False(t, cfg.IsProduction())
}

func TestBuild_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LEDGER_APP_PORT", "9090")
	t.Setenv("LEDGER_DATABASE_PATH", ":memory:")
	t.Setenv("LEDGER_SCHEDULER_ENABLED", "false")
	t.Setenv("LEDGER_SCHEDULER_INTERVAL", "5m")

	cfg, err := build(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
}

func TestBuild_ProductionDefaultsToJSONLogs(t *testing.T) {
	v := viper.New()
	v.Set("app.env", "production")

	cfg, err := build(v)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"port out of range", "app.port", 70000},
		{"unknown log format", "log.format", "xml"},
		{"interval too short", "scheduler.interval", "100ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := build(v)
			assert.Error(t, err)
		})
	}
}
