// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "fleetpm", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 8*time.Second, cfg.Timeouts().Wait)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts().PollInterval)
	assert.Equal(t, 30, cfg.Workflow().RecencyDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Workflow().RecencyWindow())
	assert.Equal(t, "Done", cfg.Workflow().CompletionNote)
	assert.Equal(t, "PM Gas", cfg.Workflow().Opcode)
	assert.Equal(t, 10*time.Second, cfg.Workflow().CompletionSettle)
	assert.False(t, cfg.Workflow().SkipRentable)
	assert.Equal(t, 3, cfg.Navigation().MaxBackClicks)
	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	base := NewDefaultConfig()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing app url", func(c *Config) { c.AppCfg.URL = "" }, "app.url is a required configuration field"},
		{"zero wait", func(c *Config) { c.TimeoutsCfg.Wait = 0 }, "timeouts.wait must be a positive duration"},
		{"zero poll", func(c *Config) { c.TimeoutsCfg.PollInterval = 0 }, "timeouts.poll_interval must be a positive duration"},
		{"zero per candidate", func(c *Config) { c.TimeoutsCfg.PerCandidate = 0 }, "timeouts.per_candidate must be a positive duration"},
		{"zero threshold", func(c *Config) { c.WorkflowCfg.ThresholdDefault = 0 }, "workflow.threshold_default must be a positive integer"},
		{"negative recency", func(c *Config) { c.WorkflowCfg.RecencyDays = -1 }, "workflow.recency_days must not be negative"},
		{"empty opcode", func(c *Config) { c.WorkflowCfg.Opcode = "" }, "workflow.opcode is a required configuration field"},
		{"negative back clicks", func(c *Config) { c.NavigationCfg.MaxBackClicks = -2 }, "navigation.max_back_clicks must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.username is required")

	cfg.CredentialsCfg.Username = "ops@example.com"
	err = cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLEETPM_PASSWORD")

	cfg.CredentialsCfg.Password = "secret"
	cfg.CredentialsCfg.LoginID = "123456"
	assert.NoError(t, cfg.ValidateCredentials())
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
workflow:
  recency_days: 14
  opcode: "PM Synthetic"
timeouts:
  wait: 3s
navigation:
  max_back_clicks: 5
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 14, cfg.Workflow().RecencyDays)
		assert.Equal(t, "PM Synthetic", cfg.Workflow().Opcode)
		assert.Equal(t, 3*time.Second, cfg.Timeouts().Wait)
		assert.Equal(t, 5, cfg.Navigation().MaxBackClicks)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("workflow.threshold_default", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "workflow.threshold_default must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
credentials:
  username: "file@example.com"
`)))

		t.Setenv("FLEETPM_PASSWORD", "from-env")
		t.Setenv("FLEETPM_USERNAME", "env@example.com")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Credentials().Password)
		// The bound env var overrides the file value.
		assert.Equal(t, "env@example.com", cfg.Credentials().Username)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		homedir.DisableCache = true
		t.Cleanup(func() { homedir.DisableCache = false })
		t.Setenv("HOME", "/home/operator")
		v := viper.New()
		SetDefaults(v)
		v.Set("input.path", "~/lists/mva.csv")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "/home/operator/lists/mva.csv", cfg.Input().Path)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(true)
	iface.SetInputPath("other.csv")

	assert.True(t, iface.Browser().Headless)
	assert.Equal(t, "other.csv", iface.Input().Path)
}
