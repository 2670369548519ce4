// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	App() AppConfig
	Credentials() CredentialsConfig
	Timeouts() TimeoutsConfig
	Workflow() WorkflowConfig
	Navigation() NavigationConfig
	Input() InputConfig
	Results() ResultsConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetInputPath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	AppCfg         AppConfig         `mapstructure:"app" yaml:"app"`
	CredentialsCfg CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	TimeoutsCfg    TimeoutsConfig    `mapstructure:"timeouts" yaml:"timeouts"`
	WorkflowCfg    WorkflowConfig    `mapstructure:"workflow" yaml:"workflow"`
	NavigationCfg  NavigationConfig  `mapstructure:"navigation" yaml:"navigation"`
	InputCfg       InputConfig       `mapstructure:"input" yaml:"input"`
	ResultsCfg     ResultsConfig     `mapstructure:"results" yaml:"results"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) App() AppConfig                 { return c.AppCfg }
func (c *Config) Credentials() CredentialsConfig { return c.CredentialsCfg }
func (c *Config) Timeouts() TimeoutsConfig       { return c.TimeoutsCfg }
func (c *Config) Workflow() WorkflowConfig       { return c.WorkflowCfg }
func (c *Config) Navigation() NavigationConfig   { return c.NavigationCfg }
func (c *Config) Input() InputConfig             { return c.InputCfg }
func (c *Config) Results() ResultsConfig         { return c.ResultsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetInputPath(p string)     { c.InputCfg.Path = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome process the session drives.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	Args          []string      `mapstructure:"args" yaml:"args"`
	UserDataDir   string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// AppConfig holds the target application URLs.
type AppConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	LoginURL string `mapstructure:"login_url" yaml:"login_url"`
}

// CredentialsConfig holds the operator identity. Password is normally
// supplied through FLEETPM_PASSWORD rather than the config file.
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	LoginID  string `mapstructure:"login_id" yaml:"login_id"`
	SSOEmail string `mapstructure:"sso_email" yaml:"sso_email"`
}

// TimeoutsConfig tunes every bounded wait in the UI engine.
type TimeoutsConfig struct {
	Wait          time.Duration `mapstructure:"wait" yaml:"wait"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PerCandidate  time.Duration `mapstructure:"per_candidate" yaml:"per_candidate"`
	RenderFloor   time.Duration `mapstructure:"render_floor" yaml:"render_floor"`
	VehicleLookup time.Duration `mapstructure:"vehicle_lookup" yaml:"vehicle_lookup"`
	EnableWait    time.Duration `mapstructure:"enable_wait" yaml:"enable_wait"`
	Login         time.Duration `mapstructure:"login" yaml:"login"`
}

// WorkflowConfig holds the PM business rules.
type WorkflowConfig struct {
	ThresholdDefault int           `mapstructure:"threshold_default" yaml:"threshold_default"`
	RecencyDays      int           `mapstructure:"recency_days" yaml:"recency_days"`
	CompletionNote   string        `mapstructure:"completion_note" yaml:"completion_note"`
	CompletionSettle time.Duration `mapstructure:"completion_settle" yaml:"completion_settle"`
	Opcode           string        `mapstructure:"opcode" yaml:"opcode"`
	SkipRentable     bool          `mapstructure:"skip_rentable" yaml:"skip_rentable"`
	CDKKeyword       string        `mapstructure:"cdk_keyword" yaml:"cdk_keyword"`
	VehicleInterval  time.Duration `mapstructure:"vehicle_interval" yaml:"vehicle_interval"`
}

// RecencyWindow returns the recency window as a duration.
func (w WorkflowConfig) RecencyWindow() time.Duration {
	return time.Duration(w.RecencyDays) * 24 * time.Hour
}

// NavigationConfig bounds baseline recovery.
type NavigationConfig struct {
	MaxBackClicks int `mapstructure:"max_back_clicks" yaml:"max_back_clicks"`
}

// InputConfig locates the vehicle list.
type InputConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ResultsConfig controls where per-run artifacts are written.
type ResultsConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "fleetpm")
	v.SetDefault("logger.log_file", "fleetpm.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- App --
	v.SetDefault("app.login_url", "https://avisbudget.palantirfoundry.com/multipass/login")
	v.SetDefault("app.url", "https://avisbudget.palantirfoundry.com/workspace/carbon/fleet-operations-pwa")

	// -- Timeouts --
	v.SetDefault("timeouts.wait", "8s")
	v.SetDefault("timeouts.poll_interval", "250ms")
	v.SetDefault("timeouts.per_candidate", "2s")
	v.SetDefault("timeouts.render_floor", "300ms")
	v.SetDefault("timeouts.vehicle_lookup", "15s")
	v.SetDefault("timeouts.enable_wait", "5s")
	v.SetDefault("timeouts.login", "30s")

	// -- Workflow --
	v.SetDefault("workflow.threshold_default", 3000)
	v.SetDefault("workflow.recency_days", 30)
	v.SetDefault("workflow.completion_note", "Done")
	v.SetDefault("workflow.completion_settle", "10s")
	v.SetDefault("workflow.opcode", "PM Gas")
	v.SetDefault("workflow.skip_rentable", false)
	v.SetDefault("workflow.cdk_keyword", "PM")
	v.SetDefault("workflow.vehicle_interval", "1s")

	// -- Navigation --
	v.SetDefault("navigation.max_back_clicks", 3)

	// -- Input / Results --
	v.SetDefault("input.path", "data/mva.csv")
	v.SetDefault("results.dir", "results")
	v.SetDefault("results.metrics_file", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("credentials.password", "FLEETPM_PASSWORD")
	v.BindEnv("credentials.username", "FLEETPM_USERNAME")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the password if Unmarshal didn't pick it up
	if cfg.CredentialsCfg.Password == "" {
		cfg.CredentialsCfg.Password = os.Getenv("FLEETPM_PASSWORD")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every filesystem path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.BrowserCfg.UserDataDir,
		&c.InputCfg.Path,
		&c.ResultsCfg.Dir,
		&c.ResultsCfg.MetricsFile,
	} {
		if !strings.HasPrefix(*p, "~") {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.AppCfg.URL == "" {
		return fmt.Errorf("app.url is a required configuration field")
	}
	if c.TimeoutsCfg.Wait <= 0 {
		return fmt.Errorf("timeouts.wait must be a positive duration")
	}
	if c.TimeoutsCfg.PollInterval <= 0 {
		return fmt.Errorf("timeouts.poll_interval must be a positive duration")
	}
	if c.TimeoutsCfg.PerCandidate <= 0 {
		return fmt.Errorf("timeouts.per_candidate must be a positive duration")
	}
	if c.WorkflowCfg.ThresholdDefault <= 0 {
		return fmt.Errorf("workflow.threshold_default must be a positive integer")
	}
	if c.WorkflowCfg.RecencyDays < 0 {
		return fmt.Errorf("workflow.recency_days must not be negative")
	}
	if c.WorkflowCfg.Opcode == "" {
		return fmt.Errorf("workflow.opcode is a required configuration field")
	}
	if c.NavigationCfg.MaxBackClicks < 0 {
		return fmt.Errorf("navigation.max_back_clicks must not be negative")
	}
	return nil
}

// ValidateCredentials checks the fields required to sign in. It is separate
// from Validate so that offline commands work without a password.
func (c *Config) ValidateCredentials() error {
	if c.CredentialsCfg.Username == "" {
		return fmt.Errorf("credentials.username is required (or set FLEETPM_USERNAME)")
	}
	if c.CredentialsCfg.Password == "" {
		return fmt.Errorf("credentials.password is required; set FLEETPM_PASSWORD")
	}
	if c.CredentialsCfg.LoginID == "" {
		return fmt.Errorf("credentials.login_id is required")
	}
	return nil
}
