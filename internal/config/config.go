// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Workflow WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker" yaml:"breaker"`
	Pacing   PacingConfig   `mapstructure:"pacing" yaml:"pacing"`
	Answers  AnswersConfig  `mapstructure:"answers" yaml:"answers"`
}

// LoggerConfig configures the zap logger and file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig points at the Postgres instance holding target state.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// WorkflowConfig bounds the multi-step application loop.
type WorkflowConfig struct {
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	ContainerTimeout  time.Duration `mapstructure:"container_timeout" yaml:"container_timeout"`
	IndicatorTimeout  time.Duration `mapstructure:"indicator_timeout" yaml:"indicator_timeout"`
	PauseCeiling      time.Duration `mapstructure:"pause_ceiling" yaml:"pause_ceiling"`
	PausePollInterval time.Duration `mapstructure:"pause_poll_interval" yaml:"pause_poll_interval"`
}

// RetryConfig tunes the retry executor. It is read-only for the duration of
// one execution.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// BreakerConfig tunes the circuit breaker guarding session operations.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold" yaml:"success_threshold"`
	MonitoringPeriod time.Duration `mapstructure:"monitoring_period" yaml:"monitoring_period"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout"`
}

// PacingConfig controls human-paced delays. Each pair is a half-open range
// the actual delay is drawn from.
type PacingConfig struct {
	PreStepDelayMin     time.Duration `mapstructure:"pre_step_delay_min" yaml:"pre_step_delay_min"`
	PreStepDelayMax     time.Duration `mapstructure:"pre_step_delay_max" yaml:"pre_step_delay_max"`
	PostAdvanceDelayMin time.Duration `mapstructure:"post_advance_delay_min" yaml:"post_advance_delay_min"`
	PostAdvanceDelayMax time.Duration `mapstructure:"post_advance_delay_max" yaml:"post_advance_delay_max"`
	TargetsPerMinute    float64       `mapstructure:"targets_per_minute" yaml:"targets_per_minute"`
}

// AnswersConfig supplies the values used to complete application forms.
type AnswersConfig struct {
	YearsOfExperience int               `mapstructure:"years_of_experience" yaml:"years_of_experience"`
	ExperienceSummary string            `mapstructure:"experience_summary" yaml:"experience_summary"`
	SalaryExpectation string            `mapstructure:"salary_expectation" yaml:"salary_expectation"`
	WorkAuthorization string            `mapstructure:"work_authorization" yaml:"work_authorization"`
	RequiresSponsor   string            `mapstructure:"requires_sponsorship" yaml:"requires_sponsorship"`
	WillingToRelocate string            `mapstructure:"willing_to_relocate" yaml:"willing_to_relocate"`
	NoticePeriod      string            `mapstructure:"notice_period" yaml:"notice_period"`
	Custom            map[string]string `mapstructure:"custom" yaml:"custom"`
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly rather than run misconfigured.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "applypilot")
	v.SetDefault("logger.log_file", "applypilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")

	// -- Workflow --
	v.SetDefault("workflow.max_steps", 5)
	v.SetDefault("workflow.container_timeout", "15s")
	v.SetDefault("workflow.indicator_timeout", "10s")
	v.SetDefault("workflow.pause_ceiling", "5m")
	v.SetDefault("workflow.pause_poll_interval", "5s")

	// -- Retry --
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.multiplier", 2.0)

	// -- Breaker --
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.monitoring_period", "1m")
	v.SetDefault("breaker.recovery_timeout", "30s")

	// -- Pacing --
	v.SetDefault("pacing.pre_step_delay_min", "800ms")
	v.SetDefault("pacing.pre_step_delay_max", "2500ms")
	v.SetDefault("pacing.post_advance_delay_min", "1s")
	v.SetDefault("pacing.post_advance_delay_max", "3s")
	v.SetDefault("pacing.targets_per_minute", 2.0)

	// -- Answers --
	v.SetDefault("answers.work_authorization", "Yes")
	v.SetDefault("answers.requires_sponsorship", "No")
	v.SetDefault("answers.willing_to_relocate", "Yes")
	v.SetDefault("answers.notice_period", "2 weeks")
}

// NewConfigFromViper builds and validates a configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. Invalid ranges are a
// configuration error raised here, never deferred to runtime.
func (c *Config) Validate() error {
	if c.Workflow.MaxSteps <= 0 {
		return fmt.Errorf("workflow.max_steps must be a positive integer")
	}
	if c.Workflow.ContainerTimeout <= 0 {
		return fmt.Errorf("workflow.container_timeout must be a positive duration")
	}
	if c.Workflow.PauseCeiling <= 0 || c.Workflow.PausePollInterval <= 0 {
		return fmt.Errorf("workflow pause ceiling and poll interval must be positive durations")
	}
	if c.Workflow.PausePollInterval >= c.Workflow.PauseCeiling {
		return fmt.Errorf("workflow.pause_poll_interval must be shorter than workflow.pause_ceiling")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry configuration invalid: %w", err)
	}
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker configuration invalid: %w", err)
	}
	if err := c.Pacing.Validate(); err != nil {
		return fmt.Errorf("pacing configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the retry executor settings.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if r.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be a positive duration")
	}
	if r.MaxDelay < r.BaseDelay {
		return fmt.Errorf("max_delay must be at least base_delay")
	}
	if r.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be at least 1.0")
	}
	return nil
}

// Validate checks the circuit breaker settings.
func (b *BreakerConfig) Validate() error {
	if b.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be greater than 0")
	}
	if b.SuccessThreshold <= 0 {
		return fmt.Errorf("success_threshold must be greater than 0")
	}
	if b.MonitoringPeriod <= 0 || b.RecoveryTimeout <= 0 {
		return fmt.Errorf("monitoring_period and recovery_timeout must be positive durations")
	}
	return nil
}

// Validate checks every delay range for min < max.
func (p *PacingConfig) Validate() error {
	if p.PreStepDelayMin < 0 || p.PostAdvanceDelayMin < 0 {
		return fmt.Errorf("pacing delays must not be negative")
	}
	if p.PreStepDelayMin >= p.PreStepDelayMax {
		return fmt.Errorf("pacing.pre_step_delay_min must be less than pacing.pre_step_delay_max")
	}
	if p.PostAdvanceDelayMin >= p.PostAdvanceDelayMax {
		return fmt.Errorf("pacing.post_advance_delay_min must be less than pacing.post_advance_delay_max")
	}
	if p.TargetsPerMinute <= 0 {
		return fmt.Errorf("pacing.targets_per_minute must be greater than 0")
	}
	return nil
}
