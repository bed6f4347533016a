// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMRouterConfig
	Resilience() ResilienceConfig
	Triage() TriageConfig
	Context() ContextConfig
	Output() OutputConfig

	// Setters used by CLI flag overrides.
	SetTriageConcurrency(int)
	SetTriageFailMode(FailMode)
	SetTriageUnknownVerdict(UnknownVerdictPolicy)
	SetContextConfig(ContextConfig)
	SetOutputConfig(OutputConfig)
}

// Config holds the entire application configuration. It is built once at
// process start and handed to each component explicitly.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	LLMCfg        LLMRouterConfig  `mapstructure:"llm" yaml:"llm"`
	ResilienceCfg ResilienceConfig `mapstructure:"resilience" yaml:"resilience"`
	TriageCfg     TriageConfig     `mapstructure:"triage" yaml:"triage"`
	ContextCfg    ContextConfig    `mapstructure:"context" yaml:"context"`
	OutputCfg     OutputConfig     `mapstructure:"output" yaml:"output"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) LLM() LLMRouterConfig         { return c.LLMCfg }
func (c *Config) Resilience() ResilienceConfig { return c.ResilienceCfg }
func (c *Config) Triage() TriageConfig         { return c.TriageCfg }
func (c *Config) Context() ContextConfig       { return c.ContextCfg }
func (c *Config) Output() OutputConfig         { return c.OutputCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTriageConcurrency(n int)       { c.TriageCfg.Concurrency = n }
func (c *Config) SetTriageFailMode(m FailMode)     { c.TriageCfg.FailMode = m }
func (c *Config) SetContextConfig(cc ContextConfig) { c.ContextCfg = cc }
func (c *Config) SetOutputConfig(oc OutputConfig)   { c.OutputCfg = oc }
func (c *Config) SetTriageUnknownVerdict(p UnknownVerdictPolicy) {
	c.TriageCfg.UnknownVerdict = p
}

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

// LLMProvider defines the supported completion service providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic. Validation requests use
// the fast model, remediation requests the powerful one; by default both point
// at the same model.
type LLMRouterConfig struct {
	APIKey               string                    `mapstructure:"api_key" yaml:"-"`
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"-"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// ResilienceConfig is the call policy applied to every completion request.
type ResilienceConfig struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" yaml:"max_elapsed_time"`
	Breaker         BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of each model.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests" yaml:"half_open_requests"`
}

// FailMode selects what happens to a batch when one finding hits a service error.
type FailMode string

const (
	// FailModeContinue records a per-finding error outcome and keeps going.
	FailModeContinue FailMode = "continue"
	// FailModeFailClosed aborts the whole batch on the first service error.
	FailModeFailClosed FailMode = "fail_closed"
)

// UnknownVerdictPolicy selects how unclassifiable validation responses are handled.
type UnknownVerdictPolicy string

const (
	UnknownVerdictDrop   UnknownVerdictPolicy = "drop"
	UnknownVerdictReview UnknownVerdictPolicy = "review"
)

// TriageConfig tunes the validate/prioritize/remediate pipeline.
type TriageConfig struct {
	ValidationTemperature  float64              `mapstructure:"validation_temperature" yaml:"validation_temperature"`
	RemediationTemperature float64              `mapstructure:"remediation_temperature" yaml:"remediation_temperature"`
	StructuredVerdicts     bool                 `mapstructure:"structured_verdicts" yaml:"structured_verdicts"`
	UnknownVerdict         UnknownVerdictPolicy `mapstructure:"unknown_verdict" yaml:"unknown_verdict"`
	FailMode               FailMode             `mapstructure:"fail_mode" yaml:"fail_mode"`
	Concurrency            int                  `mapstructure:"concurrency" yaml:"concurrency"`
	MaxSnippetBytes        int                  `mapstructure:"max_snippet_bytes" yaml:"max_snippet_bytes"`
}

// ContextSource names the code-context provider.
type ContextSource string

const (
	ContextSourceNone   ContextSource = "none"
	ContextSourceFile   ContextSource = "file"
	ContextSourceDir    ContextSource = "dir"
	ContextSourceGit    ContextSource = "git"
	ContextSourceGitHub ContextSource = "github"
)

// ContextConfig selects and configures the code-context provider.
type ContextConfig struct {
	Source ContextSource `mapstructure:"source" yaml:"source"`
	File   string        `mapstructure:"file" yaml:"file"`
	Dir    string        `mapstructure:"dir" yaml:"dir"`
	Git    GitConfig     `mapstructure:"git" yaml:"git"`
	GitHub GitHubConfig  `mapstructure:"github" yaml:"github"`
}

// GitConfig points at a local repository and the revision to read files from.
type GitConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	Revision string `mapstructure:"revision" yaml:"revision"`
}

// GitHubConfig defines the configuration for GitHub repository access.
type GitHubConfig struct {
	Token   string `mapstructure:"token" yaml:"-"`
	Owner   string `mapstructure:"owner" yaml:"owner"`
	Repo    string `mapstructure:"repo" yaml:"repo"`
	Ref     string `mapstructure:"ref" yaml:"ref"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// OutputConfig selects the report format and destination.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
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

// DefaultModelName is the model alias both tiers point at out of the box.
const DefaultModelName = "gpt-4-turbo"

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sast-agent")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", DefaultModelName)
	v.SetDefault("llm.default_powerful_model", DefaultModelName)
	v.SetDefault("llm.models", map[string]any{
		DefaultModelName: map[string]any{
			"provider":    string(ProviderOpenAI),
			"model":       "gpt-4-turbo",
			"endpoint":    "https://api.openai.com/v1/chat/completions",
			"api_timeout": "90s",
		},
	})

	// -- Resilience --
	v.SetDefault("resilience.call_timeout", "2m")
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.initial_interval", "1s")
	v.SetDefault("resilience.max_interval", "30s")
	v.SetDefault("resilience.max_elapsed_time", "5m")
	v.SetDefault("resilience.breaker.enabled", true)
	v.SetDefault("resilience.breaker.failure_threshold", 5)
	v.SetDefault("resilience.breaker.open_timeout", "30s")
	v.SetDefault("resilience.breaker.half_open_requests", 1)

	// -- Triage --
	v.SetDefault("triage.validation_temperature", 0.2)
	v.SetDefault("triage.remediation_temperature", 0.3)
	v.SetDefault("triage.structured_verdicts", false)
	v.SetDefault("triage.unknown_verdict", string(UnknownVerdictDrop))
	v.SetDefault("triage.fail_mode", string(FailModeContinue))
	v.SetDefault("triage.concurrency", 1)
	v.SetDefault("triage.max_snippet_bytes", 64*1024)

	// -- Context --
	v.SetDefault("context.source", string(ContextSourceNone))
	v.SetDefault("context.git.revision", "HEAD")

	// -- Output --
	v.SetDefault("output.format", "json")
	v.SetDefault("output.path", "")
}

// Environment variables that may carry the completion service credential,
// checked in order.
var credentialEnvVars = []string{"SAST_AGENT_LLM_API_KEY", "OPENAI_API_KEY"}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv(append([]string{"llm.api_key"}, credentialEnvVars...)...)
	_ = v.BindEnv("context.github.token", "SAST_AGENT_GITHUB_TOKEN", "GITHUB_TOKEN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.resolveCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// resolveCredentials hands the process-wide key to every model that has none
// of its own. Gemini models also look at GEMINI_API_KEY.
func (c *Config) resolveCredentials() {
	for name, m := range c.LLMCfg.Models {
		if m.APIKey != "" {
			continue
		}
		if m.Provider == ProviderGemini {
			m.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if m.APIKey == "" {
			m.APIKey = c.LLMCfg.APIKey
		}
		c.LLMCfg.Models[name] = m
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LLMCfg.Validate(); err != nil {
		return err
	}
	if err := c.ResilienceCfg.Validate(); err != nil {
		return fmt.Errorf("resilience configuration invalid: %w", err)
	}
	if err := c.TriageCfg.Validate(); err != nil {
		return fmt.Errorf("triage configuration invalid: %w", err)
	}
	if err := c.ContextCfg.Validate(); err != nil {
		return fmt.Errorf("context configuration invalid: %w", err)
	}
	return nil
}

// Validate checks that both tiers resolve to a configured model with a credential.
func (l *LLMRouterConfig) Validate() error {
	for _, tier := range []struct{ key, name string }{
		{"llm.default_fast_model", l.DefaultFastModel},
		{"llm.default_powerful_model", l.DefaultPowerfulModel},
	} {
		if tier.name == "" {
			return &ConfigurationError{Field: tier.key, Reason: "must name a configured model"}
		}
		m, ok := l.Models[tier.name]
		if !ok {
			return &ConfigurationError{Field: tier.key, Reason: fmt.Sprintf("model %q is not defined under llm.models", tier.name)}
		}
		if m.Provider != ProviderOpenAI && m.Provider != ProviderGemini {
			return &ConfigurationError{Field: "llm.models." + tier.name + ".provider", Reason: fmt.Sprintf("unsupported provider %q", m.Provider)}
		}
		if m.APIKey == "" {
			return &ConfigurationError{
				Field:  "llm.models." + tier.name + ".api_key",
				Reason: "credential is missing; set SAST_AGENT_LLM_API_KEY or OPENAI_API_KEY",
				Err:    ErrMissingCredential,
			}
		}
	}
	return nil
}

// Validate checks the resilience settings.
func (r *ResilienceConfig) Validate() error {
	if r.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be a positive duration")
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if r.Breaker.Enabled && r.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("breaker.failure_threshold must be greater than 0")
	}
	return nil
}

// Validate checks the TriageConfig settings.
func (t *TriageConfig) Validate() error {
	if t.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if t.ValidationTemperature < 0 || t.ValidationTemperature > 2 {
		return fmt.Errorf("validation_temperature must be between 0.0 and 2.0")
	}
	if t.RemediationTemperature < 0 || t.RemediationTemperature > 2 {
		return fmt.Errorf("remediation_temperature must be between 0.0 and 2.0")
	}
	switch t.FailMode {
	case FailModeContinue, FailModeFailClosed:
	default:
		return fmt.Errorf("fail_mode must be %q or %q, got %q", FailModeContinue, FailModeFailClosed, t.FailMode)
	}
	switch t.UnknownVerdict {
	case UnknownVerdictDrop, UnknownVerdictReview:
	default:
		return fmt.Errorf("unknown_verdict must be %q or %q, got %q", UnknownVerdictDrop, UnknownVerdictReview, t.UnknownVerdict)
	}
	return nil
}

// Validate checks that the selected context source has what it needs.
func (c *ContextConfig) Validate() error {
	switch c.Source {
	case "", ContextSourceNone:
	case ContextSourceFile:
		if c.File == "" {
			return fmt.Errorf("context.file is required for source %q", c.Source)
		}
	case ContextSourceDir:
		if c.Dir == "" {
			return fmt.Errorf("context.dir is required for source %q", c.Source)
		}
	case ContextSourceGit:
		if c.Git.Path == "" {
			return fmt.Errorf("context.git.path is required for source %q", c.Source)
		}
	case ContextSourceGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return fmt.Errorf("context.github.owner and context.github.repo are required for source %q", c.Source)
		}
	default:
		return fmt.Errorf("unsupported context source %q", c.Source)
	}
	return nil
}

// ErrMissingCredential is wrapped by the ConfigurationError raised when no
// completion service credential could be found.
var ErrMissingCredential = errors.New("missing completion service credential")

// ConfigurationError reports an unusable configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
