// Package config loads and validates the connection settings and the managed
// workflow list. The loaded value is immutable and threaded into every engine
// at construction; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
	"github.com/VictorNov/n8n-ci-cd/pkg/names"
)

// APIKeyEnvVar is consulted when the config file carries no API key. A key in
// the config file takes precedence, which risks leaking it into version
// control; documented as an operational concern.
const APIKeyEnvVar = "N8N_API_KEY"

// ConfigError reports malformed or missing configuration. It is fatal to the
// operation that needed the value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Settings is the connection and operational configuration.
type Settings struct {
	BaseURL            string `yaml:"baseUrl"            validate:"required,url"`
	APIKey             string `yaml:"apiKey"`
	BackupBeforeDeploy bool   `yaml:"backupBeforeDeploy"`
	MaxBackupsToKeep   int    `yaml:"maxBackupsToKeep"   validate:"min=0"`
	OnUnmatchedSuffix  string `yaml:"onUnmatchedSuffix"  validate:"omitempty,oneof=unknown defaultDev"`
	WorkflowsDir       string `yaml:"workflowsDir"`
	BackupsDir         string `yaml:"backupsDir"`
	LogsDir            string `yaml:"logsDir"`
}

// CredentialRef points a credential type at a concrete credential in one
// environment.
type CredentialRef struct {
	ID   string `yaml:"id"   validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// ManagedWorkflow is one row of the managed workflow list: a business-level
// workflow the promotion engine governs. Authored by operators, never mutated
// by any engine.
type ManagedWorkflow struct {
	BaseName     string                                            `yaml:"baseName" validate:"required"`
	Description  string                                            `yaml:"description"`
	Environments []models.Environment                              `yaml:"environments"`
	Variables    map[models.Environment]map[string]any             `yaml:"variables"`
	Credentials  map[models.Environment]map[string]CredentialRef   `yaml:"credentials"`
}

// HasEnvironment reports whether this workflow is managed in the given
// environment.
func (m *ManagedWorkflow) HasEnvironment(env models.Environment) bool {
	for _, e := range m.Environments {
		if e == env {
			return true
		}
	}

	return false
}

// Config is the full, validated configuration value.
type Config struct {
	Settings  Settings                       `yaml:"settings"`
	Suffixes  map[models.Environment]string  `yaml:"suffixes"`
	Workflows []ManagedWorkflow              `yaml:"workflows"`
}

// Load reads and validates a YAML configuration file, applying defaults for
// optional settings and resolving the API key from the process environment
// when the file carries none.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.MaxBackupsToKeep == 0 {
		c.Settings.MaxBackupsToKeep = 10
	}

	if c.Settings.OnUnmatchedSuffix == "" {
		c.Settings.OnUnmatchedSuffix = string(names.UnmatchedUnknown)
	}

	if c.Settings.WorkflowsDir == "" {
		c.Settings.WorkflowsDir = "workflows"
	}

	if c.Settings.BackupsDir == "" {
		c.Settings.BackupsDir = "backups"
	}

	if c.Settings.LogsDir == "" {
		c.Settings.LogsDir = "logs"
	}

	if c.Settings.APIKey == "" {
		c.Settings.APIKey = os.Getenv(APIKeyEnvVar)
	}

	if len(c.Suffixes) == 0 {
		c.Suffixes = names.DefaultSuffixes()
	}

	for i := range c.Workflows {
		if len(c.Workflows[i].Environments) == 0 {
			c.Workflows[i].Environments = []models.Environment{
				models.EnvironmentDev,
				models.EnvironmentProd,
			}
		}
	}
}

// Validate checks the configuration's structural and semantic invariants.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The suffix table is validated by constructing a codec from it.
	if _, err := names.NewCodec(c.Suffixes, names.UnmatchedMode(c.Settings.OnUnmatchedSuffix)); err != nil {
		return &ConfigError{Field: "suffixes", Message: err.Error()}
	}

	seen := make(map[string]bool, len(c.Workflows))

	for i, wf := range c.Workflows {
		if seen[wf.BaseName] {
			return &ConfigError{
				Field:   fmt.Sprintf("workflows[%d].baseName", i),
				Message: fmt.Sprintf("duplicate base name %q", wf.BaseName),
			}
		}

		seen[wf.BaseName] = true

		for env := range wf.Variables {
			if _, ok := c.Suffixes[env]; !ok {
				return &ConfigError{
					Field:   fmt.Sprintf("workflows[%d].variables", i),
					Message: fmt.Sprintf("environment %q has no configured suffix", env),
				}
			}
		}
	}

	return nil
}

// Codec builds the name codec for this configuration's suffix table.
func (c *Config) Codec() (*names.Codec, error) {
	return names.NewCodec(c.Suffixes, names.UnmatchedMode(c.Settings.OnUnmatchedSuffix))
}

// ManagedFor looks up a managed workflow by base name.
func (c *Config) ManagedFor(baseName string) (*ManagedWorkflow, bool) {
	for i := range c.Workflows {
		if c.Workflows[i].BaseName == baseName {
			return &c.Workflows[i], true
		}
	}

	return nil, false
}

// WorkflowsFor returns the managed workflows that include the given
// environment, in config order.
func (c *Config) WorkflowsFor(env models.Environment) []ManagedWorkflow {
	out := make([]ManagedWorkflow, 0, len(c.Workflows))

	for _, wf := range c.Workflows {
		if wf.HasEnvironment(env) {
			out = append(out, wf)
		}
	}

	return out
}

// VariablesFor returns the variable map for a base name in one environment, or
// nil when none is configured.
func (c *Config) VariablesFor(baseName string, env models.Environment) map[string]any {
	wf, ok := c.ManagedFor(baseName)
	if !ok {
		return nil
	}

	return wf.Variables[env]
}

// CredentialsFor returns the credential mapping for a base name in one
// environment, or nil when none is configured.
func (c *Config) CredentialsFor(baseName string, env models.Environment) map[string]CredentialRef {
	wf, ok := c.ManagedFor(baseName)
	if !ok {
		return nil
	}

	return wf.Credentials[env]
}
