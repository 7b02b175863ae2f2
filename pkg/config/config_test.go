package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

const validConfig = `
settings:
  baseUrl: https://n8n.example.com
  apiKey: secret-key
  backupBeforeDeploy: true
  maxBackupsToKeep: 5
workflows:
  - baseName: Order Sync
    description: Syncs orders into the ERP
    variables:
      dev:
        apiUrl: https://dev.example.com
      prod:
        apiUrl: https://prod.example.com
    credentials:
      prod:
        httpHeaderAuth:
          id: cred-prod-1
          name: Prod API Key
  - baseName: Invoice Export
    environments: [prod]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://n8n.example.com", cfg.Settings.BaseURL)
	assert.Equal(t, "secret-key", cfg.Settings.APIKey)
	assert.True(t, cfg.Settings.BackupBeforeDeploy)
	assert.Equal(t, 5, cfg.Settings.MaxBackupsToKeep)

	// Defaults applied.
	assert.Equal(t, "workflows", cfg.Settings.WorkflowsDir)
	assert.Equal(t, "backups", cfg.Settings.BackupsDir)
	assert.Equal(t, "unknown", cfg.Settings.OnUnmatchedSuffix)
	assert.Equal(t, "-dev", cfg.Suffixes[models.EnvironmentDev])
	assert.Equal(t, "-prod", cfg.Suffixes[models.EnvironmentProd])

	require.Len(t, cfg.Workflows, 2)
	assert.Equal(t, []models.Environment{models.EnvironmentDev, models.EnvironmentProd},
		cfg.Workflows[0].Environments, "environments default to dev and prod")
	assert.Equal(t, []models.Environment{models.EnvironmentProd}, cfg.Workflows[1].Environments)
}

func TestLoad_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnvVar, "env-key")

	cfg, err := Load(writeConfig(t, `
settings:
  baseUrl: https://n8n.example.com
workflows: []
`))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Settings.APIKey)
}

func TestLoad_ConfigKeyTakesPrecedenceOverEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnvVar, "env-key")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Settings.APIKey)
}

func TestLoad_DuplicateBaseName(t *testing.T) {
	_, err := Load(writeConfig(t, `
settings:
  baseUrl: https://n8n.example.com
workflows:
  - baseName: Order Sync
  - baseName: Order Sync
`))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "duplicate base name")
}

func TestLoad_VariablesForUnconfiguredEnvironment(t *testing.T) {
	_, err := Load(writeConfig(t, `
settings:
  baseUrl: https://n8n.example.com
workflows:
  - baseName: Order Sync
    variables:
      staging:
        apiUrl: https://staging.example.com
`))
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_MissingBaseURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
settings:
  apiKey: key
workflows: []
`))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_Lookups(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	vars := cfg.VariablesFor("Order Sync", models.EnvironmentProd)
	assert.Equal(t, "https://prod.example.com", vars["apiUrl"])

	assert.Nil(t, cfg.VariablesFor("Order Sync", models.EnvironmentStaging))
	assert.Nil(t, cfg.VariablesFor("Unknown", models.EnvironmentDev))

	creds := cfg.CredentialsFor("Order Sync", models.EnvironmentProd)
	require.Contains(t, creds, "httpHeaderAuth")
	assert.Equal(t, "cred-prod-1", creds["httpHeaderAuth"].ID)

	prodWorkflows := cfg.WorkflowsFor(models.EnvironmentProd)
	assert.Len(t, prodWorkflows, 2)

	devWorkflows := cfg.WorkflowsFor(models.EnvironmentDev)
	require.Len(t, devWorkflows, 1)
	assert.Equal(t, "Order Sync", devWorkflows[0].BaseName)
}
