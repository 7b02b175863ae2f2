package backup

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorNov/n8n-ci-cd/pkg/config"
	"github.com/VictorNov/n8n-ci-cd/pkg/inject"
	"github.com/VictorNov/n8n-ci-cd/pkg/mocks"
	"github.com/VictorNov/n8n-ci-cd/pkg/models"
	"github.com/VictorNov/n8n-ci-cd/pkg/names"
	"github.com/VictorNov/n8n-ci-cd/pkg/promote"
)

func testEngine(t *testing.T) (*Engine, *mocks.FakeClient, *config.Config) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		Settings: config.Settings{
			BaseURL:          "https://n8n.example.com",
			MaxBackupsToKeep: 10,
			WorkflowsDir:     filepath.Join(root, "workflows"),
			BackupsDir:       filepath.Join(root, "backups"),
			LogsDir:          filepath.Join(root, "logs"),
		},
		Suffixes: names.DefaultSuffixes(),
		Workflows: []config.ManagedWorkflow{
			{
				BaseName:     "Order Sync",
				Environments: []models.Environment{models.EnvironmentDev, models.EnvironmentProd},
			},
			{
				BaseName:     "Invoice Export",
				Environments: []models.Environment{models.EnvironmentProd},
			},
		},
	}

	codec, err := cfg.Codec()
	require.NoError(t, err)

	client := mocks.NewFakeClient()
	logger := slog.Default()
	exporter := promote.NewEngine(cfg, client, codec, inject.NewInjector(cfg, logger), logger)

	return NewEngine(cfg, client, codec, exporter, logger), client, cfg
}

func boolPtr(v bool) *bool { return &v }

func seedProd(client *mocks.FakeClient, name string) string {
	return client.Seed(&models.Workflow{
		Name:   name,
		Active: boolPtr(true),
		Nodes: []*models.Node{
			{ID: "n-1", Name: "Start", Type: "n8n-nodes-base.manualTrigger"},
		},
		Connections: map[string]any{},
	})
}

func TestCreateBackup_WritesFilesAndManifest(t *testing.T) {
	engine, client, cfg := testEngine(t)
	seedProd(client, "Order Sync-prod")
	seedProd(client, "Invoice Export-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err)

	assert.Contains(t, manifest.BackupName, "backup_prod_")
	assert.Equal(t, 2, manifest.WorkflowCount)
	assert.Zero(t, manifest.FailedCount)
	assert.NotEmpty(t, manifest.CreatedAt)

	dir := filepath.Join(cfg.Settings.BackupsDir, manifest.BackupName)

	for _, file := range []string{"order_sync.json", "invoice_export.json", ManifestFileName} {
		_, err := os.Stat(filepath.Join(dir, file))
		assert.NoError(t, err, file)
	}
}

func TestCreateBackup_CustomName(t *testing.T) {
	engine, client, cfg := testEngine(t)
	seedProd(client, "Order Sync-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "pre_deploy_auto_test")
	require.NoError(t, err)

	assert.Equal(t, "pre_deploy_auto_test", manifest.BackupName)
	_, err = os.Stat(filepath.Join(cfg.Settings.BackupsDir, "pre_deploy_auto_test", ManifestFileName))
	assert.NoError(t, err)
}

func TestCreateBackup_ZeroWorkflowsStillSucceeds(t *testing.T) {
	engine, _, _ := testEngine(t)

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err, "pipeline steps that back up unconditionally must not abort")

	assert.Zero(t, manifest.WorkflowCount)
	assert.Empty(t, manifest.Workflows)
}

func TestListBackups_NewestFirst(t *testing.T) {
	engine, _, cfg := testEngine(t)

	base := time.Now().Add(-1 * time.Hour)

	for i, name := range []string{"oldest", "middle", "newest"} {
		dir := filepath.Join(cfg.Settings.BackupsDir, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "wf.json"), []byte("{}"), 0o644))

		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(dir, ts, ts))
	}

	infos, err := engine.ListBackups()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "newest", infos[0].Name)
	assert.Equal(t, "middle", infos[1].Name)
	assert.Equal(t, "oldest", infos[2].Name)
	assert.Equal(t, 1, infos[0].WorkflowCount)
}

func TestListBackups_MissingRootIsEmpty(t *testing.T) {
	engine, _, _ := testEngine(t)

	infos, err := engine.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCleanupOldBackups_KeepsNewest(t *testing.T) {
	engine, _, cfg := testEngine(t)

	base := time.Now().Add(-1 * time.Hour)
	dirs := []string{"b1", "b2", "b3", "b4", "b5"}

	for i, name := range dirs {
		dir := filepath.Join(cfg.Settings.BackupsDir, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(dir, ts, ts))
	}

	removed, err := engine.CleanupOldBackups(2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, removed)

	for _, name := range []string{"b4", "b5"} {
		_, err := os.Stat(filepath.Join(cfg.Settings.BackupsDir, name))
		assert.NoError(t, err, "%s must survive", name)
	}

	for _, name := range removed {
		_, err := os.Stat(filepath.Join(cfg.Settings.BackupsDir, name))
		assert.True(t, os.IsNotExist(err), "%s must be deleted", name)
	}
}

func TestRestoreFromBackup_RoundTrip(t *testing.T) {
	engine, client, _ := testEngine(t)
	seedProd(client, "Order Sync-prod")
	seedProd(client, "Invoice Export-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err)

	summary, err := engine.RestoreFromBackup(context.Background(), manifest.BackupName, nil)
	require.NoError(t, err)

	assert.Equal(t, models.BatchSummary{Total: 2, Success: 2}, summary.Summary)

	for _, r := range summary.Workflows {
		assert.Equal(t, models.StatusSuccess, r.Status)
		assert.Equal(t, models.ActionUpdated, r.Action, "remote copies still exist, so restore updates")
		require.NotNil(t, r.PreviousActive)
		assert.True(t, *r.PreviousActive)
	}
}

func TestRestoreFromBackup_CreatesMissingWorkflows(t *testing.T) {
	engine, client, _ := testEngine(t)
	id := seedProd(client, "Order Sync-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err)

	// Simulate the workflow having been deleted remotely after the backup.
	delete(client.Workflows, id)

	summary, err := engine.RestoreFromBackup(context.Background(), manifest.BackupName, nil)
	require.NoError(t, err)

	require.Len(t, summary.Workflows, 1)
	assert.Equal(t, models.ActionCreated, summary.Workflows[0].Action)
	assert.Nil(t, summary.Workflows[0].PreviousActive)
}

func TestRestoreFromBackup_FilterByBaseNames(t *testing.T) {
	engine, client, _ := testEngine(t)
	seedProd(client, "Order Sync-prod")
	seedProd(client, "Invoice Export-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err)

	summary, err := engine.RestoreFromBackup(context.Background(), manifest.BackupName, []string{"Order Sync"})
	require.NoError(t, err)

	require.Len(t, summary.Workflows, 1)
	assert.Equal(t, "Order Sync-prod", summary.Workflows[0].Name)
}

func TestRestoreFromBackup_MissingBackup(t *testing.T) {
	engine, _, _ := testEngine(t)

	_, err := engine.RestoreFromBackup(context.Background(), "no_such_backup", nil)
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestRestoreFromBackup_MissingNameFailsOnlyThatFile(t *testing.T) {
	engine, client, cfg := testEngine(t)
	seedProd(client, "Order Sync-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err)

	dir := filepath.Join(cfg.Settings.BackupsDir, manifest.BackupName)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"),
		[]byte(`{"nodes": [], "connections": {}}`), 0o644))

	summary, err := engine.RestoreFromBackup(context.Background(), manifest.BackupName, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Summary.Failed)
	assert.Equal(t, 1, summary.Summary.Success)
}

func TestRestoreFromBackup_WritesSummarySidecar(t *testing.T) {
	engine, client, cfg := testEngine(t)
	seedProd(client, "Order Sync-prod")

	manifest, err := engine.CreateBackup(context.Background(), models.EnvironmentProd, "")
	require.NoError(t, err)

	_, err = engine.RestoreFromBackup(context.Background(), manifest.BackupName, nil)
	require.NoError(t, err)

	dir := filepath.Join(cfg.Settings.BackupsDir, manifest.BackupName)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	found := false

	for _, entry := range entries {
		if len(entry.Name()) > len("_restore_summary_") && entry.Name()[:len("_restore_summary_")] == "_restore_summary_" {
			found = true

			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			require.NoError(t, err)

			var summary RestoreSummary
			require.NoError(t, json.Unmarshal(data, &summary))
			assert.Equal(t, manifest.BackupName, summary.BackupName)
		}
	}

	assert.True(t, found, "restore summary sidecar must be written")
}
