package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

func newTestAuditor(t *testing.T) (*Auditor, string) {
	t.Helper()

	root := t.TempDir()

	auditor, err := NewAuditor(root, slog.Default())
	require.NoError(t, err)

	return auditor, root
}

// padding inflates a workflow so the backup clears the truncation threshold.
var padding = map[string]any{"notes": strings.Repeat("x", 2048)}

func writeBackup(t *testing.T, root, name string, workflows map[string]*models.Workflow) string {
	t.Helper()

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	results := make([]models.ExportResult, 0, len(workflows))

	for file, wf := range workflows {
		data, err := json.Marshal(wf)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))

		results = append(results, models.ExportResult{Name: wf.Name, Status: models.StatusSuccess})
	}

	manifest := models.BackupManifest{
		BackupName:    name,
		Environment:   models.EnvironmentProd,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		WorkflowCount: len(workflows),
		Workflows:     results,
	}

	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), data, 0o644))

	return dir
}

func validWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name: name,
		Nodes: []*models.Node{
			{ID: "n-1", Name: "Start", Type: "n8n-nodes-base.manualTrigger"},
			{ID: "n-2", Name: "Process", Type: "n8n-nodes-base.set"},
		},
		Connections: map[string]any{"Start": map[string]any{"main": []any{}}},
		Settings:    padding,
	}
}

func TestVerify_ValidBackupPasses(t *testing.T) {
	auditor, root := newTestAuditor(t)
	writeBackup(t, root, "backup_prod_ok", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	})

	report, err := auditor.Verify("backup_prod_ok")
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, 1, report.FileCount)
}

func TestVerify_MissingBackup(t *testing.T) {
	auditor, _ := newTestAuditor(t)

	_, err := auditor.Verify("absent")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestVerify_MissingManifestFails(t *testing.T) {
	auditor, root := newTestAuditor(t)

	dir := filepath.Join(root, "no_manifest")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	data, err := json.Marshal(validWorkflow("Order Sync-prod"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "order_sync.json"), data, 0o644))

	report, err := auditor.Verify("no_manifest")
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.NotEmpty(t, report.Errors)
}

func TestVerify_NoWorkflowFilesFails(t *testing.T) {
	auditor, root := newTestAuditor(t)
	writeBackup(t, root, "empty_backup", nil)

	report, err := auditor.Verify("empty_backup")
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.Contains(t, report.Errors, "backup contains no workflow files")
}

func TestVerify_MissingWorkflowFieldsAreErrors(t *testing.T) {
	auditor, root := newTestAuditor(t)
	dir := writeBackup(t, root, "bad_fields", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	})

	// A file missing name and connections, with a node missing its type.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"),
		[]byte(`{"nodes": [{"id": "n-1", "name": "Start"}]}`), 0o644))

	report, err := auditor.Verify("bad_fields")
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.NotEmpty(t, report.Errors)
}

func TestVerify_EmptyNodeListIsWarning(t *testing.T) {
	auditor, root := newTestAuditor(t)

	wf := validWorkflow("Order Sync-prod")
	wf.Nodes = []*models.Node{}

	writeBackup(t, root, "empty_nodes", map[string]*models.Workflow{"order_sync.json": wf})

	report, err := auditor.Verify("empty_nodes")
	require.NoError(t, err)

	assert.True(t, report.Passed, "warnings never fail verification")
	assert.NotEmpty(t, report.Warnings)
}

func TestVerify_DuplicateWorkflowNameIsError(t *testing.T) {
	auditor, root := newTestAuditor(t)
	writeBackup(t, root, "dup_names", map[string]*models.Workflow{
		"a.json": validWorkflow("Order Sync-prod"),
		"b.json": validWorkflow("Order Sync-prod"),
	})

	report, err := auditor.Verify("dup_names")
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.Contains(t, fmt.Sprint(report.Errors), "duplicate workflow name")
}

func TestVerify_OldBackupWarnsButPasses(t *testing.T) {
	auditor, root := newTestAuditor(t)
	dir := writeBackup(t, root, "old_backup", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	})

	// Rewrite the manifest with a creation time ten days back.
	manifest := models.BackupManifest{
		BackupName:    "old_backup",
		Environment:   models.EnvironmentProd,
		CreatedAt:     time.Now().UTC().Add(-10 * 24 * time.Hour).Format(time.RFC3339),
		WorkflowCount: 1,
	}

	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), data, 0o644))

	report, err := auditor.Verify("old_backup")
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Contains(t, fmt.Sprint(report.Warnings), "older than 7 days")
}

func TestVerify_CountMismatchIsWarning(t *testing.T) {
	auditor, root := newTestAuditor(t)
	dir := writeBackup(t, root, "count_mismatch", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	})

	manifest := models.BackupManifest{
		BackupName:    "count_mismatch",
		Environment:   models.EnvironmentProd,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		WorkflowCount: 5,
	}

	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), data, 0o644))

	report, err := auditor.Verify("count_mismatch")
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Contains(t, fmt.Sprint(report.Warnings), "manifest records 5 workflows")
}

func TestVerify_NameMismatchIsWarning(t *testing.T) {
	auditor, root := newTestAuditor(t)
	dir := writeBackup(t, root, "dir_name", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	})

	manifest := models.BackupManifest{
		BackupName:    "recorded_name",
		Environment:   models.EnvironmentProd,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		WorkflowCount: 1,
	}

	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), data, 0o644))

	report, err := auditor.Verify("dir_name")
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Contains(t, fmt.Sprint(report.Warnings), "does not match directory name")
}

func TestCompare_IdenticalBackups(t *testing.T) {
	auditor, root := newTestAuditor(t)

	workflows := map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	}
	writeBackup(t, root, "a", workflows)
	writeBackup(t, root, "b", workflows)

	report, err := auditor.Compare("a", "b")
	require.NoError(t, err)

	assert.True(t, report.Identical)
	assert.Empty(t, report.OnlyInA)
	assert.Empty(t, report.OnlyInB)
	assert.Empty(t, report.Changed)
}

func TestCompare_NodeCountChanged(t *testing.T) {
	auditor, root := newTestAuditor(t)

	writeBackup(t, root, "a", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
	})

	grown := validWorkflow("Order Sync-prod")
	grown.Nodes = append(grown.Nodes, &models.Node{ID: "n-3", Name: "Extra", Type: "n8n-nodes-base.set"})

	writeBackup(t, root, "b", map[string]*models.Workflow{"order_sync.json": grown})

	report, err := auditor.Compare("a", "b")
	require.NoError(t, err)

	require.Len(t, report.Changed, 1)

	var countDiff *Difference

	for i := range report.Changed[0].Differences {
		if report.Changed[0].Differences[i].Type == DiffNodeCountChanged {
			countDiff = &report.Changed[0].Differences[i]
		}
	}

	require.NotNil(t, countDiff)
	assert.Equal(t, "2", countDiff.From)
	assert.Equal(t, "3", countDiff.To)
}

func TestCompare_FileSetDifference(t *testing.T) {
	auditor, root := newTestAuditor(t)

	writeBackup(t, root, "a", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
		"only_a.json":     validWorkflow("Only A-prod"),
	})
	writeBackup(t, root, "b", map[string]*models.Workflow{
		"order_sync.json": validWorkflow("Order Sync-prod"),
		"only_b.json":     validWorkflow("Only B-prod"),
	})

	report, err := auditor.Compare("a", "b")
	require.NoError(t, err)

	assert.False(t, report.Identical)
	assert.Equal(t, []string{"only_a.json"}, report.OnlyInA)
	assert.Equal(t, []string{"only_b.json"}, report.OnlyInB)
}

func TestCompare_MissingBackup(t *testing.T) {
	auditor, root := newTestAuditor(t)
	writeBackup(t, root, "a", nil)

	_, err := auditor.Compare("a", "absent")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestDiffWorkflows(t *testing.T) {
	base := validWorkflow("Order Sync-prod")

	t.Run("equal workflows yield no differences", func(t *testing.T) {
		assert.Empty(t, DiffWorkflows(base, validWorkflow("Order Sync-prod")))
	})

	t.Run("active flag change", func(t *testing.T) {
		active := true
		changed := validWorkflow("Order Sync-prod")
		changed.Active = &active

		diffs := DiffWorkflows(base, changed)
		require.Len(t, diffs, 1)
		assert.Equal(t, DiffActiveChanged, diffs[0].Type)
		assert.Equal(t, "false", diffs[0].From)
		assert.Equal(t, "true", diffs[0].To)
	})

	t.Run("node type set change", func(t *testing.T) {
		changed := validWorkflow("Order Sync-prod")
		changed.Nodes[1].Type = "n8n-nodes-base.slack"

		diffs := DiffWorkflows(base, changed)
		require.Len(t, diffs, 1)
		assert.Equal(t, DiffNodeTypesChanged, diffs[0].Type)
	})

	t.Run("tag set change", func(t *testing.T) {
		changed := validWorkflow("Order Sync-prod")
		changed.Tags = []models.Tag{{Name: "release"}}

		diffs := DiffWorkflows(base, changed)
		require.Len(t, diffs, 1)
		assert.Equal(t, DiffTagsChanged, diffs[0].Type)
	})

	t.Run("connection topology change", func(t *testing.T) {
		changed := validWorkflow("Order Sync-prod")
		changed.Connections["Process"] = map[string]any{"main": []any{}}

		diffs := DiffWorkflows(base, changed)
		require.Len(t, diffs, 1)
		assert.Equal(t, DiffConnectionsChanged, diffs[0].Type)
	})
}
