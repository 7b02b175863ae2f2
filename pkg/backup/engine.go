// Package backup creates timestamped snapshots of an environment's managed
// workflows, restores them through the promotion reconciliation path, and
// prunes old snapshots by retention count.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/VictorNov/n8n-ci-cd/pkg/config"
	"github.com/VictorNov/n8n-ci-cd/pkg/models"
	"github.com/VictorNov/n8n-ci-cd/pkg/n8n"
	"github.com/VictorNov/n8n-ci-cd/pkg/names"
	"github.com/VictorNov/n8n-ci-cd/pkg/promote"
)

// ManifestFileName is the metadata sidecar inside each backup directory.
// Sidecars are prefixed with "_" and excluded from workflow file counts
// everywhere.
const ManifestFileName = "_backup_metadata.json"

var (
	// ErrBackupNotFound aborts a restore whose backup directory is absent.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrMissingName marks a backup file without a workflow name. The file
	// cannot be reconciled, so its restore fails; the rest of the batch
	// continues.
	ErrMissingName = errors.New("backup file has no workflow name")
)

// Info describes one backup directory in a listing.
type Info struct {
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	WorkflowCount int       `json:"workflowCount"`
}

// RestoreSummary is written as a sidecar after a restore run.
type RestoreSummary struct {
	BackupName string                 `json:"backupName"`
	RestoredAt string                 `json:"restoredAt"`
	Summary    models.BatchSummary    `json:"summary"`
	Workflows  []models.RestoreResult `json:"workflows"`
}

type Engine struct {
	cfg      *config.Config
	client   n8n.Client
	codec    *names.Codec
	exporter *promote.Engine
	logger   *slog.Logger
}

func NewEngine(cfg *config.Config, client n8n.Client, codec *names.Codec, exporter *promote.Engine, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		client:   client,
		codec:    codec,
		exporter: exporter,
		logger:   logger,
	}
}

// CreateBackup snapshots every workflow currently managed for the environment
// into a new timestamped directory and writes the manifest sidecar. Zero
// matching workflows still produce a well-formed zero-count manifest so
// unconditional backup-before-deploy steps never abort. Retention pruning runs
// only after the manifest is written.
func (e *Engine) CreateBackup(ctx context.Context, env models.Environment, customName string) (*models.BackupManifest, error) {
	name := customName
	if name == "" {
		name = fmt.Sprintf("backup_%s_%s", env, time.Now().UTC().Format("2006-01-02_15-04-05"))
	}

	dir := filepath.Join(e.cfg.Settings.BackupsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	list, err := e.client.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]models.WorkflowSummary, len(list))
	for _, s := range list {
		byName[s.Name] = s
	}

	var results []models.ExportResult

	for _, managed := range e.cfg.WorkflowsFor(env) {
		display, err := e.codec.DisplayName(managed.BaseName, env)
		if err != nil {
			return nil, err
		}

		summary, ok := byName[display]
		if !ok {
			continue
		}

		result := e.exporter.ExportWorkflow(ctx, summary, env, dir)
		results = append(results, result)

		if result.Status != models.StatusSuccess {
			e.logger.Error("backup of workflow failed", "name", display, "error", result.Error)
		}
	}

	manifest := &models.BackupManifest{
		BackupName:  name,
		Environment: env,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Workflows:   results,
	}

	for _, r := range results {
		if r.Status == models.StatusSuccess {
			manifest.WorkflowCount++
		} else {
			manifest.FailedCount++
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o644)
	}

	if err != nil {
		return nil, fmt.Errorf("writing backup manifest: %w", err)
	}

	e.logger.Info("backup created",
		"name", name, "environment", env, "workflows", manifest.WorkflowCount, "failed", manifest.FailedCount)

	if _, err := e.CleanupOldBackups(e.cfg.Settings.MaxBackupsToKeep); err != nil {
		e.logger.Warn("backup retention cleanup failed", "error", err)
	}

	return manifest, nil
}

// ListBackups enumerates backup directories newest first, each annotated with
// its non-sidecar file count. A missing backup root yields an empty list.
func (e *Engine) ListBackups() ([]Info, error) {
	entries, err := os.ReadDir(e.cfg.Settings.BackupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}

		return nil, err
	}

	var infos []Info

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		files, err := workflowFiles(filepath.Join(e.cfg.Settings.BackupsDir, entry.Name()))
		if err != nil {
			continue
		}

		infos = append(infos, Info{
			Name:          entry.Name(),
			CreatedAt:     fi.ModTime(),
			WorkflowCount: len(files),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	return infos, nil
}

// RestoreFromBackup reconciles every selected file of a backup against the
// current remote list through the shared create-or-update path. Restores
// target prod by convention when filtering by base names. The previous remote
// active state is recorded per workflow for rollback verification.
func (e *Engine) RestoreFromBackup(ctx context.Context, backupName string, baseNames []string) (*RestoreSummary, error) {
	dir := filepath.Join(e.cfg.Settings.BackupsDir, backupName)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, backupName)
	}

	files, err := workflowFiles(dir)
	if err != nil {
		return nil, err
	}

	if len(baseNames) > 0 {
		wanted := make(map[string]bool, len(baseNames))

		for _, base := range baseNames {
			display, err := e.codec.DisplayName(base, models.EnvironmentProd)
			if err != nil {
				return nil, err
			}

			wanted[e.codec.FileName(display)] = true
		}

		filtered := files[:0]

		for _, f := range files {
			if wanted[f] {
				filtered = append(filtered, f)
			}
		}

		files = filtered
	}

	list, err := e.client.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	index := promote.NewRemoteIndex(list)
	previousActive := make(map[string]bool, len(list))

	for _, s := range list {
		previousActive[s.Name] = s.Active
	}

	reconciler := e.exporter.Reconciler()
	results := make([]models.RestoreResult, 0, len(files))

	for _, file := range files {
		results = append(results, e.restoreOne(ctx, reconciler, index, previousActive, dir, file))
	}

	summary := &RestoreSummary{
		BackupName: backupName,
		RestoredAt: time.Now().UTC().Format(time.RFC3339),
		Workflows:  results,
	}

	summary.Summary.Total = len(results)

	for _, r := range results {
		if r.Status == models.StatusSuccess {
			summary.Summary.Success++
		} else {
			summary.Summary.Failed++
		}
	}

	sidecar := fmt.Sprintf("_restore_summary_%s.json", time.Now().UTC().Format("2006-01-02_15-04-05"))

	data, err := json.MarshalIndent(summary, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, sidecar), data, 0o644)
	}

	if err != nil {
		e.logger.Warn("cannot write restore summary", "error", err)
	}

	return summary, nil
}

func (e *Engine) restoreOne(ctx context.Context, reconciler *promote.Reconciler, index *promote.RemoteIndex, previousActive map[string]bool, dir, file string) models.RestoreResult {
	result := models.RestoreResult{FileName: file, Status: models.StatusFailed}

	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		result.Error = err.Error()

		return result
	}

	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		result.Error = fmt.Sprintf("parsing %s: %v", file, err)

		return result
	}

	if wf.Name == "" {
		result.Error = fmt.Sprintf("%v: %s", ErrMissingName, file)

		return result
	}

	result.Name = wf.Name

	if active, ok := previousActive[wf.Name]; ok {
		result.PreviousActive = &active
	}

	wf.Sanitize()

	// The remote service decides the activation state of restored copies;
	// nothing is forced here beyond the bookkeeping strip.
	action, _, err := reconciler.Reconcile(ctx, index, &wf)
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("restore failed", "name", wf.Name, "error", err)

		return result
	}

	result.Status = models.StatusSuccess
	result.Action = action

	e.logger.Info("restored workflow", "name", wf.Name, "action", action)

	return result
}

// CleanupOldBackups deletes every backup directory beyond the keepCount newest
// by creation time. Deletion is recursive and permanent.
func (e *Engine) CleanupOldBackups(keepCount int) ([]string, error) {
	if keepCount < 0 {
		keepCount = 0
	}

	infos, err := e.ListBackups()
	if err != nil {
		return nil, err
	}

	if len(infos) <= keepCount {
		return nil, nil
	}

	var removed []string

	for _, info := range infos[keepCount:] {
		dir := filepath.Join(e.cfg.Settings.BackupsDir, info.Name)
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("removing backup %q: %w", info.Name, err)
		}

		removed = append(removed, info.Name)
		e.logger.Info("pruned old backup", "name", info.Name)
	}

	return removed, nil
}

// workflowFiles lists the non-sidecar JSON files in a directory, sorted for a
// stable iteration order.
func workflowFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
			continue
		}

		files = append(files, name)
	}

	sort.Strings(files)

	return files, nil
}
