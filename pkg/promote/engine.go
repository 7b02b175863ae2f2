// Package promote orchestrates export of workflows from a remote n8n instance
// to disk, and promotion of exported copies into a target environment through
// name-keyed create-or-update reconciliation.
package promote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/VictorNov/n8n-ci-cd/pkg/config"
	"github.com/VictorNov/n8n-ci-cd/pkg/inject"
	"github.com/VictorNov/n8n-ci-cd/pkg/models"
	"github.com/VictorNov/n8n-ci-cd/pkg/n8n"
	"github.com/VictorNov/n8n-ci-cd/pkg/names"
)

// ErrNoWorkflows aborts a deploy invoked with nothing to promote.
var ErrNoWorkflows = errors.New("no workflows to promote")

// BackupHook is the pre-deploy backup capability. Wired in by the caller so
// the backup engine can depend on this package's reconciler without a cycle.
type BackupHook interface {
	CreateBackup(ctx context.Context, env models.Environment, customName string) (*models.BackupManifest, error)
}

type Engine struct {
	cfg        *config.Config
	client     n8n.Client
	codec      *names.Codec
	injector   *inject.Injector
	reconciler *Reconciler
	backups    BackupHook
	logger     *slog.Logger
}

func NewEngine(cfg *config.Config, client n8n.Client, codec *names.Codec, injector *inject.Injector, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		client:     client,
		codec:      codec,
		injector:   injector,
		reconciler: NewReconciler(client),
		logger:     logger,
	}
}

// WithBackupHook enables the pre-deploy backup gated by
// settings.backupBeforeDeploy.
func (e *Engine) WithBackupHook(hook BackupHook) *Engine {
	e.backups = hook

	return e
}

// Reconciler exposes the shared create-or-update path for the backup engine's
// restore flow.
func (e *Engine) Reconciler() *Reconciler {
	return e.reconciler
}

// exportTarget pairs a remote workflow with its resolved managed identity.
type exportTarget struct {
	summary  models.WorkflowSummary
	baseName string
	found    bool
	name     string
}

// resolveTargets selects the remote workflows to export for an environment.
// With explicit base names, the remote list is filtered by suffix; otherwise
// every managed workflow configured for the environment is resolved to its
// display name and looked up.
func (e *Engine) resolveTargets(env models.Environment, baseNames []string, list []models.WorkflowSummary) ([]exportTarget, error) {
	var targets []exportTarget

	if len(baseNames) > 0 {
		wanted := make(map[string]bool, len(baseNames))
		for _, b := range baseNames {
			wanted[b] = true
		}

		for _, s := range list {
			if e.codec.EnvironmentOf(s.Name) == env && wanted[e.codec.BaseName(s.Name)] {
				targets = append(targets, exportTarget{
					summary:  s,
					baseName: e.codec.BaseName(s.Name),
					found:    true,
					name:     s.Name,
				})
			}
		}

		return targets, nil
	}

	index := NewRemoteIndex(list)

	for _, managed := range e.cfg.WorkflowsFor(env) {
		display, err := e.codec.DisplayName(managed.BaseName, env)
		if err != nil {
			return nil, err
		}

		summary, ok := index.Lookup(display)
		targets = append(targets, exportTarget{
			summary:  summary,
			baseName: managed.BaseName,
			found:    ok,
			name:     display,
		})
	}

	return targets, nil
}

// ExportWorkflow fetches one workflow by id, strips service bookkeeping and
// writes it into dir. Shared by export and backup.
func (e *Engine) ExportWorkflow(ctx context.Context, summary models.WorkflowSummary, env models.Environment, dir string) models.ExportResult {
	result := models.ExportResult{
		Name:        summary.Name,
		BaseName:    e.codec.BaseName(summary.Name),
		Environment: env,
		Active:      summary.Active,
	}

	wf, err := e.client.GetByID(ctx, summary.ID)
	if err != nil {
		result.Status = models.StatusFailed
		result.Error = err.Error()

		return result
	}

	wf.Sanitize()

	fileName := e.codec.FileName(summary.Name)

	data, err := json.MarshalIndent(wf, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, fileName), data, 0o644)
	}

	if err != nil {
		result.Status = models.StatusFailed
		result.Error = err.Error()

		return result
	}

	result.Status = models.StatusSuccess
	result.FileName = fileName
	result.NodeCount = len(wf.Nodes)

	return result
}

// Export pulls the resolved workflows for an environment from the remote
// service into the workflows directory, one file per workflow, and writes a
// batch summary sidecar. Per-workflow failures are recorded and do not abort
// the batch.
func (e *Engine) Export(ctx context.Context, env models.Environment, baseNames []string) ([]models.ExportResult, models.BatchSummary, error) {
	list, err := e.client.ListAll(ctx)
	if err != nil {
		return nil, models.BatchSummary{}, err
	}

	targets, err := e.resolveTargets(env, baseNames, list)
	if err != nil {
		return nil, models.BatchSummary{}, err
	}

	if err := os.MkdirAll(e.cfg.Settings.WorkflowsDir, 0o755); err != nil {
		return nil, models.BatchSummary{}, err
	}

	results := make([]models.ExportResult, 0, len(targets))

	for _, t := range targets {
		if !t.found {
			results = append(results, models.ExportResult{
				Name:        t.name,
				BaseName:    t.baseName,
				Environment: env,
				Status:      models.StatusFailed,
				Error:       "workflow not found in n8n",
			})

			continue
		}

		result := e.ExportWorkflow(ctx, t.summary, env, e.cfg.Settings.WorkflowsDir)
		results = append(results, result)

		if result.Status == models.StatusSuccess {
			e.logger.Info("exported workflow", "name", result.Name, "file", result.FileName)
		} else {
			e.logger.Error("export failed", "name", result.Name, "error", result.Error)
		}
	}

	summary := summarize(results)
	e.writeSummary(fmt.Sprintf("_export_summary_%s.json", env), env, results, summary)

	return results, summary, nil
}

// Deploy promotes the locally exported dev copies of the given base names into
// prod: optional pre-deploy backup, variable and credential injection for
// prod, then name-keyed reconciliation against a fresh remote list.
func (e *Engine) Deploy(ctx context.Context, baseNames []string, version string) ([]models.DeployResult, models.BatchSummary, error) {
	if len(baseNames) == 0 {
		return nil, models.BatchSummary{}, ErrNoWorkflows
	}

	if e.cfg.Settings.BackupBeforeDeploy && e.backups != nil {
		name := "pre_deploy_auto_" + time.Now().UTC().Format("2006-01-02_15-04-05")
		if _, err := e.backups.CreateBackup(ctx, models.EnvironmentProd, name); err != nil {
			return nil, models.BatchSummary{}, fmt.Errorf("pre-deploy backup failed: %w", err)
		}
	}

	list, err := e.client.ListAll(ctx)
	if err != nil {
		return nil, models.BatchSummary{}, err
	}

	index := NewRemoteIndex(list)
	results := make([]models.DeployResult, 0, len(baseNames))

	for _, base := range baseNames {
		results = append(results, e.deployOne(ctx, index, base, version))
	}

	summary := summarizeDeploy(results)

	return results, summary, nil
}

func (e *Engine) deployOne(ctx context.Context, index *RemoteIndex, base, version string) models.DeployResult {
	result := models.DeployResult{BaseName: base, Status: models.StatusFailed}

	devName, err := e.codec.DisplayName(base, models.EnvironmentDev)
	if err != nil {
		result.Error = err.Error()

		return result
	}

	prodName, err := e.codec.DisplayName(base, models.EnvironmentProd)
	if err != nil {
		result.Error = err.Error()

		return result
	}

	result.DevName = devName
	result.ProdName = prodName

	wf, err := e.readExported(devName)
	if err != nil {
		result.Error = err.Error()

		return result
	}

	wf.Sanitize()
	wf.StripActive()
	wf.StripWebhookIDs()
	wf.Name = prodName

	e.injector.Inject(wf, base, models.EnvironmentProd, version)
	e.injector.ApplyCredentials(wf, base, models.EnvironmentProd)

	action, id, err := e.reconciler.Reconcile(ctx, index, wf)
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("deploy failed", "baseName", base, "error", err)

		return result
	}

	result.Status = models.StatusSuccess
	result.Action = action
	result.ProdID = id

	e.logger.Info("deployed workflow", "baseName", base, "action", action, "prodName", prodName)

	return result
}

// Import pushes exported files back into the same environment they were
// exported from, injecting that environment's variables first.
func (e *Engine) Import(ctx context.Context, env models.Environment, baseNames []string, version string) ([]models.ImportResult, models.BatchSummary, error) {
	if len(baseNames) == 0 {
		for _, managed := range e.cfg.WorkflowsFor(env) {
			baseNames = append(baseNames, managed.BaseName)
		}
	}

	list, err := e.client.ListAll(ctx)
	if err != nil {
		return nil, models.BatchSummary{}, err
	}

	index := NewRemoteIndex(list)
	results := make([]models.ImportResult, 0, len(baseNames))

	for _, base := range baseNames {
		results = append(results, e.importOne(ctx, index, base, env, version))
	}

	summary := summarizeImport(results)
	e.writeImportSummary(fmt.Sprintf("_import_summary_%s.json", env), env, results, summary)

	return results, summary, nil
}

func (e *Engine) importOne(ctx context.Context, index *RemoteIndex, base string, env models.Environment, version string) models.ImportResult {
	result := models.ImportResult{BaseName: base, Environment: env, Status: models.StatusFailed}

	display, err := e.codec.DisplayName(base, env)
	if err != nil {
		result.Error = err.Error()

		return result
	}

	wf, err := e.readExported(display)
	if err != nil {
		result.Error = err.Error()

		return result
	}

	wf.Sanitize()

	if wf.Name != display {
		e.logger.Warn("renaming workflow to environment display name",
			"from", wf.Name, "to", display)
		wf.Name = display
	}

	result.Name = display

	e.injector.Inject(wf, base, env, version)
	e.injector.ApplyCredentials(wf, base, env)

	action, id, err := e.reconciler.Reconcile(ctx, index, wf)
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("import failed", "baseName", base, "error", err)

		return result
	}

	result.Status = models.StatusSuccess
	result.Action = action
	result.ID = id

	e.logger.Info("imported workflow", "baseName", base, "action", action, "name", display)

	return result
}

// readExported loads the locally exported copy for a display name. Deploy and
// import read these files, never a fresh remote fetch.
func (e *Engine) readExported(displayName string) (*models.Workflow, error) {
	path := filepath.Join(e.cfg.Settings.WorkflowsDir, e.codec.FileName(displayName))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow not exported (%s): %w", path, err)
	}

	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &wf, nil
}

func (e *Engine) writeSummary(fileName string, env models.Environment, results []models.ExportResult, summary models.BatchSummary) {
	e.writeSidecar(fileName, map[string]any{
		"environment": env,
		"createdAt":   time.Now().UTC().Format(time.RFC3339),
		"summary":     summary,
		"workflows":   results,
	})
}

func (e *Engine) writeImportSummary(fileName string, env models.Environment, results []models.ImportResult, summary models.BatchSummary) {
	e.writeSidecar(fileName, map[string]any{
		"environment": env,
		"createdAt":   time.Now().UTC().Format(time.RFC3339),
		"summary":     summary,
		"workflows":   results,
	})
}

// writeSidecar writes a batch summary into the logs directory. Summaries are
// best-effort reporting; a write failure is logged, not propagated.
func (e *Engine) writeSidecar(fileName string, payload any) {
	if err := os.MkdirAll(e.cfg.Settings.LogsDir, 0o755); err != nil {
		e.logger.Warn("cannot create logs directory", "error", err)

		return
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(e.cfg.Settings.LogsDir, fileName), data, 0o644)
	}

	if err != nil {
		e.logger.Warn("cannot write summary sidecar", "file", fileName, "error", err)
	}
}

func summarize(results []models.ExportResult) models.BatchSummary {
	s := models.BatchSummary{Total: len(results)}

	for _, r := range results {
		if r.Status == models.StatusSuccess {
			s.Success++
		} else {
			s.Failed++
		}
	}

	return s
}

func summarizeDeploy(results []models.DeployResult) models.BatchSummary {
	s := models.BatchSummary{Total: len(results)}

	for _, r := range results {
		if r.Status == models.StatusSuccess {
			s.Success++
		} else {
			s.Failed++
		}
	}

	return s
}

func summarizeImport(results []models.ImportResult) models.BatchSummary {
	s := models.BatchSummary{Total: len(results)}

	for _, r := range results {
		if r.Status == models.StatusSuccess {
			s.Success++
		} else {
			s.Failed++
		}
	}

	return s
}
