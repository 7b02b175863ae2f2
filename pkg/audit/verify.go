package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// ErrBackupNotFound aborts verification of a backup whose directory is absent.
var ErrBackupNotFound = errors.New("backup not found")

const (
	manifestFileName = "_backup_metadata.json"

	// staleAfter flags backups that are probably no longer a useful restore
	// point.
	staleAfter = 7 * 24 * time.Hour

	// minBackupBytes flags a likely-empty or truncated backup.
	minBackupBytes = 1024
)

// workflowSchema is the structural contract every backed-up workflow file has
// to meet: name, nodes and connections present, every node carrying a name and
// a type. Schema violations are errors; everything softer is a warning.
const workflowSchema = `{
  "type": "object",
  "required": ["name", "nodes", "connections"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1}
        }
      }
    },
    "connections": {"type": "object"}
  }
}`

// VerifyReport accumulates a backup's errors and warnings independently.
// Errors fail verification; warnings never do.
type VerifyReport struct {
	BackupName string   `json:"backupName"`
	FileCount  int      `json:"fileCount"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	Passed     bool     `json:"passed"`
}

type Auditor struct {
	backupsDir string
	schema     *gojsonschema.Schema
	logger     *slog.Logger
}

func NewAuditor(backupsDir string, logger *slog.Logger) (*Auditor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling workflow schema: %w", err)
	}

	return &Auditor{backupsDir: backupsDir, schema: schema, logger: logger}, nil
}

// Verify checks one backup's structural integrity offline.
func (a *Auditor) Verify(backupName string) (*VerifyReport, error) {
	dir := filepath.Join(a.backupsDir, backupName)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, backupName)
	}

	report := &VerifyReport{BackupName: backupName}

	manifest := a.checkManifest(dir, backupName, report)

	files, err := workflowFiles(dir)
	if err != nil {
		return nil, err
	}

	report.FileCount = len(files)

	if len(files) == 0 {
		report.Errors = append(report.Errors, "backup contains no workflow files")
	}

	seenNames := make(map[string]string, len(files))

	for _, file := range files {
		a.checkWorkflowFile(dir, file, seenNames, report)
	}

	if manifest != nil && manifest.WorkflowCount != len(files) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"manifest records %d workflows but backup contains %d files",
			manifest.WorkflowCount, len(files)))
	}

	createdAt := dirInfo.ModTime()
	if manifest != nil {
		if t, err := time.Parse(time.RFC3339, manifest.CreatedAt); err == nil {
			createdAt = t
		}
	}

	if time.Since(createdAt) > staleAfter {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"backup is older than 7 days (created %s)", createdAt.Format("2006-01-02")))
	}

	if size := directorySize(dir); size < minBackupBytes {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"backup is only %d bytes, likely empty or truncated", size))
	}

	report.Passed = len(report.Errors) == 0

	return report, nil
}

// checkManifest validates the metadata sidecar and returns it when parseable.
func (a *Auditor) checkManifest(dir, backupName string, report *VerifyReport) *models.BackupManifest {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		report.Errors = append(report.Errors, "backup metadata sidecar is missing")

		return nil
	}

	var manifest models.BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("backup metadata is not valid JSON: %v", err))

		return nil
	}

	for field, value := range map[string]string{
		"backupName":  manifest.BackupName,
		"environment": string(manifest.Environment),
		"createdAt":   manifest.CreatedAt,
	} {
		if value == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("backup metadata is missing %s", field))
		}
	}

	if manifest.BackupName != "" && manifest.BackupName != backupName {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"manifest backup name %q does not match directory name %q",
			manifest.BackupName, backupName))
	}

	return &manifest
}

func (a *Auditor) checkWorkflowFile(dir, file string, seenNames map[string]string, report *VerifyReport) {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", file, err))

		return
	}

	result, err := a.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: not valid JSON: %v", file, err))

		return
	}

	if !result.Valid() {
		for _, desc := range result.Errors() {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", file, desc))
		}

		return
	}

	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", file, err))

		return
	}

	if len(wf.Nodes) == 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: workflow has no nodes", file))
	}

	if other, dup := seenNames[wf.Name]; dup {
		report.Errors = append(report.Errors, fmt.Sprintf(
			"duplicate workflow name %q in %s and %s", wf.Name, other, file))
	} else {
		seenNames[wf.Name] = file
	}
}

func directorySize(dir string) int64 {
	var total int64

	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		if info, err := d.Info(); err == nil {
			total += info.Size()
		}

		return nil
	})

	return total
}
