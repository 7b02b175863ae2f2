package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// FileDiff groups one file's structural differences for reporting.
type FileDiff struct {
	File        string       `json:"file"`
	Differences []Difference `json:"differences"`
}

// CompareReport is the result of structurally diffing two backups. Zero
// differences is a valid, reportable outcome.
type CompareReport struct {
	BackupA   string     `json:"backupA"`
	BackupB   string     `json:"backupB"`
	OnlyInA   []string   `json:"onlyInA"`
	OnlyInB   []string   `json:"onlyInB"`
	Changed   []FileDiff `json:"changed"`
	Identical bool       `json:"identical"`
}

// Compare diffs two backups: the file-list set difference plus a per-file
// structural diff for files present in both.
func (a *Auditor) Compare(backupA, backupB string) (*CompareReport, error) {
	filesA, err := a.backupFiles(backupA)
	if err != nil {
		return nil, err
	}

	filesB, err := a.backupFiles(backupB)
	if err != nil {
		return nil, err
	}

	report := &CompareReport{BackupA: backupA, BackupB: backupB}

	setA := toSet(filesA)
	setB := toSet(filesB)

	for _, f := range filesA {
		if !setB[f] {
			report.OnlyInA = append(report.OnlyInA, f)
		}
	}

	for _, f := range filesB {
		if !setA[f] {
			report.OnlyInB = append(report.OnlyInB, f)
		}
	}

	for _, f := range filesA {
		if !setB[f] {
			continue
		}

		wfA, err := a.loadWorkflow(backupA, f)
		if err != nil {
			return nil, err
		}

		wfB, err := a.loadWorkflow(backupB, f)
		if err != nil {
			return nil, err
		}

		if diffs := DiffWorkflows(wfA, wfB); len(diffs) > 0 {
			report.Changed = append(report.Changed, FileDiff{File: f, Differences: diffs})
		}
	}

	report.Identical = len(report.OnlyInA) == 0 && len(report.OnlyInB) == 0 && len(report.Changed) == 0

	return report, nil
}

func (a *Auditor) backupFiles(backupName string) ([]string, error) {
	dir := filepath.Join(a.backupsDir, backupName)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, backupName)
	}

	return workflowFiles(dir)
}

func (a *Auditor) loadWorkflow(backupName, file string) (*models.Workflow, error) {
	data, err := os.ReadFile(filepath.Join(a.backupsDir, backupName, file))
	if err != nil {
		return nil, err
	}

	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing %s/%s: %w", backupName, file, err)
	}

	return &wf, nil
}

// workflowFiles lists the non-sidecar JSON files of a directory in sorted
// order.
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

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}

	return set
}
