package models

// Statuses for per-workflow outcome records. A failure on one workflow is
// recorded and never aborts the rest of the batch.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Actions taken by name-keyed reconciliation against the remote list.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// ExportResult records the outcome of exporting a single workflow to disk,
// during either a plain export or a backup.
type ExportResult struct {
	Name        string      `json:"name"`
	BaseName    string      `json:"baseName"`
	Environment Environment `json:"environment"`
	FileName    string      `json:"fileName,omitempty"`
	Status      string      `json:"status"`
	Active      bool        `json:"active"`
	NodeCount   int         `json:"nodeCount"`
	Error       string      `json:"error,omitempty"`
}

// DeployResult records the outcome of promoting one workflow between
// environments.
type DeployResult struct {
	BaseName string `json:"baseName"`
	Action   string `json:"action,omitempty"`
	DevName  string `json:"devName,omitempty"`
	ProdName string `json:"prodName,omitempty"`
	ProdID   string `json:"prodId,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ImportResult records the outcome of importing one exported file back into an
// environment.
type ImportResult struct {
	BaseName    string      `json:"baseName"`
	Name        string      `json:"name,omitempty"`
	Environment Environment `json:"environment"`
	Action      string      `json:"action,omitempty"`
	ID          string      `json:"id,omitempty"`
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
}

// RestoreResult records the outcome of restoring one backed-up workflow,
// including the remote active state observed before the restore so an operator
// can verify a rollback.
type RestoreResult struct {
	Name           string `json:"name"`
	FileName       string `json:"fileName"`
	Action         string `json:"action,omitempty"`
	Status         string `json:"status"`
	PreviousActive *bool  `json:"previousActive,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BackupManifest is the metadata sidecar written inside each backup directory.
type BackupManifest struct {
	BackupName    string         `json:"backupName"    validate:"required"`
	Environment   Environment    `json:"environment"   validate:"required"`
	CreatedAt     string         `json:"createdAt"     validate:"required"`
	WorkflowCount int            `json:"workflowCount"`
	FailedCount   int            `json:"failedCount"`
	Workflows     []ExportResult `json:"workflows"`
}

// BatchSummary is the aggregate view of a batch operation's outcome.
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}
