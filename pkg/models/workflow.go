// Package models defines the core domain models for n8n workflow promotion,
// backup and restore.
package models

// Environment identifies one of the namespaces a workflow can live in inside a
// single n8n instance. Environments are distinguished purely by a display-name
// suffix on the workflow name.
type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentProd    Environment = "prod"
	EnvironmentStaging Environment = "staging" // legacy, only active when a suffix is configured

	// EnvironmentUnknown is reported for display names matching no configured
	// suffix.
	EnvironmentUnknown Environment = "unknown"
)

// Tag is a remote workflow tag reference.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Workflow is the remote service's representation of a workflow. The remote id
// is never persisted locally; the mutable display name is the only correlation
// key this system uses.
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"        validate:"required"`
	Active      *bool          `json:"active,omitempty"`
	Nodes       []*Node        `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
	Tags        []Tag          `json:"tags,omitempty"`

	// Service-managed bookkeeping. The n8n API rejects or ignores these on
	// create/update, and round-tripping them causes drift; Sanitize drops them.
	CreatedAt    string         `json:"createdAt,omitempty"`
	UpdatedAt    string         `json:"updatedAt,omitempty"`
	VersionID    string         `json:"versionId,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	PinData      map[string]any `json:"pinData,omitempty"`
	TriggerCount int            `json:"triggerCount,omitempty"`
	Shared       []any          `json:"shared,omitempty"`
}

// WorkflowSummary is the shape returned by the remote list endpoint.
type WorkflowSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Tags      []Tag  `json:"tags,omitempty"`
}

// Sanitize drops the remote id and every service-managed bookkeeping field so
// the workflow is safe to write to disk or send on a create/update call.
func (w *Workflow) Sanitize() {
	w.ID = ""
	w.CreatedAt = ""
	w.UpdatedAt = ""
	w.VersionID = ""
	w.Meta = nil
	w.PinData = nil
	w.TriggerCount = 0
	w.Shared = nil
}

// StripActive removes the active flag so the remote service applies its own
// default activation state. Promoted workflows never inherit the source
// environment's active flag.
func (w *Workflow) StripActive() {
	w.Active = nil
}

// StripWebhookIDs removes per-node webhook correlation ids so a promoted copy
// does not collide with the source environment's webhook registrations.
func (w *Workflow) StripWebhookIDs() {
	for _, n := range w.Nodes {
		n.WebhookID = ""
	}
}

// IsActive dereferences the optional active flag.
func (w *Workflow) IsActive() bool {
	return w.Active != nil && *w.Active
}

// NodeByName returns the first node with the given name, or nil.
func (w *Workflow) NodeByName(name string) *Node {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n
		}
	}

	return nil
}

// TagNames returns the workflow's tag names in declaration order.
func (w *Workflow) TagNames() []string {
	names := make([]string, 0, len(w.Tags))
	for _, t := range w.Tags {
		names = append(names, t.Name)
	}

	return names
}

// ConnectionSources returns the connection map's source node names. The
// structural comparison in audit and release uses the sorted set of these keys
// as a cheap topology fingerprint.
func (w *Workflow) ConnectionSources() []string {
	sources := make([]string, 0, len(w.Connections))
	for k := range w.Connections {
		sources = append(sources, k)
	}

	return sources
}
