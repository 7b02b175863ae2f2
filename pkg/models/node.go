package models

import (
	"encoding/json"
	"strings"
)

// n8n node types this system needs to recognize or synthesize.
const (
	NodeTypeCode       = "n8n-nodes-base.code"
	NodeTypeStickyNote = "n8n-nodes-base.stickyNote"
)

// Reserved node names inside a managed workflow.
const (
	// ConfigNodeName is the canonical name of the injected configuration node.
	ConfigNodeName = "Configuration"
	// VariablesNodeName is the legacy alias some workflows use for it.
	VariablesNodeName = "Variables"
	// VersionNodeName is the sticky note carrying the version annotation.
	VersionNodeName = "Version Info"
)

// CredentialRef is a node-level credential reference, keyed by credential type
// in the node's credentials map.
type CredentialRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Node is one entry of a workflow's node graph. Known fields are typed; every
// other key the remote service sends is kept opaquely in extra and written back
// unchanged on marshal, so promotion never loses node data it does not
// understand.
type Node struct {
	ID          string                   `validate:"required"`
	Name        string                   `validate:"required"`
	Type        string                   `validate:"required"`
	TypeVersion float64
	Position    []float64
	Parameters  map[string]any
	Credentials map[string]CredentialRef
	WebhookID   string
	Disabled    bool

	extra map[string]json.RawMessage
}

var nodeKnownKeys = []string{
	"id", "name", "type", "typeVersion", "position",
	"parameters", "credentials", "webhookId", "disabled",
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type fields struct {
		ID          string                   `json:"id"`
		Name        string                   `json:"name"`
		Type        string                   `json:"type"`
		TypeVersion float64                  `json:"typeVersion"`
		Position    []float64                `json:"position"`
		Parameters  map[string]any           `json:"parameters"`
		Credentials map[string]CredentialRef `json:"credentials"`
		WebhookID   string                   `json:"webhookId"`
		Disabled    bool                     `json:"disabled"`
	}

	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	for _, k := range nodeKnownKeys {
		delete(raw, k)
	}

	*n = Node{
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type,
		TypeVersion: f.TypeVersion,
		Position:    f.Position,
		Parameters:  f.Parameters,
		Credentials: f.Credentials,
		WebhookID:   f.WebhookID,
		Disabled:    f.Disabled,
	}

	if len(raw) > 0 {
		n.extra = raw
	}

	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.extra)+len(nodeKnownKeys))
	for k, v := range n.extra {
		out[k] = v
	}

	out["id"] = n.ID
	out["name"] = n.Name
	out["type"] = n.Type
	out["typeVersion"] = n.TypeVersion
	out["position"] = n.Position

	if n.Parameters != nil {
		out["parameters"] = n.Parameters
	}

	if n.Credentials != nil {
		out["credentials"] = n.Credentials
	}

	if n.WebhookID != "" {
		out["webhookId"] = n.WebhookID
	}

	if n.Disabled {
		out["disabled"] = true
	}

	return json.Marshal(out)
}

// IsConfigNode reports whether this node carries the environment-variable
// injection payload.
func (n *Node) IsConfigNode() bool {
	return n.Name == ConfigNodeName || n.Name == VariablesNodeName
}

// IsStickyNote reports whether this node is an annotation sticky note.
func (n *Node) IsStickyNote() bool {
	return n.Type == NodeTypeStickyNote
}

// IsVersionNote matches the version annotation note, either by its reserved
// name or by its content mentioning a version.
func (n *Node) IsVersionNote() bool {
	if !n.IsStickyNote() {
		return false
	}

	if n.Name == VersionNodeName {
		return true
	}

	content, _ := n.Parameters["content"].(string)

	return strings.Contains(content, "Version")
}

// IsTrigger recognizes trigger-style nodes: a node type or name containing
// "Trigger", or the manual-trigger naming convention starting with "When".
func (n *Node) IsTrigger() bool {
	return strings.Contains(n.Type, "Trigger") ||
		strings.Contains(n.Name, "Trigger") ||
		strings.Contains(n.Name, "When")
}
