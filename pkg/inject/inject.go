// Package inject rewrites a workflow's configuration node with environment
// specific variables, upserts its version annotation, and remaps credential
// references when a workflow moves between environments.
package inject

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/VictorNov/n8n-ci-cd/pkg/config"
	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// Sticky note colors in the n8n palette.
const (
	stickyColorSuccess = 4 // green, production
	stickyColorNeutral = 5
)

// Default placement for synthesized nodes.
var (
	configNodePosition  = []float64{240, 300}
	versionNotePosition = []float64{220, -180}
)

type Injector struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewInjector(cfg *config.Config, logger *slog.Logger) *Injector {
	return &Injector{cfg: cfg, logger: logger}
}

// Inject rewrites the workflow's configuration node with the variables
// configured for (baseName, environment) and, when a version is given, upserts
// the version annotation note. Missing variables or a missing node list are a
// no-op, never an error. Re-running with the same inputs produces the same
// configuration payload.
func (i *Injector) Inject(wf *models.Workflow, baseName string, env models.Environment, version string) {
	vars := i.cfg.VariablesFor(baseName, env)
	if len(vars) == 0 {
		return
	}

	if wf.Nodes == nil {
		// No node array means nothing to inject into.
		return
	}

	injected := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		injected[k] = v
	}

	if version != "" && env == models.EnvironmentProd {
		injected["version"] = version
	}

	node := i.ensureConfigNode(wf)
	node.Parameters = map[string]any{"jsCode": renderVariables(injected)}

	if version != "" {
		i.upsertVersionNote(wf, version, env)
	}

	i.logger.Debug("injected variables",
		"workflow", wf.Name, "environment", env, "variables", len(injected))
}

// ensureConfigNode finds the configuration node, converting it to a code node
// if needed, or synthesizes one wired to the workflow's trigger.
func (i *Injector) ensureConfigNode(wf *models.Workflow) *models.Node {
	for _, n := range wf.Nodes {
		if !n.IsConfigNode() {
			continue
		}

		if n.Type != models.NodeTypeCode {
			// Convert in place, keeping identity and placement.
			n.Type = models.NodeTypeCode
			n.TypeVersion = 2
		}

		return n
	}

	node := &models.Node{
		ID:          uuid.NewString(),
		Name:        models.ConfigNodeName,
		Type:        models.NodeTypeCode,
		TypeVersion: 2,
		Position:    append([]float64(nil), configNodePosition...),
		Parameters:  map[string]any{"jsCode": "return {};"},
	}

	wf.Nodes = append(wf.Nodes, node)

	if wf.Connections != nil {
		if trigger := firstTrigger(wf); trigger != nil {
			wf.Connections[trigger.Name] = map[string]any{
				"main": []any{
					[]any{
						map[string]any{
							"node":  node.Name,
							"type":  "main",
							"index": 0,
						},
					},
				},
			}
			wf.Connections[node.Name] = map[string]any{"main": []any{}}
		}
	}

	return node
}

func firstTrigger(wf *models.Workflow) *models.Node {
	for _, n := range wf.Nodes {
		if n.IsTrigger() {
			return n
		}
	}

	return nil
}

// renderVariables serializes the variable map as a script that evaluates to
// exactly that mapping. encoding/json sorts map keys, so the output is
// deterministic for a given mapping.
func renderVariables(vars map[string]any) string {
	encoded, err := json.MarshalIndent(vars, "", "  ")
	if err != nil {
		// Variable values come from YAML config; only non-serializable
		// values could end up here.
		return "return {};"
	}

	return "return " + string(encoded) + ";"
}

// upsertVersionNote writes the human-readable version annotation. An existing
// note is matched by its reserved name or by content mentioning a version.
func (i *Injector) upsertVersionNote(wf *models.Workflow, version string, env models.Environment) {
	color := stickyColorNeutral
	if env == models.EnvironmentProd {
		color = stickyColorSuccess
	}

	content := fmt.Sprintf(
		"## Version Info\n**Version:** %s\n**Environment:** %s\n**Deployed:** %s",
		version, env, time.Now().UTC().Format("2006-01-02"),
	)

	for _, n := range wf.Nodes {
		if !n.IsVersionNote() {
			continue
		}

		if n.Parameters == nil {
			n.Parameters = map[string]any{}
		}

		n.Parameters["content"] = content

		if env == models.EnvironmentProd {
			n.Parameters["color"] = color
		}

		return
	}

	wf.Nodes = append(wf.Nodes, &models.Node{
		ID:          uuid.NewString(),
		Name:        models.VersionNodeName,
		Type:        models.NodeTypeStickyNote,
		TypeVersion: 1,
		Position:    append([]float64(nil), versionNotePosition...),
		Parameters: map[string]any{
			"content": content,
			"color":   color,
			"width":   240,
			"height":  140,
		},
	})
}

// ApplyCredentials remaps each node's credential references to the ones
// configured for (baseName, environment). Credential types without a mapping
// are left untouched.
func (i *Injector) ApplyCredentials(wf *models.Workflow, baseName string, env models.Environment) {
	mapping := i.cfg.CredentialsFor(baseName, env)
	if len(mapping) == 0 {
		return
	}

	remapped := 0

	for _, n := range wf.Nodes {
		for credType := range n.Credentials {
			ref, ok := mapping[credType]
			if !ok {
				continue
			}

			n.Credentials[credType] = models.CredentialRef{ID: ref.ID, Name: ref.Name}
			remapped++
		}
	}

	if remapped > 0 {
		i.logger.Debug("remapped credentials",
			"workflow", wf.Name, "environment", env, "count", remapped)
	}
}
