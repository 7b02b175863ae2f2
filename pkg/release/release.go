// Package release derives semantic-version tags per workflow base name from
// Git history and summarizes structural changes between the production branch
// copy and the current copy of a workflow.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/VictorNov/n8n-ci-cd/pkg/audit"
	"github.com/VictorNov/n8n-ci-cd/pkg/models"
	"github.com/VictorNov/n8n-ci-cd/pkg/names"
)

// NoReleases is the sentinel returned when a base name has no release tags
// yet. Not an error.
const NoReleases = ""

// ChangeReport summarizes what a release would change for one workflow.
type ChangeReport struct {
	BaseName    string             `json:"baseName"`
	Version     string             `json:"version"`
	IsNew       bool               `json:"isNew"`
	Differences []audit.Difference `json:"differences,omitempty"`
	Changelog   string             `json:"changelog"`
}

type Coordinator struct {
	git              Git
	codec            *names.Codec
	workflowsDir     string
	productionBranch string
	logger           *slog.Logger
}

func NewCoordinator(git Git, codec *names.Codec, workflowsDir, productionBranch string, logger *slog.Logger) *Coordinator {
	if productionBranch == "" {
		productionBranch = "production"
	}

	return &Coordinator{
		git:              git,
		codec:            codec,
		workflowsDir:     workflowsDir,
		productionBranch: productionBranch,
		logger:           logger,
	}
}

// tagName builds the per-workflow release tag, e.g. "order_sync-v1.2.3".
func (c *Coordinator) tagName(baseName, version string) string {
	return c.codec.GitSafeName(baseName) + "-" + version
}

// CurrentVersion returns the highest released version for a base name, or the
// NoReleases sentinel when it was never tagged.
func (c *Coordinator) CurrentVersion(ctx context.Context, baseName string) (string, error) {
	tags, err := c.git.Tags(ctx, c.codec.GitSafeName(baseName)+"-*")
	if err != nil {
		return "", err
	}

	prefix := c.codec.GitSafeName(baseName) + "-"
	current := NoReleases

	for _, tag := range tags {
		version := strings.TrimPrefix(tag, prefix)
		if !strings.HasPrefix(version, "v") {
			continue
		}

		if current == NoReleases || compareVersions(version, current) > 0 {
			current = version
		}
	}

	return current, nil
}

// compareVersions orders two "vX.Y.Z" strings by component-wise numeric
// comparison. Missing segments count as zero.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0

		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}

		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}

		if av != bv {
			if av > bv {
				return 1
			}

			return -1
		}
	}

	return 0
}

// SuggestNextVersion proposes the next release version: v1.0.0 for a first
// release, otherwise a patch increment.
func SuggestNextVersion(current string) string {
	if current == NoReleases {
		return "v1.0.0"
	}

	parts := strings.Split(strings.TrimPrefix(current, "v"), ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}

	patch, _ := strconv.Atoi(parts[2])

	return fmt.Sprintf("v%s.%s.%d", parts[0], parts[1], patch+1)
}

// AnalyzeChanges diffs the production-branch copy of a workflow against the
// current copy and renders a human-readable changelog. A workflow with no
// production-branch copy is reported as new.
func (c *Coordinator) AnalyzeChanges(ctx context.Context, baseName, version string) (*ChangeReport, error) {
	report := &ChangeReport{BaseName: baseName, Version: version}

	relPath := filepath.Join(c.workflowsDir, c.codec.FileName(baseName))

	currentData, err := os.ReadFile(relPath)
	if err != nil {
		return nil, fmt.Errorf("reading current copy %s: %w", relPath, err)
	}

	var current models.Workflow
	if err := json.Unmarshal(currentData, &current); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", relPath, err)
	}

	prodData, err := c.git.ShowFile(ctx, c.productionBranch, filepath.ToSlash(relPath))
	if err != nil {
		report.IsNew = true
		report.Changelog = fmt.Sprintf("## %s %s\n\nNew workflow (%d nodes), no production copy to compare against.",
			baseName, version, len(current.Nodes))

		return report, nil
	}

	var production models.Workflow
	if err := json.Unmarshal(prodData, &production); err != nil {
		return nil, fmt.Errorf("parsing production copy of %s: %w", baseName, err)
	}

	report.Differences = audit.DiffWorkflows(&production, &current)
	report.Changelog = renderChangelog(baseName, version, report.Differences)

	return report, nil
}

func renderChangelog(baseName, version string, diffs []audit.Difference) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s %s\n\n", baseName, version)

	if len(diffs) == 0 {
		b.WriteString("No structural changes.")

		return b.String()
	}

	for _, d := range diffs {
		switch d.Type {
		case audit.DiffNodeCountChanged:
			fmt.Fprintf(&b, "- Node count: %s -> %s\n", d.From, d.To)
		case audit.DiffNodeTypesChanged:
			fmt.Fprintf(&b, "- Node types: [%s] -> [%s]\n", d.From, d.To)
		case audit.DiffActiveChanged:
			fmt.Fprintf(&b, "- Active: %s -> %s\n", d.From, d.To)
		case audit.DiffTagsChanged:
			fmt.Fprintf(&b, "- Tags: [%s] -> [%s]\n", d.From, d.To)
		case audit.DiffNameChanged:
			fmt.Fprintf(&b, "- Renamed: %s -> %s\n", d.From, d.To)
		case audit.DiffConnectionsChanged:
			fmt.Fprintf(&b, "- Connections: [%s] -> [%s]\n", d.From, d.To)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// TagRelease creates the annotated release tag for a base name and optionally
// pushes it.
func (c *Coordinator) TagRelease(ctx context.Context, baseName, version, message string, push bool) (string, error) {
	tag := c.tagName(baseName, version)

	if message == "" {
		message = fmt.Sprintf("Release %s %s", baseName, version)
	}

	if err := c.git.CreateTag(ctx, tag, message); err != nil {
		return "", err
	}

	c.logger.Info("created release tag", "tag", tag)

	if push {
		if err := c.git.Push(ctx, tag); err != nil {
			return tag, err
		}
	}

	return tag, nil
}
