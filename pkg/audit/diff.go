// Package audit verifies a backup's structural integrity offline and computes
// structural differences between workflow copies. No network access anywhere
// in this package.
package audit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// Difference kinds reported by the structural comparator.
const (
	DiffNameChanged        = "name_changed"
	DiffActiveChanged      = "active_changed"
	DiffNodeCountChanged   = "node_count_changed"
	DiffNodeTypesChanged   = "node_types_changed"
	DiffTagsChanged        = "tags_changed"
	DiffConnectionsChanged = "connections_changed"
)

// Difference is one typed structural change between two workflow copies.
type Difference struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// DiffWorkflows compares two workflow copies structurally: name, active flag,
// node count, node-type set, tag set, and connection topology approximated by
// the sorted set of connection source keys. It is deliberately not a deep
// graph diff.
func DiffWorkflows(a, b *models.Workflow) []Difference {
	var diffs []Difference

	if a.Name != b.Name {
		diffs = append(diffs, Difference{Type: DiffNameChanged, From: a.Name, To: b.Name})
	}

	if a.IsActive() != b.IsActive() {
		diffs = append(diffs, Difference{
			Type: DiffActiveChanged,
			From: fmt.Sprintf("%t", a.IsActive()),
			To:   fmt.Sprintf("%t", b.IsActive()),
		})
	}

	if len(a.Nodes) != len(b.Nodes) {
		diffs = append(diffs, Difference{
			Type: DiffNodeCountChanged,
			From: fmt.Sprintf("%d", len(a.Nodes)),
			To:   fmt.Sprintf("%d", len(b.Nodes)),
		})
	}

	if d, changed := setDiff(nodeTypes(a), nodeTypes(b), DiffNodeTypesChanged); changed {
		diffs = append(diffs, d)
	}

	if d, changed := setDiff(a.TagNames(), b.TagNames(), DiffTagsChanged); changed {
		diffs = append(diffs, d)
	}

	if d, changed := setDiff(a.ConnectionSources(), b.ConnectionSources(), DiffConnectionsChanged); changed {
		diffs = append(diffs, d)
	}

	return diffs
}

func nodeTypes(wf *models.Workflow) []string {
	types := make([]string, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		types = append(types, n.Type)
	}

	return types
}

// setDiff compares two string sets and reports them as sorted, deduplicated
// lists when they differ.
func setDiff(a, b []string, diffType string) (Difference, bool) {
	as := sortedSet(a)
	bs := sortedSet(b)

	if strings.Join(as, ",") == strings.Join(bs, ",") {
		return Difference{}, false
	}

	return Difference{
		Type: diffType,
		From: strings.Join(as, ", "),
		To:   strings.Join(bs, ", "),
	}, true
}

func sortedSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		if !seen[v] {
			seen[v] = true

			out = append(out, v)
		}
	}

	sort.Strings(out)

	return out
}
