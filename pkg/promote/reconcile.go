package promote

import (
	"context"
	"errors"
	"fmt"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
	"github.com/VictorNov/n8n-ci-cd/pkg/n8n"
)

// ErrDuplicateName indicates two workflows in the same batch resolved to the
// same remote display name. Creating both would race to a silent last-write
// wins at the remote service, so the later one fails instead.
var ErrDuplicateName = errors.New("duplicate workflow name in batch")

// RemoteIndex is a snapshot of the remote workflow list keyed by display name,
// taken once at the start of a batch and never refreshed mid-batch.
type RemoteIndex struct {
	byName map[string]models.WorkflowSummary
	// claimed tracks names created or updated within this batch so a second
	// workflow resolving to the same name fails loudly.
	claimed map[string]bool
}

// NewRemoteIndex builds the name index from a freshly fetched remote list.
func NewRemoteIndex(summaries []models.WorkflowSummary) *RemoteIndex {
	byName := make(map[string]models.WorkflowSummary, len(summaries))
	for _, s := range summaries {
		byName[s.Name] = s
	}

	return &RemoteIndex{byName: byName, claimed: make(map[string]bool)}
}

// Lookup returns the remote summary for a display name, if present.
func (ix *RemoteIndex) Lookup(name string) (models.WorkflowSummary, bool) {
	s, ok := ix.byName[name]

	return s, ok
}

// Reconciler applies the create-if-absent / update-if-present decision keyed
// by exact display-name equality. Both the promotion and the restore paths go
// through it.
type Reconciler struct {
	client n8n.Client
}

func NewReconciler(client n8n.Client) *Reconciler {
	return &Reconciler{client: client}
}

// Reconcile creates or updates the workflow against the index's snapshot.
// Returns the action taken and the remote id.
func (r *Reconciler) Reconcile(ctx context.Context, index *RemoteIndex, wf *models.Workflow) (string, string, error) {
	if index.claimed[wf.Name] {
		return "", "", fmt.Errorf("%w: %q", ErrDuplicateName, wf.Name)
	}

	index.claimed[wf.Name] = true

	if existing, ok := index.Lookup(wf.Name); ok {
		updated, err := r.client.UpdateByID(ctx, existing.ID, wf)
		if err != nil {
			return "", "", err
		}

		id := existing.ID
		if updated != nil && updated.ID != "" {
			id = updated.ID
		}

		return models.ActionUpdated, id, nil
	}

	created, err := r.client.Create(ctx, wf)
	if err != nil {
		return "", "", err
	}

	id := ""
	if created != nil {
		id = created.ID
	}

	return models.ActionCreated, id, nil
}
