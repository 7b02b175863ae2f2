// Package mocks provides test doubles for the remote service boundary.
package mocks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// FakeClient is an in-memory n8n.Client. It assigns sequential ids on create
// and keeps full workflow bodies so tests can assert on what was sent.
type FakeClient struct {
	mu        sync.Mutex
	nextID    int
	Workflows map[string]*models.Workflow // keyed by id

	// Calls records the operations performed, in order.
	Calls []string

	// FailOn makes the named operations return an error, e.g. "create" or
	// "get:wf-2".
	FailOn map[string]bool
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		nextID:    1,
		Workflows: make(map[string]*models.Workflow),
		FailOn:    make(map[string]bool),
	}
}

// Seed inserts a workflow with an assigned id and returns the id.
func (f *FakeClient) Seed(wf *models.Workflow) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := "wf-" + strconv.Itoa(f.nextID)
	f.nextID++

	copied := *wf
	copied.ID = id
	f.Workflows[id] = &copied

	return id
}

func (f *FakeClient) fail(op string) error {
	if f.FailOn[op] {
		return fmt.Errorf("forced failure: %s", op)
	}

	return nil
}

func (f *FakeClient) ListAll(_ context.Context) ([]models.WorkflowSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "list")

	if err := f.fail("list"); err != nil {
		return nil, err
	}

	// Stable order by id for deterministic tests.
	summaries := make([]models.WorkflowSummary, 0, len(f.Workflows))

	for i := 1; i < f.nextID; i++ {
		id := "wf-" + strconv.Itoa(i)

		wf, ok := f.Workflows[id]
		if !ok {
			continue
		}

		summaries = append(summaries, models.WorkflowSummary{
			ID:     wf.ID,
			Name:   wf.Name,
			Active: wf.IsActive(),
			Tags:   wf.Tags,
		})
	}

	return summaries, nil
}

func (f *FakeClient) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "get:"+id)

	if err := f.fail("get:" + id); err != nil {
		return nil, err
	}

	wf, ok := f.Workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %q not found", id)
	}

	copied := *wf

	return &copied, nil
}

func (f *FakeClient) Create(_ context.Context, wf *models.Workflow) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "create:"+wf.Name)

	if err := f.fail("create"); err != nil {
		return nil, err
	}

	id := "wf-" + strconv.Itoa(f.nextID)
	f.nextID++

	copied := *wf
	copied.ID = id
	f.Workflows[id] = &copied

	result := copied

	return &result, nil
}

func (f *FakeClient) UpdateByID(_ context.Context, id string, wf *models.Workflow) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "update:"+id)

	if err := f.fail("update:" + id); err != nil {
		return nil, err
	}

	if _, ok := f.Workflows[id]; !ok {
		return nil, fmt.Errorf("workflow %q not found", id)
	}

	copied := *wf
	copied.ID = id
	f.Workflows[id] = &copied

	result := copied

	return &result, nil
}
