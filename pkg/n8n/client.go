// Package n8n is a thin client for the subset of the n8n REST API the
// promotion engine consumes: list, fetch, create and update of workflows.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// Client is the remote workflow service boundary. The engines never talk HTTP
// directly; tests substitute an in-memory implementation.
type Client interface {
	ListAll(ctx context.Context) ([]models.WorkflowSummary, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	UpdateByID(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error)
}

// RequestError wraps a failed remote call with the attempted operation and the
// workflow it targeted.
type RequestError struct {
	Op         string
	Workflow   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("n8n %s %q: status %d: %v", e.Op, e.Workflow, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("n8n %s %q: %v", e.Op, e.Workflow, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
)

// HTTPClient talks to a live n8n instance with API-key authentication.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPClient(baseURL, apiKey string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

type listResponse struct {
	Data       []models.WorkflowSummary `json:"data"`
	NextCursor string                   `json:"nextCursor"`
}

// ListAll pages through the workflow collection and returns every summary.
func (c *HTTPClient) ListAll(ctx context.Context) ([]models.WorkflowSummary, error) {
	var all []models.WorkflowSummary

	cursor := ""

	for {
		endpoint := apiPrefix + "/workflows"
		if cursor != "" {
			endpoint += "?cursor=" + url.QueryEscape(cursor)
		}

		body, err := c.do(ctx, http.MethodGet, endpoint, nil, "list", "")
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &RequestError{Op: "list", Err: fmt.Errorf("decoding response: %w", err)}
		}

		all = append(all, page.Data...)

		if page.NextCursor == "" {
			return all, nil
		}

		cursor = page.NextCursor
	}
}

// GetByID fetches the full workflow representation.
func (c *HTTPClient) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	body, err := c.do(ctx, http.MethodGet, apiPrefix+"/workflows/"+url.PathEscape(id), nil, "get", id)
	if err != nil {
		return nil, err
	}

	return decodeWorkflow(body, "get", id)
}

// Create posts a new workflow and returns it with the id the service assigned.
func (c *HTTPClient) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	body, err := c.do(ctx, http.MethodPost, apiPrefix+"/workflows", workflow, "create", workflow.Name)
	if err != nil {
		return nil, err
	}

	return decodeWorkflow(body, "create", workflow.Name)
}

// UpdateByID replaces an existing workflow.
func (c *HTTPClient) UpdateByID(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	body, err := c.do(ctx, http.MethodPut, apiPrefix+"/workflows/"+url.PathEscape(id), workflow, "update", workflow.Name)
	if err != nil {
		return nil, err
	}

	return decodeWorkflow(body, "update", workflow.Name)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload any, op, workflow string) ([]byte, error) {
	var bodyReader io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &RequestError{Op: op, Workflow: workflow, Err: fmt.Errorf("encoding request: %w", err)}
		}

		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, &RequestError{Op: op, Workflow: workflow, Err: err}
	}

	req.Header.Set("X-N8N-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("n8n request", "method", method, "endpoint", endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RequestError{Op: op, Workflow: workflow, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: op, Workflow: workflow, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			Op:         op,
			Workflow:   workflow,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	return body, nil
}

func decodeWorkflow(body []byte, op, workflow string) (*models.Workflow, error) {
	// Some n8n versions wrap single resources in a data envelope.
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		body = envelope.Data
	}

	var wf models.Workflow
	if err := json.Unmarshal(body, &wf); err != nil {
		return nil, &RequestError{Op: op, Workflow: workflow, Err: fmt.Errorf("decoding response: %w", err)}
	}

	return &wf, nil
}
