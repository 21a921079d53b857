package olympussdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Olympus HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Timeout:     10 * time.Minute,
	}
}

// Project represents the API project model.
type Project struct {
	ID                 string `json:"id"`
	ProjectName        string `json:"project_name"`
	GivenRequirements  string `json:"given_requirements,omitempty"`
	Prioritization     string `json:"prioritization,omitempty"`
	DocumentationDepth string `json:"documentation_depth,omitempty"`
	MeetingTranscript  string `json:"meeting_transcript,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// Issue is one created Jira issue.
type Issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
}

// JiraTaskResult is the payload of a completed jira task. Feed it back as
// JiraResult when chaining prd or architect_jira.
type JiraTaskResult struct {
	Success    bool    `json:"success"`
	Issues     []Issue `json:"issues"`
	SiteURL    string  `json:"siteUrl"`
	ProjectKey string  `json:"projectKey"`
	BoardURL   string  `json:"boardUrl"`
}

// GithubTaskResult is the payload of a completed github task. Feed it back as
// GithubResult when chaining prd.
type GithubTaskResult struct {
	Success  bool   `json:"success"`
	RepoURL  string `json:"repoUrl"`
	RepoName string `json:"repoName"`
}

// RunTaskRequest runs one agent task against a project.
type RunTaskRequest struct {
	Task         string          `json:"task"`
	ProjectID    string          `json:"projectId"`
	JiraResult   *JiraTaskResult `json:"jiraResult,omitempty"`
	GithubResult *GithubTaskResult `json:"githubResult,omitempty"`
}

// IntegrationStatus reports whether an integration is connected.
type IntegrationStatus struct {
	Connected      bool   `json:"connected"`
	SiteURL        string `json:"site_url,omitempty"`
	CloudID        string `json:"cloud_id,omitempty"`
	TeamID         string `json:"team_id,omitempty"`
	InstallationID string `json:"installation_id,omitempty"`
}

// APIError wraps non-2xx responses. Message carries the server's "error"
// field when present.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d error=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RunTask runs one agent task and returns the raw result payload. Use the
// typed helpers below when the task kind is known.
func (c *Client) RunTask(ctx context.Context, req RunTaskRequest) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, "v0/agents/run", req, &resp)
	return resp, err
}

// RunJiraTask runs the jira task and decodes its typed result.
func (c *Client) RunJiraTask(ctx context.Context, projectID string) (JiraTaskResult, error) {
	var resp JiraTaskResult
	err := c.do(ctx, http.MethodPost, "v0/agents/run", RunTaskRequest{Task: "jira", ProjectID: projectID}, &resp)
	return resp, err
}

// RunGithubTask runs the github task and decodes its typed result.
func (c *Client) RunGithubTask(ctx context.Context, projectID string) (GithubTaskResult, error) {
	var resp GithubTaskResult
	err := c.do(ctx, http.MethodPost, "v0/agents/run", RunTaskRequest{Task: "github", ProjectID: projectID}, &resp)
	return resp, err
}

// CreateProject creates a project owned by the authenticated user.
func (c *Client) CreateProject(ctx context.Context, name, requirements string) (Project, error) {
	body := map[string]any{
		"project_name":       name,
		"given_requirements": requirements,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// ListProjects lists the authenticated user's projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// IntegrationStatus reports connection status for jira, github, or slack.
func (c *Client) IntegrationStatus(ctx context.Context, kind string) (IntegrationStatus, error) {
	var resp IntegrationStatus
	endpoint := fmt.Sprintf("v0/integrations/%s/status", url.PathEscape(kind))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
