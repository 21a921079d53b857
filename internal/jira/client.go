// Package jira is a thin client for the parts of Jira REST v3 the task
// handlers need: project metadata, issue creation, transitions and comments.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"olympus/internal/domain"
)

// Client is bound to one user's Jira credential. OAuth bearer tokens must go
// through api.atlassian.com when a cloud id is known; plain site URLs only
// work for direct tokens.
type Client struct {
	apiBase    string
	token      string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the computed API base (tests point this at a stub).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient builds a client from a stored integration record.
func NewClient(integration domain.JiraIntegration, siteURL string, opts ...Option) *Client {
	apiBase := siteURL + "/rest/api/3"
	if integration.CloudID != "" {
		apiBase = fmt.Sprintf("https://api.atlassian.com/ex/jira/%s/rest/api/3", integration.CloudID)
	}
	c := &Client{
		apiBase:    apiBase,
		token:      integration.AccessToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// IssueTypes returns the issue type names configured for a Jira project.
func (c *Client) IssueTypes(ctx context.Context, projectKey string) ([]string, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/project/"+projectKey, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("jira project metadata failed with status %d: %s", status, string(data))
	}
	var meta struct {
		IssueTypes []struct {
			Name string `json:"name"`
		} `json:"issueTypes"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse jira project metadata: %w", err)
	}
	names := make([]string, 0, len(meta.IssueTypes))
	for _, t := range meta.IssueTypes {
		names = append(names, t.Name)
	}
	return names, nil
}

// adfParagraph wraps plain text in the Atlassian Document Format envelope
// Jira REST v3 requires for descriptions and comments.
func adfParagraph(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []map[string]any{
			{
				"type": "paragraph",
				"content": []map[string]any{
					{"type": "text", "text": text},
				},
			},
		},
	}
}

// CreateIssue creates one issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, projectKey, issueType, summary, description string) (string, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": projectKey},
			"summary":     summary,
			"description": adfParagraph(description),
			"issuetype":   map[string]string{"name": issueType},
		},
	}
	status, data, err := c.do(ctx, http.MethodPost, "/issue", body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%d: %s", status, errorDetail(data, http.StatusText(status)))
	}
	var created struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("parse create issue response: %w", err)
	}
	return created.Key, nil
}

// Transition describes one workflow transition available on an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Transitions lists the workflow transitions available on an issue.
func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/issue/"+issueKey+"/transitions", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("jira transitions failed with status %d: %s", status, string(data))
	}
	var out struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse transitions: %w", err)
	}
	return out.Transitions, nil
}

// DoTransition executes a workflow transition on an issue.
func (c *Client) DoTransition(ctx context.Context, issueKey, transitionID string) error {
	body := map[string]any{"transition": map[string]string{"id": transitionID}}
	status, data, err := c.do(ctx, http.MethodPost, "/issue/"+issueKey+"/transitions", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("jira transition failed with status %d: %s", status, string(data))
	}
	return nil
}

// AddComment appends a plain-text comment to an issue.
func (c *Client) AddComment(ctx context.Context, issueKey, text string) error {
	body := map[string]any{"body": adfParagraph(text)}
	status, data, err := c.do(ctx, http.MethodPost, "/issue/"+issueKey+"/comment", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("jira comment failed with status %d: %s", status, string(data))
	}
	return nil
}

// errorDetail extracts a readable message from a Jira error body.
func errorDetail(data []byte, fallback string) string {
	var body struct {
		Errors        map[string]string `json:"errors"`
		ErrorMessages []string          `json:"errorMessages"`
		Message       string            `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fallback
	}
	if len(body.Errors) > 0 {
		b, _ := json.Marshal(body.Errors)
		return string(b)
	}
	if len(body.ErrorMessages) > 0 {
		return strings.Join(body.ErrorMessages, ", ")
	}
	if body.Message != "" {
		return body.Message
	}
	return fallback
}
