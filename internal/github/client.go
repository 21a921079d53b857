// Package github is a thin client for the parts of the GitHub REST API the
// task handlers need: repository creation and lookup, GitHub App
// installation-token exchange, and contents writes.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
)

// AppConfig identifies the GitHub App used for installation-token exchange.
// PrivateKeyPEM is the RS256 signing key.
type AppConfig struct {
	AppID         string
	PrivateKeyPEM string
}

// Client talks to the GitHub REST API. PAT is optional; when empty, requests
// that need a token must supply an installation token obtained via
// InstallationToken.
type Client struct {
	baseURL    string
	pat        string
	app        AppConfig
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a GitHub client.
func NewClient(pat string, app AppConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		pat:        pat,
		app:        app,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PAT returns the configured personal access token, empty if none.
func (c *Client) PAT() string { return c.pat }

func (c *Client) do(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
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

// appJWT signs a short-lived RS256 assertion as the GitHub App. Issued 60s in
// the past to absorb clock skew, valid 10 minutes.
func (c *Client) appJWT() (string, error) {
	if c.app.AppID == "" || c.app.PrivateKeyPEM == "" {
		return "", fmt.Errorf("github app credentials not configured")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.app.PrivateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("parse github app private key: %w", err)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    c.app.AppID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// InstallationToken exchanges an installation id for a short-lived token.
func (c *Client) InstallationToken(ctx context.Context, installationID string) (string, error) {
	assertion, err := c.appJWT()
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", c.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("installation token exchange failed with status %d: %s", resp.StatusCode, string(data))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse installation token response: %w", err)
	}
	return out.Token, nil
}

// Repo is the subset of the GitHub repository object the handlers use.
type Repo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

// InstallationRepos lists repositories accessible to an installation.
func (c *Client) InstallationRepos(ctx context.Context, installationID string) ([]Repo, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	status, data, err := c.do(ctx, http.MethodGet, "/installation/repositories", token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list installation repositories failed with status %d: %s", status, string(data))
	}
	var out struct {
		Repositories []Repo `json:"repositories"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse installation repositories: %w", err)
	}
	return out.Repositories, nil
}

type createRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// CreateRepoError reports a failed creation attempt with enough detail to
// diagnose which endpoint rejected it.
type CreateRepoError struct {
	Endpoint string
	Status   int
	Message  string
	// AlreadyExists is set when GitHub rejected the name as taken.
	AlreadyExists bool
}

func (e *CreateRepoError) Error() string {
	return fmt.Sprintf("[%s] %d: %s", e.Endpoint, e.Status, e.Message)
}

func (c *Client) createRepo(ctx context.Context, path, token, name, description string) (Repo, error) {
	body := createRepoRequest{
		Name:        name,
		Description: description,
		Private:     false,
		AutoInit:    true,
	}
	status, data, err := c.do(ctx, http.MethodPost, path, token, body)
	if err != nil {
		return Repo{}, err
	}
	if status == http.StatusCreated || status == http.StatusOK {
		var repo Repo
		if err := json.Unmarshal(data, &repo); err != nil {
			return Repo{}, fmt.Errorf("parse create repo response: %w", err)
		}
		return repo, nil
	}
	var errBody struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	_ = json.Unmarshal(data, &errBody)
	msg := errBody.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	var details []string
	for _, e := range errBody.Errors {
		if e.Message != "" {
			details = append(details, e.Message)
		}
	}
	if len(details) > 0 {
		msg = msg + " - " + strings.Join(details, ", ")
	}
	return Repo{}, &CreateRepoError{
		Endpoint:      path,
		Status:        status,
		Message:       msg,
		AlreadyExists: status == http.StatusUnprocessableEntity && strings.Contains(string(data), "already exists"),
	}
}

// CreateUserRepo creates a repository under the authenticated user.
func (c *Client) CreateUserRepo(ctx context.Context, token, name, description string) (Repo, error) {
	return c.createRepo(ctx, "/user/repos", token, name, description)
}

// CreateOrgRepo creates a repository under an organization. Installation
// tokens can only create here, never under a user namespace.
func (c *Client) CreateOrgRepo(ctx context.Context, token, org, name, description string) (Repo, error) {
	return c.createRepo(ctx, "/orgs/"+org+"/repos", token, name, description)
}

// GetRepo fetches a repository by owner and name.
func (c *Client) GetRepo(ctx context.Context, token, owner, name string) (Repo, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/repos/"+owner+"/"+name, token, nil)
	if err != nil {
		return Repo{}, err
	}
	if status != http.StatusOK {
		return Repo{}, fmt.Errorf("get repo failed with status %d: %s", status, string(data))
	}
	var repo Repo
	if err := json.Unmarshal(data, &repo); err != nil {
		return Repo{}, fmt.Errorf("parse repo: %w", err)
	}
	return repo, nil
}

// PutContents creates or updates a file. Content must be base64-encoded by
// the caller per the contents API contract. Returns the HTML URL of the
// committed file.
func (c *Client) PutContents(ctx context.Context, token, repoFullName, path, commitMessage, contentBase64 string) (string, error) {
	body := map[string]string{
		"message": commitMessage,
		"content": contentBase64,
	}
	status, data, err := c.do(ctx, http.MethodPut, "/repos/"+repoFullName+"/contents/"+path, token, body)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("contents put failed with status %d: %s", status, string(data))
	}
	var out struct {
		Content struct {
			HTMLURL string `json:"html_url"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse contents response: %w", err)
	}
	return out.Content.HTMLURL, nil
}
