package server

import (
	"olympus/internal/domain"
	"olympus/internal/engine"
)

// Request payloads

type RunAgentTaskRequest struct {
	// Both are checked in the handler so a missing field yields the
	// endpoint's own "Missing task or projectId" message.
	Task      string `json:"task,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	// Chained results of previously completed tasks, retained client-side
	// and echoed back as inputs to dependent tasks.
	JiraResult   *engine.JiraChain   `json:"jiraResult,omitempty"`
	GithubResult *engine.GithubChain `json:"githubResult,omitempty"`
}

type CreateProjectRequest struct {
	ProjectName        string `json:"project_name,omitempty"`
	GivenRequirements  string `json:"given_requirements,omitempty"`
	Prioritization     string `json:"prioritization,omitempty"`
	DocumentationDepth string `json:"documentation_depth,omitempty"`
}

type UpdateProjectRequest struct {
	ProjectName        *string `json:"project_name,omitempty"`
	GivenRequirements  *string `json:"given_requirements,omitempty"`
	Prioritization     *string `json:"prioritization,omitempty"`
	DocumentationDepth *string `json:"documentation_depth,omitempty"`
	MeetingTranscript  *string `json:"meeting_transcript,omitempty"`
}

type UpsertJiraIntegrationRequest struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	CloudID      string `json:"cloud_id,omitempty"`
	SiteURL      string `json:"site_url,omitempty"`
	ProjectKey   string `json:"project_key,omitempty"`
	BoardID      int    `json:"board_id,omitempty"`
}

type UpsertGithubIntegrationRequest struct {
	InstallationID string   `json:"installation_id,omitempty"`
	Repos          []string `json:"repos,omitempty"`
}

type UpsertSlackIntegrationRequest struct {
	BotToken string `json:"bot_token,omitempty"`
	TeamID   string `json:"team_id,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID                 string `json:"id"`
	UserID             string `json:"user_id"`
	ProjectName        string `json:"project_name,omitempty"`
	GivenRequirements  string `json:"given_requirements,omitempty"`
	Prioritization     string `json:"prioritization,omitempty"`
	DocumentationDepth string `json:"documentation_depth,omitempty"`
	MeetingTranscript  string `json:"meeting_transcript,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

type IntegrationStatusResponse struct {
	Connected bool   `json:"connected"`
	SiteURL   string `json:"site_url,omitempty"`
	CloudID   string `json:"cloud_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	// InstallationID is echoed for the github kind.
	InstallationID string `json:"installation_id,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:                 p.ID,
		UserID:             p.UserID,
		ProjectName:        p.ProjectName,
		GivenRequirements:  p.GivenRequirements,
		Prioritization:     p.Prioritization,
		DocumentationDepth: p.DocumentationDepth,
		MeetingTranscript:  p.MeetingTranscript,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}
