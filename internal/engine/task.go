package engine

import (
	"fmt"

	"olympus/internal/domain"
)

// TaskKind identifies one unit of orchestration work. The set is closed;
// RunTask switches over it exhaustively.
type TaskKind string

const (
	TaskJira          TaskKind = "jira"
	TaskGithub        TaskKind = "github"
	TaskPRD           TaskKind = "prd"
	TaskArchitectJira TaskKind = "architect_jira"
	TaskArchitecture  TaskKind = "architecture"
	TaskTechStack     TaskKind = "techstack"
)

// ParseTaskKind validates a wire task identifier.
func ParseTaskKind(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case TaskJira, TaskGithub, TaskPRD, TaskArchitectJira, TaskArchitecture, TaskTechStack:
		return TaskKind(s), nil
	}
	return "", ValidationError{Msg: fmt.Sprintf("Unknown task: %s", s)}
}

// JiraChain is the client-supplied result of a previously completed jira
// task. It is request input, never reconstructed from server state.
type JiraChain struct {
	Issues []domain.Issue `json:"issues"`
}

// GithubChain is the client-supplied result of a previously completed github
// task.
type GithubChain struct {
	RepoName string `json:"repoName"`
}

// RunTaskOptions are the dispatcher inputs for one task run.
type RunTaskOptions struct {
	UserID    string
	ProjectID string
	Task      TaskKind
	// Chained results, optional per task.
	JiraResult   *JiraChain
	GithubResult *GithubChain
}

// Task results. Field names follow the wire payloads the UI consumes.

type JiraTaskResult struct {
	Success    bool           `json:"success"`
	Issues     []domain.Issue `json:"issues"`
	SiteURL    string         `json:"siteUrl"`
	ProjectKey string         `json:"projectKey"`
	BoardURL   string         `json:"boardUrl"`
}

type GithubTaskResult struct {
	Success  bool   `json:"success"`
	RepoURL  string `json:"repoUrl"`
	RepoName string `json:"repoName"`
}

type PRDTaskResult struct {
	Success      bool   `json:"success"`
	PRD          string `json:"prd"`
	GithubPRDURL string `json:"githubPrdUrl,omitempty"`
	JiraUpdated  bool   `json:"jiraUpdated"`
	JiraIssueKey string `json:"jiraIssueKey,omitempty"`
}

type ArchitectJiraResult struct {
	Success               bool   `json:"success"`
	ArchitectJiraUpdated  bool   `json:"architectJiraUpdated"`
	ArchitectJiraIssueKey string `json:"architectJiraIssueKey"`
}

type ArchitectureResult struct {
	Success               bool   `json:"success"`
	ArchitectureContent   string `json:"architectureContent"`
	GithubArchitectureURL string `json:"githubArchitectureUrl,omitempty"`
}

type TechStackResult struct {
	Success            bool   `json:"success"`
	TechStackContent   string `json:"techStackContent"`
	GithubTechStackURL string `json:"githubTechStackUrl,omitempty"`
}
