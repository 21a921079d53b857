package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"olympus/internal/domain"
	"olympus/internal/llm"
	"olympus/internal/repo"
)

// Hard cap on issue creation, in case the model ignores the "exactly 5"
// instruction.
const maxIssuesPerRun = 10

func storiesPrompt(p domain.Project) string {
	return fmt.Sprintf(`Generate exactly 5 Jira user stories for this project — one for each AI agent role listed below. Each story describes the work that specific agent will perform.

Roles: AI Product Manager, AI Architect, AI Developer, AI QA Engineer, AI DevOps Engineer

Project: %s
Requirements: %s

Return ONLY a valid JSON array. No markdown, no explanation.
[
  { "summary": "<short title max 100 chars>", "description": "<2-3 sentences describing the agent's work>" },
  ...
]`, p.ProjectName, p.GivenRequirements)
}

// pickIssueType chooses the issue type to create. "Story" is preferred but
// not every Jira project has it configured; fall back to "Task", then to the
// first available type.
func pickIssueType(available []string) string {
	if len(available) == 0 {
		return "Story"
	}
	for _, t := range available {
		if t == "Story" {
			return "Story"
		}
	}
	for _, t := range available {
		if t == "Task" {
			return "Task"
		}
	}
	return available[0]
}

func (e Engine) runJiraTask(ctx context.Context, userID string, project domain.Project) (JiraTaskResult, error) {
	integration, err := e.Repo.GetJiraIntegration(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return JiraTaskResult{}, ConfigError{Msg: "Jira not connected. Please connect Jira in Settings."}
		}
		return JiraTaskResult{}, err
	}

	raw, err := e.LLM.Complete(ctx, storiesPrompt(project), 2048)
	if err != nil {
		return JiraTaskResult{}, fmt.Errorf("generate user stories: %w", err)
	}
	var stories []domain.Story
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &stories); err != nil {
		return JiraTaskResult{}, ParseError{Msg: "Failed to parse model response for user stories"}
	}

	siteURL, projectKey, boardID := e.jiraDefaults(integration)
	client := e.NewJira(integration)

	issueType := "Story"
	if types, err := client.IssueTypes(ctx, projectKey); err == nil {
		issueType = pickIssueType(types)
	} else {
		e.logf("jira: issue type discovery failed, defaulting to Story: %v", err)
	}

	if len(stories) > maxIssuesPerRun {
		stories = stories[:maxIssuesPerRun]
	}
	created := []domain.Issue{}
	var lastErr string
	for _, story := range stories {
		key, err := client.CreateIssue(ctx, projectKey, issueType, story.Summary, story.Description)
		if err != nil {
			lastErr = err.Error()
			e.logf("jira: issue creation failed: %s", lastErr)
			continue
		}
		created = append(created, domain.Issue{Key: key, Summary: story.Summary})
	}
	if len(created) == 0 && lastErr != "" {
		return JiraTaskResult{}, UpstreamError{Msg: fmt.Sprintf("Jira issue creation failed — %s", lastErr)}
	}

	if len(created) > 0 {
		e.notifySlack(ctx, userID, fmt.Sprintf("✅ *%s* — %d Jira user stories created in project *%s*",
			project.ProjectName, len(created), projectKey))
	}

	return JiraTaskResult{
		Success:    true,
		Issues:     created,
		SiteURL:    siteURL,
		ProjectKey: projectKey,
		BoardURL:   fmt.Sprintf("%s/jira/software/projects/%s/boards/%d", siteURL, projectKey, boardID),
	}, nil
}
