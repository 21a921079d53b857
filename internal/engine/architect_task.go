package engine

import (
	"context"
	"errors"
	"fmt"

	"olympus/internal/domain"
	"olympus/internal/repo"
)

func (e Engine) runArchitectJiraTask(ctx context.Context, userID string, project domain.Project, jiraChain *JiraChain) (ArchitectJiraResult, error) {
	integration, err := e.Repo.GetJiraIntegration(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ArchitectJiraResult{}, ConfigError{Msg: "Jira not connected. Please connect Jira in Settings."}
		}
		return ArchitectJiraResult{}, err
	}

	var issues []domain.Issue
	if jiraChain != nil {
		issues = jiraChain.Issues
	}
	// Fallback index 1: the prompt orders the Architect story second.
	architectIssue := matchIssue(issues, architectIssuePattern, 1)
	if architectIssue == nil {
		return ArchitectJiraResult{}, ValidationError{Msg: "No Architect Jira issue found. Run the Jira task first."}
	}

	client := e.NewJira(integration)
	updated, err := transitionToInProgress(ctx, client, architectIssue.Key)
	if err != nil {
		e.logf("architect_jira: transition failed: %v", err)
	}

	comment := fmt.Sprintf("AI Architect has started work on %s. System Architecture and Technology Stack documents are being generated.", project.ProjectName)
	if err := client.AddComment(ctx, architectIssue.Key, comment); err != nil {
		e.logf("architect_jira: comment failed: %v", err)
	}

	return ArchitectJiraResult{
		Success:               true,
		ArchitectJiraUpdated:  updated,
		ArchitectJiraIssueKey: architectIssue.Key,
	}, nil
}
