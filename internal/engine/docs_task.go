package engine

import (
	"context"
	"encoding/base64"
	"fmt"

	"olympus/internal/domain"
)

const prdCommentLimit = 3000

func prdPrompt(p domain.Project) string {
	transcript := ""
	if p.MeetingTranscript != "" {
		transcript = "\nMeeting Transcript:\n" + p.MeetingTranscript
	}
	return fmt.Sprintf(`You are an expert Product Manager. Write a comprehensive Product Requirements Document (PRD) in clean markdown.

Project: %s
Priority: %s
Documentation Depth: %s
Requirements: %s%s

Structure:
# %s — PRD

## 1. Executive Summary
## 2. Problem Statement
## 3. Goals & Success Metrics
## 4. Target Users
## 5. Functional Requirements
## 6. Non-Functional Requirements
## 7. Out of Scope
## 8. Technical Considerations
## 9. Timeline & Milestones

Be specific and actionable. Base everything on the requirements provided.`,
		p.ProjectName, p.Prioritization, p.DocumentationDepth, p.GivenRequirements, transcript, p.ProjectName)
}

func architecturePrompt(p domain.Project) string {
	return fmt.Sprintf(`You are an expert Software Architect. Write a comprehensive System Architecture document in clean markdown for the following project.

Project: %s
Requirements: %s

Structure the document exactly as:
# %s — System Architecture

## 1. Overview
## 2. Architecture Diagram (describe as ASCII or text diagram)
## 3. Core Components
## 4. Data Flow
## 5. Database Schema
## 6. API Design
## 7. Security Considerations
## 8. Scalability & Performance

Be specific and tie every section back to the project requirements.`, p.ProjectName, p.GivenRequirements, p.ProjectName)
}

func techStackPrompt(p domain.Project) string {
	return fmt.Sprintf(`You are an expert Software Architect. Write a Technology Stack Recommendations document in clean markdown.

The frontend is ALWAYS React (web app). Choose the best supporting technologies around it based on the project.

Project: %s
Requirements: %s

Structure the document exactly as:
# %s — Technology Stack

## Frontend
- **Framework:** React (Web App)
- [add libraries, state management, styling, etc.]

## Backend
## Database
## Infrastructure & DevOps
## Third-Party Services
## Rationale

Keep each section concise and tie choices to the requirements.`, p.ProjectName, p.GivenRequirements, p.ProjectName)
}

// commitToken resolves the token used for contents writes: the configured
// PAT when present, else a fresh installation token. Empty means no token is
// obtainable and the commit step should be skipped.
func (e Engine) commitToken(ctx context.Context, userID string) string {
	if pat := e.Github.PAT(); pat != "" {
		return pat
	}
	integration, err := e.Repo.GetGithubIntegration(ctx, userID)
	if err != nil {
		return ""
	}
	token, err := e.Github.InstallationToken(ctx, integration.InstallationID)
	if err != nil {
		e.logf("github: installation token exchange failed: %v", err)
		return ""
	}
	return token
}

func (e Engine) runPRDTask(ctx context.Context, userID string, project domain.Project, jiraChain *JiraChain, githubChain *GithubChain) (PRDTaskResult, error) {
	prd, err := e.LLM.Complete(ctx, prdPrompt(project), 4096)
	if err != nil {
		return PRDTaskResult{}, fmt.Errorf("generate PRD: %w", err)
	}

	// Commit PRD.md to the repo named in the chained github result. The
	// document itself is the deliverable; the commit is best-effort.
	var prdURL string
	if githubChain != nil && githubChain.RepoName != "" {
		if token := e.commitToken(ctx, userID); token != "" {
			content := base64.StdEncoding.EncodeToString([]byte(prd))
			url, err := e.Github.PutContents(ctx, token, githubChain.RepoName, "PRD.md",
				"docs: Add Product Requirements Document (PRD)", content)
			if err != nil {
				e.logf("prd: github commit failed: %v", err)
			} else {
				prdURL = url
			}
		}
	}

	// Move the AI Product Manager issue to In Progress and attach the PRD as
	// a comment. Jira failures never fail the task.
	jiraUpdated := false
	issueKey := ""
	var issues []domain.Issue
	if jiraChain != nil {
		issues = jiraChain.Issues
	}
	if pmIssue := matchIssue(issues, pmIssuePattern, 0); pmIssue != nil {
		issueKey = pmIssue.Key
		if integration, err := e.Repo.GetJiraIntegration(ctx, userID); err == nil {
			client := e.NewJira(integration)
			moved, err := transitionToInProgress(ctx, client, pmIssue.Key)
			if err != nil {
				e.logf("prd: jira transition failed: %v", err)
			}
			jiraUpdated = moved

			snippet := prd
			if len(snippet) > prdCommentLimit {
				snippet = snippet[:prdCommentLimit] + "\n\n_(truncated — see PRD.md in GitHub)_"
			}
			comment := snippet
			if prdURL != "" {
				comment = fmt.Sprintf("PRD committed to GitHub: %s\n\n---\n\n%s", prdURL, snippet)
			}
			if err := client.AddComment(ctx, pmIssue.Key, comment); err != nil {
				e.logf("prd: jira comment failed: %v", err)
			}
		}
	}

	text := fmt.Sprintf("✅ *%s* — PRD generated", project.ProjectName)
	if prdURL != "" {
		text += ", committed to GitHub: " + prdURL
	}
	if jiraUpdated {
		text += fmt.Sprintf(", and Jira ticket %s moved to In Progress", issueKey)
	}
	e.notifySlack(ctx, userID, text+".")

	return PRDTaskResult{
		Success:      true,
		PRD:          prd,
		GithubPRDURL: prdURL,
		JiraUpdated:  jiraUpdated,
		JiraIssueKey: issueKey,
	}, nil
}

// commitDocBySlug commits a generated document to the repository whose name
// matches the project slug among the installation's accessible repos. Unlike
// the PRD handler, which takes the repo from the chained github result, these
// handlers rediscover it; the lookup fails soft.
func (e Engine) commitDocBySlug(ctx context.Context, userID string, project domain.Project, path, commitMessage, content string) string {
	integration, err := e.Repo.GetGithubIntegration(ctx, userID)
	if err != nil {
		return ""
	}
	token := e.Github.PAT()
	if token == "" {
		token, err = e.Github.InstallationToken(ctx, integration.InstallationID)
		if err != nil {
			e.logf("github: installation token exchange failed: %v", err)
			return ""
		}
	}
	repoName := Slugify(project.ProjectName)
	repos, err := e.Github.InstallationRepos(ctx, integration.InstallationID)
	if err != nil {
		e.logf("github: installation repo lookup failed: %v", err)
		return ""
	}
	fullName := ""
	for _, r := range repos {
		if r.Name == repoName {
			fullName = r.FullName
			break
		}
	}
	if fullName == "" {
		return ""
	}
	url, err := e.Github.PutContents(ctx, token, fullName, path, commitMessage,
		base64.StdEncoding.EncodeToString([]byte(content)))
	if err != nil {
		e.logf("%s: github commit failed: %v", path, err)
		return ""
	}
	return url
}

func (e Engine) runArchitectureTask(ctx context.Context, userID string, project domain.Project) (ArchitectureResult, error) {
	content, err := e.LLM.Complete(ctx, architecturePrompt(project), 4096)
	if err != nil {
		return ArchitectureResult{}, fmt.Errorf("generate architecture document: %w", err)
	}
	url := e.commitDocBySlug(ctx, userID, project, "ARCHITECTURE.md",
		"docs: Add System Architecture document", content)

	text := fmt.Sprintf("✅ *%s* — System Architecture document generated", project.ProjectName)
	if url != "" {
		text += ", committed to GitHub: " + url
	}
	e.notifySlack(ctx, userID, text+".")

	return ArchitectureResult{
		Success:               true,
		ArchitectureContent:   content,
		GithubArchitectureURL: url,
	}, nil
}

func (e Engine) runTechStackTask(ctx context.Context, userID string, project domain.Project) (TechStackResult, error) {
	content, err := e.LLM.Complete(ctx, techStackPrompt(project), 2048)
	if err != nil {
		return TechStackResult{}, fmt.Errorf("generate tech stack document: %w", err)
	}
	url := e.commitDocBySlug(ctx, userID, project, "TECH_STACK.md",
		"docs: Add Technology Stack Recommendations", content)

	text := fmt.Sprintf("✅ *%s* — Technology Stack document generated", project.ProjectName)
	if url != "" {
		text += ", committed to GitHub: " + url
	}
	e.notifySlack(ctx, userID, text+".")

	return TechStackResult{
		Success:            true,
		TechStackContent:   content,
		GithubTechStackURL: url,
	}, nil
}
