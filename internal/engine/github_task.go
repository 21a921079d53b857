package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"olympus/internal/domain"
	"olympus/internal/github"
	"olympus/internal/repo"
)

func (e Engine) runGithubTask(ctx context.Context, userID string, project domain.Project) (GithubTaskResult, error) {
	integration, err := e.Repo.GetGithubIntegration(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return GithubTaskResult{}, ConfigError{Msg: "GitHub not connected. Please connect GitHub in Settings."}
		}
		return GithubTaskResult{}, err
	}

	repoName := Slugify(project.ProjectName)
	description := fmt.Sprintf("%s — generated by Olympus", project.ProjectName)

	// A PAT can create user-namespace repos directly. Installation tokens
	// are server-to-server and can only create under an org, so resolve the
	// first org the installation can reach.
	pat := e.Github.PAT()
	token := pat
	owner := ""
	if pat == "" {
		installationToken, err := e.Github.InstallationToken(ctx, integration.InstallationID)
		if err != nil {
			e.logf("github: installation token exchange failed: %v", err)
		} else {
			token = installationToken
			if repos, err := e.Github.InstallationRepos(ctx, integration.InstallationID); err == nil && len(repos) > 0 {
				owner = strings.SplitN(repos[0].FullName, "/", 2)[0]
			}
		}
	}

	var (
		created       github.Repo
		ok            bool
		attemptErrors []string
	)
	if pat != "" || owner == "" {
		created, err = e.Github.CreateUserRepo(ctx, token, repoName, description)
	} else {
		created, err = e.Github.CreateOrgRepo(ctx, token, owner, repoName, description)
	}
	if err == nil {
		ok = true
	} else {
		var createErr *github.CreateRepoError
		if errors.As(err, &createErr) && createErr.AlreadyExists {
			fetchOwner := owner
			if fetchOwner == "" {
				fetchOwner = "unknown"
			}
			if existing, getErr := e.Github.GetRepo(ctx, token, fetchOwner, repoName); getErr == nil {
				created = existing
				ok = true
			}
		}
		if !ok {
			attemptErrors = append(attemptErrors, err.Error())
			e.logf("github: repo creation failed: %v", err)
		}
	}
	if !ok {
		return GithubTaskResult{}, UpstreamError{Msg: "GitHub repo creation failed: " + strings.Join(attemptErrors, " | ")}
	}

	e.notifySlack(ctx, userID, fmt.Sprintf("✅ *%s* — GitHub repository created: %s",
		project.ProjectName, created.HTMLURL))

	return GithubTaskResult{
		Success:  true,
		RepoURL:  created.HTMLURL,
		RepoName: created.FullName,
	}, nil
}
