// Package engine runs agent tasks: the dispatcher and the task handlers that
// orchestrate the LLM, Jira, GitHub and Slack on behalf of one project.
package engine

import (
	"context"
	"database/sql"
	"log"

	"olympus/internal/config"
	"olympus/internal/domain"
	"olympus/internal/github"
	"olympus/internal/jira"
	"olympus/internal/llm"
	"olympus/internal/repo"
	"olympus/internal/slack"
)

// Engine holds the injected collaborators shared by all task handlers.
type Engine struct {
	Repo    repo.Repo
	LLM     *llm.Client
	Github  *github.Client
	Slack   *slack.Notifier
	NewJira func(domain.JiraIntegration) *jira.Client
	Config  *config.Config
	Logger  *log.Logger
}

// New wires an engine from config, with real clients for every collaborator.
func New(conn *sql.DB, cfg *config.Config, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.Default()
	}
	var llmOpts []llm.ClientOption
	if cfg.Anthropic.BaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	if cfg.Anthropic.Model != "" {
		llmOpts = append(llmOpts, llm.WithModel(cfg.Anthropic.Model))
	}
	var ghOpts []github.Option
	if cfg.Github.BaseURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(cfg.Github.BaseURL))
	}
	var slackOpts []slack.Option
	if cfg.Slack.BaseURL != "" {
		slackOpts = append(slackOpts, slack.WithBaseURL(cfg.Slack.BaseURL))
	}
	slackOpts = append(slackOpts, slack.WithLogger(logger))
	e := Engine{
		Repo:   repo.Repo{DB: conn},
		LLM:    llm.NewClient(cfg.Anthropic.APIKey, llmOpts...),
		Github: github.NewClient(cfg.Github.PAT, github.AppConfig{AppID: cfg.Github.AppID, PrivateKeyPEM: cfg.AppPrivateKeyPEM()}, ghOpts...),
		Slack:  slack.NewNotifier(cfg.Slack.Channel, slackOpts...),
		Config: cfg,
		Logger: logger,
	}
	e.NewJira = func(j domain.JiraIntegration) *jira.Client {
		siteURL := j.SiteURL
		if siteURL == "" {
			siteURL = cfg.Jira.DefaultSiteURL
		}
		var opts []jira.Option
		if cfg.Jira.BaseURL != "" {
			opts = append(opts, jira.WithBaseURL(cfg.Jira.BaseURL))
		}
		return jira.NewClient(j, siteURL, opts...)
	}
	return e
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// RunTask loads and authorizes the project, then dispatches to exactly one
// handler. Handlers run sequentially within a request; nothing is queued or
// retried. Two concurrent runs of the same task can duplicate side effects;
// only GitHub's already-exists recovery guards against that today.
func (e Engine) RunTask(ctx context.Context, opts RunTaskOptions) (any, error) {
	if opts.ProjectID == "" {
		return nil, ValidationError{Msg: "Missing task or projectId"}
	}
	project, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != opts.UserID {
		return nil, ForbiddenError{}
	}

	switch opts.Task {
	case TaskJira:
		return e.runJiraTask(ctx, opts.UserID, project)
	case TaskGithub:
		return e.runGithubTask(ctx, opts.UserID, project)
	case TaskPRD:
		return e.runPRDTask(ctx, opts.UserID, project, opts.JiraResult, opts.GithubResult)
	case TaskArchitectJira:
		return e.runArchitectJiraTask(ctx, opts.UserID, project, opts.JiraResult)
	case TaskArchitecture:
		return e.runArchitectureTask(ctx, opts.UserID, project)
	case TaskTechStack:
		return e.runTechStackTask(ctx, opts.UserID, project)
	}
	return nil, ValidationError{Msg: "Unknown task: " + string(opts.Task)}
}

// jiraDefaults resolves the site URL, project key and board id for a stored
// credential, falling back to configured defaults.
func (e Engine) jiraDefaults(j domain.JiraIntegration) (siteURL, projectKey string, boardID int) {
	siteURL = j.SiteURL
	if siteURL == "" {
		siteURL = e.Config.Jira.DefaultSiteURL
	}
	projectKey = j.ProjectKey
	if projectKey == "" {
		projectKey = e.Config.Jira.DefaultProjectKey
	}
	boardID = j.BoardID
	if boardID == 0 {
		boardID = e.Config.Jira.DefaultBoardID
	}
	return siteURL, projectKey, boardID
}

// notifySlack posts a best-effort message if the user has Slack connected.
func (e Engine) notifySlack(ctx context.Context, userID, text string) {
	integration, err := e.Repo.GetSlackIntegration(ctx, userID)
	if err != nil {
		return
	}
	e.Slack.Notify(ctx, integration.BotToken, text)
}
