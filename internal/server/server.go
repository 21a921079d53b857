package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"olympus/internal/domain"
	"olympus/internal/engine"
	"olympus/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

// apiError is the flat error envelope every failure path returns.
type apiError struct {
	status  int
	Message string `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

// New returns an HTTP handler exposing the Olympus API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the flat {"error": msg} envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema/request validation errors should be 400.
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Olympus API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAgentRun(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerIntegrations(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)

	return router, nil
}

// handleError converts engine failures into the error envelope. Nothing may
// escape as an unclassified fault.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, ve.Msg)
	}
	var ce engine.ConfigError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusBadRequest, ce.Msg)
	}
	var fe engine.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "Forbidden")
	}
	var pe engine.ParseError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusInternalServerError, pe.Msg)
	}
	var ue engine.UpstreamError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusBadRequest, ue.Msg)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "Project not found")
	}
	return newAPIError(http.StatusInternalServerError, err.Error())
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAgentRun(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-agent-task",
		Method:      http.MethodPost,
		Path:        "/agents/run",
		Summary:     "Run one agent task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RunAgentTaskRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Task == "" || input.Body.ProjectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "Missing task or projectId")
		}
		kind, err := engine.ParseTaskKind(input.Body.Task)
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.RunTaskOptions{
			UserID:       userID,
			ProjectID:    input.Body.ProjectID,
			Task:         kind,
			JiraResult:   input.Body.JiraResult,
			GithubResult: input.Body.GithubResult,
		}
		result, err := e.RunTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		body, err := toMap(result)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.ProjectName) == "" {
			return nil, newAPIError(http.StatusBadRequest, "project_name is required")
		}
		p := domain.Project{
			ID:                 uuid.NewString(),
			UserID:             userID,
			ProjectName:        input.Body.ProjectName,
			GivenRequirements:  input.Body.GivenRequirements,
			Prioritization:     input.Body.Prioritization,
			DocumentationDepth: input.Body.DocumentationDepth,
		}
		if err := e.Repo.InsertProject(ctx, p); err != nil {
			return nil, handleError(err)
		}
		created, err := e.Repo.GetProject(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(created)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List the caller's projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjectsByUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.UserID != userID {
			return nil, newAPIError(http.StatusForbidden, "Forbidden")
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.UserID != userID {
			return nil, newAPIError(http.StatusForbidden, "Forbidden")
		}
		update := repo.ProjectUpdate{
			ProjectName:        input.Body.ProjectName,
			GivenRequirements:  input.Body.GivenRequirements,
			Prioritization:     input.Body.Prioritization,
			DocumentationDepth: input.Body.DocumentationDepth,
			MeetingTranscript:  input.Body.MeetingTranscript,
		}
		if err := e.Repo.UpdateProject(ctx, input.ID, update); err != nil {
			return nil, handleError(err)
		}
		updated, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(updated)}, nil
	})
}

func registerIntegrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-jira-integration",
		Method:      http.MethodPut,
		Path:        "/integrations/jira",
		Summary:     "Store Jira credentials for the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpsertJiraIntegrationRequest `json:"body"`
	}) (*struct {
		Body IntegrationStatusResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.AccessToken == "" {
			return nil, newAPIError(http.StatusBadRequest, "access_token is required")
		}
		j := domain.JiraIntegration{
			UserID:       userID,
			AccessToken:  input.Body.AccessToken,
			RefreshToken: input.Body.RefreshToken,
			ExpiresAt:    input.Body.ExpiresAt,
			CloudID:      input.Body.CloudID,
			SiteURL:      input.Body.SiteURL,
			ProjectKey:   input.Body.ProjectKey,
			BoardID:      input.Body.BoardID,
		}
		if err := e.Repo.UpsertJiraIntegration(ctx, j); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationStatusResponse `json:"body"`
		}{Body: IntegrationStatusResponse{Connected: true, SiteURL: j.SiteURL, CloudID: j.CloudID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-github-integration",
		Method:      http.MethodPut,
		Path:        "/integrations/github",
		Summary:     "Store the GitHub App installation for the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpsertGithubIntegrationRequest `json:"body"`
	}) (*struct {
		Body IntegrationStatusResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.InstallationID == "" {
			return nil, newAPIError(http.StatusBadRequest, "installation_id is required")
		}
		g := domain.GithubIntegration{
			UserID:         userID,
			InstallationID: input.Body.InstallationID,
			Repos:          input.Body.Repos,
		}
		if err := e.Repo.UpsertGithubIntegration(ctx, g); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationStatusResponse `json:"body"`
		}{Body: IntegrationStatusResponse{Connected: true, InstallationID: g.InstallationID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-slack-integration",
		Method:      http.MethodPut,
		Path:        "/integrations/slack",
		Summary:     "Store the Slack bot token for the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpsertSlackIntegrationRequest `json:"body"`
	}) (*struct {
		Body IntegrationStatusResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.BotToken == "" {
			return nil, newAPIError(http.StatusBadRequest, "bot_token is required")
		}
		s := domain.SlackIntegration{
			UserID:   userID,
			BotToken: input.Body.BotToken,
			TeamID:   input.Body.TeamID,
		}
		if err := e.Repo.UpsertSlackIntegration(ctx, s); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationStatusResponse `json:"body"`
		}{Body: IntegrationStatusResponse{Connected: true, TeamID: s.TeamID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "integration-status",
		Method:      http.MethodGet,
		Path:        "/integrations/{kind}/status",
		Summary:     "Integration connection status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Kind string `path:"kind" enum:"jira,github,slack"`
	}) (*struct {
		Body IntegrationStatusResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var status IntegrationStatusResponse
		switch input.Kind {
		case "jira":
			j, err := e.Repo.GetJiraIntegration(ctx, userID)
			if err == nil {
				status = IntegrationStatusResponse{Connected: true, SiteURL: j.SiteURL, CloudID: j.CloudID}
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
		case "github":
			g, err := e.Repo.GetGithubIntegration(ctx, userID)
			if err == nil {
				status = IntegrationStatusResponse{Connected: true, InstallationID: g.InstallationID}
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
		case "slack":
			s, err := e.Repo.GetSlackIntegration(ctx, userID)
			if err == nil {
				status = IntegrationStatusResponse{Connected: true, TeamID: s.TeamID}
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
		default:
			return nil, newAPIError(http.StatusBadRequest, "unknown integration kind: "+input.Kind)
		}
		return &struct {
			Body IntegrationStatusResponse `json:"body"`
		}{Body: status}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !authCfg.AllowDevLogin {
			return nil, newAPIError(http.StatusForbidden, "dev login is disabled")
		}
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "user_id is required")
		}
		token, err := SignToken(authCfg.JWTSecret, userID)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, err.Error())
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
