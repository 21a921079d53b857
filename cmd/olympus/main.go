package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"olympus/internal/config"
	"olympus/internal/db"
	"olympus/internal/domain"
	"olympus/internal/engine"
	"olympus/internal/migrate"
	"olympus/internal/repo"
	"olympus/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "olympus",
	Short: "Olympus CLI",
	Long: `Olympus turns a project brief into delivery artifacts by running agent tasks:
- jira: generate user stories with the model and create them as Jira issues.
- github: create a repository named after the project.
- prd: write a PRD, commit it to the repo, and update the PM story in Jira.
- architect_jira: move the Architect story to In Progress with a comment.
- architecture / techstack: write the design docs and commit them to the repo.
Connect Jira, GitHub, and Slack per user with 'olympus integration', then
run tasks directly or serve the HTTP API with 'olympus serve'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OLYMPUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, requirements, prioritization, depth string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p := domain.Project{
					ID:                 uuid.NewString(),
					UserID:             viper.GetString("user-id"),
					ProjectName:        name,
					GivenRequirements:  requirements,
					Prioritization:     prioritization,
					DocumentationDepth: depth,
				}
				if err := e.Repo.InsertProject(ctx, p); err != nil {
					return err
				}
				created, err := e.Repo.GetProject(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&requirements, "requirements", "", "given requirements")
	cmd.Flags().StringVar(&prioritization, "prioritization", "", "prioritization guidance")
	cmd.Flags().StringVar(&depth, "documentation-depth", "", "documentation depth")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the current user's projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjectsByUser(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.ProjectName, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, requirements, prioritization, depth, transcript string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var u repo.ProjectUpdate
			if cmd.Flags().Changed("name") {
				u.ProjectName = &name
			}
			if cmd.Flags().Changed("requirements") {
				u.GivenRequirements = &requirements
			}
			if cmd.Flags().Changed("prioritization") {
				u.Prioritization = &prioritization
			}
			if cmd.Flags().Changed("documentation-depth") {
				u.DocumentationDepth = &depth
			}
			if cmd.Flags().Changed("meeting-transcript") {
				u.MeetingTranscript = &transcript
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.UpdateProject(ctx, id, u); err != nil {
					return err
				}
				p, err := e.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&requirements, "requirements", "", "given requirements")
	cmd.Flags().StringVar(&prioritization, "prioritization", "", "prioritization guidance")
	cmd.Flags().StringVar(&depth, "documentation-depth", "", "documentation depth")
	cmd.Flags().StringVar(&transcript, "meeting-transcript", "", "meeting transcript")
	return cmd
}

func integrationCmd() *cobra.Command {
	in := &cobra.Command{
		Use:   "integration",
		Short: "Manage per-user integrations",
		Long:  "Integrations hold the stored credentials tasks run with: Jira OAuth tokens, a GitHub App installation, and a Slack bot token. All of them are keyed by --user-id.",
	}
	in.AddCommand(integrationSetJiraCmd())
	in.AddCommand(integrationSetGithubCmd())
	in.AddCommand(integrationSetSlackCmd())
	in.AddCommand(integrationStatusCmd())
	return in
}

func integrationSetJiraCmd() *cobra.Command {
	var j domain.JiraIntegration
	cmd := &cobra.Command{
		Use:   "set-jira",
		Short: "Store Jira credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if j.AccessToken == "" {
				return fmt.Errorf("--access-token required")
			}
			j.UserID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.UpsertJiraIntegration(ctx, j); err != nil {
					return err
				}
				fmt.Println("jira integration saved")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&j.AccessToken, "access-token", "", "OAuth access token")
	cmd.Flags().StringVar(&j.RefreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().StringVar(&j.ExpiresAt, "expires-at", "", "token expiry (RFC3339)")
	cmd.Flags().StringVar(&j.CloudID, "cloud-id", "", "Atlassian cloud id")
	cmd.Flags().StringVar(&j.SiteURL, "site-url", "", "Jira site URL")
	cmd.Flags().StringVar(&j.ProjectKey, "project-key", "", "Jira project key")
	cmd.Flags().IntVar(&j.BoardID, "board-id", 0, "Jira board id")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func integrationSetGithubCmd() *cobra.Command {
	var g domain.GithubIntegration
	cmd := &cobra.Command{
		Use:   "set-github",
		Short: "Store the GitHub App installation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.InstallationID == "" {
				return fmt.Errorf("--installation-id required")
			}
			g.UserID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.UpsertGithubIntegration(ctx, g); err != nil {
					return err
				}
				fmt.Println("github integration saved")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&g.InstallationID, "installation-id", "", "GitHub App installation id")
	cmd.Flags().StringArrayVar(&g.Repos, "repo", []string{}, "accessible repo full name (repeatable)")
	_ = cmd.MarkFlagRequired("installation-id")
	return cmd
}

func integrationSetSlackCmd() *cobra.Command {
	var s domain.SlackIntegration
	cmd := &cobra.Command{
		Use:   "set-slack",
		Short: "Store the Slack bot token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.BotToken == "" {
				return fmt.Errorf("--bot-token required")
			}
			s.UserID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.UpsertSlackIntegration(ctx, s); err != nil {
					return err
				}
				fmt.Println("slack integration saved")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&s.BotToken, "bot-token", "", "Slack bot token")
	cmd.Flags().StringVar(&s.TeamID, "team-id", "", "Slack team id")
	_ = cmd.MarkFlagRequired("bot-token")
	return cmd
}

func integrationStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which integrations are connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("user-id")
				connected := func(err error) string {
					if err == nil {
						return "connected"
					}
					if errors.Is(err, repo.ErrNotFound) {
						return "not connected"
					}
					return "error: " + err.Error()
				}
				_, jiraErr := e.Repo.GetJiraIntegration(ctx, userID)
				_, ghErr := e.Repo.GetGithubIntegration(ctx, userID)
				_, slackErr := e.Repo.GetSlackIntegration(ctx, userID)
				if viper.GetBool("json") {
					return printJSON(map[string]bool{
						"jira":   jiraErr == nil,
						"github": ghErr == nil,
						"slack":  slackErr == nil,
					})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Integration", "Status"})
				tw.AppendRow(table.Row{"jira", connected(jiraErr)})
				tw.AppendRow(table.Row{"github", connected(ghErr)})
				tw.AppendRow(table.Row{"slack", connected(slackErr)})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Run agent tasks",
		Long:  "Runs one agent task against a project with the current user's stored integrations, exactly as the HTTP endpoint would.",
	}
	task.AddCommand(taskRunCmd())
	return task
}

func taskRunCmd() *cobra.Command {
	var taskName, projectID, jiraResultJSON, githubResultJSON string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one agent task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskName == "" || projectID == "" {
				return fmt.Errorf("--task and --project required")
			}
			kind, err := engine.ParseTaskKind(taskName)
			if err != nil {
				return err
			}
			opts := engine.RunTaskOptions{
				UserID:    viper.GetString("user-id"),
				ProjectID: projectID,
				Task:      kind,
			}
			if jiraResultJSON != "" {
				var chain engine.JiraChain
				if err := json.Unmarshal([]byte(jiraResultJSON), &chain); err != nil {
					return fmt.Errorf("invalid --jira-result-json: %w", err)
				}
				opts.JiraResult = &chain
			}
			if githubResultJSON != "" {
				var chain engine.GithubChain
				if err := json.Unmarshal([]byte(githubResultJSON), &chain); err != nil {
					return fmt.Errorf("invalid --github-result-json: %w", err)
				}
				opts.GithubResult = &chain
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.RunTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	cmd.Flags().StringVar(&taskName, "task", "", "task name (jira, github, prd, architect_jira, architecture, techstack)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&jiraResultJSON, "jira-result-json", "", "chained Jira task result JSON")
	cmd.Flags().StringVar(&githubResultJSON, "github-result-json", "", "chained GitHub task result JSON")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is olympus.yml in the workspace plus environment overrides (OLYMPUS_JWT_SECRET, ANTHROPIC_API_KEY, GITHUB_PAT, GITHUB_APP_ID, GITHUB_PRIVATE_KEY).",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default olympus.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func authCmd() *cobra.Command {
	a := &cobra.Command{Use: "auth", Short: "Auth helpers"}
	a.AddCommand(authTokenCmd())
	return a
}

func authTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the current user (needs jwt secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, viper.GetString("user-id"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("OLYMPUS_JWT_SECRET is required for bearer auth")
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			e := engine.New(conn, cfg, nil)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:     cfg.Auth.JWTSecret,
					AllowDevLogin: cfg.Auth.AllowDevLogin,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Olympus API on http://%s%s\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, nil)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
