package engine_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"olympus/internal/config"
	"olympus/internal/db"
	"olympus/internal/domain"
	"olympus/internal/engine"
	"olympus/internal/migrate"
	"olympus/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// newTestEnv opens a temp database and wires an engine whose external
// clients point at the given stub URLs. Pass "" to leave a client on its
// production default, which no test should ever reach.
func newTestEnv(t *testing.T, mod func(cfg *config.Config)) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Anthropic.APIKey = "test-key"
	if mod != nil {
		mod(cfg)
	}
	eng := engine.New(conn, cfg, log.New(io.Discard, "", 0))
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedProject(t *testing.T, env testEnv, userID, name, requirements string) domain.Project {
	t.Helper()
	p := domain.Project{
		ID:                "proj-" + name,
		UserID:            userID,
		ProjectName:       name,
		GivenRequirements: requirements,
	}
	if err := env.Engine.Repo.InsertProject(env.Ctx, p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return p
}

func seedJira(t *testing.T, env testEnv, userID string) {
	t.Helper()
	err := env.Engine.Repo.UpsertJiraIntegration(env.Ctx, domain.JiraIntegration{
		UserID:      userID,
		AccessToken: "jira-token",
		SiteURL:     "https://acme.atlassian.net",
		ProjectKey:  "ADB",
		BoardID:     2,
	})
	if err != nil {
		t.Fatalf("seed jira: %v", err)
	}
}

func seedGithub(t *testing.T, env testEnv, userID string) {
	t.Helper()
	err := env.Engine.Repo.UpsertGithubIntegration(env.Ctx, domain.GithubIntegration{
		UserID:         userID,
		InstallationID: "12345",
	})
	if err != nil {
		t.Fatalf("seed github: %v", err)
	}
}

func seedSlack(t *testing.T, env testEnv, userID string) {
	t.Helper()
	err := env.Engine.Repo.UpsertSlackIntegration(env.Ctx, domain.SlackIntegration{
		UserID:   userID,
		BotToken: "xoxb-test",
	})
	if err != nil {
		t.Fatalf("seed slack: %v", err)
	}
}

// llmServer answers every completion with the given text.
func llmServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected llm path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// slackRecorder captures every chat.postMessage text.
type slackRecorder struct {
	*httptest.Server
	mu       sync.Mutex
	messages []string
}

func (s *slackRecorder) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func newSlackRecorder(t *testing.T) *slackRecorder {
	t.Helper()
	rec := &slackRecorder{}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.messages = append(rec.messages, body.Text)
		rec.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(rec.Close)
	return rec
}

const fiveStories = "```json\n" + `[
  {"summary": "AI Product Manager: define the PRD", "description": "Writes the PRD."},
  {"summary": "AI Architect: design the system", "description": "Produces the architecture."},
  {"summary": "AI Developer: implement features", "description": "Builds the app."},
  {"summary": "AI QA Engineer: test coverage", "description": "Tests everything."},
  {"summary": "AI DevOps Engineer: ship it", "description": "Sets up CI/CD."}
]` + "\n```"

func TestRunTaskMissingProjectID(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", Task: engine.TaskJira})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Msg != "Missing task or projectId" {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestRunTaskUnknownProject(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: "nope", Task: engine.TaskJira})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRunTaskForbidden(t *testing.T) {
	var llmCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		llmCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = srv.URL
	})
	p := seedProject(t, env, "owner", "secret-app", "reqs")
	seedJira(t, env, "intruder")

	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "intruder", ProjectID: p.ID, Task: engine.TaskJira})
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("want forbidden, got %v", err)
	}
	if llmCalls.Load() != 0 {
		t.Fatalf("forbidden run must not reach external services, got %d calls", llmCalls.Load())
	}
}

func TestParseTaskKind(t *testing.T) {
	for _, valid := range []string{"jira", "github", "prd", "architect_jira", "architecture", "techstack"} {
		if _, err := engine.ParseTaskKind(valid); err != nil {
			t.Errorf("ParseTaskKind(%q) = %v", valid, err)
		}
	}
	_, err := engine.ParseTaskKind("deploy")
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Msg != "Unknown task: deploy" {
		t.Fatalf("want unknown-task validation error, got %v", err)
	}
}

func TestJiraTaskNotConnected(t *testing.T) {
	env := newTestEnv(t, nil)
	p := seedProject(t, env, "u1", "app", "reqs")
	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskJira})
	var ce engine.ConfigError
	if !errors.As(err, &ce) || ce.Msg != "Jira not connected. Please connect Jira in Settings." {
		t.Fatalf("want jira config error, got %v", err)
	}
}

func newJiraStub(t *testing.T, createIssue func(n int) (string, int)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var creates atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/project/ADB":
			json.NewEncoder(w).Encode(map[string]any{
				"issueTypes": []map[string]string{{"name": "Epic"}, {"name": "Story"}, {"name": "Task"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/issue":
			n := int(creates.Add(1))
			key, status := createIssue(n)
			if status >= 300 {
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(map[string]any{"errorMessages": []string{"boom"}})
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"key": key})
		default:
			t.Errorf("unexpected jira request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &creates
}

func TestJiraTaskCreatesIssues(t *testing.T) {
	llm := llmServer(t, fiveStories)
	jiraSrv, _ := newJiraStub(t, func(n int) (string, int) {
		return fmt.Sprintf("ADB-%d", n), http.StatusCreated
	})
	slackSrv := newSlackRecorder(t)
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
		cfg.Jira.BaseURL = jiraSrv.URL
		cfg.Slack.BaseURL = slackSrv.URL
	})
	p := seedProject(t, env, "u1", "My Cool App!!", "do things")
	seedJira(t, env, "u1")
	seedSlack(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskJira})
	if err != nil {
		t.Fatalf("run jira task: %v", err)
	}
	result, ok := out.(engine.JiraTaskResult)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	if !result.Success || len(result.Issues) != 5 {
		t.Fatalf("want 5 issues, got %+v", result)
	}
	if result.Issues[0].Key != "ADB-1" || result.Issues[4].Key != "ADB-5" {
		t.Fatalf("unexpected keys %+v", result.Issues)
	}
	if result.ProjectKey != "ADB" {
		t.Fatalf("project key %q", result.ProjectKey)
	}
	wantBoard := "https://acme.atlassian.net/jira/software/projects/ADB/boards/2"
	if result.BoardURL != wantBoard {
		t.Fatalf("board url %q, want %q", result.BoardURL, wantBoard)
	}
	msgs := slackSrv.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "5 Jira user stories created") {
		t.Fatalf("slack messages %v", msgs)
	}
}

func TestJiraTaskPartialFailure(t *testing.T) {
	llm := llmServer(t, fiveStories)
	jiraSrv, _ := newJiraStub(t, func(n int) (string, int) {
		if n == 2 {
			return "", http.StatusBadRequest
		}
		return fmt.Sprintf("ADB-%d", n), http.StatusCreated
	})
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
		cfg.Jira.BaseURL = jiraSrv.URL
	})
	p := seedProject(t, env, "u1", "app", "reqs")
	seedJira(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskJira})
	if err != nil {
		t.Fatalf("partial failure must still succeed: %v", err)
	}
	result := out.(engine.JiraTaskResult)
	if !result.Success || len(result.Issues) != 4 {
		t.Fatalf("want 4 surviving issues, got %+v", result)
	}
}

func TestJiraTaskAllCreatesFail(t *testing.T) {
	llm := llmServer(t, fiveStories)
	jiraSrv, _ := newJiraStub(t, func(n int) (string, int) {
		return "", http.StatusBadRequest
	})
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
		cfg.Jira.BaseURL = jiraSrv.URL
	})
	p := seedProject(t, env, "u1", "app", "reqs")
	seedJira(t, env, "u1")

	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskJira})
	var ue engine.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("want upstream error, got %v", err)
	}
	if !strings.HasPrefix(ue.Msg, "Jira issue creation failed — ") || !strings.Contains(ue.Msg, "boom") {
		t.Fatalf("unexpected message %q", ue.Msg)
	}
}

func TestJiraTaskBadModelOutput(t *testing.T) {
	llm := llmServer(t, "Sorry, I cannot produce JSON today.")
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
	})
	p := seedProject(t, env, "u1", "app", "reqs")
	seedJira(t, env, "u1")

	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskJira})
	var pe engine.ParseError
	if !errors.As(err, &pe) || pe.Msg != "Failed to parse model response for user stories" {
		t.Fatalf("want parse error, got %v", err)
	}
}

func TestJiraTaskCapsIssueCount(t *testing.T) {
	var stories []map[string]string
	for i := 0; i < 25; i++ {
		stories = append(stories, map[string]string{
			"summary":     fmt.Sprintf("Story %d", i),
			"description": "d",
		})
	}
	raw, _ := json.Marshal(stories)
	llm := llmServer(t, string(raw))
	jiraSrv, creates := newJiraStub(t, func(n int) (string, int) {
		return fmt.Sprintf("ADB-%d", n), http.StatusCreated
	})
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
		cfg.Jira.BaseURL = jiraSrv.URL
	})
	p := seedProject(t, env, "u1", "app", "reqs")
	seedJira(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskJira})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(out.(engine.JiraTaskResult).Issues); got != 10 {
		t.Fatalf("want 10 issues after cap, got %d", got)
	}
	if creates.Load() != 10 {
		t.Fatalf("want 10 create calls, got %d", creates.Load())
	}
}

func TestGithubTaskNotConnected(t *testing.T) {
	env := newTestEnv(t, nil)
	p := seedProject(t, env, "u1", "app", "reqs")
	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskGithub})
	var ce engine.ConfigError
	if !errors.As(err, &ce) || ce.Msg != "GitHub not connected. Please connect GitHub in Settings." {
		t.Fatalf("want github config error, got %v", err)
	}
}

func TestGithubTaskCreatesRepoWithPAT(t *testing.T) {
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user/repos" {
			t.Errorf("unexpected github request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotName = body.Name
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"name":      body.Name,
			"full_name": "acme/" + body.Name,
			"html_url":  "https://github.com/acme/" + body.Name,
		})
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Github.BaseURL = srv.URL
		cfg.Github.PAT = "pat-token"
	})
	p := seedProject(t, env, "u1", "My Cool App!!", "reqs")
	seedGithub(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskGithub})
	if err != nil {
		t.Fatalf("run github task: %v", err)
	}
	result := out.(engine.GithubTaskResult)
	if gotName != "my-cool-app" {
		t.Fatalf("repo name sent %q, want my-cool-app", gotName)
	}
	if !result.Success || result.RepoName != "acme/my-cool-app" || result.RepoURL != "https://github.com/acme/my-cool-app" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGithubTaskRecoversWhenRepoExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/user/repos":
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{
				"message": "Repository creation failed.",
				"errors":  []map[string]string{{"message": "name already exists on this account"}},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/repos/unknown/my-cool-app":
			json.NewEncoder(w).Encode(map[string]any{
				"name":      "my-cool-app",
				"full_name": "acme/my-cool-app",
				"html_url":  "https://github.com/acme/my-cool-app",
			})
		default:
			t.Errorf("unexpected github request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Github.BaseURL = srv.URL
		cfg.Github.PAT = "pat-token"
	})
	p := seedProject(t, env, "u1", "My Cool App!!", "reqs")
	seedGithub(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskGithub})
	if err != nil {
		t.Fatalf("already-exists must recover: %v", err)
	}
	result := out.(engine.GithubTaskResult)
	if !result.Success || result.RepoURL != "https://github.com/acme/my-cool-app" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGithubTaskFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "Resource not accessible"})
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Github.BaseURL = srv.URL
		cfg.Github.PAT = "pat-token"
	})
	p := seedProject(t, env, "u1", "app", "reqs")
	seedGithub(t, env, "u1")

	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskGithub})
	var ue engine.UpstreamError
	if !errors.As(err, &ue) || !strings.HasPrefix(ue.Msg, "GitHub repo creation failed: ") {
		t.Fatalf("want upstream error, got %v", err)
	}
	if !strings.Contains(ue.Msg, "Resource not accessible") {
		t.Fatalf("message lost upstream detail: %q", ue.Msg)
	}
}

func TestPRDTaskWithoutIntegrations(t *testing.T) {
	llm := llmServer(t, "# My App — PRD\n\nContent.")
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
	})
	p := seedProject(t, env, "u1", "My App", "reqs")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskPRD})
	if err != nil {
		t.Fatalf("prd without integrations must succeed: %v", err)
	}
	result := out.(engine.PRDTaskResult)
	if !result.Success || result.PRD == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.GithubPRDURL != "" || result.JiraUpdated || result.JiraIssueKey != "" {
		t.Fatalf("side effects reported without integrations: %+v", result)
	}
}

func TestPRDTaskCommitsAndUpdatesJira(t *testing.T) {
	llm := llmServer(t, "# My App — PRD\n\n"+strings.Repeat("x", 4000))

	var commentBody string
	var transitioned atomic.Bool
	jiraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/issue/ADB-1/transitions":
			json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]string{
					{"id": "11", "name": "To Do"},
					{"id": "21", "name": "In Progress"},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/issue/ADB-1/transitions":
			transitioned.Store(true)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/issue/ADB-1/comment":
			raw, _ := io.ReadAll(r.Body)
			commentBody = string(raw)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected jira request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(jiraSrv.Close)

	ghSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/repos/acme/my-app/contents/PRD.md" {
			t.Errorf("unexpected github request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"html_url": "https://github.com/acme/my-app/blob/main/PRD.md"},
		})
	}))
	t.Cleanup(ghSrv.Close)

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
		cfg.Jira.BaseURL = jiraSrv.URL
		cfg.Github.BaseURL = ghSrv.URL
		cfg.Github.PAT = "pat-token"
	})
	p := seedProject(t, env, "u1", "My App", "reqs")
	seedJira(t, env, "u1")
	seedGithub(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{
		UserID:    "u1",
		ProjectID: p.ID,
		Task:      engine.TaskPRD,
		JiraResult: &engine.JiraChain{Issues: []domain.Issue{
			{Key: "ADB-1", Summary: "AI Product Manager: define the PRD"},
			{Key: "ADB-2", Summary: "AI Architect: design the system"},
		}},
		GithubResult: &engine.GithubChain{RepoName: "acme/my-app"},
	})
	if err != nil {
		t.Fatalf("run prd task: %v", err)
	}
	result := out.(engine.PRDTaskResult)
	if !result.Success || result.GithubPRDURL != "https://github.com/acme/my-app/blob/main/PRD.md" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.JiraUpdated || result.JiraIssueKey != "ADB-1" {
		t.Fatalf("jira update not reported: %+v", result)
	}
	if !transitioned.Load() {
		t.Fatal("transition was never executed")
	}
	if !strings.Contains(commentBody, "PRD committed to GitHub:") {
		t.Fatalf("comment missing commit link: %s", commentBody)
	}
	if !strings.Contains(commentBody, "truncated") {
		t.Fatalf("long PRD comment should carry the truncation marker")
	}
}

func TestArchitectJiraNoIssues(t *testing.T) {
	env := newTestEnv(t, nil)
	p := seedProject(t, env, "u1", "app", "reqs")
	seedJira(t, env, "u1")

	_, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskArchitectJira})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Msg != "No Architect Jira issue found. Run the Jira task first." {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestArchitectJiraUpdatesIssue(t *testing.T) {
	var commented atomic.Bool
	jiraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/issue/ADB-2/transitions":
			json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]string{{"id": "31", "name": "Start Progress"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/issue/ADB-2/transitions":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/issue/ADB-2/comment":
			commented.Store(true)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected jira request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(jiraSrv.Close)

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Jira.BaseURL = jiraSrv.URL
	})
	p := seedProject(t, env, "u1", "app", "reqs")
	seedJira(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{
		UserID:    "u1",
		ProjectID: p.ID,
		Task:      engine.TaskArchitectJira,
		JiraResult: &engine.JiraChain{Issues: []domain.Issue{
			{Key: "ADB-1", Summary: "AI Product Manager: define the PRD"},
			{Key: "ADB-2", Summary: "AI Architect: design the system"},
		}},
	})
	if err != nil {
		t.Fatalf("run architect_jira: %v", err)
	}
	result := out.(engine.ArchitectJiraResult)
	if !result.Success || !result.ArchitectJiraUpdated || result.ArchitectJiraIssueKey != "ADB-2" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !commented.Load() {
		t.Fatal("comment was never posted")
	}
}

func testRSAKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func TestArchitectureTaskCommitsBySlug(t *testing.T) {
	llm := llmServer(t, "# My App — System Architecture\n\nDesign.")
	slackSrv := newSlackRecorder(t)

	ghSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/app/installations/12345/access_tokens":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"token": "inst-token"})
		case r.Method == http.MethodGet && r.URL.Path == "/installation/repositories":
			json.NewEncoder(w).Encode(map[string]any{
				"repositories": []map[string]any{
					{"name": "other", "full_name": "acme/other"},
					{"name": "my-app", "full_name": "acme/my-app"},
				},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/repos/acme/my-app/contents/ARCHITECTURE.md":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]string{"html_url": "https://github.com/acme/my-app/blob/main/ARCHITECTURE.md"},
			})
		default:
			t.Errorf("unexpected github request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ghSrv.Close)

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
		cfg.Github.BaseURL = ghSrv.URL
		cfg.Github.AppID = "99"
		cfg.Github.PrivateKey = testRSAKeyPEM(t)
		cfg.Slack.BaseURL = slackSrv.URL
	})
	p := seedProject(t, env, "u1", "My App", "reqs")
	seedGithub(t, env, "u1")
	seedSlack(t, env, "u1")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskArchitecture})
	if err != nil {
		t.Fatalf("run architecture: %v", err)
	}
	result := out.(engine.ArchitectureResult)
	if !result.Success || result.ArchitectureContent == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.GithubArchitectureURL != "https://github.com/acme/my-app/blob/main/ARCHITECTURE.md" {
		t.Fatalf("commit url %q", result.GithubArchitectureURL)
	}
	msgs := slackSrv.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "System Architecture document generated") {
		t.Fatalf("slack messages %v", msgs)
	}
}

func TestTechStackTaskWithoutGithub(t *testing.T) {
	llm := llmServer(t, "# My App — Technology Stack\n\nReact.")
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Anthropic.BaseURL = llm.URL
	})
	p := seedProject(t, env, "u1", "My App", "reqs")

	out, err := env.Engine.RunTask(env.Ctx, engine.RunTaskOptions{UserID: "u1", ProjectID: p.ID, Task: engine.TaskTechStack})
	if err != nil {
		t.Fatalf("tech stack without github must succeed: %v", err)
	}
	result := out.(engine.TechStackResult)
	if !result.Success || result.TechStackContent == "" || result.GithubTechStackURL != "" {
		t.Fatalf("unexpected result %+v", result)
	}
}
