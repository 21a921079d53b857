package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"olympus/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

const projectColumns = `id,user_id,project_name,
COALESCE(given_requirements,'') AS given_requirements,
COALESCE(prioritization,'') AS prioritization,
COALESCE(documentation_depth,'') AS documentation_depth,
COALESCE(meeting_transcript,'') AS meeting_transcript,
created_at,updated_at`

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.UserID, &p.ProjectName, &p.GivenRequirements,
		&p.Prioritization, &p.DocumentationDepth, &p.MeetingTranscript,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	ts := r.now()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,user_id,project_name,given_requirements,prioritization,documentation_depth,meeting_transcript,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.ProjectName, nullable(p.GivenRequirements), nullable(p.Prioritization),
		nullable(p.DocumentationDepth), nullable(p.MeetingTranscript), ts, ts)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE user_id=? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProjectName, &p.GivenRequirements,
			&p.Prioritization, &p.DocumentationDepth, &p.MeetingTranscript,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate carries the optional fields of a project patch. Nil means
// leave the column as is.
type ProjectUpdate struct {
	ProjectName        *string
	GivenRequirements  *string
	Prioritization     *string
	DocumentationDepth *string
	MeetingTranscript  *string
}

func (r Repo) UpdateProject(ctx context.Context, id string, u ProjectUpdate) error {
	set := "updated_at=?"
	args := []any{r.now()}
	appendField := func(col string, v *string) {
		if v != nil {
			set += "," + col + "=?"
			args = append(args, nullable(*v))
		}
	}
	appendField("project_name", u.ProjectName)
	appendField("given_requirements", u.GivenRequirements)
	appendField("prioritization", u.Prioritization)
	appendField("documentation_depth", u.DocumentationDepth)
	appendField("meeting_transcript", u.MeetingTranscript)
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET `+set+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetJiraIntegration(ctx context.Context, userID string) (domain.JiraIntegration, error) {
	var j domain.JiraIntegration
	var boardID sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,access_token,
COALESCE(refresh_token,'') AS refresh_token,
COALESCE(expires_at,'') AS expires_at,
COALESCE(cloud_id,'') AS cloud_id,
COALESCE(site_url,'') AS site_url,
COALESCE(project_key,'') AS project_key,
board_id FROM jira_integrations WHERE user_id=?`, userID).
		Scan(&j.UserID, &j.AccessToken, &j.RefreshToken, &j.ExpiresAt, &j.CloudID, &j.SiteURL, &j.ProjectKey, &boardID)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if boardID.Valid {
		j.BoardID = int(boardID.Int64)
	}
	return j, err
}

func (r Repo) UpsertJiraIntegration(ctx context.Context, j domain.JiraIntegration) error {
	ts := r.now()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO jira_integrations(user_id,access_token,refresh_token,expires_at,cloud_id,site_url,project_key,board_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET access_token=excluded.access_token,refresh_token=excluded.refresh_token,expires_at=excluded.expires_at,cloud_id=excluded.cloud_id,site_url=excluded.site_url,project_key=excluded.project_key,board_id=excluded.board_id,updated_at=excluded.updated_at`,
		j.UserID, j.AccessToken, nullable(j.RefreshToken), nullable(j.ExpiresAt), nullable(j.CloudID),
		nullable(j.SiteURL), nullable(j.ProjectKey), nullableInt(j.BoardID), ts, ts)
	return err
}

func (r Repo) GetGithubIntegration(ctx context.Context, userID string) (domain.GithubIntegration, error) {
	var g domain.GithubIntegration
	var reposJSON sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,installation_id,repos_json FROM github_integrations WHERE user_id=?`, userID).
		Scan(&g.UserID, &g.InstallationID, &reposJSON)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if reposJSON.Valid && reposJSON.String != "" {
		if err := json.Unmarshal([]byte(reposJSON.String), &g.Repos); err != nil {
			return g, err
		}
	}
	return g, nil
}

func (r Repo) UpsertGithubIntegration(ctx context.Context, g domain.GithubIntegration) error {
	ts := r.now()
	var reposJSON any
	if len(g.Repos) > 0 {
		b, err := json.Marshal(g.Repos)
		if err != nil {
			return err
		}
		reposJSON = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO github_integrations(user_id,installation_id,repos_json,created_at,updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET installation_id=excluded.installation_id,repos_json=excluded.repos_json,updated_at=excluded.updated_at`,
		g.UserID, g.InstallationID, reposJSON, ts, ts)
	return err
}

func (r Repo) GetSlackIntegration(ctx context.Context, userID string) (domain.SlackIntegration, error) {
	var s domain.SlackIntegration
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,bot_token,COALESCE(team_id,'') AS team_id FROM slack_integrations WHERE user_id=?`, userID).
		Scan(&s.UserID, &s.BotToken, &s.TeamID)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) UpsertSlackIntegration(ctx context.Context, s domain.SlackIntegration) error {
	ts := r.now()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO slack_integrations(user_id,bot_token,team_id,created_at,updated_at)
VALUES (?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET bot_token=excluded.bot_token,team_id=excluded.team_id,updated_at=excluded.updated_at`,
		s.UserID, s.BotToken, nullable(s.TeamID), ts, ts)
	return err
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
