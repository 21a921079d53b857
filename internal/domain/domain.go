package domain

type Project struct {
	ID                 string `json:"id"`
	UserID             string `json:"user_id"`
	ProjectName        string `json:"project_name"`
	GivenRequirements  string `json:"given_requirements,omitempty"`
	Prioritization     string `json:"prioritization,omitempty"`
	DocumentationDepth string `json:"documentation_depth,omitempty"`
	MeetingTranscript  string `json:"meeting_transcript,omitempty"`
	CreatedAt          string `json:"created_at" format:"date-time"`
	UpdatedAt          string `json:"updated_at" format:"date-time"`
}

// JiraIntegration is the stored OAuth credential for a user's Jira site.
// Tokens are written once by the OAuth callback; there is no refresh here,
// so an expired access token surfaces as an auth error from Jira itself.
type JiraIntegration struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty" format:"date-time"`
	CloudID      string `json:"cloud_id,omitempty"`
	SiteURL      string `json:"site_url,omitempty"`
	ProjectKey   string `json:"project_key,omitempty"`
	BoardID      int    `json:"board_id,omitempty"`
}

type GithubIntegration struct {
	UserID         string   `json:"user_id"`
	InstallationID string   `json:"installation_id"`
	Repos          []string `json:"repos,omitempty"`
}

type SlackIntegration struct {
	UserID   string `json:"user_id"`
	BotToken string `json:"bot_token"`
	TeamID   string `json:"team_id,omitempty"`
}

// Issue is a created Jira issue as reported back to the caller. It is never
// persisted; later tasks receive it again inside a chained result.
type Issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
}

// Story is one model-generated user story before issue creation.
type Story struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}
