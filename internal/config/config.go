package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models olympus.yml plus environment-supplied secrets.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		AllowDevLogin bool   `yaml:"allow_dev_login"`
	} `yaml:"auth"`
	Anthropic struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"anthropic"`
	Github struct {
		PAT        string `yaml:"pat"`
		AppID      string `yaml:"app_id"`
		PrivateKey string `yaml:"private_key"`
		BaseURL    string `yaml:"base_url"`
	} `yaml:"github"`
	Jira struct {
		// BaseURL overrides the computed cloud/site API base; used in tests.
		BaseURL           string `yaml:"base_url"`
		DefaultSiteURL    string `yaml:"default_site_url"`
		DefaultProjectKey string `yaml:"default_project_key"`
		DefaultBoardID    int    `yaml:"default_board_id"`
	} `yaml:"jira"`
	Slack struct {
		BaseURL string `yaml:"base_url"`
		Channel string `yaml:"channel"`
	} `yaml:"slack"`
}

// Load reads config from the workspace and applies environment overrides.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromYAML parses config from raw YAML bytes without env overlay.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return cfg, nil
}

// Validate ensures required settings are present.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Jira.DefaultSiteURL == "" {
		return fmt.Errorf("config.jira.default_site_url is required")
	}
	if c.Slack.Channel == "" {
		return fmt.Errorf("config.slack.channel is required")
	}
	return nil
}

func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&c.Auth.JWTSecret, "OLYMPUS_JWT_SECRET")
	overlay(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	overlay(&c.Github.PAT, "GITHUB_PAT")
	overlay(&c.Github.AppID, "GITHUB_APP_ID")
	overlay(&c.Github.PrivateKey, "GITHUB_PRIVATE_KEY")
}

// AppPrivateKeyPEM returns the GitHub App key with literal \n sequences
// converted back to newlines, matching how the key is stored in env vars.
func (c *Config) AppPrivateKeyPEM() string {
	return strings.ReplaceAll(c.Github.PrivateKey, `\n`, "\n")
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "olympus.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v0"
	cfg.Anthropic.Model = "claude-sonnet-4-6"
	cfg.Jira.DefaultSiteURL = "https://olympusss.atlassian.net"
	cfg.Jira.DefaultProjectKey = "ADB"
	cfg.Jira.DefaultBoardID = 2
	cfg.Slack.Channel = "#general"
	return &cfg
}

// GenerateDefault returns default config YAML for olympus.yml.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: ":8080"
  base_path: /v0

auth:
  # jwt_secret can also come from OLYMPUS_JWT_SECRET
  jwt_secret: ""
  allow_dev_login: false

anthropic:
  # api_key can also come from ANTHROPIC_API_KEY
  api_key: ""
  model: claude-sonnet-4-6

github:
  # pat / app_id / private_key can also come from
  # GITHUB_PAT / GITHUB_APP_ID / GITHUB_PRIVATE_KEY
  pat: ""
  app_id: ""
  private_key: ""

jira:
  default_site_url: https://olympusss.atlassian.net
  default_project_key: ADB
  default_board_id: 2

slack:
  channel: "#general"
`
