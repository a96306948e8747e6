package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanasif1/twooter/internal/model"
)

// Config is the application's configuration model. It is loaded once at
// startup and treated as immutable afterwards.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Bot        BotConfig        `yaml:"bot"`
	Team       TeamConfig       `yaml:"team"`
	Storage    StorageConfig    `yaml:"storage"`
	Engagement EngagementConfig `yaml:"engagement"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	// Requests per second pacing against the platform
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BotConfig struct {
	Username string `yaml:"username"`
	// If empty, read from env TWOOTER_PASSWORD
	Password    string `yaml:"password"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"displayName"`
}

// TeamConfig holds the registration inputs. Any subset may be present;
// auth strategies are selected from what is configured.
type TeamConfig struct {
	// If empty, read from env TWOOTER_INVITE_CODE
	InviteCode string `yaml:"inviteCode"`
	// If empty, read from env TWOOTER_BOT_KEY
	BotKey      string `yaml:"botKey"`
	TeamName    string `yaml:"teamName"`
	Affiliation string `yaml:"affiliation"`
	MemberName  string `yaml:"memberName"`
	MemberEmail string `yaml:"memberEmail"`
}

// HasNewTeam reports whether a full new-team descriptor is configured.
func (t TeamConfig) HasNewTeam() bool {
	return t.TeamName != "" && t.Affiliation != "" && t.MemberName != "" && t.MemberEmail != ""
}

type StorageConfig struct {
	TokensDB string `yaml:"tokensDb"`
}

type EngagementConfig struct {
	Keywords      []string      `yaml:"keywords"`
	Actions       []string      `yaml:"actions"` // like, repost, reply
	ReplyText     string        `yaml:"replyText"`
	CheckInterval time.Duration `yaml:"checkInterval"`
	MaxPerHour    int           `yaml:"maxPerHour"`
	// Optional per-action ceilings layered under the global one
	PerAction     map[string]int `yaml:"perAction"`
	MaxCandidates int            `yaml:"maxCandidates"`
	ActionDelay   time.Duration  `yaml:"actionDelay"`
	// Hours (UTC) during which the loop stays idle
	QuietHours []int `yaml:"quietHours"`
	// Identifiers remembered to avoid re-engaging the same post
	SeenCapacity int `yaml:"seenCapacity"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:       "https://social.legitreal.com/api",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			RPS:           2,
			Burst:         5,
		},
		Bot:     BotConfig{},
		Storage: StorageConfig{TokensDB: "./tokens.db"},
		Engagement: EngagementConfig{
			Keywords:      []string{"ctf", "flag"},
			Actions:       []string{"like"},
			ReplyText:     "Interesting take!",
			CheckInterval: time.Minute,
			MaxPerHour:    10,
			MaxCandidates: 10,
			ActionDelay:   2 * time.Second,
			SeenCapacity:  500,
		},
	}
}

// ResolveEnv fills in secret fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Bot.Password == "" {
		c.Bot.Password = os.Getenv("TWOOTER_PASSWORD")
	}
	if c.Team.InviteCode == "" {
		c.Team.InviteCode = os.Getenv("TWOOTER_INVITE_CODE")
	}
	if c.Team.BotKey == "" {
		c.Team.BotKey = os.Getenv("TWOOTER_BOT_KEY")
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = os.Getenv("TWOOTER_BASE_URL")
	}
}

// Validate checks the startup invariants: the platform must be reachable by
// address, the bot identity must be complete, and at least one
// authentication strategy must be configured.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.baseUrl is required", model.ErrConfiguration)
	}
	if c.Bot.Username == "" || c.Bot.Password == "" {
		return fmt.Errorf("%w: bot.username and bot.password are required", model.ErrConfiguration)
	}
	hasRegistration := c.Team.BotKey != "" || c.Team.InviteCode != "" || c.Team.HasNewTeam()
	if hasRegistration && (c.Bot.Email == "" || c.Bot.DisplayName == "") {
		return fmt.Errorf("%w: bot.email and bot.displayName are required to register", model.ErrConfiguration)
	}
	for _, a := range c.Engagement.Actions {
		switch a {
		case "like", "repost", "reply":
		default:
			return fmt.Errorf("%w: unknown engagement action %q", model.ErrConfiguration, a)
		}
	}
	return nil
}

// Load reads YAML config from path and resolves env fallbacks.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
