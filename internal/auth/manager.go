package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/khanasif1/twooter/internal/apiclient"
	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/model"
	"github.com/khanasif1/twooter/internal/tokenstore"
)

// State of the authentication manager.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

// Strategy names, in cascade order.
const (
	StrategyLogin      = "login"
	StrategyBotKey     = "bot-key"
	StrategyTeamInvite = "team-invite"
	StrategyNewTeam    = "new-team"
)

// Manager obtains and refreshes the session token. Strategies are tried in
// a fixed order, first success wins, and the resulting token is persisted
// before the manager reports success.
type Manager struct {
	client *apiclient.Client
	store  *tokenstore.Store
	bot    config.BotConfig
	team   config.TeamConfig

	mu    sync.Mutex
	state State
	token model.Token

	now func() time.Time
}

func NewManager(client *apiclient.Client, store *tokenstore.Store, bot config.BotConfig, team config.TeamConfig) *Manager {
	return &Manager{client: client, store: store, bot: bot, team: team, now: func() time.Time { return time.Now().UTC() }}
}

// State returns the current machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the live token value, or "" before authentication.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.Value
}

// Bearer returns the Authorization bearer value for requests. Cookie
// sessions authenticate through the client's jar, so it is "" for them.
func (m *Manager) Bearer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bearerLocked()
}

func (m *Manager) bearerLocked() string {
	if m.token.Kind == model.TokenSession {
		return ""
	}
	return m.token.Value
}

// Identity returns the configured bot username.
func (m *Manager) Identity() string { return m.bot.Username }

// Start authenticates, preferring a cached token validated against
// /auth/me, then falling back to the strategy cascade.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok, err := m.store.Get(ctx, m.bot.Username); err != nil {
		return err
	} else if ok {
		if tok.Kind == model.TokenSession {
			// Cookie sessions do not survive a restart; drop the marker.
			if err := m.store.Remove(ctx, m.bot.Username); err != nil {
				return err
			}
		} else if m.validate(ctx, tok.Value) {
			_ = m.store.Touch(ctx, m.bot.Username, m.now())
			m.token = tok
			m.state = Authenticated
			logging.Info("auth_cached_token", map[string]any{"identity": m.bot.Username})
			return nil
		} else {
			logging.Info("auth_cached_token_stale", map[string]any{"identity": m.bot.Username})
			if err := m.store.Remove(ctx, m.bot.Username); err != nil {
				return err
			}
		}
	}
	return m.authenticateLocked(ctx)
}

// Reauthenticate replaces a stale token with a fresh one. Concurrent
// callers holding the same stale value trigger a single refresh; the rest
// pick up the token the first one obtained.
func (m *Manager) Reauthenticate(ctx context.Context, stale string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Authenticated && m.token.Value != stale {
		return nil
	}
	if err := m.store.Remove(ctx, m.bot.Username); err != nil {
		return err
	}
	return m.authenticateLocked(ctx)
}

// Logout clears the cached token. Server-side revocation is best effort.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token.Value != "" {
		if res, err := m.client.Do(ctx, http.MethodPost, "/auth/logout", map[string]any{}, m.bearerLocked()); err != nil {
			logging.Warn("logout_revoke_failed", map[string]any{"error": err.Error()})
		} else if res.Class != apiclient.ClassOK {
			logging.Warn("logout_revoke_failed", map[string]any{"status": res.Status})
		}
	}
	if err := m.store.Remove(ctx, m.bot.Username); err != nil {
		return err
	}
	m.token = model.Token{}
	m.state = Unauthenticated
	return nil
}

// WhoAmI fetches the authenticated profile from /auth/me.
func (m *Manager) WhoAmI(ctx context.Context) (string, error) {
	res, err := m.client.Do(ctx, http.MethodGet, "/auth/me", nil, m.Bearer())
	if err != nil {
		return "", err
	}
	if res.Class != apiclient.ClassOK {
		return "", res.Err()
	}
	var out struct {
		Username string `json:"username"`
		User     struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := res.Decode(&out); err != nil {
		return "", err
	}
	if out.Username != "" {
		return out.Username, nil
	}
	return out.User.Username, nil
}

func (m *Manager) validate(ctx context.Context, token string) bool {
	res, err := m.client.Do(ctx, http.MethodGet, "/auth/me", nil, token)
	return err == nil && res.Class == apiclient.ClassOK
}

type strategy struct {
	name string
	path string
	body map[string]any
}

func (m *Manager) strategies() []strategy {
	out := []strategy{{
		name: StrategyLogin,
		path: "/auth/login",
		body: map[string]any{"username": m.bot.Username, "password": m.bot.Password},
	}}
	if m.team.BotKey != "" {
		out = append(out, strategy{
			name: StrategyBotKey,
			path: "/auth/register-bot",
			body: map[string]any{
				"key":          m.team.BotKey,
				"username":     m.bot.Username,
				"password":     m.bot.Password,
				"email":        m.bot.Email,
				"display_name": m.bot.DisplayName,
				"member_email": m.bot.Email,
			},
		})
	}
	if m.team.InviteCode != "" {
		out = append(out, strategy{
			name: StrategyTeamInvite,
			path: "/auth/register",
			body: map[string]any{
				"username":     m.bot.Username,
				"password":     m.bot.Password,
				"email":        m.bot.Email,
				"display_name": m.bot.DisplayName,
				"invite_code":  m.team.InviteCode,
			},
		})
	}
	if m.team.HasNewTeam() {
		out = append(out, strategy{
			name: StrategyNewTeam,
			path: "/auth/register-team",
			body: map[string]any{
				"username":     m.bot.Username,
				"password":     m.bot.Password,
				"email":        m.bot.Email,
				"display_name": m.bot.DisplayName,
				"team_name":    m.team.TeamName,
				"affiliation":  m.team.Affiliation,
				"member_name":  m.team.MemberName,
				"member_email": m.team.MemberEmail,
			},
		})
	}
	return out
}

func (m *Manager) authenticateLocked(ctx context.Context) error {
	m.state = Authenticating
	var attempts []model.AuthAttempt
	for _, s := range m.strategies() {
		logging.Info("auth_attempt", map[string]any{"strategy": s.name, "identity": m.bot.Username})
		tok, err := m.try(ctx, s)
		if err != nil {
			metrics.IncAuthAttempt(s.name, "failed")
			logging.Warn("auth_strategy_failed", map[string]any{"strategy": s.name, "error": err.Error()})
			attempts = append(attempts, model.AuthAttempt{Strategy: s.name, Err: err})
			continue
		}
		if err := m.store.Put(ctx, tok); err != nil {
			m.state = Unauthenticated
			return err
		}
		metrics.IncAuthAttempt(s.name, "ok")
		logging.Info("auth_ok", map[string]any{"strategy": s.name, "identity": m.bot.Username, "kind": string(tok.Kind)})
		m.token = tok
		m.state = Authenticated
		return nil
	}
	m.state = Unauthenticated
	return &model.AuthExhaustedError{Attempts: attempts}
}

func (m *Manager) try(ctx context.Context, s strategy) (model.Token, error) {
	res, err := m.client.Do(ctx, http.MethodPost, s.path, s.body, "")
	if err != nil {
		return model.Token{}, err
	}
	if res.Class != apiclient.ClassOK {
		return model.Token{}, res.Err()
	}
	var out struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresAt   string `json:"expires_at"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := res.Decode(&out); err != nil {
		return model.Token{}, err
	}
	now := m.now()
	tok := model.Token{Identity: m.bot.Username, Kind: model.TokenBearer, IssuedAt: now, LastUsed: now}
	switch {
	case out.Token != "":
		tok.Value = out.Token
	case out.AccessToken != "":
		tok.Value = out.AccessToken
	default:
		// No token in the body means the platform set a session cookie.
		tok.Value = "session"
		tok.Kind = model.TokenSession
	}
	if out.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
			tok.ExpiresAt = t.UTC()
		}
	} else if out.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return tok, nil
}
